package services

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var reviewTextPolicy = bluemonday.StrictPolicy()

// sanitizeReviews returns copies of reviews with markup stripped from names and comments. Reviews
// left without a name are dropped.
func sanitizeReviews(reviews []Review, sanitize func(string) string) []Review {
	out := make([]Review, 0, len(reviews))
	for _, review := range reviews {
		review.Name = sanitize(review.Name)
		review.Comment = sanitize(review.Comment)
		review.Date = strings.TrimSpace(review.Date)
		if review.Name == "" {
			continue
		}
		out = append(out, review)
	}
	return out
}

// sanitizeReviewText strips HTML, removes control characters and normalises spacing while
// preserving intentional newlines. The result is plain text; entities escaped by the policy are
// decoded again.
func sanitizeReviewText(input string) string {
	stripped := strings.TrimSpace(html.UnescapeString(reviewTextPolicy.Sanitize(input)))
	if stripped == "" {
		return ""
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(stripped, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\n' {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
