// Package sources fetches the read-only product catalog and review documents.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
	"github.com/hossain-rashid/Smartshop/internal/platform/storage"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
)

const (
	metricNamespace = "github.com/hossain-rashid/Smartshop/internal/repositories/sources"
	maxDocumentSize = 8 << 20
)

var errNoObjectOpener = errors.New("gs:// locations require an object opener")

// FetchError reports a failed catalog or review fetch. Callers degrade to an empty list.
type FetchError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

// Unwrap exposes the underlying error.
func (e *FetchError) Unwrap() error { return e.Err }

// ObjectOpener opens a Cloud Storage object for reading.
type ObjectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

type sourceConfig struct {
	client   *http.Client
	token    string
	logger   *zap.Logger
	meter    metric.Meter
	validate *validator.Validate
	opener   ObjectOpener
}

// Option customises source construction.
type Option func(*sourceConfig)

// WithHTTPClient overrides the HTTP client used for remote documents.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *sourceConfig) {
		if client != nil {
			cfg.client = client
		}
	}
}

// WithBearerToken attaches an Authorization header to remote catalog requests.
func WithBearerToken(token string) Option {
	return func(cfg *sourceConfig) {
		cfg.token = strings.TrimSpace(token)
	}
}

// WithLogger sets the logger used to report dropped entries.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *sourceConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *sourceConfig) {
		if m != nil {
			cfg.meter = m
		}
	}
}

// WithObjectOpener overrides how gs:// review documents are opened.
func WithObjectOpener(opener ObjectOpener) Option {
	return func(cfg *sourceConfig) {
		if opener != nil {
			cfg.opener = opener
		}
	}
}

func buildConfig(opts []Option) sourceConfig {
	cfg := sourceConfig{
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   zap.NewNop(),
		validate: validator.New(),
		opener: func(context.Context, string, string) (io.ReadCloser, error) {
			return nil, errNoObjectOpener
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	return cfg
}

// document loads a JSON document from an http(s) URL, a gs:// object or a local file.
type document struct {
	location string
	kind     string
	cfg      sourceConfig
	latency  metric.Float64Histogram
}

func newDocument(location, kind string, cfg sourceConfig) (*document, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("sources: %s location is required", kind)
	}
	latency, err := cfg.meter.Float64Histogram(
		"smartshop.source.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for catalog and review fetches"),
	)
	if err != nil {
		cfg.logger.Warn("sources: unable to register latency metric", zap.Error(err))
	}
	return &document{location: location, kind: kind, cfg: cfg, latency: latency}, nil
}

func (d *document) decode(ctx context.Context, target any) (err error) {
	start := time.Now()
	defer func() {
		if d.latency == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		d.latency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("source", d.kind), attribute.String("outcome", outcome)))
	}()

	body, err := d.open(ctx)
	if err != nil {
		return &FetchError{Source: d.location, Err: err}
	}
	defer body.Close()

	if err := json.NewDecoder(io.LimitReader(body, maxDocumentSize)).Decode(target); err != nil {
		return &FetchError{Source: d.location, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (d *document) open(ctx context.Context) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(d.location, "http://"), strings.HasPrefix(d.location, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.location, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if d.cfg.token != "" {
			req.Header.Set("Authorization", "Bearer "+d.cfg.token)
		}
		resp, err := d.cfg.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return resp.Body, nil
	case storage.IsObjectURL(d.location):
		loc, err := storage.ParseObjectURL(d.location)
		if err != nil {
			return nil, err
		}
		return d.cfg.opener(ctx, loc.Bucket, loc.Object)
	default:
		return os.Open(filepath.Clean(d.location))
	}
}

// ProductSource loads the product catalog.
type ProductSource struct {
	doc *document
}

var _ repositories.ProductSource = (*ProductSource)(nil)

// NewProductSource constructs a catalog source for location.
func NewProductSource(location string, opts ...Option) (*ProductSource, error) {
	doc, err := newDocument(location, "catalog", buildConfig(opts))
	if err != nil {
		return nil, err
	}
	return &ProductSource{doc: doc}, nil
}

// FetchProducts returns the valid products in source order. Invalid entries are dropped and logged.
func (s *ProductSource) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	var raw []json.RawMessage
	if err := s.doc.decode(ctx, &raw); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(raw))
	for i, entry := range raw {
		var product domain.Product
		if err := json.Unmarshal(entry, &product); err != nil {
			s.doc.cfg.logger.Warn("sources: dropping undecodable product", zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := s.doc.cfg.validate.Struct(product); err != nil {
			s.doc.cfg.logger.Warn("sources: dropping invalid product", zap.Int("index", i), zap.Int("id", product.ID), zap.Error(err))
			continue
		}
		products = append(products, product)
	}
	return products, nil
}

// ReviewSource loads the review document.
type ReviewSource struct {
	doc *document
}

var _ repositories.ReviewSource = (*ReviewSource)(nil)

// NewReviewSource constructs a review source for location.
func NewReviewSource(location string, opts ...Option) (*ReviewSource, error) {
	doc, err := newDocument(location, "reviews", buildConfig(opts))
	if err != nil {
		return nil, err
	}
	return &ReviewSource{doc: doc}, nil
}

// FetchReviews returns the valid reviews in source order. Entries outside the 0..5 rating range are dropped.
func (s *ReviewSource) FetchReviews(ctx context.Context) ([]domain.Review, error) {
	var raw []domain.Review
	if err := s.doc.decode(ctx, &raw); err != nil {
		return nil, err
	}

	reviews := make([]domain.Review, 0, len(raw))
	for i, review := range raw {
		if err := s.doc.cfg.validate.Struct(review); err != nil {
			s.doc.cfg.logger.Warn("sources: dropping invalid review", zap.Int("index", i), zap.Error(err))
			continue
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}
