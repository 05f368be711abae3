package sources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
)

const catalogFixture = `[
	{"id":1,"title":"Fjallraven Backpack","price":109.95,"description":"Fits 15 inch laptops","category":"men's clothing","image":"bag.jpg","rating":{"rate":3.9,"count":120}},
	{"id":0,"title":"missing id","price":1,"category":"jewelery"},
	{"id":3,"title":"Broken price","price":"abc","category":"jewelery"},
	{"id":5,"title":"Dragon Bracelet","price":"695","category":"jewelery","image":"bracelet.jpg","rating":{"rate":4.6,"count":400}}
]`

func TestProductSourceHTTP(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, catalogFixture)
	}))
	defer server.Close()

	source, err := NewProductSource(server.URL+"/products", WithBearerToken(" token-123 "), WithHTTPClient(server.Client()))
	require.NoError(t, err)

	products, err := source.FetchProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-123", gotAuth)
	require.Len(t, products, 2)
	assert.Equal(t, 1, products[0].ID)
	assert.Equal(t, domain.NewMoney(109, 95), products[0].Price)
	assert.Equal(t, 3.9, products[0].Rating.Rate)
	assert.Equal(t, 5, products[1].ID)
	assert.Equal(t, domain.NewMoney(695, 0), products[1].Price)
}

func TestProductSourceNon2xxIsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	source, err := NewProductSource(server.URL)
	require.NoError(t, err)

	products, err := source.FetchProducts(context.Background())
	assert.Nil(t, products)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, server.URL, fetchErr.Source)
	assert.Contains(t, err.Error(), "502")
}

func TestProductSourceMalformedDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"not":"an array"}`)
	}))
	defer server.Close()

	source, err := NewProductSource(server.URL)
	require.NoError(t, err)

	_, err = source.FetchProducts(context.Background())
	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestReviewSourceFileDropsInvalidRatings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviews.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"name":"Ayesha","rating":5,"comment":"Fast delivery","date":"2024-04-01"},
		{"name":"Rafi","rating":7,"comment":"too generous","date":"2024-04-02"},
		{"name":"","rating":3,"comment":"anonymous","date":"2024-04-03"},
		{"name":"Tania","rating":3.5,"comment":"<b>Good</b> value","date":"2024-04-04"}
	]`), 0o600))

	source, err := NewReviewSource(path)
	require.NoError(t, err)

	reviews, err := source.FetchReviews(context.Background())
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "Ayesha", reviews[0].Name)
	assert.Equal(t, "Tania", reviews[1].Name)
	assert.Equal(t, "<b>Good</b> value", reviews[1].Comment)
}

func TestReviewSourceMissingFile(t *testing.T) {
	source, err := NewReviewSource(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	_, err = source.FetchReviews(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReviewSourceObjectStorage(t *testing.T) {
	var gotBucket, gotObject string
	opener := func(_ context.Context, bucket, object string) (io.ReadCloser, error) {
		gotBucket, gotObject = bucket, object
		return io.NopCloser(strings.NewReader(`[{"name":"Nabil","rating":4,"comment":"ok","date":"2024-05-01"}]`)), nil
	}

	source, err := NewReviewSource("gs://smartshop-content/reviews.json", WithObjectOpener(opener))
	require.NoError(t, err)

	reviews, err := source.FetchReviews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "smartshop-content", gotBucket)
	assert.Equal(t, "reviews.json", gotObject)
	require.Len(t, reviews, 1)
	assert.Equal(t, 4.0, reviews[0].Rating)
}

func TestReviewSourceObjectStorageWithoutOpener(t *testing.T) {
	source, err := NewReviewSource("gs://smartshop-content/reviews.json")
	require.NoError(t, err)

	_, err = source.FetchReviews(context.Background())
	assert.ErrorIs(t, err, errNoObjectOpener)
}

func TestNewSourceRequiresLocation(t *testing.T) {
	_, err := NewProductSource("  ")
	assert.Error(t, err)
	_, err = NewReviewSource("")
	assert.Error(t, err)
}
