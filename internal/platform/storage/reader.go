package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var errReaderClosed = errors.New("storage reader: closed")

// Reader opens Cloud Storage objects. The underlying client is created on first use.
type Reader struct {
	mu        sync.Mutex
	opts      []option.ClientOption
	client    *gcs.Client
	closed    bool
	newClient func(ctx context.Context, opts ...option.ClientOption) (*gcs.Client, error)
}

// NewReader constructs a Reader. Client options are passed to storage.NewClient.
func NewReader(opts ...option.ClientOption) *Reader {
	return &Reader{
		opts:      opts,
		newClient: gcs.NewClient,
	}
}

// NewReaderWithClient wraps an existing client. Close does not close a borrowed client.
func NewReaderWithClient(client *gcs.Client) (*Reader, error) {
	if client == nil {
		return nil, errors.New("storage reader: client is required")
	}
	return &Reader{client: client}, nil
}

func (r *Reader) ensureClient(ctx context.Context) (*gcs.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errReaderClosed
	}
	if r.client != nil {
		return r.client, nil
	}
	if r.newClient == nil {
		return nil, errors.New("storage reader: client factory is not configured")
	}
	client, err := r.newClient(ctx, r.opts...)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// Open returns a reader for bucket/object. The caller closes it.
func (r *Reader) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	if r == nil {
		return nil, errors.New("storage reader: not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return nil, errors.New("storage reader: bucket and object must be provided")
	}
	client, err := r.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Bucket(bucket).Object(object).NewReader(ctx)
}

// OpenURL opens a gs://bucket/object location.
func (r *Reader) OpenURL(ctx context.Context, raw string) (io.ReadCloser, error) {
	loc, err := ParseObjectURL(raw)
	if err != nil {
		return nil, err
	}
	return r.Open(ctx, loc.Bucket, loc.Object)
}

// Close releases the client when the Reader created it.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.client == nil || r.newClient == nil {
		return nil
	}
	return r.client.Close()
}
