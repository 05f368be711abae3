package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleStore persists values in an embedded Pebble database on local disk.
type PebbleStore struct {
	mu     sync.RWMutex
	db     *pebble.DB
	closed bool
}

var (
	_ Store   = (*PebbleStore)(nil)
	_ Deleter = (*PebbleStore)(nil)
)

// NewPebbleStore opens (or creates) the database rooted at dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	clean := filepath.Clean(dir)
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return nil, fmt.Errorf("pebble mkdir: %w", err)
	}
	opts := &pebble.Options{
		// Records are tiny and rewritten whole; a small memtable keeps the footprint low.
		MemTableSize: 4 << 20,
	}
	db, err := pebble.Open(clean, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Get implements Store.
func (p *PebbleStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey("pebble get", key); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", false, ErrClosed
	}

	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("pebble get", key, err)
	}
	value := string(v)
	if cerr := closer.Close(); cerr != nil {
		return "", false, unavailable("pebble get", key, cerr)
	}
	return value, true, nil
}

// Set implements Store. Writes are synced so a balance change survives a crash.
func (p *PebbleStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey("pebble set", key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return unavailable("pebble set", key, err)
	}
	return nil
}

// Delete implements Deleter. Pebble writes a tombstone that compaction reclaims.
func (p *PebbleStore) Delete(ctx context.Context, key string) error {
	if err := validateKey("pebble delete", key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		return unavailable("pebble delete", key, err)
	}
	return nil
}

// Ping reports whether the database is still open.
func (p *PebbleStore) Ping(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

// Close flushes and closes the database.
func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
