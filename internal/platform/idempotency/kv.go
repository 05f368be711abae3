package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hossain-rashid/Smartshop/internal/platform/kvstore"
)

const (
	defaultKeyPrefix = "smartShopIdempotency:"
	// indexSuffix never collides with a record key, which is a sha256 hex digest.
	indexSuffix = "index"
)

// KVStore persists idempotency records as JSON documents in a kvstore.Store, so replays survive
// restarts on the durable storage backends. Reservations are serialised within the process.
//
// kvstore has no prefix scan, so the store keeps an index document mapping each record key to its
// expiry. CleanupExpired walks that index.
type KVStore struct {
	kv     kvstore.Store
	prefix string

	mu sync.Mutex
}

// KVOption customises a KVStore.
type KVOption func(*KVStore)

// WithKeyPrefix overrides the prefix prepended to every record key.
func WithKeyPrefix(prefix string) KVOption {
	return func(s *KVStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

var _ Cleaner = (*KVStore)(nil)

// NewKVStore wraps kv. The caller owns kv and closes it.
func NewKVStore(kv kvstore.Store, opts ...KVOption) *KVStore {
	store := &KVStore{kv: kv, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Reserve implements the Store interface.
func (s *KVStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found, err := s.load(ctx, key)
	if err != nil {
		return Reservation{}, err
	}
	reservation, store, err := reserve(existing, found, key, fingerprint, now.UTC(), ttl)
	if err != nil {
		return Reservation{}, err
	}
	if store {
		if err := s.save(ctx, key, reservation.Record); err != nil {
			return Reservation{}, err
		}
	}
	return reservation, nil
}

// SaveResponse implements the Store interface.
func (s *KVStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	record, err := complete(existing, found, key, fingerprint, resp, now.UTC(), ttl)
	if err != nil {
		return err
	}
	return s.save(ctx, key, record)
}

// Release drops the reservation so the key can be reserved again.
func (s *KVStore) Release(ctx context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := compositeKey(key)
	if err := s.remove(ctx, id); err != nil {
		return err
	}
	index, err := s.loadIndex(ctx)
	if err != nil {
		return err
	}
	if _, ok := index[id]; !ok {
		return nil
	}
	delete(index, id)
	return s.saveIndex(ctx, index)
}

// CleanupExpired removes up to limit records whose expiry is before now, oldest first. A non-positive
// limit removes every expired record.
func (s *KVStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex(ctx)
	if err != nil {
		return 0, err
	}
	expired := make([]string, 0, len(index))
	for id, expiresAt := range index {
		if expiresAt.Before(now) {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return index[expired[i]].Before(index[expired[j]]) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	removed := 0
	for _, id := range expired {
		if err := s.remove(ctx, id); err != nil {
			if removed > 0 {
				_ = s.saveIndex(ctx, index)
			}
			return removed, err
		}
		delete(index, id)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.saveIndex(ctx, index)
}

func (s *KVStore) remove(ctx context.Context, id string) error {
	var err error
	if deleter, ok := s.kv.(kvstore.Deleter); ok {
		err = deleter.Delete(ctx, s.prefix+id)
	} else {
		// An empty value reads back as a missing record.
		err = s.kv.Set(ctx, s.prefix+id, "")
	}
	if err != nil {
		return fmt.Errorf("idempotency: remove record: %w", err)
	}
	return nil
}

func (s *KVStore) loadIndex(ctx context.Context) (map[string]time.Time, error) {
	raw, found, err := s.kv.Get(ctx, s.prefix+indexSuffix)
	if err != nil {
		return nil, fmt.Errorf("idempotency: load index: %w", err)
	}
	index := map[string]time.Time{}
	if !found || raw == "" {
		return index, nil
	}
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		// A corrupt index is rebuilt from subsequent writes.
		return map[string]time.Time{}, nil
	}
	return index, nil
}

func (s *KVStore) saveIndex(ctx context.Context, index map[string]time.Time) error {
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("idempotency: encode index: %w", err)
	}
	if err := s.kv.Set(ctx, s.prefix+indexSuffix, string(data)); err != nil {
		return fmt.Errorf("idempotency: save index: %w", err)
	}
	return nil
}

func (s *KVStore) load(ctx context.Context, key string) (Record, bool, error) {
	raw, found, err := s.kv.Get(ctx, s.prefix+compositeKey(key))
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load record: %w", err)
	}
	if !found || raw == "" {
		return Record{}, false, nil
	}
	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		// Unreadable records are replaced by a fresh reservation.
		return Record{}, false, nil
	}
	return record, true, nil
}

func (s *KVStore) save(ctx context.Context, key string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	id := compositeKey(key)
	if err := s.kv.Set(ctx, s.prefix+id, string(data)); err != nil {
		return fmt.Errorf("idempotency: save record: %w", err)
	}
	index, err := s.loadIndex(ctx)
	if err != nil {
		return err
	}
	if current, ok := index[id]; ok && current.Equal(record.ExpiresAt) {
		return nil
	}
	index[id] = record.ExpiresAt.UTC()
	return s.saveIndex(ctx, index)
}
