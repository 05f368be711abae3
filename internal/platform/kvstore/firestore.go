package kvstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/api/iterator"

	pfirestore "github.com/hossain-rashid/Smartshop/internal/platform/firestore"
)

// FirestoreStore keeps each key as a document in a single collection.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
	now        func() time.Time
}

type kvDocument struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var (
	_ Store   = (*FirestoreStore)(nil)
	_ Deleter = (*FirestoreStore)(nil)
)

// NewFirestoreStore constructs a Firestore-backed store using the shared provider.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("kvstore: firestore provider is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("kvstore: firestore collection is required")
	}
	return &FirestoreStore{
		provider:   provider,
		collection: collection,
		now:        time.Now,
	}, nil
}

// Get implements Store.
func (s *FirestoreStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey("firestore get", key); err != nil {
		return "", false, err
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return "", false, pfirestore.WrapError("firestore get", err)
	}

	snap, err := client.Collection(s.collection).Doc(key).Get(ctx)
	if pfirestore.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pfirestore.WrapError("firestore get "+key, err)
	}

	var doc kvDocument
	if err := snap.DataTo(&doc); err != nil {
		return "", false, pfirestore.WrapError("firestore decode "+key, err)
	}
	return doc.Value, true, nil
}

// Set implements Store.
func (s *FirestoreStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey("firestore set", key); err != nil {
		return err
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("firestore set", err)
	}
	doc := kvDocument{Value: value, UpdatedAt: s.now().UTC()}
	if _, err := client.Collection(s.collection).Doc(key).Set(ctx, doc); err != nil {
		return pfirestore.WrapError("firestore set "+key, err)
	}
	return nil
}

// Delete implements Deleter.
func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	if err := validateKey("firestore delete", key); err != nil {
		return err
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("firestore delete", err)
	}
	if _, err := client.Collection(s.collection).Doc(key).Delete(ctx); err != nil && !pfirestore.IsNotFound(err) {
		return pfirestore.WrapError("firestore delete "+key, err)
	}
	return nil
}

// Ping verifies the client can be created and the collection queried.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("firestore ping", err)
	}
	iter := client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return pfirestore.WrapError("firestore ping", err)
	}
	return nil
}

// Close releases the provider's client.
func (s *FirestoreStore) Close() error {
	return s.provider.Close(context.Background())
}
