package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// NATSBucket adapts a JetStream key-value bucket to the Bucket interface.
// Revisions are the KV entry revisions; the conditional primitives map to
// revision-guarded Update and Delete, so they are atomic on the server.
type NATSBucket struct {
	kv jetstream.KeyValue
}

// NewNATSBucket wraps an existing JetStream KV handle.
func NewNATSBucket(kv jetstream.KeyValue) *NATSBucket {
	return &NATSBucket{kv: kv}
}

// EnsureNATSBucket creates (or binds to) a KV bucket and wraps it.
func EnsureNATSBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (*NATSBucket, error) {
	kv, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create KV bucket %s: %w", cfg.Bucket, err)
	}
	return &NATSBucket{kv: kv}, nil
}

func (b *NATSBucket) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Entry{}, ErrKeyNotFound
		}
		return Entry{}, err
	}
	return Entry{Value: entry.Value(), Revision: entry.Revision()}, nil
}

func (b *NATSBucket) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	return b.kv.Put(ctx, key, value)
}

func (b *NATSBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := b.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrKeyExists
		}
		return 0, err
	}
	return rev, nil
}

func (b *NATSBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := b.kv.Update(ctx, key, value, revision)
	if err != nil {
		if isWrongLastSequence(err) {
			return 0, ErrRevisionMismatch
		}
		return 0, err
	}
	return rev, nil
}

func (b *NATSBucket) Delete(ctx context.Context, key string) error {
	// KV delete markers succeed even for keys that never existed, so the
	// existence check has to be explicit.
	if _, err := b.kv.Get(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	return b.kv.Delete(ctx, key)
}

func (b *NATSBucket) DeleteRevision(ctx context.Context, key string, revision uint64) error {
	err := b.kv.Delete(ctx, key, jetstream.LastRevision(revision))
	if err != nil {
		if isWrongLastSequence(err) {
			return ErrRevisionMismatch
		}
		return err
	}
	return nil
}

func (b *NATSBucket) Keys(ctx context.Context, filter string) ([]string, error) {
	lister, err := b.kv.ListKeysFiltered(ctx, filter)
	if err != nil {
		return nil, err
	}
	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
