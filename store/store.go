// Package store defines the slice of key-value commands the realtime
// cache layer relies on, and provides two implementations: a NATS
// JetStream KV adapter and an in-memory bucket with the same revision
// semantics. Every atomicity argument in the cache layer reduces to
// the contract of this interface.
package store

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Get/Delete for a key that does not exist.
	ErrKeyNotFound = errors.New("store: key not found")
	// ErrKeyExists is returned by Create when the key is already present.
	ErrKeyExists = errors.New("store: key exists")
	// ErrRevisionMismatch is returned by Update/DeleteRevision when the
	// key's revision moved since it was read.
	ErrRevisionMismatch = errors.New("store: revision mismatch")
)

// Entry is one key's value together with the revision it was read at.
// Revisions increase monotonically per bucket on every write.
type Entry struct {
	Value    []byte
	Revision uint64
}

// Bucket is the command surface of a single key-value bucket.
//
// Keys are dot-separated tokens, the same shape as NATS KV keys.
// Update and DeleteRevision are the conditional primitives: they
// succeed only if the key's revision still equals the one passed in,
// which is what the optimistic-concurrency paths build on. TTL, if the
// backing bucket has one, applies per key from its last write.
type Bucket interface {
	// Get returns the entry for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Entry, error)
	// Put writes the key unconditionally and returns the new revision.
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	// Create writes the key only if it does not exist (ErrKeyExists otherwise).
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	// Update writes the key only if its current revision equals revision.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	// Delete removes the key unconditionally. Missing keys are ErrKeyNotFound.
	Delete(ctx context.Context, key string) error
	// DeleteRevision removes the key only if its revision still matches —
	// the compare-and-delete used by lock release.
	DeleteRevision(ctx context.Context, key string, revision uint64) error
	// Keys lists keys matching a subject filter such as "7.>" or "7.*".
	// An empty result is not an error.
	Keys(ctx context.Context, filter string) ([]string, error)
}
