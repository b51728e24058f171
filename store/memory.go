package store

import (
	"context"
	"strings"
	"sync"
)

// MemBucket is an in-process Bucket with the same revision semantics as
// a JetStream KV bucket: one monotonically increasing revision counter
// per bucket, bumped on every write. It backs unit tests and embedded
// single-process deployments. TTLs are not modeled.
type MemBucket struct {
	mu      sync.Mutex
	rev     uint64
	entries map[string]Entry
}

func NewMemBucket() *MemBucket {
	return &MemBucket{entries: make(map[string]Entry)}
}

func (b *MemBucket) Get(_ context.Context, key string) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[key]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	return entry, nil
}

func (b *MemBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(key, value), nil
}

func (b *MemBucket) Create(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; ok {
		return 0, ErrKeyExists
	}
	return b.write(key, value), nil
}

func (b *MemBucket) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[key]
	if !ok || entry.Revision != revision {
		return 0, ErrRevisionMismatch
	}
	return b.write(key, value), nil
}

func (b *MemBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; !ok {
		return ErrKeyNotFound
	}
	delete(b.entries, key)
	return nil
}

func (b *MemBucket) DeleteRevision(_ context.Context, key string, revision uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[key]
	if !ok || entry.Revision != revision {
		return ErrRevisionMismatch
	}
	delete(b.entries, key)
	return nil
}

func (b *MemBucket) Keys(_ context.Context, filter string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for key := range b.entries {
		if matchSubject(filter, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// write assumes b.mu is held.
func (b *MemBucket) write(key string, value []byte) uint64 {
	b.rev++
	buf := make([]byte, len(value))
	copy(buf, value)
	b.entries[key] = Entry{Value: buf, Revision: b.rev}
	return b.rev
}

// matchSubject implements NATS subject filtering over dotted keys:
// "*" matches exactly one token, ">" matches one or more trailing tokens.
func matchSubject(filter, key string) bool {
	ftoks := strings.Split(filter, ".")
	ktoks := strings.Split(key, ".")
	for i, ft := range ftoks {
		if ft == ">" {
			return len(ktoks) > i
		}
		if i >= len(ktoks) {
			return false
		}
		if ft != "*" && ft != ktoks[i] {
			return false
		}
	}
	return len(ktoks) == len(ftoks)
}
