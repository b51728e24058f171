package roomcache

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/PaulNafureanu/CollabBoard-sub000/store"
)

// Lock is a short-lived, token-owned mutex over a TTL key-value bucket.
// A holder that crashes is fenced out when the bucket TTL expires the
// key; legitimate holders must finish well inside the TTL.
type Lock struct {
	bucket store.Bucket
}

func NewLock(bucket store.Bucket) *Lock {
	return &Lock{bucket: bucket}
}

// Acquire sets key=token only if the key is absent. Losing the race is
// a normal outcome, not an error: (false, nil).
func (l *Lock) Acquire(ctx context.Context, key, token string) (bool, error) {
	_, err := l.bucket.Create(ctx, key, []byte(token))
	if err != nil {
		if errors.Is(err, store.ErrKeyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AcquireWithRetry polls Acquire with jittered backoff until it wins or
// the wait budget runs out. Returns (false, nil) on timeout.
func (l *Lock) AcquireWithRetry(ctx context.Context, key, token string, maxWait time.Duration) (bool, error) {
	deadline := time.Now().Add(maxWait)
	for {
		won, err := l.Acquire(ctx, key, token)
		if err != nil || won {
			return won, err
		}
		// 20-50ms between attempts; jitter keeps racers from polling in step.
		pause := 20*time.Millisecond + time.Duration(rand.Int63n(int64(30*time.Millisecond)))
		if time.Now().Add(pause).After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Release deletes the key only if it still holds token, so a stale
// holder cannot release a lock that expired and was re-acquired by
// someone else. Returns whether anything was deleted.
func (l *Lock) Release(ctx context.Context, key, token string) (bool, error) {
	entry, err := l.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if string(entry.Value) != token {
		return false, nil
	}
	// Revision-guarded delete: if the key moved between the read and the
	// delete, ownership changed and we must not touch it.
	if err := l.bucket.DeleteRevision(ctx, key, entry.Revision); err != nil {
		if errors.Is(err, store.ErrRevisionMismatch) || errors.Is(err, store.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
