package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemBucket_RevisionSemantics(t *testing.T) {
	ctx := context.Background()
	b := NewMemBucket()

	rev1, err := b.Create(ctx, "a", []byte("one"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := b.Create(ctx, "a", []byte("two")); !errors.Is(err, ErrKeyExists) {
		t.Errorf("Expected ErrKeyExists on duplicate create, got %v", err)
	}

	entry, err := b.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Value) != "one" || entry.Revision != rev1 {
		t.Errorf("Unexpected entry %q rev %d", entry.Value, entry.Revision)
	}

	if _, err := b.Update(ctx, "a", []byte("two"), rev1+99); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("Expected ErrRevisionMismatch on stale update, got %v", err)
	}
	rev2, err := b.Update(ctx, "a", []byte("two"), rev1)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if rev2 <= rev1 {
		t.Errorf("Revisions must increase: %d then %d", rev1, rev2)
	}

	if err := b.DeleteRevision(ctx, "a", rev1); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("Expected ErrRevisionMismatch on stale delete, got %v", err)
	}
	if err := b.DeleteRevision(ctx, "a", rev2); err != nil {
		t.Fatalf("DeleteRevision failed: %v", err)
	}
	if _, err := b.Get(ctx, "a"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
	if err := b.Delete(ctx, "a"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound deleting missing key, got %v", err)
	}
}

func TestMemBucket_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	b := NewMemBucket()

	buf := []byte("original")
	if _, err := b.Put(ctx, "k", buf); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	buf[0] = 'X'

	entry, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Value) != "original" {
		t.Errorf("Stored value aliased caller buffer: %q", entry.Value)
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		filter string
		key    string
		want   bool
	}{
		{"7.>", "7.42.abc", true},
		{"7.>", "7.42", true},
		{"7.>", "7", false},
		{"7.>", "70.42", false},
		{"7.*", "7.42", true},
		{"7.*", "7.42.abc", false},
		{"7.42.>", "7.42.c1", true},
		{"7.42.>", "7.421.c1", false},
		{"7.42", "7.42", true},
		{"7.42", "7.43", false},
		{"*.42", "7.42", true},
	}
	for _, tt := range tests {
		if got := matchSubject(tt.filter, tt.key); got != tt.want {
			t.Errorf("matchSubject(%q, %q) = %v, want %v", tt.filter, tt.key, got, tt.want)
		}
	}
}

func TestMemBucket_KeysFiltered(t *testing.T) {
	ctx := context.Background()
	b := NewMemBucket()
	for _, key := range []string{"1.10.a", "1.10.b", "1.11.a", "2.10.a"} {
		if _, err := b.Put(ctx, key, []byte("{}")); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	keys, err := b.Keys(ctx, "1.10.>")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys under 1.10, got %v", keys)
	}

	keys, err = b.Keys(ctx, "1.>")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("Expected 3 keys under 1, got %v", keys)
	}
}
