package main

import (
	"context"
	"reflect"
	"sort"
	"testing"
)

func TestGroupRegistry_JoinLeaveIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newGroupRegistry()

	r.Join(ctx, "c1", "grp.room.1")
	r.Join(ctx, "c1", "grp.room.1")
	if got := r.members([]string{"grp.room.1"}); !reflect.DeepEqual(got, []string{"c1"}) {
		t.Errorf("Duplicate join double-counted: %v", got)
	}

	r.Leave(ctx, "c1", "grp.room.1")
	if got := r.members([]string{"grp.room.1"}); len(got) != 0 {
		t.Errorf("Expected empty group after leave, got %v", got)
	}
	// Leaving again, or leaving a group never joined, is a no-op.
	r.Leave(ctx, "c1", "grp.room.1")
	r.Leave(ctx, "c1", "grp.room.99")

	if r.groupCount() != 0 || r.connCount() != 0 {
		t.Errorf("Empty registry should hold nothing: groups=%d conns=%d", r.groupCount(), r.connCount())
	}
}

func TestGroupRegistry_DropSweepsAllGroups(t *testing.T) {
	ctx := context.Background()
	r := newGroupRegistry()

	r.Join(ctx, "c1", "grp.sys")
	r.Join(ctx, "c1", "grp.room.1")
	r.Join(ctx, "c2", "grp.room.1")

	r.drop("c1")

	if got := r.members([]string{"grp.room.1"}); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Errorf("Expected only c2 after drop, got %v", got)
	}
	if got := r.members([]string{"grp.sys"}); len(got) != 0 {
		t.Errorf("Dropped connection still in grp.sys: %v", got)
	}
	if r.connCount() != 1 {
		t.Errorf("Expected 1 tracked connection, got %d", r.connCount())
	}
}

func TestGroupRegistry_MembersDedup(t *testing.T) {
	ctx := context.Background()
	r := newGroupRegistry()

	r.Join(ctx, "c1", "grp.room.1")
	r.Join(ctx, "c1", "grp.room.1.role.owner")
	r.Join(ctx, "c2", "grp.room.1")

	got := r.members([]string{"grp.room.1", "grp.room.1.role.owner"})
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"c1", "c2"}) {
		t.Errorf("Expected deduped [c1 c2], got %v", got)
	}
}
