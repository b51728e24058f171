package roomcache

import (
	"context"
	"reflect"
	"testing"

	"github.com/PaulNafureanu/CollabBoard-sub000/store"
)

func membership(roomID, userID int64, role Role, status Status) Membership {
	return Membership{
		MembershipID: roomID*1000 + userID,
		UserID:       userID,
		RoomID:       roomID,
		Role:         role,
		Status:       status,
		JoinedAt:     1000,
		UpdatedAt:    2000,
	}
}

func TestMembers_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMembers(store.NewMemBucket())

	want := membership(1, 7, RoleModerator, StatusApproved)
	if err := m.Set(ctx, want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, 1, 7)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || !reflect.DeepEqual(*got, want) {
		t.Errorf("Get = %+v, want %+v", got, want)
	}

	if err := m.Remove(ctx, 1, 7); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	got, err = m.Get(ctx, 1, 7)
	if err != nil || got != nil {
		t.Errorf("Expected nil after remove, got %+v err=%v", got, err)
	}

	// Removing again is a no-op.
	if err := m.Remove(ctx, 1, 7); err != nil {
		t.Errorf("Second remove should be a no-op, got %v", err)
	}
}

func TestMembers_SetValidation(t *testing.T) {
	ctx := context.Background()
	m := NewMembers(store.NewMemBucket())

	bad := membership(1, 7, Role("admin"), StatusApproved)
	if err := m.Set(ctx, bad); err == nil {
		t.Error("Set must reject an unknown role")
	}
	bad = membership(1, 7, RoleMember, Status("kicked"))
	if err := m.Set(ctx, bad); err == nil {
		t.Error("Set must reject an unknown status")
	}
}

func TestMembers_StatusExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMembers(store.NewMemBucket())

	if err := m.Set(ctx, membership(1, 7, RoleMember, StatusPending)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Set(ctx, membership(1, 7, RoleMember, StatusApproved)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	pending, err := m.IDsByStatus(ctx, 1, StatusPending)
	if err != nil {
		t.Fatalf("IDsByStatus failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("User must leave the pending set on approval, got %v", pending)
	}
	approved, err := m.IDsByStatus(ctx, 1, StatusApproved)
	if err != nil {
		t.Fatalf("IDsByStatus failed: %v", err)
	}
	if !reflect.DeepEqual(approved, []int64{7}) {
		t.Errorf("Expected approved [7], got %v", approved)
	}
}

func TestMembers_RoomProjections(t *testing.T) {
	ctx := context.Background()
	m := NewMembers(store.NewMemBucket())

	for _, mem := range []Membership{
		membership(1, 9, RoleOwner, StatusApproved),
		membership(1, 7, RoleMember, StatusApproved),
		membership(1, 8, RoleMember, StatusBanned),
		membership(2, 7, RoleMember, StatusPending),
	} {
		if err := m.Set(ctx, mem); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	ids, err := m.RoomIDs(ctx, 1)
	if err != nil {
		t.Fatalf("RoomIDs failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{7, 8, 9}) {
		t.Errorf("RoomIDs = %v, want [7 8 9]", ids)
	}

	banned, err := m.IDsByStatus(ctx, 1, StatusBanned)
	if err != nil {
		t.Fatalf("IDsByStatus failed: %v", err)
	}
	if !reflect.DeepEqual(banned, []int64{8}) {
		t.Errorf("Banned = %v, want [8]", banned)
	}

	// Batch hydration skips unknown users.
	batch, err := m.MembersByIDs(ctx, 1, []int64{7, 42, 9})
	if err != nil {
		t.Fatalf("MembersByIDs failed: %v", err)
	}
	if len(batch) != 2 || batch[0].UserID != 7 || batch[1].UserID != 9 {
		t.Errorf("MembersByIDs = %+v", batch)
	}
}

func TestMembers_CorruptRecordReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	bucket := store.NewMemBucket()
	m := NewMembers(bucket)

	if _, err := bucket.Put(ctx, "1.7", []byte(`{"userId":7}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := m.Get(ctx, 1, 7)
	if err != nil || got != nil {
		t.Errorf("Partial record must read as a miss, got %+v err=%v", got, err)
	}
}
