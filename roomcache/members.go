package roomcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PaulNafureanu/CollabBoard-sub000/store"
)

// Role is a member's role within a room.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// AllRoles enumerates the valid roles; dispatch uses it to clear stale
// role groups.
var AllRoles = []Role{RoleOwner, RoleModerator, RoleMember}

// Status is a member's admission status within a room. A member holds
// exactly one status at a time.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusBanned   Status = "banned"
)

// AllStatuses enumerates the valid statuses.
var AllStatuses = []Status{StatusPending, StatusApproved, StatusBanned}

func validRole(r Role) bool {
	return r == RoleOwner || r == RoleModerator || r == RoleMember
}

func validStatus(s Status) bool {
	return s == StatusPending || s == StatusApproved || s == StatusBanned
}

// Membership mirrors one durable membership row. The durable store is
// authoritative; this is a rebuildable projection.
type Membership struct {
	MembershipID int64  `json:"membershipId"`
	UserID       int64  `json:"userId"`
	RoomID       int64  `json:"roomId"`
	Role         Role   `json:"role"`
	Status       Status `json:"status"`
	JoinedAt     int64  `json:"joinedAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

type rawMembership struct {
	MembershipID *int64  `json:"membershipId"`
	UserID       *int64  `json:"userId"`
	RoomID       *int64  `json:"roomId"`
	Role         *Role   `json:"role"`
	Status       *Status `json:"status"`
	JoinedAt     *int64  `json:"joinedAt"`
	UpdatedAt    *int64  `json:"updatedAt"`
}

func (r *rawMembership) toMembership() *Membership {
	if r.MembershipID == nil || r.UserID == nil || r.RoomID == nil ||
		r.Role == nil || !validRole(*r.Role) ||
		r.Status == nil || !validStatus(*r.Status) ||
		r.JoinedAt == nil || r.UpdatedAt == nil {
		return nil
	}
	return &Membership{
		MembershipID: *r.MembershipID,
		UserID:       *r.UserID,
		RoomID:       *r.RoomID,
		Role:         *r.Role,
		Status:       *r.Status,
		JoinedAt:     *r.JoinedAt,
		UpdatedAt:    *r.UpdatedAt,
	}
}

// Members is the per-room membership directory cache. One document per
// (room, user) under "{room}.{user}", so a user can never appear under
// two statuses: the status is a field of the single document, and the
// status sets are projections of a room scan.
type Members struct {
	bucket store.Bucket
}

func NewMembers(bucket store.Bucket) *Members {
	return &Members{bucket: bucket}
}

func memberKey(roomID, userID int64) string {
	return fmt.Sprintf("%d.%d", roomID, userID)
}

// Set writes the membership document, replacing any previous role and
// status in one write.
func (m *Members) Set(ctx context.Context, mem Membership) error {
	if !validRole(mem.Role) {
		return fmt.Errorf("invalid role %q", mem.Role)
	}
	if !validStatus(mem.Status) {
		return fmt.Errorf("invalid status %q", mem.Status)
	}
	data, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("encode membership: %w", err)
	}
	_, err = m.bucket.Put(ctx, memberKey(mem.RoomID, mem.UserID), data)
	return err
}

// Remove deletes the membership document; with it the user leaves every
// status projection. Unknown members are a no-op.
func (m *Members) Remove(ctx context.Context, roomID, userID int64) error {
	err := m.bucket.Delete(ctx, memberKey(roomID, userID))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Get returns the cached membership, or nil on a miss or an unreadable
// record. Callers fall back to the durable store on nil.
func (m *Members) Get(ctx context.Context, roomID, userID int64) (*Membership, error) {
	entry, err := m.bucket.Get(ctx, memberKey(roomID, userID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var raw rawMembership
	if err := json.Unmarshal(entry.Value, &raw); err != nil {
		return nil, nil
	}
	return raw.toMembership(), nil
}

// RoomIDs returns every cached member id of the room regardless of
// status, ascending.
func (m *Members) RoomIDs(ctx context.Context, roomID int64) ([]int64, error) {
	keys, err := m.bucket.Keys(ctx, fmt.Sprintf("%d.*", roomID))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		parts := strings.SplitN(key, ".", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// IDsByStatus returns the member ids currently holding status, ascending.
func (m *Members) IDsByStatus(ctx context.Context, roomID int64, status Status) ([]int64, error) {
	ids, err := m.RoomIDs(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var matched []int64
	for _, id := range ids {
		mem, err := m.Get(ctx, roomID, id)
		if err != nil {
			return nil, err
		}
		if mem != nil && mem.Status == status {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

// MembersByIDs hydrates a batch of members. Misses and unreadable
// records are filtered out rather than failing the whole batch.
func (m *Members) MembersByIDs(ctx context.Context, roomID int64, userIDs []int64) ([]Membership, error) {
	result := make([]Membership, 0, len(userIDs))
	for _, id := range userIDs {
		mem, err := m.Get(ctx, roomID, id)
		if err != nil {
			return nil, err
		}
		if mem != nil {
			result = append(result, *mem)
		}
	}
	return result, nil
}
