// Package dispatch maps domain facts — room, role, status, user — to
// transport-level multicast group names, and keeps a live connection's
// group memberships in step with its membership as roles and statuses
// change, without a reconnect.
package dispatch

import (
	"context"
	"fmt"

	"github.com/PaulNafureanu/CollabBoard-sub000/roomcache"
)

// SystemGroup is the fixed group every connection belongs to.
const SystemGroup = "grp.sys"

// UserGroup names the per-user group.
func UserGroup(userID int64) string { return fmt.Sprintf("grp.user.%d", userID) }

// RoomGroup names the per-room group.
func RoomGroup(roomID int64) string { return fmt.Sprintf("grp.room.%d", roomID) }

// RoleGroup names the per-(room, role) group. A connection is in at
// most one role group per room.
func RoleGroup(roomID int64, role roomcache.Role) string {
	return fmt.Sprintf("grp.room.%d.role.%s", roomID, role)
}

// StatusGroup names the per-(room, status) group. A connection is in at
// most one status group per room.
func StatusGroup(roomID int64, status roomcache.Status) string {
	return fmt.Sprintf("grp.room.%d.status.%s", roomID, status)
}

// ToRoom builds the target list for a room-wide event.
func ToRoom(roomID int64) []string { return []string{RoomGroup(roomID)} }

// ToRoles builds the target list for an event scoped to a set of roles,
// e.g. moderators and owners.
func ToRoles(roomID int64, roles ...roomcache.Role) []string {
	groups := make([]string, 0, len(roles))
	for _, role := range roles {
		groups = append(groups, RoleGroup(roomID, role))
	}
	return groups
}

// ToUsers builds the target list for a direct event to specific users.
func ToUsers(userIDs ...int64) []string {
	groups := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		groups = append(groups, UserGroup(id))
	}
	return groups
}

// GroupTransport is the multicast side of the wire transport: join and
// leave a connection to/from an opaque group name. Both must be
// idempotent — joining a group twice or leaving one never joined is a
// no-op — which is what makes RescopeConnections safe to repeat.
type GroupTransport interface {
	Join(ctx context.Context, connID, group string) error
	Leave(ctx context.Context, connID, group string) error
}

// ConnLister resolves a user's live connection ids in a room; the
// presence tracker satisfies it.
type ConnLister interface {
	Connections(ctx context.Context, roomID, userID int64) ([]string, error)
}

// Bus applies group membership changes to live connections.
type Bus struct {
	transport GroupTransport
	conns     ConnLister
}

func NewBus(transport GroupTransport, conns ConnLister) *Bus {
	return &Bus{transport: transport, conns: conns}
}

// BindConnection puts a fresh connection into its fixed groups: the
// system group and its own user group.
func (b *Bus) BindConnection(ctx context.Context, userID int64, connID string) error {
	if err := b.transport.Join(ctx, connID, SystemGroup); err != nil {
		return err
	}
	return b.transport.Join(ctx, connID, UserGroup(userID))
}

// RescopeConnections joins every live connection of the user to the
// room group and, when a new role or status is given, moves it out of
// every other role/status group of that room into the new one. An
// admin changing someone's role mid-session takes effect on the live
// connections without a reconnect. Safe to call repeatedly and
// concurrently for the same user.
func (b *Bus) RescopeConnections(ctx context.Context, roomID, userID int64, newRole *roomcache.Role, newStatus *roomcache.Status) error {
	conns, err := b.conns.Connections(ctx, roomID, userID)
	if err != nil {
		return err
	}
	for _, connID := range conns {
		if err := b.transport.Join(ctx, connID, RoomGroup(roomID)); err != nil {
			return err
		}
		if newRole != nil {
			for _, role := range roomcache.AllRoles {
				if role == *newRole {
					continue
				}
				if err := b.transport.Leave(ctx, connID, RoleGroup(roomID, role)); err != nil {
					return err
				}
			}
			if err := b.transport.Join(ctx, connID, RoleGroup(roomID, *newRole)); err != nil {
				return err
			}
		}
		if newStatus != nil {
			for _, status := range roomcache.AllStatuses {
				if status == *newStatus {
					continue
				}
				if err := b.transport.Leave(ctx, connID, StatusGroup(roomID, status)); err != nil {
					return err
				}
			}
			if err := b.transport.Join(ctx, connID, StatusGroup(roomID, *newStatus)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DropRoom takes every live connection of the user out of the room
// group and all of its role and status groups. Used when a membership
// is removed or banned out of the room.
func (b *Bus) DropRoom(ctx context.Context, roomID, userID int64) error {
	conns, err := b.conns.Connections(ctx, roomID, userID)
	if err != nil {
		return err
	}
	for _, connID := range conns {
		if err := b.transport.Leave(ctx, connID, RoomGroup(roomID)); err != nil {
			return err
		}
		for _, role := range roomcache.AllRoles {
			if err := b.transport.Leave(ctx, connID, RoleGroup(roomID, role)); err != nil {
				return err
			}
		}
		for _, status := range roomcache.AllStatuses {
			if err := b.transport.Leave(ctx, connID, StatusGroup(roomID, status)); err != nil {
				return err
			}
		}
	}
	return nil
}
