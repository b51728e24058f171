package roomcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PaulNafureanu/CollabBoard-sub000/store"
)

// Presence tracks live connections per (room, user). Keys are
// "{room}.{user}.{conn}" in a TTL bucket, so a crashed client's
// connections age out on their own. The room-online set is never
// stored: a user is online iff at least one connection key exists,
// which makes the invariant hold by construction instead of by a
// two-step read-then-write that could race.
//
// Connection ids must not contain '.'.
type Presence struct {
	conns store.Bucket
}

func NewPresence(conns store.Bucket) *Presence {
	return &Presence{conns: conns}
}

func connKey(roomID, userID int64, connID string) string {
	return fmt.Sprintf("%d.%d.%s", roomID, userID, connID)
}

// onlineKey is the per-(room, user) marker that elects a single
// announcer for the user's online flip. Its leading token is
// non-numeric, so it never matches the room-scoped scan filters.
func onlineKey(roomID, userID int64) string {
	return fmt.Sprintf("online.%d.%d", roomID, userID)
}

// AddConnection registers a connection and reports whether this call
// took the user online. Adding the same connection id twice is a no-op,
// so duplicate connects never double-count; when two first connections
// race across instances, the marker create picks exactly one of them to
// announce the join.
func (p *Presence) AddConnection(ctx context.Context, roomID, userID int64, connID string) (bool, error) {
	if _, err := p.conns.Create(ctx, connKey(roomID, userID, connID), []byte(`{}`)); err != nil && !errors.Is(err, store.ErrKeyExists) {
		return false, err
	}
	_, err := p.conns.Create(ctx, onlineKey(roomID, userID), []byte(`{}`))
	if err != nil {
		if errors.Is(err, store.ErrKeyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Touch refreshes a connection's TTL and the user's online marker.
// Heartbeats call this.
func (p *Presence) Touch(ctx context.Context, roomID, userID int64, connID string) error {
	if _, err := p.conns.Put(ctx, connKey(roomID, userID, connID), []byte(`{}`)); err != nil {
		return err
	}
	_, err := p.conns.Put(ctx, onlineKey(roomID, userID), []byte(`{}`))
	return err
}

// RemoveConnection drops a connection and returns how many connections
// the user still has in the room, plus whether this call took the user
// offline. Only the caller that deletes the online marker announces the
// leave, so racing closers never double-announce. Removing an unknown
// connection id is a no-op.
func (p *Presence) RemoveConnection(ctx context.Context, roomID, userID int64, connID string) (int, bool, error) {
	if err := p.conns.Delete(ctx, connKey(roomID, userID, connID)); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return 0, false, err
	}
	remaining, err := p.Connections(ctx, roomID, userID)
	if err != nil {
		return 0, false, err
	}
	if len(remaining) > 0 {
		return len(remaining), false, nil
	}
	if err := p.conns.Delete(ctx, onlineKey(roomID, userID)); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return 0, true, nil
}

// Connections lists the live connection ids for a user in a room.
func (p *Presence) Connections(ctx context.Context, roomID, userID int64) ([]string, error) {
	keys, err := p.conns.Keys(ctx, fmt.Sprintf("%d.%d.>", roomID, userID))
	if err != nil {
		return nil, err
	}
	conns := make([]string, 0, len(keys))
	for _, key := range keys {
		parts := strings.SplitN(key, ".", 3)
		if len(parts) != 3 {
			continue
		}
		conns = append(conns, parts[2])
	}
	sort.Strings(conns)
	return conns, nil
}

// IsOnline reports whether the user has at least one live connection.
func (p *Presence) IsOnline(ctx context.Context, roomID, userID int64) (bool, error) {
	conns, err := p.Connections(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	return len(conns) > 0, nil
}

// AreOnline answers for a batch of users with a single room scan.
func (p *Presence) AreOnline(ctx context.Context, roomID int64, userIDs []int64) (map[int64]bool, error) {
	online, err := p.onlineSet(ctx, roomID)
	if err != nil {
		return nil, err
	}
	result := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		result[id] = online[id]
	}
	return result, nil
}

// ListOnline returns the user ids with at least one live connection in
// the room, ascending.
func (p *Presence) ListOnline(ctx context.Context, roomID int64) ([]int64, error) {
	online, err := p.onlineSet(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(online))
	for id := range online {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (p *Presence) onlineSet(ctx context.Context, roomID int64) (map[int64]bool, error) {
	keys, err := p.conns.Keys(ctx, fmt.Sprintf("%d.>", roomID))
	if err != nil {
		return nil, err
	}
	online := make(map[int64]bool)
	for _, key := range keys {
		parts := strings.SplitN(key, ".", 3)
		if len(parts) != 3 {
			continue
		}
		userID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		online[userID] = true
	}
	return online, nil
}
