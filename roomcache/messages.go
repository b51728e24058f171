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

const (
	// msgPageSize is the serving page for recent-message reads.
	msgPageSize = 25
	// roomMsgWindow over-provisions the per-room cache to a multiple of
	// the page so read-time dedup and trims have slack.
	roomMsgWindow = 4 * msgPageSize
	// userMsgWindow caps each owner's id index, pruned independently of
	// the room window so a quiet user's own messages stay addressable
	// after a busy room scrolls past them.
	userMsgWindow = 4 * msgPageSize
)

// Message is one cached chat message. AuthorID writes the message;
// OwnerUserID, when set, marks whose "own messages" index it belongs to
// (system messages carry an owner without an author account).
type Message struct {
	ID              int64  `json:"id"`
	RoomID          int64  `json:"roomId"`
	AuthorID        int64  `json:"authorId"`
	Text            string `json:"text"`
	Timestamp       int64  `json:"timestamp"`
	Edited          bool   `json:"edited"`
	OwnerUserID     int64  `json:"ownerUserId,omitempty"`
	DeletedByUserID int64  `json:"deletedByUserId,omitempty"`
}

type rawMessage struct {
	ID              *int64  `json:"id"`
	RoomID          *int64  `json:"roomId"`
	AuthorID        *int64  `json:"authorId"`
	Text            *string `json:"text"`
	Timestamp       *int64  `json:"timestamp"`
	Edited          bool    `json:"edited"`
	OwnerUserID     int64   `json:"ownerUserId,omitempty"`
	DeletedByUserID int64   `json:"deletedByUserId,omitempty"`
}

func (r *rawMessage) toMessage() *Message {
	if r.ID == nil || r.RoomID == nil || r.AuthorID == nil || r.Text == nil || r.Timestamp == nil {
		return nil
	}
	return &Message{
		ID:              *r.ID,
		RoomID:          *r.RoomID,
		AuthorID:        *r.AuthorID,
		Text:            *r.Text,
		Timestamp:       *r.Timestamp,
		Edited:          r.Edited,
		OwnerUserID:     r.OwnerUserID,
		DeletedByUserID: r.DeletedByUserID,
	}
}

// Messages is the bounded recent-message cache. Documents live under
// "{room}.{msgId}" and the room window is a projection of a room scan,
// kept at the window size by an insert-time prune. Each owner also gets
// an id index under "{room}.{user}.{msgId}" with its own cap; stale
// index entries whose document fell out of the room window are filtered
// at hydration, not at write time.
type Messages struct {
	bucket store.Bucket
}

func NewMessages(bucket store.Bucket) *Messages {
	return &Messages{bucket: bucket}
}

func msgKey(roomID, msgID int64) string {
	return fmt.Sprintf("%d.%d", roomID, msgID)
}

func ownerKey(roomID, userID, msgID int64) string {
	return fmt.Sprintf("%d.%d.%d", roomID, userID, msgID)
}

// msgRef is the owner-index entry: just enough to order ids by time.
type msgRef struct {
	MsgID     int64 `json:"msgId"`
	Timestamp int64 `json:"timestamp"`
}

func ownerOf(m Message) int64 {
	if m.OwnerUserID != 0 {
		return m.OwnerUserID
	}
	return m.AuthorID
}

// SetAll inserts a message if absent. A second call with the same id is
// a no-op, so at-least-once delivery never duplicates an entry. On
// first insert the id joins the owner's index and both the room window
// and the owner index are pruned back to their bounds.
func (c *Messages) SetAll(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = c.bucket.Create(ctx, msgKey(m.RoomID, m.ID), data)
	if err != nil {
		if errors.Is(err, store.ErrKeyExists) {
			return nil
		}
		return err
	}

	owner := ownerOf(m)
	ref, err := json.Marshal(msgRef{MsgID: m.ID, Timestamp: m.Timestamp})
	if err != nil {
		return fmt.Errorf("encode message ref: %w", err)
	}
	if _, err := c.bucket.Put(ctx, ownerKey(m.RoomID, owner, m.ID), ref); err != nil {
		return err
	}

	if err := c.prune(ctx, m.RoomID); err != nil {
		return err
	}
	return c.pruneOwner(ctx, m.RoomID, owner)
}

// SetMsg overwrites the message document in place. Used for edits and
// soft-deletes where the id is known to exist; it never changes the
// room window.
func (c *Messages) SetMsg(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = c.bucket.Put(ctx, msgKey(m.RoomID, m.ID), data)
	return err
}

// GetMsg returns the cached message, or nil on a miss or an unreadable
// record.
func (c *Messages) GetMsg(ctx context.Context, roomID, msgID int64) (*Message, error) {
	entry, err := c.bucket.Get(ctx, msgKey(roomID, msgID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var raw rawMessage
	if err := json.Unmarshal(entry.Value, &raw); err != nil {
		return nil, nil
	}
	return raw.toMessage(), nil
}

// GetMsgByIDs hydrates a batch, dropping any id whose record is missing
// or unreadable instead of failing the batch.
func (c *Messages) GetMsgByIDs(ctx context.Context, roomID int64, msgIDs []int64) ([]Message, error) {
	result := make([]Message, 0, len(msgIDs))
	for _, id := range msgIDs {
		m, err := c.GetMsg(ctx, roomID, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			result = append(result, *m)
		}
	}
	return result, nil
}

// RecentByRoom returns up to limit message ids, newest first, capped at
// the room window.
func (c *Messages) RecentByRoom(ctx context.Context, roomID int64, limit int) ([]int64, error) {
	msgs, err := c.roomWindow(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return recentIDs(msgs, limit), nil
}

// RecentByUser returns up to limit of the user's own message ids in the
// room, newest first, from the owner's capped index. Ownership falls
// back to authorship when no explicit owner is recorded. The index
// outlives the room window, so ids may reference documents that were
// pruned; GetMsgByIDs filters those at hydration.
func (c *Messages) RecentByUser(ctx context.Context, roomID, userID int64, limit int) ([]int64, error) {
	refs, err := c.ownerRefs(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	owned := make([]Message, 0, len(refs))
	for _, ref := range refs {
		owned = append(owned, Message{ID: ref.MsgID, Timestamp: ref.Timestamp})
	}
	return recentIDs(owned, limit), nil
}

// ownerRefs reads a user's index entries, newest first.
func (c *Messages) ownerRefs(ctx context.Context, roomID, userID int64) ([]msgRef, error) {
	keys, err := c.bucket.Keys(ctx, fmt.Sprintf("%d.%d.*", roomID, userID))
	if err != nil {
		return nil, err
	}
	refs := make([]msgRef, 0, len(keys))
	for _, key := range keys {
		entry, err := c.bucket.Get(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		var ref msgRef
		if err := json.Unmarshal(entry.Value, &ref); err != nil || ref.MsgID == 0 {
			continue
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Timestamp != refs[j].Timestamp {
			return refs[i].Timestamp > refs[j].Timestamp
		}
		return refs[i].MsgID > refs[j].MsgID
	})
	return refs, nil
}

// roomWindow hydrates every cached message of the room, newest first.
// The window bound keeps this scan small.
func (c *Messages) roomWindow(ctx context.Context, roomID int64) ([]Message, error) {
	keys, err := c.bucket.Keys(ctx, fmt.Sprintf("%d.*", roomID))
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(keys))
	for _, key := range keys {
		parts := strings.SplitN(key, ".", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		m, err := c.GetMsg(ctx, roomID, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			msgs = append(msgs, *m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp > msgs[j].Timestamp
		}
		return msgs[i].ID > msgs[j].ID
	})
	return msgs, nil
}

// prune drops the oldest messages once the room exceeds its window.
func (c *Messages) prune(ctx context.Context, roomID int64) error {
	msgs, err := c.roomWindow(ctx, roomID)
	if err != nil {
		return err
	}
	for _, m := range msgs[min(len(msgs), roomMsgWindow):] {
		if err := c.bucket.Delete(ctx, msgKey(roomID, m.ID)); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return err
		}
	}
	return nil
}

// pruneOwner trims a user's index to its own cap, independent of the
// room window.
func (c *Messages) pruneOwner(ctx context.Context, roomID, userID int64) error {
	refs, err := c.ownerRefs(ctx, roomID, userID)
	if err != nil {
		return err
	}
	for _, ref := range refs[min(len(refs), userMsgWindow):] {
		if err := c.bucket.Delete(ctx, ownerKey(roomID, userID, ref.MsgID)); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return err
		}
	}
	return nil
}

func recentIDs(msgs []Message, limit int) []int64 {
	if limit < 0 {
		limit = 0
	}
	if limit > roomMsgWindow {
		limit = roomMsgWindow
	}
	seen := make(map[int64]bool, len(msgs))
	ids := make([]int64, 0, limit)
	for _, m := range msgs {
		if len(ids) >= limit {
			break
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		ids = append(ids, m.ID)
	}
	return ids
}
