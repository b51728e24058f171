package roomcache

import (
	"context"
	"reflect"
	"testing"

	"github.com/PaulNafureanu/CollabBoard-sub000/store"
)

func msg(roomID, msgID, authorID, ts int64) Message {
	return Message{ID: msgID, RoomID: roomID, AuthorID: authorID, Text: "hello", Timestamp: ts}
}

func TestMessages_SetAllIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewMessages(store.NewMemBucket())

	first := msg(1, 100, 7, 1000)
	if err := c.SetAll(ctx, first); err != nil {
		t.Fatalf("SetAll failed: %v", err)
	}

	// Redelivery with different content must not overwrite.
	dup := first
	dup.Text = "redelivered"
	if err := c.SetAll(ctx, dup); err != nil {
		t.Fatalf("SetAll redelivery failed: %v", err)
	}

	got, err := c.GetMsg(ctx, 1, 100)
	if err != nil || got == nil {
		t.Fatalf("GetMsg failed: %+v err=%v", got, err)
	}
	if got.Text != "hello" {
		t.Errorf("Redelivery overwrote the message: %q", got.Text)
	}

	ids, err := c.RecentByRoom(ctx, 1, msgPageSize)
	if err != nil {
		t.Fatalf("RecentByRoom failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{100}) {
		t.Errorf("RecentByRoom = %v, want [100]", ids)
	}
}

func TestMessages_EditInPlace(t *testing.T) {
	ctx := context.Background()
	c := NewMessages(store.NewMemBucket())

	if err := c.SetAll(ctx, msg(1, 100, 7, 1000)); err != nil {
		t.Fatalf("SetAll failed: %v", err)
	}

	edited := msg(1, 100, 7, 1000)
	edited.Text = "hello, edited"
	edited.Edited = true
	if err := c.SetMsg(ctx, edited); err != nil {
		t.Fatalf("SetMsg failed: %v", err)
	}

	got, err := c.GetMsg(ctx, 1, 100)
	if err != nil || got == nil {
		t.Fatalf("GetMsg failed: %+v err=%v", got, err)
	}
	if got.Text != "hello, edited" || !got.Edited {
		t.Errorf("Edit not applied: %+v", got)
	}
}

func TestMessages_RecentOrdering(t *testing.T) {
	ctx := context.Background()
	c := NewMessages(store.NewMemBucket())

	// Same timestamp for 102/103: higher id wins the tie.
	for _, m := range []Message{
		msg(1, 101, 7, 1000),
		msg(1, 103, 7, 2000),
		msg(1, 102, 7, 2000),
		msg(1, 104, 7, 3000),
	} {
		if err := c.SetAll(ctx, m); err != nil {
			t.Fatalf("SetAll failed: %v", err)
		}
	}

	ids, err := c.RecentByRoom(ctx, 1, msgPageSize)
	if err != nil {
		t.Fatalf("RecentByRoom failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{104, 103, 102, 101}) {
		t.Errorf("RecentByRoom = %v, want [104 103 102 101]", ids)
	}

	ids, err = c.RecentByRoom(ctx, 1, 2)
	if err != nil {
		t.Fatalf("RecentByRoom failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{104, 103}) {
		t.Errorf("Limit not honored: %v", ids)
	}
}

func TestMessages_RecentByUser(t *testing.T) {
	ctx := context.Background()
	c := NewMessages(store.NewMemBucket())

	system := msg(1, 103, 0, 3000)
	system.OwnerUserID = 7 // system message on user 7's behalf
	for _, m := range []Message{
		msg(1, 101, 7, 1000),
		msg(1, 102, 8, 2000),
		system,
	} {
		if err := c.SetAll(ctx, m); err != nil {
			t.Fatalf("SetAll failed: %v", err)
		}
	}

	ids, err := c.RecentByUser(ctx, 1, 7, msgPageSize)
	if err != nil {
		t.Fatalf("RecentByUser failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{103, 101}) {
		t.Errorf("RecentByUser = %v, want [103 101]", ids)
	}
}

func TestMessages_OwnMessagesSurviveRoomScroll(t *testing.T) {
	ctx := context.Background()
	c := NewMessages(store.NewMemBucket())

	// One message from a quiet user, then a busy user scrolls the room
	// window well past it.
	if err := c.SetAll(ctx, msg(1, 1, 7, 1000)); err != nil {
		t.Fatalf("SetAll failed: %v", err)
	}
	for i := 0; i < roomMsgWindow+5; i++ {
		if err := c.SetAll(ctx, msg(1, int64(i+2), 8, int64(2000+i))); err != nil {
			t.Fatalf("SetAll failed: %v", err)
		}
	}

	ids, err := c.RecentByUser(ctx, 1, 7, msgPageSize)
	if err != nil {
		t.Fatalf("RecentByUser failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{1}) {
		t.Errorf("Quiet user's own message lost to the room window: %v", ids)
	}
}

func TestMessages_OwnerIndexCapped(t *testing.T) {
	ctx := context.Background()
	c := NewMessages(store.NewMemBucket())

	total := userMsgWindow + 5
	for i := 0; i < total; i++ {
		if err := c.SetAll(ctx, msg(1, int64(i+1), 7, int64(1000+i))); err != nil {
			t.Fatalf("SetAll failed: %v", err)
		}
	}

	ids, err := c.RecentByUser(ctx, 1, 7, userMsgWindow)
	if err != nil {
		t.Fatalf("RecentByUser failed: %v", err)
	}
	if len(ids) != userMsgWindow {
		t.Fatalf("Expected owner index capped at %d, got %d", userMsgWindow, len(ids))
	}
	if ids[0] != int64(total) {
		t.Errorf("Newest id should lead, got %d", ids[0])
	}
	if ids[len(ids)-1] != int64(total-userMsgWindow+1) {
		t.Errorf("Oldest surviving id should be %d, got %d", total-userMsgWindow+1, ids[len(ids)-1])
	}
}

func TestMessages_WindowPruned(t *testing.T) {
	ctx := context.Background()
	c := NewMessages(store.NewMemBucket())

	total := roomMsgWindow + 10
	for i := 0; i < total; i++ {
		if err := c.SetAll(ctx, msg(1, int64(i+1), 7, int64(1000+i))); err != nil {
			t.Fatalf("SetAll failed: %v", err)
		}
	}

	ids, err := c.RecentByRoom(ctx, 1, roomMsgWindow)
	if err != nil {
		t.Fatalf("RecentByRoom failed: %v", err)
	}
	if len(ids) != roomMsgWindow {
		t.Fatalf("Expected window of %d, got %d", roomMsgWindow, len(ids))
	}
	if ids[0] != int64(total) {
		t.Errorf("Newest id should survive, got %d", ids[0])
	}

	// The oldest overflowed entries are gone.
	got, err := c.GetMsg(ctx, 1, 1)
	if err != nil || got != nil {
		t.Errorf("Oldest message should be pruned, got %+v err=%v", got, err)
	}

	// Other rooms are untouched.
	if err := c.SetAll(ctx, msg(2, 1, 7, 1000)); err != nil {
		t.Fatalf("SetAll failed: %v", err)
	}
	got, err = c.GetMsg(ctx, 2, 1)
	if err != nil || got == nil {
		t.Errorf("Room 2 message should exist, got %+v err=%v", got, err)
	}
}

func TestMessages_CorruptRecordSkipped(t *testing.T) {
	ctx := context.Background()
	bucket := store.NewMemBucket()
	c := NewMessages(bucket)

	if err := c.SetAll(ctx, msg(1, 101, 7, 1000)); err != nil {
		t.Fatalf("SetAll failed: %v", err)
	}
	if _, err := bucket.Put(ctx, "1.102", []byte(`{"id":102}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	msgs, err := c.GetMsgByIDs(ctx, 1, []int64{101, 102, 999})
	if err != nil {
		t.Fatalf("GetMsgByIDs failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != 101 {
		t.Errorf("Expected only the readable message, got %+v", msgs)
	}

	ids, err := c.RecentByRoom(ctx, 1, msgPageSize)
	if err != nil {
		t.Fatalf("RecentByRoom failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{101}) {
		t.Errorf("Corrupt record leaked into the window: %v", ids)
	}
}
