package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/PaulNafureanu/CollabBoard-sub000/dispatch"
	"github.com/PaulNafureanu/CollabBoard-sub000/pkg/otelnats"
	"github.com/PaulNafureanu/CollabBoard-sub000/roomcache"
	"github.com/PaulNafureanu/CollabBoard-sub000/store"
)

// activateRequest replaces a room's active board wholesale.
type activateRequest struct {
	RoomId    int64           `json:"roomId"`
	StateId   int64           `json:"stateId"`
	BoardId   int64           `json:"boardId"`
	BoardName string          `json:"boardName"`
	DbVersion int64           `json:"dbVersion"`
	Payload   json.RawMessage `json:"payload"`
}

// patchRequest is the client patch envelope.
type patchRequest struct {
	RoomId       int64           `json:"roomId"`
	BoardStateId int64           `json:"boardStateId"`
	UserId       int64           `json:"userId"`
	BaseVersion  int64           `json:"baseVersion"`
	Patch        roomcache.Patch `json:"patch"`
	At           int64           `json:"at"`
}

// patchBroadcast is the accepted-patch fanout payload: the envelope
// plus who patched and the assigned version.
type patchBroadcast struct {
	patchRequest
	PatchedById int64 `json:"patchedById"`
	RtVersion   int64 `json:"rtVersion"`
}

type sinceRequest struct {
	FromVersion int64 `json:"fromVersion"`
	Limit       int64 `json:"limit"`
}

type connEvent struct {
	RoomId int64  `json:"roomId"`
	UserId int64  `json:"userId"`
	ConnId string `json:"connId"`
}

// presenceBroadcast announces a user joining or leaving the online set.
type presenceBroadcast struct {
	RoomId int64 `json:"roomId"`
	UserId int64 `json:"userId"`
}

type memberSetRequest struct {
	Membership  roomcache.Membership `json:"membership"`
	UpdatedById int64                `json:"updatedById"`
	Reason      string               `json:"reason,omitempty"`
}

type memberRemoveRequest struct {
	RoomId      int64  `json:"roomId"`
	UserId      int64  `json:"userId"`
	UpdatedById int64  `json:"updatedById"`
	Reason      string `json:"reason,omitempty"`
}

// membershipBroadcast always carries the full changed membership; the
// receivers never have to re-fetch it.
type membershipBroadcast struct {
	Membership  roomcache.Membership `json:"membership"`
	UpdatedById int64                `json:"updatedById"`
	Reason      string               `json:"reason,omitempty"`
}

type recentRequest struct {
	Limit int `json:"limit"`
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func respondJSON(msg *nats.Msg, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		msg.Respond([]byte(`{"error":"internal error"}`))
		return
	}
	msg.Respond(data)
}

func respondError(msg *nats.Msg, code string) {
	msg.Respond([]byte(fmt.Sprintf(`{"error":%q}`, code)))
}

// roomFromSubject pulls the trailing room id out of subjects like
// board.patch.{room}.
func roomFromSubject(subject string) (int64, bool) {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(subject[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func main() {
	ctx := context.Background()

	otelShutdown, err := otelnats.Init(ctx)
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx)

	meter := otel.Meter("sync-service")
	patchCounter, _ := meter.Int64Counter("board_patches_total",
		metric.WithDescription("Board patch attempts by outcome"))
	patchDuration, _ := otelnats.NewDurationHistogram(meter, "board_patch_duration_seconds", "Duration of board patch requests")
	activateCounter, _ := meter.Int64Counter("board_activations_total",
		metric.WithDescription("Board activations by outcome"))
	connCounter, _ := meter.Int64Counter("presence_connections_total",
		metric.WithDescription("Connection opens and closes"))
	deliverCounter, _ := meter.Int64Counter("deliver_events_total",
		metric.WithDescription("Events delivered to connections"))

	natsURL := envOrDefault("NATS_URL", "nats://localhost:4222")
	natsUser := envOrDefault("NATS_USER", "sync-service")
	natsPass := envOrDefault("NATS_PASS", "sync-service-secret")

	slog.Info("Starting Sync Service", "nats_url", natsURL)

	// Connect to NATS with retry
	var nc *nats.Conn
	for attempt := 1; attempt <= 30; attempt++ {
		nc, err = nats.Connect(natsURL,
			nats.UserInfo(natsUser, natsPass),
			nats.Name("sync-service"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				slog.Info("NATS reconnected")
			}),
		)
		if err == nil {
			break
		}
		slog.Info("Waiting for NATS", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		slog.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	slog.Info("Connected to NATS", "url", nc.ConnectedUrl())

	js, err := jetstream.New(nc)
	if err != nil {
		slog.Error("Failed to create JetStream context", "error", err)
		os.Exit(1)
	}

	boardState, err := store.EnsureNATSBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket: "BOARD_STATE", History: 1, Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		slog.Error("Failed to create BOARD_STATE bucket", "error", err)
		os.Exit(1)
	}
	patchLog, err := store.EnsureNATSBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket: "BOARD_PATCHES", History: 1, Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		slog.Error("Failed to create BOARD_PATCHES bucket", "error", err)
		os.Exit(1)
	}
	locks, err := store.EnsureNATSBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket: "SYNC_LOCKS", History: 1, TTL: 10 * time.Second, Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		slog.Error("Failed to create SYNC_LOCKS bucket", "error", err)
		os.Exit(1)
	}
	presenceConn, err := store.EnsureNATSBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket: "PRESENCE_CONN", History: 1, TTL: 45 * time.Second, Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		slog.Error("Failed to create PRESENCE_CONN bucket", "error", err)
		os.Exit(1)
	}
	roomMembers, err := store.EnsureNATSBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket: "ROOM_MEMBERS", History: 1, Storage: jetstream.FileStorage,
	})
	if err != nil {
		slog.Error("Failed to create ROOM_MEMBERS bucket", "error", err)
		os.Exit(1)
	}
	roomMsgs, err := store.EnsureNATSBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket: "ROOM_MSGS", History: 1, Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		slog.Error("Failed to create ROOM_MSGS bucket", "error", err)
		os.Exit(1)
	}
	slog.Info("NATS KV buckets ready", "buckets", "BOARD_STATE, BOARD_PATCHES, SYNC_LOCKS, PRESENCE_CONN, ROOM_MEMBERS, ROOM_MSGS")

	boards := roomcache.NewBoardSync(boardState, patchLog, roomcache.NewLock(locks), 0)
	presence := roomcache.NewPresence(presenceConn)
	members := roomcache.NewMembers(roomMembers)
	messages := roomcache.NewMessages(roomMsgs)

	registry := newGroupRegistry()
	bus := dispatch.NewBus(registry, presence)

	groupsGauge, _ := meter.Int64ObservableGauge("dispatch_groups",
		metric.WithDescription("Active multicast groups"))
	connsGauge, _ := meter.Int64ObservableGauge("dispatch_connections",
		metric.WithDescription("Connections with at least one group"))
	_, _ = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(groupsGauge, int64(registry.groupCount()))
		o.ObserveInt64(connsGauge, int64(registry.connCount()))
		return nil
	}, groupsGauge, connsGauge)

	// deliver fans an event out to every connection in the target groups
	// on deliver.{connId}.{event}; the gateway holds one subscription per
	// connection.
	deliver := func(ctx context.Context, targets []string, event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.WarnContext(ctx, "Failed to marshal broadcast", "event", event, "error", err)
			return
		}
		conns := registry.members(targets)
		for _, connID := range conns {
			otelnats.TracedPublish(ctx, nc, "deliver."+connID+"."+event, data)
		}
		deliverCounter.Add(ctx, int64(len(conns)), metric.WithAttributes(attribute.String("event", event)))
	}

	// board.activate.{room} — lock-guarded wholesale board reset
	_, err = nc.QueueSubscribe("board.activate.*", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartServerSpan(context.Background(), msg, "board activate")
		defer span.End()

		var req activateRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			respondError(msg, "invalid request")
			return
		}
		span.SetAttributes(attribute.Int64("board.room", req.RoomId), attribute.Int64("board.state", req.StateId))

		activated, err := boards.SetActive(ctx, req.RoomId, req.StateId, req.BoardId, req.BoardName, req.DbVersion, req.Payload)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.ErrorContext(ctx, "Activation failed", "room", req.RoomId, "error", err)
			respondError(msg, "internal error")
			activateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
			return
		}
		if !activated {
			// Another activation holds the lock — a normal outcome the
			// caller surfaces as "try again".
			respondError(msg, "activate_busy")
			activateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "busy")))
			return
		}

		respondJSON(msg, map[string]any{"ok": true})
		activateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
		slog.InfoContext(ctx, "Board activated", "room", req.RoomId, "state", req.StateId, "board", req.BoardId)
	})
	if err != nil {
		slog.Error("Failed to subscribe to board.activate.*", "error", err)
		os.Exit(1)
	}

	// board.patch.{room} — optimistic-concurrency patch apply + fanout
	_, err = nc.QueueSubscribe("board.patch.*", "sync-workers", func(msg *nats.Msg) {
		start := time.Now()
		ctx, span := otelnats.StartServerSpan(context.Background(), msg, "board patch")
		defer span.End()

		var req patchRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			respondError(msg, "invalid request")
			return
		}
		span.SetAttributes(
			attribute.Int64("board.room", req.RoomId),
			attribute.Int64("board.base_version", req.BaseVersion),
		)
		if req.At == 0 {
			req.At = time.Now().UnixMilli()
		}

		result, err := boards.ApplyPatch(ctx, req.RoomId, req.UserId, req.BaseVersion, req.Patch, req.At)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.ErrorContext(ctx, "Patch apply failed", "room", req.RoomId, "error", err)
			respondError(msg, "internal error")
			return
		}

		patchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(result.Code))))
		patchDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("outcome", string(result.Code))))
		span.SetAttributes(attribute.String("board.outcome", string(result.Code)))

		if result.Code != roomcache.PatchOK {
			respondJSON(msg, map[string]any{"error": string(result.Code), "serverRt": result.RTVersion})
			slog.DebugContext(ctx, "Patch not applied", "room", req.RoomId, "outcome", result.Code, "serverRt", result.RTVersion)
			return
		}

		respondJSON(msg, map[string]any{"ok": true, "rtVersion": result.RTVersion})
		deliver(ctx, dispatch.ToRoom(req.RoomId), "board.patched", patchBroadcast{
			patchRequest: req,
			PatchedById:  req.UserId,
			RtVersion:    result.RTVersion,
		})
		slog.DebugContext(ctx, "Patch applied", "room", req.RoomId, "rtVersion", result.RTVersion, "user", req.UserId)
	})
	if err != nil {
		slog.Error("Failed to subscribe to board.patch.*", "error", err)
		os.Exit(1)
	}

	// board.since.{room} — catch-up window for behind clients
	_, err = nc.QueueSubscribe("board.since.*", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartServerSpan(context.Background(), msg, "board since")
		defer span.End()

		roomID, ok := roomFromSubject(msg.Subject)
		if !ok {
			respondError(msg, "invalid room")
			return
		}
		var req sinceRequest
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &req)
		}
		if req.Limit <= 0 {
			req.Limit = 100
		}

		entries, err := boards.StreamSince(ctx, roomID, req.FromVersion, req.Limit)
		if err != nil {
			span.RecordError(err)
			respondError(msg, "internal error")
			return
		}
		if entries == nil {
			entries = []roomcache.PatchEntry{}
		}
		respondJSON(msg, entries)
		span.SetAttributes(attribute.Int("board.entries", len(entries)))
	})
	if err != nil {
		slog.Error("Failed to subscribe to board.since.*", "error", err)
		os.Exit(1)
	}

	// conn.open — register a connection, bind groups, announce first join
	_, err = nc.QueueSubscribe("conn.open", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartConsumerSpan(context.Background(), msg, "connection open")
		defer span.End()

		var evt connEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil || evt.ConnId == "" {
			slog.WarnContext(ctx, "Invalid conn.open event", "error", err)
			return
		}

		// wentOnline is true for exactly one of any racing first
		// connections, so the join broadcast goes out once.
		wentOnline, err := presence.AddConnection(ctx, evt.RoomId, evt.UserId, evt.ConnId)
		if err != nil {
			span.RecordError(err)
			slog.ErrorContext(ctx, "Failed to add connection", "error", err)
			return
		}
		connCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "open")))

		if err := bus.BindConnection(ctx, evt.UserId, evt.ConnId); err != nil {
			slog.WarnContext(ctx, "Failed to bind connection groups", "error", err)
		}
		// Scope the connection to its cached role/status; a cold directory
		// just means the room group until the caller repopulates it.
		var role *roomcache.Role
		var status *roomcache.Status
		if mem, err := members.Get(ctx, evt.RoomId, evt.UserId); err == nil && mem != nil {
			role, status = &mem.Role, &mem.Status
		}
		if err := bus.RescopeConnections(ctx, evt.RoomId, evt.UserId, role, status); err != nil {
			slog.WarnContext(ctx, "Failed to rescope connection", "error", err)
		}

		if wentOnline {
			deliver(ctx, dispatch.ToRoom(evt.RoomId), "presence.join", presenceBroadcast{RoomId: evt.RoomId, UserId: evt.UserId})
			slog.InfoContext(ctx, "User online", "room", evt.RoomId, "user", evt.UserId)
		}
	})
	if err != nil {
		slog.Error("Failed to subscribe to conn.open", "error", err)
		os.Exit(1)
	}

	// conn.heartbeat — refresh the connection TTL
	_, err = nc.QueueSubscribe("conn.heartbeat", "sync-workers", func(msg *nats.Msg) {
		var evt connEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil || evt.ConnId == "" {
			return
		}
		if err := presence.Touch(context.Background(), evt.RoomId, evt.UserId, evt.ConnId); err != nil {
			slog.Warn("Heartbeat touch failed", "error", err)
		}
	})
	if err != nil {
		slog.Error("Failed to subscribe to conn.heartbeat", "error", err)
		os.Exit(1)
	}

	// conn.close — drop the connection, announce the last leave
	_, err = nc.QueueSubscribe("conn.close", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartConsumerSpan(context.Background(), msg, "connection close")
		defer span.End()

		var evt connEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil || evt.ConnId == "" {
			slog.WarnContext(ctx, "Invalid conn.close event", "error", err)
			return
		}

		remaining, wentOffline, err := presence.RemoveConnection(ctx, evt.RoomId, evt.UserId, evt.ConnId)
		if err != nil {
			span.RecordError(err)
			slog.ErrorContext(ctx, "Failed to remove connection", "error", err)
			return
		}
		registry.drop(evt.ConnId)
		connCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "close")))

		if wentOffline {
			deliver(ctx, dispatch.ToRoom(evt.RoomId), "presence.leave", presenceBroadcast{RoomId: evt.RoomId, UserId: evt.UserId})
			slog.InfoContext(ctx, "User offline", "room", evt.RoomId, "user", evt.UserId)
		} else {
			slog.DebugContext(ctx, "Connection closed, user still online", "room", evt.RoomId, "user", evt.UserId, "remaining", remaining)
		}
	})
	if err != nil {
		slog.Error("Failed to subscribe to conn.close", "error", err)
		os.Exit(1)
	}

	// member.set.{room} — upsert membership, rescope live connections,
	// broadcast the full changed membership
	_, err = nc.QueueSubscribe("member.set.*", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartServerSpan(context.Background(), msg, "member set")
		defer span.End()

		var req memberSetRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			span.RecordError(err)
			respondError(msg, "invalid request")
			return
		}
		mem := req.Membership
		span.SetAttributes(
			attribute.Int64("room.id", mem.RoomID),
			attribute.Int64("member.user", mem.UserID),
			attribute.String("member.role", string(mem.Role)),
			attribute.String("member.status", string(mem.Status)),
		)

		if err := members.Set(ctx, mem); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.ErrorContext(ctx, "Failed to set membership", "error", err)
			respondError(msg, "internal error")
			return
		}
		if err := bus.RescopeConnections(ctx, mem.RoomID, mem.UserID, &mem.Role, &mem.Status); err != nil {
			slog.WarnContext(ctx, "Failed to rescope member connections", "error", err)
		}

		respondJSON(msg, map[string]any{"ok": true})
		deliver(ctx, dispatch.ToRoom(mem.RoomID), "member.changed", membershipBroadcast(req))
		slog.InfoContext(ctx, "Membership updated", "room", mem.RoomID, "user", mem.UserID, "role", mem.Role, "status", mem.Status, "by", req.UpdatedById)
	})
	if err != nil {
		slog.Error("Failed to subscribe to member.set.*", "error", err)
		os.Exit(1)
	}

	// member.remove.{room} — drop membership and the member's groups
	_, err = nc.QueueSubscribe("member.remove.*", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartServerSpan(context.Background(), msg, "member remove")
		defer span.End()

		var req memberRemoveRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			span.RecordError(err)
			respondError(msg, "invalid request")
			return
		}
		span.SetAttributes(attribute.Int64("room.id", req.RoomId), attribute.Int64("member.user", req.UserId))

		removed, err := members.Get(ctx, req.RoomId, req.UserId)
		if err != nil {
			span.RecordError(err)
			respondError(msg, "internal error")
			return
		}
		if err := members.Remove(ctx, req.RoomId, req.UserId); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.ErrorContext(ctx, "Failed to remove membership", "error", err)
			respondError(msg, "internal error")
			return
		}
		if err := bus.DropRoom(ctx, req.RoomId, req.UserId); err != nil {
			slog.WarnContext(ctx, "Failed to drop member groups", "error", err)
		}

		respondJSON(msg, map[string]any{"ok": true})
		if removed != nil {
			deliver(ctx, dispatch.ToRoom(req.RoomId), "member.removed", membershipBroadcast{
				Membership:  *removed,
				UpdatedById: req.UpdatedById,
				Reason:      req.Reason,
			})
		}
		slog.InfoContext(ctx, "Membership removed", "room", req.RoomId, "user", req.UserId, "by", req.UpdatedById)
	})
	if err != nil {
		slog.Error("Failed to subscribe to member.remove.*", "error", err)
		os.Exit(1)
	}

	// msg.cache — idempotent insert into the bounded message cache
	_, err = nc.QueueSubscribe("msg.cache", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartConsumerSpan(context.Background(), msg, "message cache")
		defer span.End()

		var m roomcache.Message
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			slog.WarnContext(ctx, "Invalid message payload", "error", err)
			return
		}
		if err := messages.SetAll(ctx, m); err != nil {
			span.RecordError(err)
			slog.ErrorContext(ctx, "Failed to cache message", "room", m.RoomID, "msg", m.ID, "error", err)
		}
	})
	if err != nil {
		slog.Error("Failed to subscribe to msg.cache", "error", err)
		os.Exit(1)
	}

	// msg.edit — in-place overwrite for edits and soft-deletes
	_, err = nc.QueueSubscribe("msg.edit", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartConsumerSpan(context.Background(), msg, "message edit")
		defer span.End()

		var m roomcache.Message
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			slog.WarnContext(ctx, "Invalid message payload", "error", err)
			return
		}
		if err := messages.SetMsg(ctx, m); err != nil {
			span.RecordError(err)
			slog.ErrorContext(ctx, "Failed to update message", "room", m.RoomID, "msg", m.ID, "error", err)
		}
	})
	if err != nil {
		slog.Error("Failed to subscribe to msg.edit", "error", err)
		os.Exit(1)
	}

	// msg.recent.{room} — hydrated recent window, newest first
	_, err = nc.QueueSubscribe("msg.recent.*", "sync-workers", func(msg *nats.Msg) {
		ctx, span := otelnats.StartServerSpan(context.Background(), msg, "recent messages")
		defer span.End()

		roomID, ok := roomFromSubject(msg.Subject)
		if !ok {
			msg.Respond([]byte("[]"))
			return
		}
		var req recentRequest
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &req)
		}
		if req.Limit <= 0 {
			req.Limit = 25
		}

		ids, err := messages.RecentByRoom(ctx, roomID, req.Limit)
		if err != nil {
			span.RecordError(err)
			msg.Respond([]byte("[]"))
			return
		}
		hydrated, err := messages.GetMsgByIDs(ctx, roomID, ids)
		if err != nil {
			span.RecordError(err)
			msg.Respond([]byte("[]"))
			return
		}
		respondJSON(msg, hydrated)
		span.SetAttributes(attribute.Int("msg.count", len(hydrated)))
	})
	if err != nil {
		slog.Error("Failed to subscribe to msg.recent.*", "error", err)
		os.Exit(1)
	}

	slog.Info("Sync service ready — listening for board.activate/patch/since.*, conn.open/heartbeat/close, member.set/remove.*, msg.cache/edit/recent.*")

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("Shutting down sync service")
	nc.Drain()
}
