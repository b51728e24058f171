package roomcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PaulNafureanu/CollabBoard-sub000/store"
)

const (
	// patchAttempts bounds the optimistic-concurrency loop. Conflicts are
	// expected to resolve within a few attempts; beyond that the client
	// needs an explicit rebase, not more blind retries.
	patchAttempts = 3

	// patchLogCap bounds the per-room patch log. Because accepted versions
	// are gap-free, pruning version-patchLogCap on every append keeps the
	// log at exactly the cap.
	patchLogCap = 256

	// defaultActivateWait is the lock wait budget for SetActive.
	defaultActivateWait = 2 * time.Second
)

// BoardMeta identifies the currently active board state of a room.
type BoardMeta struct {
	StateID   int64  `json:"stateId"`
	BoardID   int64  `json:"boardId"`
	BoardName string `json:"boardName"`
}

// BoardState is the version pair of a room's active board. RTVersion
// advances by one on every accepted patch; DBVersion is the last
// version known to be durably persisted.
type BoardState struct {
	StateID   int64 `json:"stateId"`
	RTVersion int64 `json:"rtVersion"`
	DBVersion int64 `json:"dbVersion"`
}

// PatchEntry is one accepted patch in the per-room log.
type PatchEntry struct {
	Version   int64 `json:"version"`
	UserID    int64 `json:"userId"`
	Timestamp int64 `json:"at"`
	Patch     Patch `json:"patch"`
}

// PatchCode discriminates ApplyPatch outcomes. Everything here is
// normal control flow for the caller, not an error.
type PatchCode string

const (
	PatchOK PatchCode = "ok"
	// PatchVersionConflict: someone else patched first; rebase onto
	// RTVersion and resubmit once.
	PatchVersionConflict PatchCode = "version_conflict"
	// PatchUndefinedState: no active board to patch.
	PatchUndefinedState PatchCode = "undefined_state"
	// PatchUndefinedServerRT: the cached version is unreadable. The cache
	// is corrupt; rebuild from durable storage, do not retry.
	PatchUndefinedServerRT PatchCode = "undefined_server_rt"
	// PatchUndefinedPayload: state exists but the snapshot is missing.
	PatchUndefinedPayload PatchCode = "undefined_payload"
	// PatchFnConflict: the patch cannot structurally apply to the current
	// payload. Retrying against any version is pointless.
	PatchFnConflict PatchCode = "patch_fn_conflict"
	// PatchRetryFailed: the attempt budget ran out under contention.
	// RTVersion carries the best-known current version for one informed
	// rebase attempt.
	PatchRetryFailed PatchCode = "patch_retry_failed"
)

// PatchResult is the discriminated outcome of ApplyPatch. RTVersion is
// the new version on PatchOK and the current server version on
// PatchVersionConflict / PatchRetryFailed.
type PatchResult struct {
	Code      PatchCode
	RTVersion int64
}

// boardDoc is the stored shape: meta, versions and the full payload in
// one document so a single revision-guarded write covers all of them.
// Numeric fields are pointers so a missing field reads as corrupt, not
// as zero.
type boardDoc struct {
	StateID   *int64          `json:"stateId"`
	BoardID   *int64          `json:"boardId"`
	BoardName *string         `json:"boardName"`
	RTVersion *int64          `json:"rtVersion"`
	DBVersion *int64          `json:"dbVersion"`
	Payload   json.RawMessage `json:"payload"`
}

func (d *boardDoc) valid() bool {
	return d.StateID != nil && d.BoardID != nil && d.BoardName != nil &&
		d.RTVersion != nil && *d.RTVersion >= 0 && d.DBVersion != nil
}

// BoardSync is the optimistic-concurrency engine for the single active
// board per room: versioned snapshot, bounded patch log, and a
// lock-guarded activation path.
type BoardSync struct {
	state        store.Bucket // one boardDoc per room
	log          store.Bucket // "{room}.{version}" -> PatchEntry
	lock         *Lock
	activateWait time.Duration
}

// NewBoardSync builds the engine over its state and patch-log buckets.
// activateWait bounds how long SetActive waits for the activation lock;
// zero means the default.
func NewBoardSync(state, log store.Bucket, lock *Lock, activateWait time.Duration) *BoardSync {
	if activateWait <= 0 {
		activateWait = defaultActivateWait
	}
	return &BoardSync{state: state, log: log, lock: lock, activateWait: activateWait}
}

func boardKey(roomID int64) string  { return fmt.Sprintf("%d", roomID) }
func logKey(roomID, v int64) string { return fmt.Sprintf("%d.%d", roomID, v) }
func lockKey(roomID int64) string   { return fmt.Sprintf("activate.%d", roomID) }
func logFilter(roomID int64) string { return fmt.Sprintf("%d.>", roomID) }

// SetActive replaces a room's board state wholesale: new meta, version
// reset to zero, fresh payload, empty patch log. The per-room lock
// keeps two activations from interleaving; (false, nil) means the lock
// was busy and the caller should surface "try again".
func (s *BoardSync) SetActive(ctx context.Context, roomID, stateID, boardID int64, boardName string, dbVersion int64, payload json.RawMessage) (bool, error) {
	token := uuid.NewString()
	won, err := s.lock.AcquireWithRetry(ctx, lockKey(roomID), token, s.activateWait)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	defer s.lock.Release(context.WithoutCancel(ctx), lockKey(roomID), token)

	rt := int64(0)
	doc := boardDoc{
		StateID:   &stateID,
		BoardID:   &boardID,
		BoardName: &boardName,
		RTVersion: &rt,
		DBVersion: &dbVersion,
		Payload:   payload,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode board state: %w", err)
	}
	// The state write goes first: it moves the document revision, so any
	// in-flight patch commit against the old board loses its CAS. The log
	// sweep after it then removes entries a racing patch appended before
	// the write landed; sweeping first would let such a patch repopulate
	// the log with an old-board entry.
	if _, err := s.state.Put(ctx, boardKey(roomID), data); err != nil {
		return false, err
	}
	keys, err := s.log.Keys(ctx, logFilter(roomID))
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if err := s.log.Delete(ctx, k); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return false, err
		}
	}
	return true, nil
}

// ApplyPatch runs the optimistic-concurrency loop: read the versioned
// document, check the claimed base version, apply the patch in memory,
// then commit with a revision-guarded write. A concurrent writer aborts
// the commit and the loop retries from a fresh read, up to the attempt
// budget.
func (s *BoardSync) ApplyPatch(ctx context.Context, roomID, userID, baseVersion int64, patch Patch, at int64) (PatchResult, error) {
	lastKnown := int64(-1)

	for attempt := 0; attempt < patchAttempts; attempt++ {
		entry, err := s.state.Get(ctx, boardKey(roomID))
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				return PatchResult{Code: PatchUndefinedState}, nil
			}
			return PatchResult{}, err
		}

		var doc boardDoc
		if err := json.Unmarshal(entry.Value, &doc); err != nil || doc.RTVersion == nil || *doc.RTVersion < 0 {
			return PatchResult{Code: PatchUndefinedServerRT}, nil
		}
		rt := *doc.RTVersion
		lastKnown = rt

		if baseVersion != rt {
			return PatchResult{Code: PatchVersionConflict, RTVersion: rt}, nil
		}
		if len(doc.Payload) == 0 {
			return PatchResult{Code: PatchUndefinedPayload}, nil
		}

		newPayload, err := applyPatch(doc.Payload, patch)
		if err != nil {
			return PatchResult{Code: PatchFnConflict, RTVersion: rt}, nil
		}

		next := rt + 1
		doc.RTVersion = &next
		doc.Payload = newPayload
		data, err := json.Marshal(doc)
		if err != nil {
			return PatchResult{}, fmt.Errorf("encode board state: %w", err)
		}

		_, err = s.state.Update(ctx, boardKey(roomID), data, entry.Revision)
		if err != nil {
			if errors.Is(err, store.ErrRevisionMismatch) {
				continue // someone committed first; re-read and retry
			}
			return PatchResult{}, err
		}

		if err := s.appendLog(ctx, roomID, PatchEntry{Version: next, UserID: userID, Timestamp: at, Patch: patch}); err != nil {
			return PatchResult{}, err
		}
		return PatchResult{Code: PatchOK, RTVersion: next}, nil
	}

	return PatchResult{Code: PatchRetryFailed, RTVersion: lastKnown}, nil
}

// appendLog records an accepted patch and prunes the entry that fell
// out of the cap. Only the commit winner for a version reaches here, so
// entries are unique per version.
func (s *BoardSync) appendLog(ctx context.Context, roomID int64, e PatchEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode patch entry: %w", err)
	}
	if _, err := s.log.Put(ctx, logKey(roomID, e.Version), data); err != nil {
		return err
	}
	if old := e.Version - patchLogCap; old >= 1 {
		if err := s.log.Delete(ctx, logKey(roomID, old)); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return err
		}
	}
	return nil
}

// LoadMeta returns the active board identity, or nil on a cold or
// corrupt cache. Callers treat nil as "rebuild from durable storage".
func (s *BoardSync) LoadMeta(ctx context.Context, roomID int64) (*BoardMeta, error) {
	doc, err := s.loadDoc(ctx, roomID)
	if doc == nil || err != nil {
		return nil, err
	}
	return &BoardMeta{StateID: *doc.StateID, BoardID: *doc.BoardID, BoardName: *doc.BoardName}, nil
}

// LoadState returns the version pair, or nil on a cold or corrupt cache.
func (s *BoardSync) LoadState(ctx context.Context, roomID int64) (*BoardState, error) {
	doc, err := s.loadDoc(ctx, roomID)
	if doc == nil || err != nil {
		return nil, err
	}
	return &BoardState{StateID: *doc.StateID, RTVersion: *doc.RTVersion, DBVersion: *doc.DBVersion}, nil
}

// LoadPayload returns the full snapshot, or nil on a cold or corrupt cache.
func (s *BoardSync) LoadPayload(ctx context.Context, roomID int64) (json.RawMessage, error) {
	doc, err := s.loadDoc(ctx, roomID)
	if doc == nil || err != nil {
		return nil, err
	}
	if len(doc.Payload) == 0 {
		return nil, nil
	}
	return doc.Payload, nil
}

func (s *BoardSync) loadDoc(ctx context.Context, roomID int64) (*boardDoc, error) {
	entry, err := s.state.Get(ctx, boardKey(roomID))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var doc boardDoc
	if err := json.Unmarshal(entry.Value, &doc); err != nil || !doc.valid() {
		return nil, nil
	}
	return &doc, nil
}

// StreamSince returns accepted patches with version >= fromVersion, in
// version order, capped at limit. Entries older than the log cap are
// gone; malformed entries are skipped. Lets a behind client catch up
// without a full resync when the gap is small enough.
func (s *BoardSync) StreamSince(ctx context.Context, roomID, fromVersion, limit int64) ([]PatchEntry, error) {
	state, err := s.LoadState(ctx, roomID)
	if err != nil || state == nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	start := fromVersion
	if start < 1 {
		start = 1
	}
	if floor := state.RTVersion - patchLogCap + 1; start < floor {
		start = floor
	}

	var entries []PatchEntry
	for v := start; v <= state.RTVersion && int64(len(entries)) < limit; v++ {
		raw, err := s.log.Get(ctx, logKey(roomID, v))
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		var e PatchEntry
		if err := json.Unmarshal(raw.Value, &e); err != nil || e.Version != v {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
