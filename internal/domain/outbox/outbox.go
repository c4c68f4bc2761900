// Package outbox defines the persistent queue of writes that could not reach
// the remote store. Entries survive process restarts: durability precedes the
// acknowledgment the kiosk shows, so a crash right after enqueue still leaves
// the mutation queued.
package outbox

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names the remote collection a pending mutation targets.
type Collection string

const (
	// CollectionCheckIns - queued attendance records.
	CollectionCheckIns Collection = "check_ins"

	// CollectionMembers - queued partial member updates.
	CollectionMembers Collection = "members"
)

// IsValid checks the collection is one the sync coordinator knows how to
// replay.
func (c Collection) IsValid() bool {
	return c == CollectionCheckIns || c == CollectionMembers
}

// PendingMutation is one queued write. The payload is opaque to the queue;
// only the sync coordinator decodes it. Entries are never mutated in place -
// they are created once and deleted strictly after the remote store confirms
// acceptance of that exact entry.
type PendingMutation struct {
	// ID - locally generated, globally unique (UUID). The coordinator
	// deduplicates by this, not by queue position.
	ID string

	// Collection - target remote collection.
	Collection Collection

	// MemberCode - the member the write concerns. Kept alongside the
	// opaque payload so replays can preserve per-member FIFO order.
	MemberCode string

	// Payload - the record to be created, JSON-encoded.
	Payload json.RawMessage

	// EnqueuedAt - insertion instant, the FIFO sort key.
	EnqueuedAt time.Time
}

// Queue is the offline write queue. Implementations are backed by local
// persistent storage and must serialize access internally: the registrar
// enqueues while the sync coordinator drains.
type Queue interface {
	// Enqueue durably stores a mutation before returning.
	Enqueue(ctx context.Context, collection Collection, memberCode string, payload []byte) (*PendingMutation, error)

	// ListPending returns all entries in insertion order.
	ListPending(ctx context.Context) ([]PendingMutation, error)

	// Remove deletes an entry by ID. Removing an already-removed entry is
	// not an error, which keeps overlapping sync passes idempotent.
	Remove(ctx context.Context, id string) error

	// CountPending returns the queue depth.
	CountPending(ctx context.Context) (int, error)

	// PendingSince reports the newest queued check-in timestamp for the
	// member code, if any. The cooldown check consults this so a second
	// scan cannot slip through while the first write is still queued.
	PendingSince(ctx context.Context, memberCode string) (time.Time, bool, error)
}

// CheckInPayload is the payload stored for CollectionCheckIns. The member is
// identified by code rather than ID because an offline kiosk may not have
// been able to resolve the code before the network went away.
type CheckInPayload struct {
	CheckInID  string    `json:"check_in_id"`
	MemberCode string    `json:"member_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// MemberPatchPayload is the payload stored for CollectionMembers.
type MemberPatchPayload struct {
	MemberID      string     `json:"member_id"`
	MemberCode    string     `json:"member_code"`
	LastCheckInAt *time.Time `json:"last_check_in_at,omitempty"`
}
