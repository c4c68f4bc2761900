package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/application/command"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// MemoryShadow is an in-process command.PendingShadow. Entries expire after
// the TTL, which callers set to the cooldown window: an older pending visit
// cannot affect the cooldown decision anyway.
type MemoryShadow struct {
	mu      stdsync.Mutex
	ttl     time.Duration
	clock   shared.Clock
	entries map[string]time.Time
}

// NewMemoryShadow creates a MemoryShadow. A nil clock means system time.
func NewMemoryShadow(ttl time.Duration, clock shared.Clock) *MemoryShadow {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &MemoryShadow{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]time.Time),
	}
}

var _ command.PendingShadow = (*MemoryShadow)(nil)

// MarkPending records that a visit for code happened at the given time.
// Expired entries are swept here so the map stays bounded by the number of
// codes seen within one TTL, not by every code ever scanned.
func (s *MemoryShadow) MarkPending(_ context.Context, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for k, v := range s.entries {
		if now.Sub(v) >= s.ttl {
			delete(s.entries, k)
		}
	}

	if existing, ok := s.entries[code]; ok && existing.After(at) {
		return nil
	}
	s.entries[code] = at
	return nil
}

// LastPending returns the latest recorded pending visit time for code.
func (s *MemoryShadow) LastPending(_ context.Context, code string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.entries[code]
	if !ok {
		return time.Time{}, false, nil
	}
	if s.clock().Sub(at) >= s.ttl {
		delete(s.entries, code)
		return time.Time{}, false, nil
	}
	return at, true, nil
}
