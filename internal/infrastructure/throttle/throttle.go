// Package throttle limits how often check-in attempts are accepted per
// member code. It guards against a stuck scanner or a bored teenager mashing
// the keypad, not against a determined attacker.
package throttle

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// Window is the persisted throttle state for one key.
type Window struct {
	// Start is when the current fixed window opened.
	Start time.Time

	// Attempts counts accepted attempts inside the window.
	Attempts int

	// BlockedUntil, when set, rejects every attempt before this instant.
	BlockedUntil *time.Time
}

// Store persists throttle windows. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the window for key, or nil when none exists.
	Get(ctx context.Context, key string) (*Window, error)

	// Put upserts the window for key.
	Put(ctx context.Context, key string, w Window) error

	// Delete removes the window for key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Config holds throttle configuration.
type Config struct {
	// WindowSize is the fixed window length.
	WindowSize time.Duration

	// MaxAttempts is how many attempts one key gets per window.
	MaxAttempts int

	// BlockDuration is how long a key stays blocked after exhausting its
	// attempts.
	BlockDuration time.Duration
}

// DefaultConfig returns the front-desk defaults: three attempts per quarter
// hour, then a quarter hour in the corner.
func DefaultConfig() Config {
	return Config{
		WindowSize:    15 * time.Minute,
		MaxAttempts:   3,
		BlockDuration: 15 * time.Minute,
	}
}

// Throttle is a fixed-window attempt limiter.
type Throttle struct {
	store  Store
	config Config
	clock  shared.Clock
}

// New creates a Throttle. A nil clock means system time.
func New(store Store, config Config, clock shared.Clock) *Throttle {
	if config.WindowSize == 0 {
		config = DefaultConfig()
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Throttle{store: store, config: config, clock: clock}
}

// Allow records an attempt for the identifier. A spent budget yields a
// *shared.RateLimitedError carrying the time left on the block. Identifiers
// are hashed before storage so raw member codes never land on disk.
func (t *Throttle) Allow(ctx context.Context, identifier string) error {
	key := hashKey(identifier)
	now := t.clock()

	w, err := t.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("throttle: get window: %w", err)
	}

	if w != nil && w.BlockedUntil != nil {
		if now.Before(*w.BlockedUntil) {
			return &shared.RateLimitedError{RetryAfter: w.BlockedUntil.Sub(now)}
		}
		// Block served. Start over.
		w = nil
	}

	if w == nil || now.Sub(w.Start) >= t.config.WindowSize {
		w = &Window{Start: now}
	}

	w.Attempts++
	if w.Attempts >= t.config.MaxAttempts {
		// Anchor the block at the attempt that spends the last of the
		// budget, not at the first rejected one.
		until := now.Add(t.config.BlockDuration)
		w.BlockedUntil = &until
	}

	if err := t.store.Put(ctx, key, *w); err != nil {
		return fmt.Errorf("throttle: put window: %w", err)
	}
	return nil
}

// Reset clears the identifier's window, for staff overriding a block.
func (t *Throttle) Reset(ctx context.Context, identifier string) error {
	return t.store.Delete(ctx, hashKey(identifier))
}

func hashKey(identifier string) string {
	sum := blake2b.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}
