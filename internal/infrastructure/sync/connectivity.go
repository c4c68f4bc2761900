package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
)

// Watcher polls the backend's health endpoint and fires a callback on the
// offline-to-online transition, which is the moment queued mutations become
// deliverable again.
type Watcher struct {
	gateway  attendance.Gateway
	interval time.Duration
	logger   *slog.Logger
	onOnline func()

	online atomic.Bool
}

// NewWatcher creates a connectivity watcher. onOnline may be nil.
func NewWatcher(gateway attendance.Gateway, interval time.Duration, logger *slog.Logger, onOnline func()) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		gateway:  gateway,
		interval: interval,
		logger:   logger.With(slog.String("component", "connectivity")),
		onOnline: onOnline,
	}
}

// Online reports the last observed connectivity state.
func (w *Watcher) Online() bool {
	return w.online.Load()
}

// Run polls until the context is canceled. It checks once immediately so
// the kiosk knows its state at startup rather than one interval later.
func (w *Watcher) Run(ctx context.Context) {
	w.check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	healthy := w.gateway.Healthy(ctx)
	was := w.online.Swap(healthy)

	switch {
	case healthy && !was:
		w.logger.Info("backend reachable again")
		if w.onOnline != nil {
			w.onOnline()
		}
	case !healthy && was:
		w.logger.Warn("backend unreachable, queueing writes locally")
	}
}
