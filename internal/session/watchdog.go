package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-urubek/scio--progress-path/internal/config"
	"github.com/m-urubek/scio--progress-path/internal/domain"
	"github.com/m-urubek/scio--progress-path/internal/notify"
	"github.com/m-urubek/scio--progress-path/internal/store"
)

// Watchdog periodically sweeps for silent sessions and raises inactivity
// alerts without relying on live connections. The sweep is stateless and
// idempotent: filtering happens in the store, and running it concurrently
// with turn processing on the same session can at worst attempt a duplicate
// alert, which CreateAlertIfNone absorbs.
type Watchdog struct {
	repo      store.Repository
	hub       *notify.Hub
	interval  time.Duration
	threshold time.Duration
}

// NewWatchdog creates a new inactivity watchdog.
func NewWatchdog(repo store.Repository, hub *notify.Hub, cfg config.WatchdogConfig) *Watchdog {
	return &Watchdog{
		repo:      repo,
		hub:       hub,
		interval:  cfg.Interval,
		threshold: cfg.InactivityThreshold,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Inactivity watchdog started", "interval", w.interval, "threshold", w.threshold)

		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("Inactivity watchdog shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one pass over all silent, non-completed sessions. Errors on one
// session never block the rest of the sweep.
func (w *Watchdog) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.threshold)
	silent, err := w.repo.GetSilentSessions(ctx, cutoff)
	if err != nil {
		slog.Error("Watchdog failed to query silent sessions", "error", err)
		return
	}

	if len(silent) == 0 {
		return
	}

	slog.Info("Watchdog found silent sessions", "count", len(silent))

	for _, sess := range silent {
		if ctx.Err() != nil {
			return
		}

		alert, created, err := w.repo.CreateAlertIfNone(ctx, sess.ID, domain.AlertInactivity)
		if err != nil {
			slog.Error("Watchdog failed to create inactivity alert",
				"error", err, "session_id", sess.ID)
			continue
		}
		if !created {
			// A concurrent sweep or turn already raised it.
			continue
		}

		slog.Info("Inactivity alert raised",
			"session_id", sess.ID,
			"nickname", sess.Nickname,
			"silent_since", sess.SilentSince())

		w.hub.Publish(sess.GroupID, sess.ID, notify.Event{
			Kind:      notify.EventAlertRaised,
			SessionID: sess.ID,
			Nickname:  sess.Nickname,
			AlertID:   alert.ID,
			AlertKind: alert.Kind,
		})
	}
}
