package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/m-urubek/scio--progress-path/internal/config"
	"github.com/m-urubek/scio--progress-path/internal/domain"
	"github.com/m-urubek/scio--progress-path/internal/notify"
	"github.com/m-urubek/scio--progress-path/internal/store"
)

func newTestWatchdog(t *testing.T) (*Watchdog, store.Repository, *notify.Hub) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	hub := notify.NewHub()
	wd := NewWatchdog(repo, hub, config.WatchdogConfig{
		Interval:            time.Minute,
		InactivityThreshold: 10 * time.Minute,
	})
	return wd, repo, hub
}

func seedWatchdogSession(t *testing.T, repo store.Repository, nickname string, joinedAgo time.Duration) *domain.ParticipantSession {
	t.Helper()
	ctx := context.Background()
	group := &domain.Group{
		ID:        uuid.NewString(),
		Name:      "Lab group",
		GoalText:  "Complete the lab report",
		GoalKind:  domain.GoalBinary,
		JoinToken: uuid.NewString(),
		CreatedAt: time.Now(),
	}
	if err := repo.CreateGroup(ctx, group, nil); err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}
	if err := repo.ConfirmGroup(ctx, group.ID); err != nil {
		t.Fatalf("Failed to confirm group: %v", err)
	}
	sess := &domain.ParticipantSession{
		ID:          uuid.NewString(),
		GroupID:     group.ID,
		Nickname:    nickname,
		DeviceToken: uuid.NewString(),
		JoinedAt:    time.Now().Add(-joinedAgo),
	}
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return sess
}

func TestSweep_RaisesAlertOnce(t *testing.T) {
	wd, repo, hub := newTestWatchdog(t)
	sess := seedWatchdogSession(t, repo, "silent", time.Hour)
	ctx := context.Background()

	events, cancel := hub.SubscribeSession(sess.ID)
	defer cancel()

	wd.Sweep(ctx)

	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.ActiveAlert || got.ActiveAlertKind == nil || *got.ActiveAlertKind != domain.AlertInactivity {
		t.Fatalf("Expected an inactivity alert, got alert=%v kind=%v", got.ActiveAlert, got.ActiveAlertKind)
	}

	raised := 0
	for _, ev := range drainEvents(events) {
		if ev.Kind == notify.EventAlertRaised {
			raised++
		}
	}
	if raised != 1 {
		t.Errorf("Expected one alert_raised event, got %d", raised)
	}

	// A second sweep over the same state raises nothing new.
	wd.Sweep(ctx)
	if extra := drainEvents(events); len(extra) != 0 {
		t.Errorf("Expected a repeated sweep to be silent, got %d events", len(extra))
	}
}

func TestSweep_SkipsActiveAndCompleted(t *testing.T) {
	wd, repo, _ := newTestWatchdog(t)
	ctx := context.Background()

	active := seedWatchdogSession(t, repo, "active", time.Hour)
	if err := repo.TouchActivity(ctx, active.ID, time.Now()); err != nil {
		t.Fatalf("TouchActivity failed: %v", err)
	}

	completed := seedWatchdogSession(t, repo, "done", time.Hour)
	if _, _, err := repo.ApplyProgress(ctx, completed.ID, 100); err != nil {
		t.Fatalf("ApplyProgress failed: %v", err)
	}

	recent := seedWatchdogSession(t, repo, "fresh", time.Minute)

	wd.Sweep(ctx)

	for _, id := range []string{active.ID, completed.ID, recent.ID} {
		got, err := repo.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.ActiveAlert {
			t.Errorf("Expected no alert for session %s", got.Nickname)
		}
	}
}

func TestSweep_ReEligibleAfterResolution(t *testing.T) {
	wd, repo, hub := newTestWatchdog(t)
	sess := seedWatchdogSession(t, repo, "quiet", time.Hour)
	ctx := context.Background()

	events, cancel := hub.SubscribeSession(sess.ID)
	defer cancel()

	wd.Sweep(ctx)

	var alertID string
	for _, ev := range drainEvents(events) {
		if ev.Kind == notify.EventAlertRaised {
			alertID = ev.AlertID
		}
	}
	if alertID == "" {
		t.Fatal("Expected an alert from the first sweep")
	}

	if _, _, err := repo.ResolveAlert(ctx, alertID, time.Now()); err != nil {
		t.Fatalf("ResolveAlert failed: %v", err)
	}

	// Still silent, so the next sweep raises a fresh alert.
	wd.Sweep(ctx)
	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.ActiveAlert {
		t.Error("Expected a new alert after resolution with continued silence")
	}
}
