// Package maintenance runs the periodic housekeeping: event-log retention,
// the heartbeat re-render that keeps relative timestamps fresh, and the
// scheduled database backup.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Anykei/telegram-ha-bot/internal/session"
	"github.com/Anykei/telegram-ha-bot/internal/store"
)

// Refresher re-renders one user's current screen.
type Refresher interface {
	Refresh(ctx context.Context, userID int64) error
}

// Loop drives the heartbeat interval. time.Ticker drops ticks a slow cycle
// missed, so a long heartbeat never causes a burst of catch-up runs.
type Loop struct {
	repo      *store.Repo
	sessions  *session.Store
	refresher Refresher
	interval  time.Duration
	retention time.Duration
}

func NewLoop(repo *store.Repo, sessions *session.Store, refresher Refresher, interval, retention time.Duration) *Loop {
	return &Loop{
		repo:      repo,
		sessions:  sessions,
		refresher: refresher,
		interval:  interval,
		retention: retention,
	}
}

// Run blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	started := time.Now()

	purged, err := l.repo.PurgeEvents(ctx, l.retention)
	if err != nil {
		slog.Error("event purge failed", "error", err)
	} else if purged > 0 {
		slog.Info("purged stale events", "rows", purged)
	}

	// Heartbeat: every open menu gets re-rendered so "Xm ago" lines and the
	// alert header stay truthful between events. Refreshes run concurrently;
	// one rate-limited chat must not stall the rest of the tick.
	var wg sync.WaitGroup
	var refreshed atomic.Int64
	for userID := range l.sessions.Snapshot() {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if err := l.refresher.Refresh(ctx, userID); err != nil {
				slog.Warn("heartbeat refresh failed", "user_id", userID, "error", err)
				return
			}
			refreshed.Add(1)
		}(userID)
	}
	wg.Wait()
	slog.Debug("maintenance tick", "refreshed", refreshed.Load(), "took", time.Since(started))
}

// Backup schedules the SQLite snapshot job. The cron spec comes from
// configuration; a typical value is "0 4 * * *" for nightly backups.
type Backup struct {
	repo *store.Repo
	dir  string
	cron *cron.Cron
}

func NewBackup(repo *store.Repo, dir string) *Backup {
	return &Backup{repo: repo, dir: dir, cron: cron.New()}
}

// Start registers the job and launches the scheduler.
func (b *Backup) Start(spec string) error {
	_, err := b.cron.AddFunc(spec, b.runOnce)
	if err != nil {
		return fmt.Errorf("backup schedule %q: %w", spec, err)
	}
	b.cron.Start()
	return nil
}

// Stop waits for a running backup to finish.
func (b *Backup) Stop() {
	<-b.cron.Stop().Done()
}

func (b *Backup) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	target := filepath.Join(b.dir, fmt.Sprintf("bot-%s.db", time.Now().Format("20060102-150405")))
	if err := b.repo.Backup(ctx, target); err != nil {
		slog.Error("database backup failed", "target", target, "error", err)
		return
	}
	slog.Info("database backup written", "target", target)
}
