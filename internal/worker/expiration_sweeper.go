package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
)

const (
	TriggerInterval = "interval"
	TriggerManual   = "manual"
)

// batchTimeout bounds one list-and-expire step, which runs detached from
// the run context so shutdown lets it finish.
const batchTimeout = 30 * time.Second

// releaseLock deletes the sweep lock only if this run still owns it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepStore finds and expires overdue sessions.
type SweepStore interface {
	ListOverdueIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error)
	ExpireBatch(ctx context.Context, ids []int64, now time.Time) (int64, error)
	CountByStatus(ctx context.Context, quizID uuid.UUID) (map[model.SessionStatus]int64, error)
}

// RunReport summarizes one sweep.
type RunReport struct {
	Trigger       string    `json:"trigger"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Batches       int       `json:"batches"`
	FailedBatches int       `json:"failed_batches"`
	Expired       int64     `json:"expired"`
	// Skipped is set when another instance held the sweep lock.
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// SweeperStatus is the operator view of the sweeper.
type SweeperStatus struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	BatchSize       int        `json:"batch_size"`
	LastRun         *RunReport `json:"last_run,omitempty"`
	ActiveSessions  int64      `json:"active_sessions"`
	PausedSessions  int64      `json:"paused_sessions"`
	ExpiredSessions int64      `json:"expired_sessions"`
}

// ExpirationSweeper periodically moves sessions past their deadline to
// EXPIRED in bulk. Runs are idempotent; a Redis lock keeps instances from
// sweeping at the same time when a client is configured.
type ExpirationSweeper struct {
	store SweepStore
	rdb   *redis.Client
	cfg   config.SweeperConfig
	clock clock.Clock
	log   zerolog.Logger

	running sync.Mutex
	mu      sync.RWMutex
	last    *RunReport
}

// NewExpirationSweeper creates a sweeper. rdb may be nil, which disables
// the cross-instance lock and the shared last-run report.
func NewExpirationSweeper(store SweepStore, rdb *redis.Client, cfg config.SweeperConfig, clk clock.Clock, log zerolog.Logger) *ExpirationSweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &ExpirationSweeper{
		store: store,
		rdb:   rdb,
		cfg:   cfg,
		clock: clk,
		log:   logger.Component(log, "expiration_sweeper"),
	}
}

// Start sweeps on every interval tick until ctx is cancelled. It returns
// immediately when the sweeper is disabled.
func (w *ExpirationSweeper) Start(ctx context.Context) {
	if !w.cfg.Enabled {
		w.log.Info().Msg("ExpirationSweeper disabled")
		return
	}
	w.log.Info().
		Dur("interval", w.cfg.Interval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("ExpirationSweeper started")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpirationSweeper stopped")
			return
		case <-ticker.C:
			_, _ = w.run(ctx, TriggerInterval)
		}
	}
}

// RunNow sweeps immediately, regardless of the enabled flag.
func (w *ExpirationSweeper) RunNow(ctx context.Context) (*RunReport, error) {
	return w.run(ctx, TriggerManual)
}

// Status reports configuration, the last run and current session counts.
func (w *ExpirationSweeper) Status(ctx context.Context) (*SweeperStatus, error) {
	counts, err := w.store.CountByStatus(ctx, uuid.Nil)
	if err != nil {
		return nil, err
	}
	return &SweeperStatus{
		Enabled:         w.cfg.Enabled,
		IntervalMinutes: w.cfg.IntervalMinutes(),
		BatchSize:       w.cfg.BatchSize,
		LastRun:         w.lastRun(ctx),
		ActiveSessions:  counts[model.SessionStatusActive],
		PausedSessions:  counts[model.SessionStatusPaused],
		ExpiredSessions: counts[model.SessionStatusExpired],
	}, nil
}

func (w *ExpirationSweeper) run(ctx context.Context, trigger string) (*RunReport, error) {
	w.running.Lock()
	defer w.running.Unlock()

	now := w.clock.Now()
	report := &RunReport{Trigger: trigger, StartedAt: now}

	owned, release := w.acquire(ctx)
	if !owned {
		report.Skipped = true
		report.FinishedAt = w.clock.Now()
		w.log.Debug().Str("trigger", trigger).Msg("Sweep lock held elsewhere, skipping")
		w.record(ctx, report)
		return report, nil
	}
	defer release()

	err := w.sweep(ctx, now, report)
	report.FinishedAt = w.clock.Now()
	if err != nil {
		report.Error = err.Error()
	}
	w.record(ctx, report)

	ev := w.log.Info()
	if report.Expired == 0 && err == nil {
		ev = w.log.Debug()
	}
	ev.Str("trigger", trigger).
		Int64("expired", report.Expired).
		Int("batches", report.Batches).
		Int("failed_batches", report.FailedBatches).
		Msg("Sweep finished")
	return report, err
}

// sweep walks overdue ids in keyset order and expires them batch by batch.
// Cancellation is honoured between batches; a batch already under way is
// finished.
func (w *ExpirationSweeper) sweep(ctx context.Context, now time.Time, report *RunReport) error {
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			w.log.Info().Int64("after_id", afterID).Msg("Sweep interrupted by shutdown")
			return err
		}

		more, err := w.sweepBatch(ctx, now, afterID, report)
		if err != nil {
			return err
		}
		if more == 0 {
			return nil
		}
		afterID = more
	}
}

// sweepBatch lists and expires one batch. It returns the last id seen, or 0
// when no further batch follows.
func (w *ExpirationSweeper) sweepBatch(ctx context.Context, now time.Time, afterID int64, report *RunReport) (int64, error) {
	batchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), batchTimeout)
	defer cancel()

	ids, err := w.store.ListOverdueIDs(batchCtx, now, afterID, w.cfg.BatchSize)
	if err != nil {
		w.log.Error().Err(err).Int64("after_id", afterID).Msg("Listing overdue sessions failed")
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	lastID := ids[len(ids)-1]
	report.Batches++

	n, err := w.store.ExpireBatch(batchCtx, ids, now)
	if err != nil {
		report.FailedBatches++
		w.log.Error().Err(err).
			Int("size", len(ids)).
			Int64("first_id", ids[0]).
			Int64("last_id", lastID).
			Msg("Expire batch failed, skipping")
	} else {
		report.Expired += n
	}

	if len(ids) < w.cfg.BatchSize {
		return 0, nil
	}
	return lastID, nil
}

// acquire takes the cross-instance sweep lock. A Redis error is treated as
// acquired since the sweep itself is idempotent.
func (w *ExpirationSweeper) acquire(ctx context.Context) (bool, func()) {
	noop := func() {}
	if w.rdb == nil {
		return true, noop
	}

	token := uuid.NewString()
	ok, err := w.rdb.SetNX(ctx, config.WorkerKey.SweeperLock, token, w.lockTTL()).Result()
	if err != nil {
		w.log.Warn().Err(err).Msg("Sweep lock unavailable, sweeping without it")
		return true, noop
	}
	if !ok {
		return false, noop
	}
	return true, func() {
		// The run context may already be cancelled at this point.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseLock.Run(releaseCtx, w.rdb, []string{config.WorkerKey.SweeperLock}, token).Err(); err != nil {
			w.log.Warn().Err(err).Msg("Failed to release sweep lock")
		}
	}
}

func (w *ExpirationSweeper) lockTTL() time.Duration {
	if w.cfg.LockTTL > 0 {
		return w.cfg.LockTTL
	}
	return 2 * time.Minute
}

func (w *ExpirationSweeper) record(ctx context.Context, report *RunReport) {
	w.mu.Lock()
	w.last = report
	w.mu.Unlock()

	if w.rdb == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := w.rdb.Set(writeCtx, config.WorkerKey.SweeperLastRun, raw, 0).Err(); err != nil {
		w.log.Warn().Err(err).Msg("Failed to store sweep report")
	}
}

// lastRun prefers the shared report so every instance shows the most
// recent sweep cluster-wide.
func (w *ExpirationSweeper) lastRun(ctx context.Context) *RunReport {
	if w.rdb != nil {
		raw, err := w.rdb.Get(ctx, config.WorkerKey.SweeperLastRun).Bytes()
		if err == nil {
			var r RunReport
			if json.Unmarshal(raw, &r) == nil {
				return &r
			}
		} else if !errors.Is(err, redis.Nil) {
			w.log.Warn().Err(err).Msg("Failed to read shared sweep report")
		}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}
