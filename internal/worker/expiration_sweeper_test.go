package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/clock"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type sweepFixture struct {
	store   *memory.SessionStore
	clock   *clock.Fake
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	quizID  uuid.UUID
	counter int
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &sweepFixture{
		store:  memory.NewSessionStore(),
		clock:  clock.NewFake(t0),
		mr:     mr,
		rdb:    rdb,
		quizID: uuid.New(),
	}
}

func (f *sweepFixture) sweeper(batchSize int) *ExpirationSweeper {
	cfg := config.SweeperConfig{Enabled: true, Interval: 5 * time.Minute, BatchSize: batchSize, LockTTL: time.Minute}
	return NewExpirationSweeper(f.store, f.rdb, cfg, f.clock, zerolog.Nop())
}

// add stores a session with the given status whose deadline is offset from t0.
// A nil offset creates an untimed session.
func (f *sweepFixture) add(t *testing.T, status model.SessionStatus, offset *time.Duration) *model.QuizSession {
	t.Helper()
	f.counter++
	s := &model.QuizSession{
		Token:            fmt.Sprintf("tok-%d", f.counter),
		QuizID:           f.quizID,
		ParticipantEmail: fmt.Sprintf("p%d@sekolah.id", f.counter),
		Status:           status,
		StartedAt:        t0.Add(-time.Hour),
	}
	if offset != nil {
		at := t0.Add(*offset)
		s.ExpiresAt = &at
	}
	if err := f.store.Create(context.Background(), s); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func (f *sweepFixture) status(t *testing.T, token string) model.SessionStatus {
	t.Helper()
	s, err := f.store.GetByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return s.Status
}

func dur(d time.Duration) *time.Duration { return &d }

func TestRunExpiresOverdueSessionsInBatches(t *testing.T) {
	f := newSweepFixture(t)
	var overdue []*model.QuizSession
	for i := 0; i < 5; i++ {
		overdue = append(overdue, f.add(t, model.SessionStatusActive, dur(-time.Minute)))
	}
	for i := 0; i < 2; i++ {
		overdue = append(overdue, f.add(t, model.SessionStatusPaused, dur(-time.Second)))
	}
	future := f.add(t, model.SessionStatusActive, dur(time.Minute))
	untimed := f.add(t, model.SessionStatusActive, nil)
	completed := f.add(t, model.SessionStatusCompleted, dur(-time.Hour))

	w := f.sweeper(3)
	report, err := w.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Expired != 7 || report.Batches != 3 || report.FailedBatches != 0 || report.Trigger != TriggerManual {
		t.Fatalf("unexpected report: %+v", report)
	}
	for _, s := range overdue {
		if got := f.status(t, s.Token); got != model.SessionStatusExpired {
			t.Fatalf("expected %s EXPIRED, got %s", s.Token, got)
		}
	}
	if f.status(t, future.Token) != model.SessionStatusActive || f.status(t, untimed.Token) != model.SessionStatusActive {
		t.Fatal("sessions not past their deadline must stay ACTIVE")
	}
	if f.status(t, completed.Token) != model.SessionStatusCompleted {
		t.Fatal("completed sessions must not be touched")
	}

	again, err := w.RunNow(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.Expired != 0 {
		t.Fatalf("expected idempotent second run, expired %d", again.Expired)
	}
}

func TestSessionExactlyAtDeadlineIsNotSwept(t *testing.T) {
	f := newSweepFixture(t)
	s := f.add(t, model.SessionStatusActive, dur(0))

	report, err := f.sweeper(10).RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Expired != 0 || f.status(t, s.Token) != model.SessionStatusActive {
		t.Fatalf("expected session at deadline untouched, report %+v", report)
	}
}

func TestRunSkipsFailedBatch(t *testing.T) {
	f := newSweepFixture(t)
	first := f.add(t, model.SessionStatusActive, dur(-time.Minute))
	f.add(t, model.SessionStatusActive, dur(-time.Minute))
	f.add(t, model.SessionStatusActive, dur(-time.Minute))

	f.store.FailExpire = func(ids []int64) error {
		if ids[0] == first.ID {
			return errors.New("deadlock detected")
		}
		return nil
	}

	report, err := f.sweeper(1).RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.FailedBatches != 1 || report.Expired != 2 || report.Batches != 3 {
		t.Fatalf("expected one failed batch and two expired, got %+v", report)
	}
	if f.status(t, first.Token) != model.SessionStatusActive {
		t.Fatal("session in failed batch should remain for the next run")
	}
}

func TestRunIsNoopWhileLockHeldElsewhere(t *testing.T) {
	f := newSweepFixture(t)
	s := f.add(t, model.SessionStatusActive, dur(-time.Minute))
	if err := f.mr.Set(config.WorkerKey.SweeperLock, "other-instance"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	report, err := f.sweeper(10).RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Skipped || report.Expired != 0 {
		t.Fatalf("expected skipped run, got %+v", report)
	}
	if f.status(t, s.Token) != model.SessionStatusActive {
		t.Fatal("skipped run must not expire anything")
	}
	if got, _ := f.mr.Get(config.WorkerKey.SweeperLock); got != "other-instance" {
		t.Fatalf("foreign lock must be left alone, got %q", got)
	}
}

func TestRunReleasesLock(t *testing.T) {
	f := newSweepFixture(t)
	f.add(t, model.SessionStatusActive, dur(-time.Minute))

	if _, err := f.sweeper(10).RunNow(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.mr.Exists(config.WorkerKey.SweeperLock) {
		t.Fatal("expected sweep lock to be released")
	}
}

func TestRunSweepsWhenRedisUnavailable(t *testing.T) {
	f := newSweepFixture(t)
	s := f.add(t, model.SessionStatusActive, dur(-time.Minute))
	f.mr.SetError("ERR server unavailable")

	report, err := f.sweeper(10).RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Expired != 1 || f.status(t, s.Token) != model.SessionStatusExpired {
		t.Fatalf("expected sweep without lock, got %+v", report)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	f := newSweepFixture(t)
	s := f.add(t, model.SessionStatusActive, dur(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.sweeper(10).RunNow(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.Batches != 0 || f.status(t, s.Token) != model.SessionStatusActive {
		t.Fatalf("expected no batch after cancellation, got %+v", report)
	}
}

// cancelAfterList cancels the run right after a batch was listed and, like
// a database driver, refuses work on a cancelled context.
type cancelAfterList struct {
	*memory.SessionStore
	cancel context.CancelFunc
}

func (s cancelAfterList) ListOverdueIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := s.SessionStore.ListOverdueIDs(ctx, now, afterID, limit)
	s.cancel()
	return ids, err
}

func (s cancelAfterList) ExpireBatch(ctx context.Context, ids []int64, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.SessionStore.ExpireBatch(ctx, ids, now)
}

func TestShutdownFinishesCurrentBatch(t *testing.T) {
	f := newSweepFixture(t)
	first := f.add(t, model.SessionStatusActive, dur(-2*time.Minute))
	second := f.add(t, model.SessionStatusActive, dur(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := cancelAfterList{SessionStore: f.store, cancel: cancel}
	cfg := config.SweeperConfig{Enabled: true, Interval: 5 * time.Minute, BatchSize: 1, LockTTL: time.Minute}
	sweeper := NewExpirationSweeper(store, f.rdb, cfg, f.clock, zerolog.Nop())

	report, err := sweeper.RunNow(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.Batches != 1 || report.FailedBatches != 0 || report.Expired != 1 {
		t.Fatalf("expected the in-flight batch to complete, got %+v", report)
	}
	if f.status(t, first.Token) != model.SessionStatusExpired {
		t.Fatal("session in the current batch should be expired")
	}
	if f.status(t, second.Token) != model.SessionStatusActive {
		t.Fatal("no batch may start after shutdown")
	}
}

func TestStatusReportsConfigCountsAndLastRun(t *testing.T) {
	f := newSweepFixture(t)
	f.add(t, model.SessionStatusActive, dur(-time.Minute))
	f.add(t, model.SessionStatusActive, dur(time.Hour))
	f.add(t, model.SessionStatusPaused, dur(time.Hour))

	w := f.sweeper(250)
	if _, err := w.RunNow(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	st, err := w.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Enabled || st.IntervalMinutes != 5 || st.BatchSize != 250 {
		t.Fatalf("unexpected config in status: %+v", st)
	}
	if st.ActiveSessions != 1 || st.PausedSessions != 1 || st.ExpiredSessions != 1 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if st.LastRun == nil || st.LastRun.Expired != 1 {
		t.Fatalf("expected last run with one expiry, got %+v", st.LastRun)
	}

	// Another instance sees the shared report.
	other := NewExpirationSweeper(f.store, f.rdb, config.SweeperConfig{Enabled: true}, f.clock, zerolog.Nop())
	st, err = other.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.LastRun == nil || st.LastRun.Expired != 1 || st.BatchSize != 500 {
		t.Fatalf("expected shared last run and default batch size, got %+v", st)
	}
}

func TestStartSweepsOnIntervalUntilCancelled(t *testing.T) {
	f := newSweepFixture(t)
	s := f.add(t, model.SessionStatusActive, dur(-time.Minute))

	cfg := config.SweeperConfig{Enabled: true, Interval: 10 * time.Millisecond, BatchSize: 10}
	w := NewExpirationSweeper(f.store, nil, cfg, f.clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.status(t, s.Token) != model.SessionStatusExpired {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("timed out waiting for interval sweep")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestStartReturnsWhenDisabled(t *testing.T) {
	f := newSweepFixture(t)
	w := NewExpirationSweeper(f.store, nil, config.SweeperConfig{Enabled: false}, f.clock, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
}
