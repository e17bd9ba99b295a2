package sessionclock

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func at(sec int) *time.Time {
	ts := t0.Add(time.Duration(sec) * time.Second)
	return &ts
}

func TestElapsed(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"same instant", t0, 0},
		{"floors partial seconds", t0.Add(1999 * time.Millisecond), 1},
		{"before start", t0.Add(-time.Minute), 0},
		{"ten minutes", t0.Add(10 * time.Minute), 600},
	}
	for _, tc := range cases {
		if got := Elapsed(t0, tc.now); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestTotalElapsedPauseFreezes(t *testing.T) {
	s := model.QuizSession{
		Status:    model.SessionStatusPaused,
		StartedAt: t0,
		PausedAt:  at(300),
	}

	for _, later := range []int{300, 301, 900, 86400} {
		if got := TotalElapsed(s, *at(later)); got != 300 {
			t.Fatalf("now=T+%ds: expected 300, got %d", later, got)
		}
	}
}

func TestTotalElapsedCompletedUsesCompletedAt(t *testing.T) {
	s := model.QuizSession{
		Status:      model.SessionStatusCompleted,
		StartedAt:   t0,
		PausedAt:    at(300),
		ResumedAt:   at(900),
		CompletedAt: at(1000),
	}
	if got := TotalElapsed(s, *at(5000)); got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
}

func TestTotalElapsedActiveUsesNow(t *testing.T) {
	s := model.QuizSession{Status: model.SessionStatusActive, StartedAt: t0}
	if got := TotalElapsed(s, *at(42)); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestIsExpiredAndActive(t *testing.T) {
	timed := model.QuizSession{Status: model.SessionStatusActive, StartedAt: t0, ExpiresAt: at(60)}

	if IsExpired(timed, *at(60)) {
		t.Fatalf("deadline instant must not count as expired")
	}
	if !IsActive(timed, *at(60)) {
		t.Fatalf("expected active at deadline instant")
	}
	if !IsExpired(timed, *at(61)) || IsActive(timed, *at(61)) {
		t.Fatalf("expected expired and inactive after deadline")
	}

	untimed := model.QuizSession{Status: model.SessionStatusActive, StartedAt: t0}
	if IsExpired(untimed, *at(10 * 86400)) {
		t.Fatalf("untimed session must never expire")
	}

	paused := timed
	paused.Status = model.SessionStatusPaused
	if IsActive(paused, *at(1)) {
		t.Fatalf("paused session is not active")
	}
}

func TestRemaining(t *testing.T) {
	stored := 1800
	s := model.QuizSession{
		Status:           model.SessionStatusActive,
		StartedAt:        t0,
		ExpiresAt:        at(1800),
		RemainingSeconds: &stored,
	}

	if got := Remaining(s, *at(600)); got == nil || *got != 1200 {
		t.Fatalf("expected 1200, got %v", got)
	}
	if got := Remaining(s, *at(4000)); got == nil || *got != 0 {
		t.Fatalf("expected floor at 0, got %v", got)
	}

	reported := 100
	s.RemainingSeconds = &reported
	if got := Remaining(s, *at(600)); *got != 100 {
		t.Fatalf("expected client-reported 100 to win, got %d", *got)
	}

	if got := Remaining(model.QuizSession{Status: model.SessionStatusActive, StartedAt: t0}, t0); got != nil {
		t.Fatalf("expected nil for untimed session, got %d", *got)
	}
}
