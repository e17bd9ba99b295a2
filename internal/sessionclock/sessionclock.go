// Package sessionclock derives a session's time accounting from the
// timestamps recorded on it. Every function is pure: given the same session
// snapshot and the same "now" it returns the same answer.
package sessionclock

import (
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// Elapsed returns whole seconds between startedAt and now, never negative.
func Elapsed(startedAt, now time.Time) int {
	d := now.Sub(startedAt)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// TotalElapsed returns the elapsed seconds of s as of now.
// A completed session stops at CompletedAt and a paused one at PausedAt, so
// time spent paused does not count.
func TotalElapsed(s model.QuizSession, now time.Time) int {
	switch s.Status {
	case model.SessionStatusCompleted:
		if s.CompletedAt != nil {
			return Elapsed(s.StartedAt, *s.CompletedAt)
		}
	case model.SessionStatusPaused:
		if s.PausedAt != nil {
			return Elapsed(s.StartedAt, *s.PausedAt)
		}
	}
	return Elapsed(s.StartedAt, now)
}

// IsExpired reports whether s has a deadline and now is past it.
// Untimed sessions never expire by time.
func IsExpired(s model.QuizSession, now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// IsActive reports whether s is ACTIVE and not past its deadline.
func IsActive(s model.QuizSession, now time.Time) bool {
	return s.Status == model.SessionStatusActive && !IsExpired(s, now)
}

// Remaining returns seconds left before the deadline, floored at 0, or nil
// for untimed sessions. Terminal sessions report the stored value. When the
// client has reported active time the smaller of the two counts wins.
func Remaining(s model.QuizSession, now time.Time) *int {
	if s.Status.IsTerminal() {
		return s.RemainingSeconds
	}
	if s.ExpiresAt == nil {
		return s.RemainingSeconds
	}

	left := 0
	if d := s.ExpiresAt.Sub(now); d > 0 {
		left = int(d / time.Second)
	}
	if s.RemainingSeconds != nil && *s.RemainingSeconds < left {
		left = *s.RemainingSeconds
	}
	return &left
}
