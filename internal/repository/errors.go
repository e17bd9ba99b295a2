package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Domain errors
var (
	ErrNotFound = errors.New("record not found")
	// ErrActiveSessionExists is returned when the one-active-session index
	// rejects a write for a (quiz, participant) pair.
	ErrActiveSessionExists = errors.New("active session already exists for participant")
	// ErrStaleSession is returned when a conditional update finds the session
	// no longer in the expected status.
	ErrStaleSession = errors.New("session changed concurrently")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
