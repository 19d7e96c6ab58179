package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict covers unique-constraint races and optimistic checks that
	// matched no row. Callers may reload and retry.
	ErrConflict = errors.New("conflict")
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

func translate(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.SQLState() {
		case sqlStateUniqueViolation, sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return fmt.Errorf("%s: %w (%s)", action, ErrConflict, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}

func expectOneRow(result sql.Result, action string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", action, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", action, ErrConflict)
	}
	return nil
}
