package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// translate maps a driver error onto the engine's error kinds, keeping the
// original error in the chain.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", bracket.ErrNotFound, what)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s already exists: %w", bracket.ErrConflict, what, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s references a missing record: %w", bracket.ErrNotFound, what, err)
		}
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s: %w", bracket.ErrValidation, what, err)
		}
		return fmt.Errorf("%w: %s: %w", bracket.ErrTransientStore, what, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s already exists: %w", bracket.ErrConflict, what, err)
		case "23503":
			return fmt.Errorf("%w: %s references a missing record: %w", bracket.ErrNotFound, what, err)
		case "23502", "23514", "22P02":
			return fmt.Errorf("%w: %s: %w", bracket.ErrValidation, what, err)
		}
		return fmt.Errorf("%w: %s: %w", bracket.ErrTransientStore, what, err)
	}

	return fmt.Errorf("%w: %s: %w", bracket.ErrTransientStore, what, err)
}

func checkAffected(res sql.Result, what string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, translate(err, what)
	}
	return n > 0, nil
}
