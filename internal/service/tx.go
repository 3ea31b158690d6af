package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/jmoiron/sqlx"
)

func beginTx(ctx context.Context, db *sqlx.DB) (*sqlx.Tx, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", bracket.ErrTransientStore, err)
	}
	return tx, nil
}

func commit(tx *sqlx.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %w", bracket.ErrTransientStore, err)
	}
	return nil
}
