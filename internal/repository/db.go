package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Failures surfaced by the request ledger and the message store.
var (
	ErrNotFound         = models.ErrNotFound
	ErrDuplicatePending = models.ErrDuplicatePending
	ErrAlreadyAccepted  = models.ErrAlreadyAccepted
	ErrUnavailable      = models.ErrUnavailable
)

const uniqueViolation = "23505"

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicatePending
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
