package postgres

import (
	"errors"

	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Begin and commit failures are reported as PersistenceError so that callers
// can tell a retryable outage from a bad request.
func beginFailed(err error) error {
	return &domain.PersistenceError{Op: "begin transaction", Err: err}
}

func commitFailed(err error) error {
	return &domain.PersistenceError{Op: "commit transaction", Err: err}
}
