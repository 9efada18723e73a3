package postgres

import (
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

const uniqueViolation = "23505"

var timeNow = time.Now

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps an empty result to ErrNotFound and wraps anything else.
func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return errors.Wrap(err, op)
}
