package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Transactor interface {
	WithTx(ctx context.Context, function func(ctx context.Context) error) error
}

var _ Transactor = (*transactorImpl)(nil)

type transactorImpl struct {
	db     *DB
	logger zerolog.Logger
}

func NewTransactor(db *DB, logger zerolog.Logger) *transactorImpl {
	return &transactorImpl{
		db:     db,
		logger: logger,
	}
}

// WithTx runs function in a transaction carried by the context. A nested call
// joins the outer transaction.
func (t *transactorImpl) WithTx(ctx context.Context, function func(ctx context.Context) error) (txErr error) {
	if _, err := extractTx(ctx); err == nil {
		return function(ctx)
	}

	tx, err := t.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "[WithTx] begin")
	}
	ctxWithTx := context.WithValue(ctx, txInjector{}, tx)

	defer func() {
		if txErr != nil {
			if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
				t.logger.Error().Err(err).Msg("rollback")
			}
			return
		}
		if err := tx.Commit(ctx); err != nil {
			t.logger.Error().Err(err).Msg("commit")
			txErr = errors.Wrap(err, "[WithTx] commit")
		}
	}()

	return function(ctxWithTx)
}

type txInjector struct{}

var ErrTxNotFound = errors.New("tx not found in context")

func extractTx(ctx context.Context) (pgx.Tx, error) {
	tx, ok := ctx.Value(txInjector{}).(pgx.Tx)
	if !ok {
		return nil, ErrTxNotFound
	}
	return tx, nil
}

type execQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (db *DB) execQueryer(ctx context.Context) execQueryer {
	if tx, err := extractTx(ctx); err == nil && tx != nil {
		return tx
	}
	return db.Pool
}
