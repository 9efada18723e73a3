package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/energy-community-auth/accounts"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

var _ accounts.Directory = (*AccountRepo)(nil)

type AccountRepo struct {
	db *DB
	tx Transactor
}

func NewAccountRepo(db *DB, logger zerolog.Logger) *AccountRepo {
	return &AccountRepo{db: db, tx: NewTransactor(db, logger)}
}

const (
	qAccountInsert = `
INSERT INTO accounts (id, email, name, is_admin, created_at)
VALUES ($1, $2, $3, $4, $5);`

	qAccountByID = `
SELECT id, email, name, is_admin, created_at
FROM accounts
WHERE id = $1;`

	qAccountByEmail = `
SELECT id, email, name, is_admin, created_at
FROM accounts
WHERE email = $1;`

	qKeyInsert = `
INSERT INTO credential_keys (provider, external_id, account_id, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5);`

	qKeyFind = `
SELECT provider, external_id, account_id, password_hash, created_at
FROM credential_keys
WHERE provider = $1 AND external_id = $2;`

	qKeyForAccount = `
SELECT provider, external_id, account_id, password_hash, created_at
FROM credential_keys
WHERE account_id = $1 AND provider = $2;`

	qKeyUpdateHash = `
UPDATE credential_keys
SET password_hash = $2
WHERE account_id = $1 AND provider = 'password';`
)

func (r *AccountRepo) FindAccountByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanAccount(r.db.execQueryer(ctx).QueryRow(ctx, qAccountByEmail, email), "[AccountRepo.FindAccountByEmail]")
}

func (r *AccountRepo) FindAccountByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanAccount(r.db.execQueryer(ctx).QueryRow(ctx, qAccountByID, id), "[AccountRepo.FindAccountByID]")
}

func (r *AccountRepo) CreateAccount(ctx context.Context, account *accounts.Account, key *accounts.CredentialKey) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = timeNow()
	}
	key.AccountID = account.ID

	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.execQueryer(ctx)
		if _, err := q.Exec(ctx, qAccountInsert, account.ID, account.Email, account.Name, account.IsAdmin, account.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return apperrors.ErrConflict
			}
			return errors.Wrap(err, "[AccountRepo.CreateAccount] insert account")
		}
		return r.insertKey(ctx, q, key)
	})
}

func (r *AccountRepo) FindKey(ctx context.Context, provider accounts.Provider, externalID string) (*accounts.CredentialKey, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanKey(r.db.execQueryer(ctx).QueryRow(ctx, qKeyFind, string(provider), externalID), "[AccountRepo.FindKey]")
}

func (r *AccountRepo) FindKeyForAccount(ctx context.Context, accountID uuid.UUID, provider accounts.Provider) (*accounts.CredentialKey, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanKey(r.db.execQueryer(ctx).QueryRow(ctx, qKeyForAccount, accountID, string(provider)), "[AccountRepo.FindKeyForAccount]")
}

func (r *AccountRepo) CreateKey(ctx context.Context, key *accounts.CredentialKey) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return r.insertKey(ctx, r.db.execQueryer(ctx), key)
}

func (r *AccountRepo) UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qKeyUpdateHash, accountID, hash)
	if err != nil {
		return errors.Wrap(err, "[AccountRepo.UpdatePasswordHash]")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *AccountRepo) insertKey(ctx context.Context, q execQueryer, key *accounts.CredentialKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = timeNow()
	}
	_, err := q.Exec(ctx, qKeyInsert, string(key.Provider), key.ExternalID, key.AccountID, key.PasswordHash, key.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[AccountRepo.insertKey]")
}

func scanKey(row pgx.Row, op string) (*accounts.CredentialKey, error) {
	var k accounts.CredentialKey
	var p string
	if err := row.Scan(&p, &k.ExternalID, &k.AccountID, &k.PasswordHash, &k.CreatedAt); err != nil {
		return nil, notFound(err, op)
	}
	k.Provider = accounts.Provider(p)
	return &k, nil
}

func scanAccount(row pgx.Row, op string) (*accounts.Account, error) {
	var a accounts.Account
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.IsAdmin, &a.CreatedAt); err != nil {
		return nil, notFound(err, op)
	}
	return &a, nil
}
