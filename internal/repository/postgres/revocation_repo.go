package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/token"
)

var _ token.RevocationStore = (*RevocationRepo)(nil)

// RevocationRepo stores live token families. A family is usable only while
// its row exists and its expiration is in the future.
type RevocationRepo struct{ db *DB }

func NewRevocationRepo(db *DB) *RevocationRepo { return &RevocationRepo{db: db} }

const (
	qFamilyInsert = `
INSERT INTO token_families (token_id, subject_id, expiration)
VALUES ($1, $2, $3);`

	qFamilyIsValid = `
SELECT EXISTS (
    SELECT 1 FROM token_families WHERE token_id = $1 AND expiration > NOW()
);`

	qFamilyDelete           = `DELETE FROM token_families WHERE token_id = $1;`
	qFamilyDeleteForSubject = `DELETE FROM token_families WHERE subject_id = $1;`
	qFamilyDeleteExpired    = `DELETE FROM token_families WHERE expiration <= NOW();`
)

func (r *RevocationRepo) Create(ctx context.Context, family *token.Family) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qFamilyInsert, family.TokenID, family.SubjectID, family.ExpiresAt)
	if isUniqueViolation(err) {
		return apperrors.ErrDuplicateTokenID
	}
	return errors.Wrap(err, "[RevocationRepo.Create]")
}

func (r *RevocationRepo) IsValid(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var valid bool
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qFamilyIsValid, tokenID).Scan(&valid); err != nil {
		return false, errors.Wrap(err, "[RevocationRepo.IsValid]")
	}
	return valid, nil
}

func (r *RevocationRepo) Delete(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qFamilyDelete, tokenID)
	if err != nil {
		return false, errors.Wrap(err, "[RevocationRepo.Delete]")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RevocationRepo) DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qFamilyDeleteForSubject, subjectID)
	return errors.Wrap(err, "[RevocationRepo.DeleteAllForSubject]")
}

// DeleteExpired removes families past their expiration and returns how many.
func (r *RevocationRepo) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qFamilyDeleteExpired)
	if err != nil {
		return 0, errors.Wrap(err, "[RevocationRepo.DeleteExpired]")
	}
	return tag.RowsAffected(), nil
}
