package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/sessions"
)

var _ sessions.Repo = (*SessionRepo)(nil)

type SessionRepo struct{ db *DB }

func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const (
	qSessionInsert = `
INSERT INTO sessions (session_id, subject_id, expiration)
VALUES ($1, $2, $3);`

	qSessionGetValid = `
SELECT session_id, subject_id, expiration
FROM sessions
WHERE session_id = $1 AND expiration > NOW();`

	qSessionDelete           = `DELETE FROM sessions WHERE session_id = $1;`
	qSessionDeleteForSubject = `DELETE FROM sessions WHERE subject_id = $1;`
	qSessionDeleteExpired    = `DELETE FROM sessions WHERE expiration <= NOW();`
)

func (r *SessionRepo) Create(ctx context.Context, session *sessions.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qSessionInsert, session.ID, session.SubjectID, session.ExpiresAt)
	if isUniqueViolation(err) {
		return apperrors.ErrDuplicateTokenID
	}
	return errors.Wrap(err, "[SessionRepo.Create]")
}

func (r *SessionRepo) GetValid(ctx context.Context, sessionID uuid.UUID) (*sessions.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s sessions.Session
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qSessionGetValid, sessionID).Scan(&s.ID, &s.SubjectID, &s.ExpiresAt); err != nil {
		return nil, notFound(err, "[SessionRepo.GetValid]")
	}
	return &s, nil
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qSessionDelete, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "[SessionRepo.Delete]")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepo) DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qSessionDeleteForSubject, subjectID)
	return errors.Wrap(err, "[SessionRepo.DeleteAllForSubject]")
}

func (r *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qSessionDeleteExpired)
	if err != nil {
		return 0, errors.Wrap(err, "[SessionRepo.DeleteExpired]")
	}
	return tag.RowsAffected(), nil
}
