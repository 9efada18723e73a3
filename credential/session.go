package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/sessions"
)

const defaultSessionMaxAge = 24 * time.Hour

// OpaqueSession issues random session ids validated only by store lookup.
type OpaqueSession struct {
	settings
	repo   sessions.Repo
	maxAge time.Duration
}

var _ Manager = (*OpaqueSession)(nil)

func NewOpaqueSession(repo sessions.Repo, maxAge time.Duration, options ...Option) *OpaqueSession {
	if maxAge <= 0 {
		maxAge = defaultSessionMaxAge
	}
	return &OpaqueSession{
		settings: newSettings(options),
		repo:     repo,
		maxAge:   maxAge,
	}
}

func (s *OpaqueSession) Kind() Kind {
	return KindSession
}

func (s *OpaqueSession) Issue(ctx context.Context, subjectID uuid.UUID) (*Credential, error) {
	session := &sessions.Session{
		ID:        uuid.New(),
		SubjectID: subjectID,
		ExpiresAt: s.nowFunc().Add(s.maxAge),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[OpaqueSession.Issue] store session")
	}

	return &Credential{
		Kind:      KindSession,
		ID:        session.ID,
		SubjectID: subjectID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *OpaqueSession) Validate(ctx context.Context, raw string) (*Identity, error) {
	id, err := s.parse(raw)
	if err != nil {
		return nil, err
	}

	session, err := s.repo.GetValid(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Debug().Str("session_id", id.String()).Msg("session missing or expired")
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[OpaqueSession.Validate]")
	}

	return &Identity{SubjectID: session.SubjectID, CredentialID: session.ID, ExpiresAt: session.ExpiresAt}, nil
}

func (s *OpaqueSession) Revoke(ctx context.Context, raw string) error {
	id, err := s.parse(raw)
	if err != nil {
		return err
	}

	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return errors.Wrap(err, "[OpaqueSession.Revoke]")
	}
	s.logger.Debug().Str("session_id", id.String()).Bool("removed", removed).Msg("session revoked")
	return nil
}

func (s *OpaqueSession) RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	return errors.Wrap(s.repo.DeleteAllForSubject(ctx, subjectID), "[OpaqueSession.RevokeAllForSubject]")
}

func (s *OpaqueSession) parse(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		s.logger.Debug().Err(err).Msg("malformed session id")
		return uuid.Nil, apperrors.ErrInvalidToken
	}
	return id, nil
}
