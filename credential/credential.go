// Package credential turns an authenticated subject into a revocable proof of
// identity. Two interchangeable variants exist: a signed access/refresh token
// pair backed by a revocation record, and an opaque server-side session.
package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindTokenPair Kind = "token_pair"
	KindSession   Kind = "session"
)

// Credential is what the client receives after a successful authentication.
// For a token pair ID is the family id; for a session it is the session id.
type Credential struct {
	Kind            Kind
	ID              uuid.UUID
	SubjectID       uuid.UUID
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	ExpiresAt       time.Time
}

// Bearer returns the value presented on protected calls.
func (c *Credential) Bearer() string {
	if c.Kind == KindSession {
		return c.ID.String()
	}
	return c.AccessToken
}

// Identity is the result of validating a presented credential.
type Identity struct {
	SubjectID    uuid.UUID
	CredentialID uuid.UUID
	ExpiresAt    time.Time
}

// Manager is the capability the auth service is written against.
type Manager interface {
	Kind() Kind

	// Issue persists the backing record before returning the credential, so a
	// returned credential is always usable.
	Issue(ctx context.Context, subjectID uuid.UUID) (*Credential, error)

	// Validate returns ErrInvalidToken for anything that is not a live credential.
	Validate(ctx context.Context, raw string) (*Identity, error)

	// Revoke is idempotent: revoking an already revoked credential succeeds.
	Revoke(ctx context.Context, raw string) error

	RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) error
}

// Refresher is implemented by variants that can mint a new short-lived
// bearer from a long-lived one.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

type settings struct {
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type Option func(*settings)

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *settings) {
		s.nowFunc = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func newSettings(options []Option) settings {
	s := settings{nowFunc: time.Now, logger: log.Logger}
	for _, opt := range options {
		opt(&s)
	}
	return s
}
