package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is an opaque server-side credential. The id carries no claims; a
// session is valid only while its record exists and has not expired.
type Session struct {
	ID        uuid.UUID
	SubjectID uuid.UUID
	ExpiresAt time.Time
}

// Repo defines the interface for session storage operations.
type Repo interface {
	// Create stores a new session. An existing ID fails with ErrDuplicateTokenID.
	Create(ctx context.Context, session *Session) error

	// GetValid returns the session if it exists and expires after now,
	// otherwise ErrNotFound.
	GetValid(ctx context.Context, sessionID uuid.UUID) (*Session, error)

	// Delete removes one session and reports whether a record was removed.
	Delete(ctx context.Context, sessionID uuid.UUID) (bool, error)

	// DeleteAllForSubject removes every session owned by the subject in one step.
	DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) error
}
