package token

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Family is the revocation record shared by an access/refresh token pair.
// The pair is usable only while its family record exists and has not expired.
type Family struct {
	TokenID   uuid.UUID
	SubjectID uuid.UUID
	ExpiresAt time.Time
}

// RevocationStore is the durable registry of live token families.
type RevocationStore interface {
	// Create stores a new family. An existing TokenID fails with ErrDuplicateTokenID.
	Create(ctx context.Context, family *Family) error

	// IsValid is true iff the family exists and expires after now.
	IsValid(ctx context.Context, tokenID uuid.UUID) (bool, error)

	// Delete removes one family and reports whether a record was removed.
	Delete(ctx context.Context, tokenID uuid.UUID) (bool, error)

	// DeleteAllForSubject removes every family owned by the subject in one step.
	DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) error
}
