package accounts

import (
	"context"

	"github.com/google/uuid"
)

// Directory is the account and credential key store. Lookups that find
// nothing return ErrNotFound; uniqueness violations return ErrConflict.
type Directory interface {
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// CreateAccount stores the account together with its first credential
	// key. Either both are stored or neither is.
	CreateAccount(ctx context.Context, account *Account, key *CredentialKey) error

	FindKey(ctx context.Context, provider Provider, externalID string) (*CredentialKey, error)

	// FindKeyForAccount returns the account's key for a provider. An account
	// holds at most one key per provider.
	FindKeyForAccount(ctx context.Context, accountID uuid.UUID, provider Provider) (*CredentialKey, error)

	// CreateKey returns ErrConflict when the identity is taken or the account
	// already has a key for the provider.
	CreateKey(ctx context.Context, key *CredentialKey) error

	// UpdatePasswordHash replaces the hash on the account's password key.
	UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error
}
