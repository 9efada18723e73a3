package fakeaccountrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jrsteele09/energy-community-auth/accounts"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/internal/utils"
)

var _ accounts.Directory = (*FakeAccountRepo)(nil)

type keyRef struct {
	provider   accounts.Provider
	externalID string
}

type FakeAccountRepo struct {
	accounts map[uuid.UUID]*accounts.Account
	emailIDs map[string]uuid.UUID // email to account id
	keys     map[keyRef]*accounts.CredentialKey
	lock     sync.RWMutex

	// BeforeCreate, when set, runs before every create with the lock released.
	// Tests use it to slip in a competing write.
	BeforeCreate func()
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts: make(map[uuid.UUID]*accounts.Account),
		emailIDs: make(map[string]uuid.UUID),
		keys:     make(map[keyRef]*accounts.CredentialKey),
	}
}

func (ar *FakeAccountRepo) FindAccountByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ar.lock.RLock()
	defer ar.lock.RUnlock()

	id, ok := ar.emailIDs[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	a := *ar.accounts[id]
	return &a, nil
}

func (ar *FakeAccountRepo) FindAccountByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ar.lock.RLock()
	defer ar.lock.RUnlock()

	account, ok := ar.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	a := *account
	return &a, nil
}

func (ar *FakeAccountRepo) CreateAccount(ctx context.Context, account *accounts.Account, key *accounts.CredentialKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ar.BeforeCreate != nil {
		ar.BeforeCreate()
	}

	ar.lock.Lock()
	defer ar.lock.Unlock()

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	if _, ok := ar.emailIDs[account.Email]; ok {
		return apperrors.ErrConflict
	}
	if _, ok := ar.accounts[account.ID]; ok {
		return apperrors.ErrConflict
	}
	ref := keyRef{key.Provider, key.ExternalID}
	if _, ok := ar.keys[ref]; ok {
		return apperrors.ErrConflict
	}

	a := *account
	ar.accounts[a.ID] = &a
	ar.emailIDs[a.Email] = a.ID

	key.AccountID = a.ID
	ar.storeKey(ref, key)
	return nil
}

func (ar *FakeAccountRepo) FindKey(ctx context.Context, provider accounts.Provider, externalID string) (*accounts.CredentialKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ar.lock.RLock()
	defer ar.lock.RUnlock()

	key, ok := ar.keys[keyRef{provider, externalID}]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	k := *key
	return &k, nil
}

func (ar *FakeAccountRepo) FindKeyForAccount(ctx context.Context, accountID uuid.UUID, provider accounts.Provider) (*accounts.CredentialKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ar.lock.RLock()
	defer ar.lock.RUnlock()

	key := ar.keyForAccount(accountID, provider)
	if key == nil {
		return nil, apperrors.ErrNotFound
	}
	k := *key
	return &k, nil
}

func (ar *FakeAccountRepo) CreateKey(ctx context.Context, key *accounts.CredentialKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ar.BeforeCreate != nil {
		ar.BeforeCreate()
	}

	ar.lock.Lock()
	defer ar.lock.Unlock()

	if _, ok := ar.accounts[key.AccountID]; !ok {
		return apperrors.ErrNotFound
	}
	ref := keyRef{key.Provider, key.ExternalID}
	if _, ok := ar.keys[ref]; ok {
		return apperrors.ErrConflict
	}
	if ar.keyForAccount(key.AccountID, key.Provider) != nil {
		return apperrors.ErrConflict
	}
	ar.storeKey(ref, key)
	return nil
}

func (ar *FakeAccountRepo) UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ar.lock.Lock()
	defer ar.lock.Unlock()

	for ref, key := range ar.keys {
		if ref.provider == accounts.ProviderPassword && key.AccountID == accountID {
			key.PasswordHash = utils.Ptr(hash)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

// KeysFor lists the credential keys bound to an account
func (ar *FakeAccountRepo) KeysFor(accountID uuid.UUID) []accounts.CredentialKey {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	keys := make([]accounts.CredentialKey, 0)
	for _, key := range ar.keys {
		if key.AccountID == accountID {
			keys = append(keys, *key)
		}
	}
	return keys
}

// AccountCount returns the number of stored accounts
func (ar *FakeAccountRepo) AccountCount() int {
	ar.lock.RLock()
	defer ar.lock.RUnlock()
	return len(ar.accounts)
}

// keyForAccount expects the lock to be held
func (ar *FakeAccountRepo) keyForAccount(accountID uuid.UUID, provider accounts.Provider) *accounts.CredentialKey {
	for ref, key := range ar.keys {
		if ref.provider == provider && key.AccountID == accountID {
			return key
		}
	}
	return nil
}

func (ar *FakeAccountRepo) storeKey(ref keyRef, key *accounts.CredentialKey) {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	k := *key
	if key.PasswordHash != nil {
		k.PasswordHash = utils.Ptr(*key.PasswordHash)
	}
	ar.keys[ref] = &k
}
