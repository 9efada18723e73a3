package fakeaccountrepo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/energy-community-auth/accounts"
	fakeaccountrepo "github.com/jrsteele09/energy-community-auth/accounts/repofake"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/internal/utils"
)

func TestFakeAccountRepo_CreateAccountIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := fakeaccountrepo.NewFakeAccountRepo()

	alice := &accounts.Account{Email: "alice@example.com", Name: "Alice"}
	key := &accounts.CredentialKey{Provider: accounts.ProviderPassword, ExternalID: alice.Email, PasswordHash: utils.Ptr("hash")}
	require.NoError(t, repo.CreateAccount(ctx, alice, key))
	require.NotEqual(t, uuid.Nil, alice.ID)
	require.Equal(t, alice.ID, key.AccountID)

	// Different email, but the key is already taken: nothing is stored.
	mallory := &accounts.Account{Email: "mallory@example.com"}
	err := repo.CreateAccount(ctx, mallory, &accounts.CredentialKey{Provider: accounts.ProviderPassword, ExternalID: alice.Email})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	_, err = repo.FindAccountByEmail(ctx, mallory.Email)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Equal(t, 1, repo.AccountCount())
}

func TestFakeAccountRepo_Keys(t *testing.T) {
	ctx := context.Background()
	repo := fakeaccountrepo.NewFakeAccountRepo()

	alice := &accounts.Account{Email: "alice@example.com"}
	require.NoError(t, repo.CreateAccount(ctx, alice, &accounts.CredentialKey{Provider: accounts.ProviderPassword, ExternalID: alice.Email, PasswordHash: utils.Ptr("old")}))

	google := &accounts.CredentialKey{Provider: accounts.OAuthProvider("google"), ExternalID: "g-1", AccountID: alice.ID}
	require.NoError(t, repo.CreateKey(ctx, google))
	require.ErrorIs(t, repo.CreateKey(ctx, google), apperrors.ErrConflict)
	require.ErrorIs(t, repo.CreateKey(ctx, &accounts.CredentialKey{Provider: accounts.OAuthProvider("google"), ExternalID: "g-2", AccountID: uuid.New()}), apperrors.ErrNotFound)
	require.Len(t, repo.KeysFor(alice.ID), 2)

	// One key per provider and account
	require.ErrorIs(t, repo.CreateKey(ctx, &accounts.CredentialKey{Provider: accounts.OAuthProvider("google"), ExternalID: "g-3", AccountID: alice.ID}), apperrors.ErrConflict)
	found, err := repo.FindKeyForAccount(ctx, alice.ID, accounts.OAuthProvider("google"))
	require.NoError(t, err)
	require.Equal(t, "g-1", found.ExternalID)
	_, err = repo.FindKeyForAccount(ctx, alice.ID, accounts.OAuthProvider("github"))
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, repo.UpdatePasswordHash(ctx, alice.ID, "new"))
	key, err := repo.FindKey(ctx, accounts.ProviderPassword, alice.Email)
	require.NoError(t, err)
	require.Equal(t, "new", utils.Value(key.PasswordHash))

	require.ErrorIs(t, repo.UpdatePasswordHash(ctx, uuid.New(), "x"), apperrors.ErrNotFound)
}
