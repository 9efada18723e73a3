package credential_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/energy-community-auth/credential"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/token"
	tokenfakerepo "github.com/jrsteele09/energy-community-auth/token/repofake"
)

const testRefreshMaxAge = 24 * time.Hour

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()

	access, err := token.GenerateRSAKeyPair("access", 2048)
	require.NoError(t, err)
	refresh, err := token.GenerateRSAKeyPair("refresh", 2048)
	require.NoError(t, err)

	codec, err := token.NewCodec(token.KeySet{Access: access, Refresh: refresh}, token.WithAccessMaxAge(5*time.Minute))
	require.NoError(t, err)
	return codec
}

func newTestTokenPair(t *testing.T, options ...credential.Option) (*credential.TokenPair, *tokenfakerepo.FakeRevocationStore, *token.Codec) {
	t.Helper()

	codec := newTestCodec(t)
	store := tokenfakerepo.NewFakeRevocationStore()
	return credential.NewTokenPair(codec, store, testRefreshMaxAge, options...), store, codec
}

func TestTokenPair_IssueAndValidate(t *testing.T) {
	ctx := context.Background()
	tp, store, codec := newTestTokenPair(t)
	subject := uuid.New()

	cred, err := tp.Issue(ctx, subject)
	require.NoError(t, err)
	require.Equal(t, credential.KindTokenPair, cred.Kind)
	require.Equal(t, cred.AccessToken, cred.Bearer())
	require.NotEmpty(t, cred.RefreshToken)
	require.Equal(t, 1, store.Count())

	access, err := codec.DecodeAccess(cred.AccessToken)
	require.NoError(t, err)
	refresh, err := codec.DecodeRefresh(cred.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, cred.ID, access.TokenID)
	require.Equal(t, access.TokenID, refresh.TokenID)

	identity, err := tp.Validate(ctx, cred.AccessToken)
	require.NoError(t, err)
	require.Equal(t, subject, identity.SubjectID)
	require.Equal(t, cred.ID, identity.CredentialID)

	_, err = tp.Validate(ctx, cred.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestTokenPair_RefreshKeepsFamily(t *testing.T) {
	ctx := context.Background()
	tp, _, codec := newTestTokenPair(t)

	cred, err := tp.Issue(ctx, uuid.New())
	require.NoError(t, err)

	refreshed, err := tp.Refresh(ctx, cred.RefreshToken)
	require.NoError(t, err)
	require.Empty(t, refreshed.RefreshToken)
	require.Equal(t, cred.ID, refreshed.ID)

	claims, err := codec.DecodeAccess(refreshed.AccessToken)
	require.NoError(t, err)
	require.Equal(t, cred.ID, claims.TokenID)

	_, err = tp.Refresh(ctx, cred.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestTokenPair_RevokeIsTerminalAndIdempotent(t *testing.T) {
	ctx := context.Background()
	tp, _, _ := newTestTokenPair(t)

	cred, err := tp.Issue(ctx, uuid.New())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, tp.Revoke(ctx, cred.AccessToken))

		_, err = tp.Refresh(ctx, cred.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		_, err = tp.Validate(ctx, cred.AccessToken)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	}
}

func TestTokenPair_RevokeWithRefreshToken(t *testing.T) {
	ctx := context.Background()
	tp, _, _ := newTestTokenPair(t)

	cred, err := tp.Issue(ctx, uuid.New())
	require.NoError(t, err)

	require.NoError(t, tp.Revoke(ctx, cred.RefreshToken))
	_, err = tp.Validate(ctx, cred.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	require.ErrorIs(t, tp.Revoke(ctx, "garbage"), apperrors.ErrInvalidToken)
}

func TestTokenPair_ExpiredRefreshTokenFailsWithoutRevocation(t *testing.T) {
	ctx := context.Background()
	past := time.Now().Add(-2 * testRefreshMaxAge)
	tp, store, _ := newTestTokenPair(t, credential.WithNowFunc(func() time.Time { return past }))

	cred, err := tp.Issue(ctx, uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, store.Count())

	_, err = tp.Refresh(ctx, cred.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestTokenPair_ExpiredFamilyFailsEvenWithValidSignature(t *testing.T) {
	ctx := context.Background()
	tp, store, _ := newTestTokenPair(t)

	cred, err := tp.Issue(ctx, uuid.New())
	require.NoError(t, err)

	store.SetNowFunc(func() time.Time { return time.Now().Add(2 * testRefreshMaxAge) })
	_, err = tp.Refresh(ctx, cred.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestTokenPair_RevokeAllForSubject(t *testing.T) {
	ctx := context.Background()
	tp, _, _ := newTestTokenPair(t)
	alice, bob := uuid.New(), uuid.New()

	a1, err := tp.Issue(ctx, alice)
	require.NoError(t, err)
	a2, err := tp.Issue(ctx, alice)
	require.NoError(t, err)
	b1, err := tp.Issue(ctx, bob)
	require.NoError(t, err)

	require.NoError(t, tp.RevokeAllForSubject(ctx, alice))

	for _, c := range []*credential.Credential{a1, a2} {
		_, err = tp.Refresh(ctx, c.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	}
	_, err = tp.Refresh(ctx, b1.RefreshToken)
	require.NoError(t, err)
}

type failingStore struct {
	token.RevocationStore
}

func (failingStore) Create(context.Context, *token.Family) error {
	return errors.New("connection reset")
}

func TestTokenPair_IssueIsAllOrNothing(t *testing.T) {
	tp := credential.NewTokenPair(newTestCodec(t), failingStore{}, testRefreshMaxAge)

	cred, err := tp.Issue(context.Background(), uuid.New())
	require.Error(t, err)
	require.Nil(t, cred)
	require.False(t, apperrors.IsClientSafe(err))
}
