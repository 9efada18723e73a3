package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	fakeaccountrepo "github.com/jrsteele09/energy-community-auth/accounts/repofake"
	"github.com/jrsteele09/energy-community-auth/auth"
	"github.com/jrsteele09/energy-community-auth/credential"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/oauth"
	"github.com/jrsteele09/energy-community-auth/oauth/staterepo"
	"github.com/jrsteele09/energy-community-auth/password"
	fakesessionrepo "github.com/jrsteele09/energy-community-auth/sessions/repofakes"
	"github.com/jrsteele09/energy-community-auth/token"
	tokenfakerepo "github.com/jrsteele09/energy-community-auth/token/repofake"
)

const (
	testIssuer       = "energy-community-auth-test"
	testUserEmail    = "alice@example.com"
	testUserName     = "Alice"
	testUserPassword = "correct-password"
	testProvider     = "google"
)

// recorder captures operation outcomes.
type recorder struct {
	lock     sync.Mutex
	outcomes map[string][]error
}

func (r *recorder) Observe(operation string, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.outcomes[operation] = append(r.outcomes[operation], err)
}

// stubProvider hands out the profile registered for a code.
type stubProvider struct {
	profiles map[string]*oauth.Profile
}

func (p *stubProvider) Name() string { return testProvider }

func (p *stubProvider) AuthCodeURL(state, _ string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (p *stubProvider) Exchange(_ context.Context, code, _ string) (*oauth.Profile, error) {
	profile, ok := p.profiles[code]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	return profile, nil
}

type txKey struct{}

// recordingTransactor marks the context it hands to the unit of work.
type recordingTransactor struct {
	calls int
}

func (tx *recordingTransactor) WithTx(ctx context.Context, function func(ctx context.Context) error) error {
	tx.calls++
	return function(context.WithValue(ctx, txKey{}, true))
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// faultyRevocationStore fails bulk revocation on demand.
type faultyRevocationStore struct {
	*tokenfakerepo.FakeRevocationStore
	deleteAllErr error
	deleteAllTx  bool
}

func (s *faultyRevocationStore) DeleteAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	s.deleteAllTx = inTx(ctx)
	if s.deleteAllErr != nil {
		return s.deleteAllErr
	}
	return s.FakeRevocationStore.DeleteAllForSubject(ctx, subjectID)
}

// faultyDirectory fails password hash updates on demand.
type faultyDirectory struct {
	*fakeaccountrepo.FakeAccountRepo
	updateHashErr error
	updateHashTx  bool
}

func (d *faultyDirectory) UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error {
	d.updateHashTx = inTx(ctx)
	if d.updateHashErr != nil {
		return d.updateHashErr
	}
	return d.FakeAccountRepo.UpdatePasswordHash(ctx, accountID, hash)
}

// testFixture holds all test dependencies
type testFixture struct {
	directory  *fakeaccountrepo.FakeAccountRepo
	faultyDir  *faultyDirectory
	families   *tokenfakerepo.FakeRevocationStore
	faultyRevs *faultyRevocationStore
	sessions   *fakesessionrepo.FakeSessionRepo
	provider   *stubProvider
	recorder   *recorder
	tokenClock time.Time
	service    *auth.Service
}

func fastHasher() password.Hasher {
	return password.NewArgon2Hasher(password.WithMemory(1024), password.WithThreads(1))
}

func newFixture(t *testing.T, kind credential.Kind, options ...auth.ServiceOption) *testFixture {
	t.Helper()

	f := &testFixture{
		directory:  fakeaccountrepo.NewFakeAccountRepo(),
		families:   tokenfakerepo.NewFakeRevocationStore(),
		sessions:   fakesessionrepo.NewFakeSessionRepo(),
		provider:   &stubProvider{profiles: map[string]*oauth.Profile{}},
		recorder:   &recorder{outcomes: map[string][]error{}},
		tokenClock: time.Now(),
	}
	f.faultyDir = &faultyDirectory{FakeAccountRepo: f.directory}
	f.faultyRevs = &faultyRevocationStore{FakeRevocationStore: f.families}

	var manager credential.Manager
	switch kind {
	case credential.KindSession:
		manager = credential.NewOpaqueSession(f.sessions, time.Hour)
	default:
		access, err := token.GenerateRSAKeyPair("access-1", 2048)
		require.NoError(t, err)
		refresh, err := token.GenerateRSAKeyPair("refresh-1", 2048)
		require.NoError(t, err)

		codec, err := token.NewCodec(
			token.KeySet{Access: access, Refresh: refresh},
			token.WithIssuer(testIssuer),
			token.WithNowFunc(func() time.Time { return f.tokenClock }),
		)
		require.NoError(t, err)
		manager = credential.NewTokenPair(codec, f.faultyRevs, 24*time.Hour)
	}

	linker := oauth.NewLinker(f.directory, staterepo.NewInMemoryRepo(), oauth.WithProvider(f.provider))

	options = append([]auth.ServiceOption{
		auth.WithLinker(linker),
		auth.WithRecorder(f.recorder),
	}, options...)
	service, err := auth.NewService(f.faultyDir, fastHasher(), manager, options...)
	require.NoError(t, err)
	f.service = service
	return f
}

// setupTestFixture creates a token pair fixture
func setupTestFixture(t *testing.T) *testFixture {
	return newFixture(t, credential.KindTokenPair)
}

func (f *testFixture) register(t *testing.T, email, plainPassword string) *auth.Result {
	t.Helper()
	result, err := f.service.Register(context.Background(), email, testUserName, plainPassword)
	require.NoError(t, err)
	return result
}

func (f *testFixture) oauthCallback(t *testing.T, code string, profile *oauth.Profile) (*auth.Result, error) {
	t.Helper()
	f.provider.profiles[code] = profile

	authorization, err := f.service.OAuthStart(context.Background(), testProvider)
	require.NoError(t, err)
	return f.service.OAuthCallback(context.Background(), testProvider, code, authorization.State)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	f := setupTestFixture(t)
	manager := credential.NewOpaqueSession(f.sessions, time.Hour)

	_, err := auth.NewService(nil, fastHasher(), manager)
	require.Error(t, err)
	_, err = auth.NewService(f.directory, nil, manager)
	require.Error(t, err)
	_, err = auth.NewService(f.directory, fastHasher(), nil)
	require.Error(t, err)
}

func TestService_RegisterThenLogin(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		email    string
		password string
	}{
		{"alice@example.com", "correct-password"},
		{"bob@example.com", "pw1"},
		{"carol@example.com", "ünïcødé pässwörd"},
	} {
		t.Run(tc.email, func(t *testing.T) {
			f := setupTestFixture(t)

			registered := f.register(t, tc.email, tc.password)
			require.True(t, registered.IsNewUser)
			require.Equal(t, tc.email, registered.Account.Email)
			require.NotEmpty(t, registered.Credential.AccessToken)
			require.NotEmpty(t, registered.Credential.RefreshToken)

			loggedIn, err := f.service.Login(ctx, tc.email, tc.password)
			require.NoError(t, err)
			require.Equal(t, registered.Account.ID, loggedIn.Account.ID)
			require.False(t, loggedIn.IsNewUser)

			_, err = f.service.Login(ctx, tc.email, tc.password+"x")
			require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		})
	}
}

func TestService_RegisterStoresHashNotPassword(t *testing.T) {
	f := setupTestFixture(t)
	result := f.register(t, testUserEmail, testUserPassword)

	keys := f.directory.KeysFor(result.Account.ID)
	require.Len(t, keys, 1)
	require.Equal(t, "email:"+testUserEmail, keys[0].ID())
	require.NotNil(t, keys[0].PasswordHash)
	require.NotContains(t, *keys[0].PasswordHash, testUserPassword)
}

func TestService_RegisterNormalizesEmail(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	result := f.register(t, "  Alice@Example.COM ", testUserPassword)
	require.Equal(t, testUserEmail, result.Account.Email)

	_, err := f.service.Login(ctx, "ALICE@example.com", testUserPassword)
	require.NoError(t, err)

	_, err = f.service.Register(ctx, testUserEmail, testUserName, "another-password")
	require.ErrorIs(t, err, apperrors.ErrEmailAlreadyInUse)
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.register(t, testUserEmail, testUserPassword)

	_, err := f.service.Register(ctx, testUserEmail, "Someone Else", "other-password")
	require.ErrorIs(t, err, apperrors.ErrEmailAlreadyInUse)
	require.Equal(t, 1, f.directory.AccountCount())

	// The original password still works.
	_, err = f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
}

func TestService_RegisterDoesNotClaimOAuthAccount(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.oauthCallback(t, "code-1", &oauth.Profile{ExternalID: "g-1", Email: testUserEmail, EmailVerified: true})
	require.NoError(t, err)

	_, err = f.service.Register(context.Background(), testUserEmail, testUserName, testUserPassword)
	require.ErrorIs(t, err, apperrors.ErrEmailAlreadyInUse)

	// Password login against the OAuth-only account fails uniformly.
	_, err = f.service.Login(context.Background(), testUserEmail, testUserPassword)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.register(t, testUserEmail, testUserPassword)

	_, unknownErr := f.service.Login(ctx, "nobody@example.com", testUserPassword)
	_, wrongErr := f.service.Login(ctx, testUserEmail, "wrong-password")

	require.ErrorIs(t, unknownErr, apperrors.ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, apperrors.ErrInvalidCredentials)
	require.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestService_RevokeThenRefresh(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.register(t, testUserEmail, testUserPassword)
	login, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.Equal(t, credential.KindTokenPair, login.Credential.Kind)

	refreshed, err := f.service.Refresh(ctx, login.Credential.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)

	require.NoError(t, f.service.Revoke(ctx, login.Credential.AccessToken))

	for i := 0; i < 3; i++ {
		_, err = f.service.Refresh(ctx, login.Credential.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		require.NoError(t, f.service.Revoke(ctx, login.Credential.AccessToken))
	}

	_, err = f.service.Authenticate(ctx, login.Credential.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestService_RevokeWithRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	registered := f.register(t, testUserEmail, testUserPassword)

	require.NoError(t, f.service.Revoke(ctx, registered.Credential.RefreshToken))

	_, err := f.service.Authenticate(ctx, registered.Credential.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestService_ExpiredRefreshTokenFails(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	registered := f.register(t, testUserEmail, testUserPassword)
	require.Equal(t, 1, f.families.Count())

	// The family record is still present; only the token clock has moved.
	f.tokenClock = f.tokenClock.Add(25 * time.Hour)

	_, err := f.service.Refresh(ctx, registered.Credential.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	require.Equal(t, 1, f.families.Count())
}

func TestService_ChangePasswordInvalidatesHistory(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	registered := f.register(t, "bob@example.com", "pw1")
	other, err := f.service.Login(ctx, "bob@example.com", "pw1")
	require.NoError(t, err)

	changed, err := f.service.ChangePassword(ctx, registered.Credential.AccessToken, "pw1", "pw2")
	require.NoError(t, err)
	require.Equal(t, 1, f.families.Count())

	// Every pre-change family is gone, the requesting one included.
	for _, old := range []*credential.Credential{registered.Credential, other.Credential} {
		_, err = f.service.Authenticate(ctx, old.AccessToken)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		_, err = f.service.Refresh(ctx, old.RefreshToken)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	}

	principal, err := f.service.Authenticate(ctx, changed.Credential.AccessToken)
	require.NoError(t, err)
	require.Equal(t, registered.Account.ID, principal.Account.ID)
	_, err = f.service.Refresh(ctx, changed.Credential.RefreshToken)
	require.NoError(t, err)

	_, err = f.service.Login(ctx, "bob@example.com", "pw1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, "bob@example.com", "pw2")
	require.NoError(t, err)
}

func TestService_ChangePasswordFailedRevokeKeepsOldPassword(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	registered := f.register(t, "bob@example.com", "pw1")
	f.faultyRevs.deleteAllErr = errors.New("connection reset")

	_, err := f.service.ChangePassword(ctx, registered.Credential.AccessToken, "pw1", "pw2")
	require.Error(t, err)
	require.False(t, apperrors.IsClientSafe(err))

	// Nothing changed: the old password and its credentials still work, the
	// new password does not.
	_, err = f.service.Login(ctx, "bob@example.com", "pw1")
	require.NoError(t, err)
	_, err = f.service.Login(ctx, "bob@example.com", "pw2")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.service.Refresh(ctx, registered.Credential.RefreshToken)
	require.NoError(t, err)
}

func TestService_ChangePasswordFailedUpdateLeavesNoOldCredentials(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	registered := f.register(t, "bob@example.com", "pw1")
	f.faultyDir.updateHashErr = errors.New("connection reset")

	_, err := f.service.ChangePassword(ctx, registered.Credential.AccessToken, "pw1", "pw2")
	require.Error(t, err)

	_, err = f.service.Refresh(ctx, registered.Credential.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	_, err = f.service.Login(ctx, "bob@example.com", "pw2")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, "bob@example.com", "pw1")
	require.NoError(t, err)
}

func TestService_ChangePasswordRunsInOneTransaction(t *testing.T) {
	tx := &recordingTransactor{}
	f := newFixture(t, credential.KindTokenPair, auth.WithTransactor(tx))
	registered := f.register(t, "bob@example.com", "pw1")

	_, err := f.service.ChangePassword(context.Background(), registered.Credential.AccessToken, "pw1", "pw2")
	require.NoError(t, err)
	require.Equal(t, 1, tx.calls)
	require.True(t, f.faultyRevs.deleteAllTx)
	require.True(t, f.faultyDir.updateHashTx)
}

func TestService_ChangePasswordRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong old password", func(t *testing.T) {
		f := setupTestFixture(t)
		registered := f.register(t, testUserEmail, testUserPassword)

		_, err := f.service.ChangePassword(ctx, registered.Credential.AccessToken, "wrong", "new-password")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

		// Nothing was revoked.
		_, err = f.service.Authenticate(ctx, registered.Credential.AccessToken)
		require.NoError(t, err)
	})

	t.Run("invalid credential", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.ChangePassword(ctx, "not-a-token", testUserPassword, "new-password")
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("oauth only account", func(t *testing.T) {
		f := setupTestFixture(t)
		result, err := f.oauthCallback(t, "code-1", &oauth.Profile{ExternalID: "g-1", Email: testUserEmail, EmailVerified: true})
		require.NoError(t, err)

		_, err = f.service.ChangePassword(ctx, result.Credential.Bearer(), "", "new-password")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})
}

func TestService_RevokeAll(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	first := f.register(t, testUserEmail, testUserPassword)
	second, err := f.service.Login(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)
	require.Equal(t, 2, f.families.Count())

	require.NoError(t, f.service.RevokeAll(ctx, second.Credential.AccessToken))
	require.Zero(t, f.families.Count())

	_, err = f.service.Authenticate(ctx, first.Credential.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	require.ErrorIs(t, f.service.RevokeAll(ctx, second.Credential.AccessToken), apperrors.ErrInvalidToken)
}

func TestService_OAuthCallbackIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	profile := &oauth.Profile{ExternalID: "g-42", Email: "carol@example.com", EmailVerified: true, DisplayName: "Carol"}

	first, err := f.oauthCallback(t, "code-1", profile)
	require.NoError(t, err)
	require.True(t, first.IsNewUser)

	second, err := f.oauthCallback(t, "code-2", profile)
	require.NoError(t, err)
	require.False(t, second.IsNewUser)
	require.Equal(t, first.Account.ID, second.Account.ID)

	principal, err := f.service.Authenticate(context.Background(), second.Credential.Bearer())
	require.NoError(t, err)
	require.Equal(t, "Carol", principal.Account.Name)
}

func TestService_OAuthErrors(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.service.OAuthStart(ctx, "github")
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)

	_, err = f.service.OAuthCallback(ctx, testProvider, "code", "forged-state")
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = f.oauthCallback(t, "code-1", &oauth.Profile{ExternalID: "g-1", Email: testUserEmail})
	require.ErrorIs(t, err, apperrors.ErrEmailNotVerified)

	withoutLinker, err := auth.NewService(f.directory, fastHasher(), credential.NewOpaqueSession(f.sessions, time.Hour))
	require.NoError(t, err)
	_, err = withoutLinker.OAuthStart(ctx, testProvider)
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)
}

func TestService_SessionMode(t *testing.T) {
	f := newFixture(t, credential.KindSession)
	ctx := context.Background()
	require.Equal(t, credential.KindSession, f.service.CredentialKind())

	registered := f.register(t, testUserEmail, testUserPassword)
	require.Equal(t, credential.KindSession, registered.Credential.Kind)
	require.Empty(t, registered.Credential.AccessToken)
	require.Equal(t, 1, f.sessions.Count())

	principal, err := f.service.Authenticate(ctx, registered.Credential.Bearer())
	require.NoError(t, err)
	require.Equal(t, registered.Account.ID, principal.Account.ID)

	_, err = f.service.Refresh(ctx, registered.Credential.Bearer())
	require.ErrorIs(t, err, apperrors.ErrUnsupported)

	changed, err := f.service.ChangePassword(ctx, registered.Credential.Bearer(), testUserPassword, "new-password")
	require.NoError(t, err)
	require.Equal(t, 1, f.sessions.Count())

	_, err = f.service.Authenticate(ctx, registered.Credential.Bearer())
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	_, err = f.service.Authenticate(ctx, changed.Credential.Bearer())
	require.NoError(t, err)

	require.NoError(t, f.service.Revoke(ctx, changed.Credential.Bearer()))
	require.NoError(t, f.service.Revoke(ctx, changed.Credential.Bearer()))
	require.Zero(t, f.sessions.Count())
}

func TestService_RecordsOutcomes(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.register(t, testUserEmail, testUserPassword)
	_, err := f.service.Login(ctx, testUserEmail, "wrong-password")
	require.Error(t, err)

	require.Equal(t, []error{nil}, f.recorder.outcomes[auth.OpRegister])
	require.Len(t, f.recorder.outcomes[auth.OpLogin], 1)
	require.ErrorIs(t, f.recorder.outcomes[auth.OpLogin][0], apperrors.ErrInvalidCredentials)
}
