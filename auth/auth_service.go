package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/energy-community-auth/accounts"
	"github.com/jrsteele09/energy-community-auth/credential"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/internal/utils"
	"github.com/jrsteele09/energy-community-auth/oauth"
	"github.com/jrsteele09/energy-community-auth/password"
)

// Operation names, used as metric labels and in logs.
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpRefresh        = "refresh"
	OpRevoke         = "revoke"
	OpRevokeAll      = "revoke_all"
	OpChangePassword = "change_password"
	OpOAuthStart     = "oauth_start"
	OpOAuthCallback  = "oauth_callback"
	OpAuthenticate   = "authenticate"
)

// Result is returned by every flow that issues a credential.
type Result struct {
	Account    *accounts.Account
	Credential *credential.Credential
	IsNewUser  bool
}

// Principal is the authenticated caller of a protected operation.
type Principal struct {
	Account  *accounts.Account
	Identity *credential.Identity
}

// Recorder observes the outcome of every operation.
type Recorder interface {
	Observe(operation string, err error)
}

type nopRecorder struct{}

func (nopRecorder) Observe(string, error) {}

// Transactor runs function as one unit of work. Stores called with the
// context it passes in take part in that unit.
type Transactor interface {
	WithTx(ctx context.Context, function func(ctx context.Context) error) error
}

// inlineTransactor runs function directly, for stores without transactions.
type inlineTransactor struct{}

func (inlineTransactor) WithTx(ctx context.Context, function func(ctx context.Context) error) error {
	return function(ctx)
}

// Service orchestrates registration, login and the credential lifecycle. It
// is written against credential.Manager so the token pair and session
// variants are interchangeable.
type Service struct {
	directory   accounts.Directory
	hasher      password.Hasher
	credentials credential.Manager
	linker      *oauth.Linker
	recorder    Recorder
	tx          Transactor
	nowTime     func() time.Time
	logger      zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithLinker enables the OAuth flows
func WithLinker(linker *oauth.Linker) ServiceOption {
	return func(s *Service) {
		s.linker = linker
	}
}

func WithRecorder(recorder Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithTransactor makes the password change and the credential cascade a
// single transaction.
func WithTransactor(tx Transactor) ServiceOption {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(
	directory accounts.Directory,
	hasher password.Hasher,
	credentials credential.Manager,
	options ...ServiceOption,
) (*Service, error) {
	if directory == nil {
		return nil, errors.New("[NewService] account directory is required")
	}
	if hasher == nil {
		return nil, errors.New("[NewService] password hasher is required")
	}
	if credentials == nil {
		return nil, errors.New("[NewService] credential manager is required")
	}

	s := &Service{
		directory:   directory,
		hasher:      hasher,
		credentials: credentials,
		recorder:    nopRecorder{},
		tx:          inlineTransactor{},
		nowTime:     time.Now,
		logger:      log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// CredentialKind reports which credential variant the service issues
func (s *Service) CredentialKind() credential.Kind {
	return s.credentials.Kind()
}

// Register creates an account with a password key and signs it in.
func (s *Service) Register(ctx context.Context, email, name, plainPassword string) (_ *Result, err error) {
	defer s.observe(OpRegister, &err)

	email = accounts.NormalizeEmail(email)

	// An account that exists only through a provider is not claimable by
	// registering a password against its email.
	if _, err := s.directory.FindKey(ctx, accounts.ProviderPassword, email); err == nil {
		return nil, apperrors.ErrEmailAlreadyInUse
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.Register] find key")
	}
	if _, err := s.directory.FindAccountByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrEmailAlreadyInUse
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.Register] find account")
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register]")
	}

	account := &accounts.Account{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		CreatedAt: s.nowTime(),
	}
	key := &accounts.CredentialKey{
		Provider:     accounts.ProviderPassword,
		ExternalID:   email,
		AccountID:    account.ID,
		PasswordHash: utils.Ptr(hash),
	}
	if err := s.directory.CreateAccount(ctx, account, key); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.ErrEmailAlreadyInUse
		}
		return nil, errors.Wrap(err, "[Service.Register] create account")
	}
	s.logger.Info().Str("account_id", account.ID.String()).Msg("account registered")

	cred, err := s.credentials.Issue(ctx, account.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] issue credential")
	}
	return &Result{Account: account, Credential: cred, IsNewUser: true}, nil
}

// Login verifies an email and password. Every failure is ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, plainPassword string) (_ *Result, err error) {
	defer s.observe(OpLogin, &err)

	email = accounts.NormalizeEmail(email)

	account, err := s.directory.FindAccountByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] find account")
	}

	if err := s.verifyPassword(ctx, account, plainPassword); err != nil {
		return nil, err
	}

	cred, err := s.credentials.Issue(ctx, account.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] issue credential")
	}
	return &Result{Account: account, Credential: cred}, nil
}

// Refresh mints a new access token from a live refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *credential.Credential, err error) {
	defer s.observe(OpRefresh, &err)

	refresher, ok := s.credentials.(credential.Refresher)
	if !ok {
		return nil, apperrors.ErrUnsupported
	}
	return refresher.Refresh(ctx, refreshToken)
}

// Revoke ends one credential. Revoking twice is not an error.
func (s *Service) Revoke(ctx context.Context, raw string) (err error) {
	defer s.observe(OpRevoke, &err)

	return s.credentials.Revoke(ctx, raw)
}

// RevokeAll ends every credential of the caller, including the one presented.
func (s *Service) RevokeAll(ctx context.Context, raw string) (err error) {
	defer s.observe(OpRevokeAll, &err)

	identity, err := s.credentials.Validate(ctx, raw)
	if err != nil {
		return err
	}
	if err := s.credentials.RevokeAllForSubject(ctx, identity.SubjectID); err != nil {
		return errors.Wrap(err, "[Service.RevokeAll]")
	}
	s.logger.Info().Str("account_id", identity.SubjectID.String()).Msg("all credentials revoked")
	return nil
}

// ChangePassword replaces the caller's password, revokes every existing
// credential of the account (the presented one included) and issues exactly
// one replacement.
func (s *Service) ChangePassword(ctx context.Context, raw, oldPassword, newPassword string) (_ *Result, err error) {
	defer s.observe(OpChangePassword, &err)

	principal, err := s.authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}
	account := principal.Account

	if err := s.verifyPassword(ctx, account, oldPassword); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ChangePassword]")
	}

	// Without a real transaction a failed hash update leaves the old password
	// and no live credentials.
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.credentials.RevokeAllForSubject(ctx, account.ID); err != nil {
			return errors.Wrap(err, "revoke credentials")
		}
		return errors.Wrap(s.directory.UpdatePasswordHash(ctx, account.ID, hash), "store hash")
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ChangePassword]")
	}
	s.logger.Info().Str("account_id", account.ID.String()).Msg("password changed, credentials revoked")

	cred, err := s.credentials.Issue(ctx, account.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ChangePassword] issue credential")
	}
	return &Result{Account: account, Credential: cred}, nil
}

// OAuthStart begins a provider login and returns the provider URL.
func (s *Service) OAuthStart(ctx context.Context, provider string) (_ *oauth.Authorization, err error) {
	defer s.observe(OpOAuthStart, &err)

	if s.linker == nil {
		return nil, apperrors.ErrUnknownProvider
	}
	return s.linker.Start(ctx, provider)
}

// OAuthCallback completes a provider login and signs the linked account in.
func (s *Service) OAuthCallback(ctx context.Context, provider, code, state string) (_ *Result, err error) {
	defer s.observe(OpOAuthCallback, &err)

	if s.linker == nil {
		return nil, apperrors.ErrUnknownProvider
	}

	link, err := s.linker.Resolve(ctx, provider, code, state)
	if err != nil {
		return nil, err
	}
	if link.IsNewUser {
		s.logger.Info().Str("account_id", link.Account.ID.String()).Str("provider", provider).Msg("account created from provider identity")
	}

	cred, err := s.credentials.Issue(ctx, link.Account.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.OAuthCallback] issue credential")
	}
	return &Result{Account: link.Account, Credential: cred, IsNewUser: link.IsNewUser}, nil
}

// Authenticate resolves a presented bearer credential to its account.
func (s *Service) Authenticate(ctx context.Context, raw string) (_ *Principal, err error) {
	defer s.observe(OpAuthenticate, &err)

	return s.authenticate(ctx, raw)
}

func (s *Service) authenticate(ctx context.Context, raw string) (*Principal, error) {
	identity, err := s.credentials.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}

	account, err := s.directory.FindAccountByID(ctx, identity.SubjectID)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn().Str("account_id", identity.SubjectID.String()).Msg("live credential for missing account")
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.authenticate] find account")
	}
	return &Principal{Account: account, Identity: identity}, nil
}

// verifyPassword checks a password against the account's password key.
// OAuth-only accounts have no hash and never match.
func (s *Service) verifyPassword(ctx context.Context, account *accounts.Account, plainPassword string) error {
	key, err := s.directory.FindKey(ctx, accounts.ProviderPassword, account.Email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return errors.Wrap(err, "[Service.verifyPassword] find key")
	}
	if key.AccountID != account.ID || !utils.IsSet(key.PasswordHash) {
		return apperrors.ErrInvalidCredentials
	}
	if !s.hasher.Verify(plainPassword, *key.PasswordHash) {
		return apperrors.ErrInvalidCredentials
	}
	return nil
}

func (s *Service) observe(operation string, err *error) {
	s.recorder.Observe(operation, *err)
	if *err != nil && !apperrors.IsClientSafe(*err) {
		s.logger.Error().Err(*err).Str("operation", operation).Msg("auth operation failed")
	}
}
