package oauth

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/energy-community-auth/accounts"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

const (
	defaultStateTTL = 10 * time.Minute

	// A conflict means another request linked the same identity first; the
	// next pass finds its key.
	maxLinkAttempts = 3
)

// Authorization is where the client is sent to start a provider login.
type Authorization struct {
	URL   string
	State string
}

// Link is the local account a provider identity resolved to.
type Link struct {
	Account   *accounts.Account
	IsNewUser bool
}

// Linker maps provider identities onto local accounts.
type Linker struct {
	providers map[string]Provider
	states    StateRepo
	directory accounts.Directory
	stateTTL  time.Duration
	nowFunc   func() time.Time
	logger    zerolog.Logger
}

type LinkerOption func(*Linker)

func WithProvider(p Provider) LinkerOption {
	return func(l *Linker) {
		l.providers[p.Name()] = p
	}
}

func WithStateTTL(ttl time.Duration) LinkerOption {
	return func(l *Linker) {
		if ttl > 0 {
			l.stateTTL = ttl
		}
	}
}

func WithNowFunc(nowFunc func() time.Time) LinkerOption {
	return func(l *Linker) {
		l.nowFunc = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) LinkerOption {
	return func(l *Linker) {
		l.logger = logger
	}
}

func NewLinker(directory accounts.Directory, states StateRepo, options ...LinkerOption) *Linker {
	l := &Linker{
		providers: make(map[string]Provider),
		states:    states,
		directory: directory,
		stateTTL:  defaultStateTTL,
		nowFunc:   time.Now,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Providers lists the configured provider names
func (l *Linker) Providers() []string {
	names := make([]string, 0, len(l.providers))
	for name := range l.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start records a fresh state and verifier and returns the provider URL.
func (l *Linker) Start(ctx context.Context, providerName string) (*Authorization, error) {
	provider, ok := l.providers[providerName]
	if !ok {
		return nil, apperrors.ErrUnknownProvider
	}

	state, err := GenerateState()
	if err != nil {
		return nil, errors.Wrap(err, "[Linker.Start]")
	}
	flow := &FlowState{
		State:        state,
		Provider:     providerName,
		CodeVerifier: oauth2.GenerateVerifier(),
		CreatedAt:    l.nowFunc(),
	}
	if err := l.states.Save(ctx, flow, l.stateTTL); err != nil {
		return nil, errors.Wrap(err, "[Linker.Start] save state")
	}

	return &Authorization{
		URL:   provider.AuthCodeURL(state, flow.CodeVerifier),
		State: state,
	}, nil
}

// Resolve completes a provider callback. The state must be one this linker
// issued for the same provider and not yet used.
func (l *Linker) Resolve(ctx context.Context, providerName, code, state string) (*Link, error) {
	provider, ok := l.providers[providerName]
	if !ok {
		return nil, apperrors.ErrUnknownProvider
	}
	if state == "" || code == "" {
		return nil, apperrors.ErrInvalidState
	}

	flow, err := l.states.Consume(ctx, state)
	if errors.Is(err, apperrors.ErrNotFound) {
		l.logger.Warn().Str("provider", providerName).Msg("oauth callback with unknown or expired state")
		return nil, apperrors.ErrInvalidState
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Linker.Resolve] consume state")
	}
	if flow.Provider != providerName {
		l.logger.Warn().Str("provider", providerName).Str("state_provider", flow.Provider).Msg("oauth state issued for another provider")
		return nil, apperrors.ErrInvalidState
	}

	profile, err := provider.Exchange(ctx, code, flow.CodeVerifier)
	if err != nil {
		l.logger.Warn().Err(err).Str("provider", providerName).Msg("oauth exchange failed")
		return nil, apperrors.ErrOAuthExchangeFailure
	}
	if profile.ExternalID == "" || profile.Email == "" {
		l.logger.Warn().Str("provider", providerName).Msg("oauth profile without subject or email")
		return nil, apperrors.ErrOAuthExchangeFailure
	}
	if !profile.EmailVerified {
		return nil, apperrors.ErrEmailNotVerified
	}

	key := accounts.OAuthProvider(providerName)
	for attempt := 1; ; attempt++ {
		link, err := l.resolveAccount(ctx, key, profile)
		if err == nil || !errors.Is(err, apperrors.ErrConflict) || attempt == maxLinkAttempts {
			return link, err
		}
		l.logger.Info().
			Str("provider", providerName).
			Int("attempt", attempt).
			Msg("concurrent first login for identity, retrying lookup")
	}
}

// resolveAccount tries, in order: the identity's own key, an account with the
// same email and no key for this provider, then a new account.
func (l *Linker) resolveAccount(ctx context.Context, provider accounts.Provider, profile *Profile) (*Link, error) {
	key, err := l.directory.FindKey(ctx, provider, profile.ExternalID)
	switch {
	case err == nil:
		account, err := l.directory.FindAccountByID(ctx, key.AccountID)
		if err != nil {
			return nil, errors.Wrap(err, "[Linker.resolveAccount] account for key")
		}
		return &Link{Account: account}, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, errors.Wrap(err, "[Linker.resolveAccount] find key")
	}

	email := accounts.NormalizeEmail(profile.Email)
	newKey := &accounts.CredentialKey{Provider: provider, ExternalID: profile.ExternalID}

	account, err := l.directory.FindAccountByEmail(ctx, email)
	switch {
	case err == nil:
		// The account already trusts a different identity from this provider.
		if _, err := l.directory.FindKeyForAccount(ctx, account.ID, provider); err == nil {
			l.logger.Warn().
				Str("account_id", account.ID.String()).
				Str("provider", string(provider)).
				Msg("provider identity matches an account linked to another identity of the same provider")
			return nil, apperrors.ErrEmailAlreadyInUse
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, errors.Wrap(err, "[Linker.resolveAccount] find account key")
		}
		newKey.AccountID = account.ID
		if err := l.directory.CreateKey(ctx, newKey); err != nil {
			return nil, errors.Wrap(err, "[Linker.resolveAccount] link key")
		}
		l.logger.Info().
			Str("account_id", account.ID.String()).
			Str("provider", string(provider)).
			Msg("linked provider identity to existing account")
		return &Link{Account: account}, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, errors.Wrap(err, "[Linker.resolveAccount] find account")
	}

	name := profile.DisplayName
	if name == "" {
		name = email
	}
	account = &accounts.Account{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		CreatedAt: l.nowFunc(),
	}
	if err := l.directory.CreateAccount(ctx, account, newKey); err != nil {
		return nil, errors.Wrap(err, "[Linker.resolveAccount] create account")
	}
	return &Link{Account: account, IsNewUser: true}, nil
}
