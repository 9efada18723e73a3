package oauth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Profile is the provider's view of the user after a successful exchange.
type Profile struct {
	ExternalID    string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// Provider is an external identity provider speaking the authorization code flow.
type Provider interface {
	Name() string
	AuthCodeURL(state, codeVerifier string) string
	// Exchange trades the code for a provider token and fetches the profile.
	Exchange(ctx context.Context, code, codeVerifier string) (*Profile, error)
}

type OIDCProviderConfig struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCProvider talks to any OpenID Connect provider discovered from its
// issuer URL (Google: https://accounts.google.com).
type OIDCProvider struct {
	name     string
	provider *oidc.Provider
	config   *oauth2.Config
}

var _ Provider = (*OIDCProvider)(nil)

func NewOIDCProvider(ctx context.Context, cfg OIDCProviderConfig) (*OIDCProvider, error) {
	if cfg.Name == "" || cfg.ClientID == "" {
		return nil, errors.New("[NewOIDCProvider] name and client id are required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewOIDCProvider] discover %s", cfg.Issuer)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	return &OIDCProvider{
		name:     cfg.Name,
		provider: provider,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
	}, nil
}

func (p *OIDCProvider) Name() string {
	return p.name
}

func (p *OIDCProvider) AuthCodeURL(state, codeVerifier string) string {
	if codeVerifier == "" {
		return p.config.AuthCodeURL(state)
	}
	return p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(codeVerifier))
}

func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier string) (*Profile, error) {
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	tok, err := p.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider.Exchange] token exchange")
	}

	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider.Exchange] userinfo")
	}

	var claims struct {
		Name string `json:"name"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[OIDCProvider.Exchange] userinfo claims")
	}

	return &Profile{
		ExternalID:    info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		DisplayName:   claims.Name,
	}, nil
}
