package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is the subject every credential resolves to.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider names an authentication method: "password" or "oauth:<name>".
type Provider string

const ProviderPassword Provider = "password"

const oauthPrefix = "oauth:"

func OAuthProvider(name string) Provider {
	return Provider(oauthPrefix + name)
}

func (p Provider) IsOAuth() bool {
	return strings.HasPrefix(string(p), oauthPrefix)
}

// CredentialKey binds one authentication method to an Account. The pair
// (Provider, ExternalID) is unique. ExternalID is the email for the password
// provider and the provider's user id otherwise.
type CredentialKey struct {
	Provider     Provider
	ExternalID   string
	AccountID    uuid.UUID
	PasswordHash *string // password provider only
	CreatedAt    time.Time
}

// ID renders the key the way it is stored: "email:<email>" for passwords,
// "oauth:<provider>:<external id>" otherwise.
func (k CredentialKey) ID() string {
	if k.Provider == ProviderPassword {
		return "email:" + k.ExternalID
	}
	return string(k.Provider) + ":" + k.ExternalID
}

// NormalizeEmail trims and lower-cases an email so lookups and uniqueness
// checks agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
