package accounts_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/energy-community-auth/accounts"
)

func TestCredentialKey_ID(t *testing.T) {
	password := accounts.CredentialKey{Provider: accounts.ProviderPassword, ExternalID: "alice@example.com"}
	require.Equal(t, "email:alice@example.com", password.ID())

	google := accounts.CredentialKey{Provider: accounts.OAuthProvider("google"), ExternalID: "1234"}
	require.Equal(t, "oauth:google:1234", google.ID())
}

func TestProvider_IsOAuth(t *testing.T) {
	require.False(t, accounts.ProviderPassword.IsOAuth())
	require.True(t, accounts.OAuthProvider("google").IsOAuth())
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "alice@example.com", accounts.NormalizeEmail("  Alice@Example.COM "))
}
