package config

import (
	"fmt"
	"time"

	pg "github.com/jrsteele09/energy-community-auth/internal/repository/postgres"
)

const (
	EnvDev = "DEV"

	CredentialModeTokenPair = "token_pair"
	CredentialModeSession   = "session"
)

type App struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type Server struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Credential struct {
	Mode string `mapstructure:"mode"`
}

// Tokens configures the signed token pair. Without key files a DEV server
// generates throwaway keys at start-up.
type Tokens struct {
	Issuer                string        `mapstructure:"issuer"`
	AccessMaxAge          time.Duration `mapstructure:"access_max_age"`
	RefreshMaxAge         time.Duration `mapstructure:"refresh_max_age"`
	AccessKeyID           string        `mapstructure:"access_key_id"`
	AccessPrivateKeyFile  string        `mapstructure:"access_private_key_file"`
	AccessPublicKeyFile   string        `mapstructure:"access_public_key_file"`
	RefreshKeyID          string        `mapstructure:"refresh_key_id"`
	RefreshPrivateKeyFile string        `mapstructure:"refresh_private_key_file"`
	RefreshPublicKeyFile  string        `mapstructure:"refresh_public_key_file"`
}

func (t Tokens) HasKeyFiles() bool {
	return t.AccessPrivateKeyFile != "" && t.RefreshPrivateKeyFile != ""
}

type Sessions struct {
	MaxAge        time.Duration `mapstructure:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Password struct {
	Argon2Time      uint32 `mapstructure:"argon2_time"`
	Argon2MemoryKiB uint32 `mapstructure:"argon2_memory_kib"`
	Argon2Threads   uint8  `mapstructure:"argon2_threads"`
}

// OIDCClient is one OpenID Connect login provider. It is enabled once a
// client id is set.
type OIDCClient struct {
	Issuer       string `mapstructure:"issuer"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

func (c OIDCClient) Enabled() bool {
	return c.ClientID != ""
}

type OAuth struct {
	StateTTL    time.Duration `mapstructure:"state_ttl"`
	StatePrefix string        `mapstructure:"state_prefix"`
	Google      OIDCClient    `mapstructure:"google"`
}

type Config struct {
	App        App        `mapstructure:"app"`
	Server     Server     `mapstructure:"server"`
	Log        Log        `mapstructure:"log"`
	Postgres   pg.Config  `mapstructure:"postgres"`
	Redis      Redis      `mapstructure:"redis"`
	Credential Credential `mapstructure:"credential"`
	Tokens     Tokens     `mapstructure:"tokens"`
	Sessions   Sessions   `mapstructure:"sessions"`
	Password   Password   `mapstructure:"password"`
	OAuth      OAuth      `mapstructure:"oauth"`
}

var (
	_ EnvConfig  = (*Config)(nil)
	_ CorsConfig = (*Config)(nil)
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
}

func (c *Config) GetPort() string {
	port := c.Server.Port
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (c *Config) GetAppName() string {
	return c.App.Name
}

func (c *Config) GetEnv() string {
	if c.App.Env == "" {
		return EnvDev
	}
	return c.App.Env
}

func (c *Config) IsDev() bool {
	return c.GetEnv() == EnvDev
}

// Validate reports settings that cannot start a server.
func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return ErrConfig("postgres.url is required")
	}
	switch c.Credential.Mode {
	case CredentialModeTokenPair:
		if !c.IsDev() && !c.Tokens.HasKeyFiles() {
			return ErrConfig("tokens key files are required outside DEV")
		}
	case CredentialModeSession:
	default:
		return ErrConfig(fmt.Sprintf("credential.mode %q is not one of token_pair, session", c.Credential.Mode))
	}
	if g := c.OAuth.Google; g.Enabled() && (g.RedirectURL == "" || g.Issuer == "") {
		return ErrConfig("oauth.google needs issuer and redirect_url")
	}
	return nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
