package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Load reads an optional YAML file, then environment variables named after
// the keys ("tokens.access_max_age" is TOKENS_ACCESS_MAX_AGE).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "[config.Load] read %s", path)
		}
	}

	v.SetDefault("app.name", "Energy Community Auth")
	v.SetDefault("app.env", EnvDev)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "30m")
	v.SetDefault("postgres.max_conn_idle_time", "10m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.query_timeout", "3s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("credential.mode", CredentialModeTokenPair)

	v.SetDefault("tokens.issuer", "energy-community-auth")
	v.SetDefault("tokens.access_max_age", "15m")
	v.SetDefault("tokens.refresh_max_age", "168h")
	v.SetDefault("tokens.access_key_id", "access-1")
	v.SetDefault("tokens.access_private_key_file", "")
	v.SetDefault("tokens.access_public_key_file", "")
	v.SetDefault("tokens.refresh_key_id", "refresh-1")
	v.SetDefault("tokens.refresh_private_key_file", "")
	v.SetDefault("tokens.refresh_public_key_file", "")

	v.SetDefault("sessions.max_age", "24h")
	v.SetDefault("sessions.sweep_interval", "1h")

	v.SetDefault("password.argon2_time", 1)
	v.SetDefault("password.argon2_memory_kib", 64*1024)
	v.SetDefault("password.argon2_threads", 4)

	v.SetDefault("oauth.state_ttl", "10m")
	v.SetDefault("oauth.state_prefix", "oauth:state:")
	v.SetDefault("oauth.google.issuer", "https://accounts.google.com")
	v.SetDefault("oauth.google.client_id", "")
	v.SetDefault("oauth.google.client_secret", "")
	v.SetDefault("oauth.google.redirect_url", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
