package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/energy-community-auth/auth"
	"github.com/jrsteele09/energy-community-auth/credential"
	"github.com/jrsteele09/energy-community-auth/internal/config"
	"github.com/jrsteele09/energy-community-auth/internal/metrics"
	pg "github.com/jrsteele09/energy-community-auth/internal/repository/postgres"
	"github.com/jrsteele09/energy-community-auth/internal/sweeper"
	"github.com/jrsteele09/energy-community-auth/oauth"
	"github.com/jrsteele09/energy-community-auth/oauth/staterepo"
	"github.com/jrsteele09/energy-community-auth/password"
	"github.com/jrsteele09/energy-community-auth/server"
	"github.com/jrsteele09/energy-community-auth/token"
)

const rsaKeyBits = 2048

// app holds everything the process owns between start-up and shutdown.
type app struct {
	handler http.Handler
	sweeper *sweeper.Runner
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, c *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	db, err := pg.New(ctx, c.Postgres)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}

	recorder := metrics.NewAuth(prometheus.DefaultRegisterer)
	directory := pg.NewAccountRepo(db, log.Logger)
	a.sweeper = sweeper.New(c.Sessions.SweepInterval, recorder, log.Logger)

	hasher := password.NewArgon2Hasher(
		password.WithTime(c.Password.Argon2Time),
		password.WithMemory(c.Password.Argon2MemoryKiB),
		password.WithThreads(c.Password.Argon2Threads),
	)

	serverOptions := []server.Option{
		server.WithEnv(c.GetEnv()),
		server.WithMetricsHandler(promhttp.Handler()),
		server.WithHealthCheck(db.Ping),
		server.WithOAuthStateTTL(c.OAuth.StateTTL),
	}

	var manager credential.Manager
	switch c.Credential.Mode {
	case config.CredentialModeSession:
		sessionRepo := pg.NewSessionRepo(db)
		manager = credential.NewOpaqueSession(sessionRepo, c.Sessions.MaxAge)
		a.sweeper.Add("sessions", sessionRepo)
	default:
		keys, err := loadKeys(c.Tokens, c.IsDev())
		if err != nil {
			return nil, err
		}
		codec, err := token.NewCodec(keys,
			token.WithIssuer(c.Tokens.Issuer),
			token.WithAccessMaxAge(c.Tokens.AccessMaxAge),
		)
		if err != nil {
			return nil, err
		}
		revocations := pg.NewRevocationRepo(db)
		manager = credential.NewTokenPair(codec, revocations, c.Tokens.RefreshMaxAge)
		a.sweeper.Add("token_families", revocations)
		serverOptions = append(serverOptions, server.WithJWKS(codec))
	}

	states, err := newStateRepo(ctx, c, a)
	if err != nil {
		return nil, err
	}
	linkerOptions := []oauth.LinkerOption{oauth.WithStateTTL(c.OAuth.StateTTL)}
	if google := c.OAuth.Google; google.Enabled() {
		provider, err := oauth.NewOIDCProvider(ctx, oauth.OIDCProviderConfig{
			Name:         "google",
			Issuer:       google.Issuer,
			ClientID:     google.ClientID,
			ClientSecret: google.ClientSecret,
			RedirectURL:  google.RedirectURL,
		})
		if err != nil {
			return nil, err
		}
		linkerOptions = append(linkerOptions, oauth.WithProvider(provider))
	}
	linker := oauth.NewLinker(directory, states, linkerOptions...)
	log.Info().Strs("providers", linker.Providers()).Str("credential_mode", string(manager.Kind())).Msg("auth configured")

	service, err := auth.NewService(directory, hasher, manager,
		auth.WithLinker(linker),
		auth.WithRecorder(recorder),
		auth.WithTransactor(pg.NewTransactor(db, log.Logger)),
	)
	if err != nil {
		return nil, err
	}

	a.handler, err = server.New(c, service, serverOptions...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newStateRepo uses Redis when configured so OAuth state survives across
// replicas, and process memory otherwise.
func newStateRepo(ctx context.Context, c *config.Config, a *app) (oauth.StateRepo, error) {
	if c.Redis.Addr == "" {
		log.Warn().Msg("redis.addr not set, oauth state is kept in process memory")
		return staterepo.NewInMemoryRepo(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "[newStateRepo] ping redis")
	}
	return staterepo.NewRedisRepo(client, c.OAuth.StatePrefix), nil
}

// loadKeys reads the signing keys from disk. A DEV server without key files
// gets throwaway keys, so every restart invalidates outstanding tokens.
func loadKeys(c config.Tokens, isDev bool) (token.KeySet, error) {
	if c.HasKeyFiles() {
		access, err := token.LoadKeyPairFromFiles(c.AccessKeyID, c.AccessPrivateKeyFile, c.AccessPublicKeyFile)
		if err != nil {
			return token.KeySet{}, err
		}
		refresh, err := token.LoadKeyPairFromFiles(c.RefreshKeyID, c.RefreshPrivateKeyFile, c.RefreshPublicKeyFile)
		if err != nil {
			return token.KeySet{}, err
		}
		return token.KeySet{Access: access, Refresh: refresh}, nil
	}
	if !isDev {
		return token.KeySet{}, errors.New("[loadKeys] key files are required outside DEV")
	}

	log.Warn().Msg("no token key files configured, generating ephemeral signing keys")
	access, err := token.GenerateRSAKeyPair(c.AccessKeyID, rsaKeyBits)
	if err != nil {
		return token.KeySet{}, err
	}
	refresh, err := token.GenerateRSAKeyPair(c.RefreshKeyID, rsaKeyBits)
	if err != nil {
		return token.KeySet{}, err
	}
	return token.KeySet{Access: access, Refresh: refresh}, nil
}
