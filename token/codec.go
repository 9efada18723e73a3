package token

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

const defaultAccessMaxAge = 15 * time.Minute

// Claims is what a decoded token proves: who it was issued to, which family it
// belongs to and when it stops being valid.
type Claims struct {
	Subject   uuid.UUID
	TokenID   uuid.UUID
	ExpiresAt time.Time
}

type jwtClaims struct {
	TokenID string `json:"token_id"`
	jwt.RegisteredClaims
}

// Codec issues and decodes RS256 access and refresh tokens.
type Codec struct {
	keys         KeySet
	issuer       string
	accessMaxAge time.Duration
	nowFunc      func() time.Time
	logger       zerolog.Logger
}

type CodecOption func(*Codec)

// WithAccessMaxAge sets the lifetime of issued access tokens
func WithAccessMaxAge(d time.Duration) CodecOption {
	return func(c *Codec) {
		if d > 0 {
			c.accessMaxAge = d
		}
	}
}

// WithIssuer sets the iss claim written to, and required from, every token
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// WithNowFunc sets the clock used for expiry checks when decoding
func WithNowFunc(nowFunc func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = nowFunc
	}
}

func WithCodecLogger(logger zerolog.Logger) CodecOption {
	return func(c *Codec) {
		c.logger = logger
	}
}

// NewCodec creates a codec over an immutable key set
func NewCodec(keys KeySet, options ...CodecOption) (*Codec, error) {
	if err := keys.Validate(); err != nil {
		return nil, errors.Wrap(err, "[NewCodec]")
	}

	c := &Codec{
		keys:         keys,
		accessMaxAge: defaultAccessMaxAge,
		nowFunc:      time.Now,
		logger:       log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// AccessMaxAge returns the lifetime given to access tokens
func (c *Codec) AccessMaxAge() time.Duration {
	return c.accessMaxAge
}

// IssueAccess signs a short-lived access token for the family tokenID
func (c *Codec) IssueAccess(subject, tokenID uuid.UUID, now time.Time) (string, time.Time, error) {
	return c.issue(c.keys.Access, subject, tokenID, now.Add(c.accessMaxAge), now)
}

// IssueRefresh signs a refresh token for the family tokenID
func (c *Codec) IssueRefresh(subject, tokenID uuid.UUID, maxAge time.Duration, now time.Time) (string, time.Time, error) {
	return c.issue(c.keys.Refresh, subject, tokenID, now.Add(maxAge), now)
}

// DecodeAccess verifies an access token. Any failure is ErrInvalidToken.
func (c *Codec) DecodeAccess(raw string) (*Claims, error) {
	return c.decode(c.keys.Access.PublicKey, "access", raw)
}

// DecodeRefresh verifies a refresh token. Any failure is ErrInvalidToken.
func (c *Codec) DecodeRefresh(raw string) (*Claims, error) {
	return c.decode(c.keys.Refresh.PublicKey, "refresh", raw)
}

// JWKS publishes the access token verification key
func (c *Codec) JWKS() JWKS {
	return JWKS{Keys: []JWK{c.keys.Access.ToJWK()}}
}

func (c *Codec) issue(kp *KeyPair, subject, tokenID uuid.UUID, expiresAt, now time.Time) (string, time.Time, error) {
	claims := jwtClaims{
		TokenID: tokenID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kp.KeyID != "" {
		t.Header["kid"] = kp.KeyID
	}

	signed, err := t.SignedString(kp.PrivateKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Codec.issue] failed to sign token")
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (c *Codec) decode(key *rsa.PublicKey, kind, raw string) (*Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	}
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}

	var claims jwtClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, parserOptions...)
	if err != nil {
		c.logger.Debug().Err(err).Str("kind", kind).Msg("token rejected")
		return nil, apperrors.ErrInvalidToken
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		c.logger.Debug().Err(err).Str("kind", kind).Msg("token subject is not a uuid")
		return nil, apperrors.ErrInvalidToken
	}
	tokenID, err := uuid.Parse(claims.TokenID)
	if err != nil {
		c.logger.Debug().Err(err).Str("kind", kind).Msg("token id is not a uuid")
		return nil, apperrors.ErrInvalidToken
	}

	return &Claims{
		Subject:   subject,
		TokenID:   tokenID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
