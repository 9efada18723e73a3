package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
	"github.com/jrsteele09/energy-community-auth/token"
)

// TokenPair issues RS256 access/refresh pairs whose shared token id is
// tracked in a revocation store.
type TokenPair struct {
	settings
	codec         *token.Codec
	store         token.RevocationStore
	refreshMaxAge time.Duration
}

var (
	_ Manager   = (*TokenPair)(nil)
	_ Refresher = (*TokenPair)(nil)
)

func NewTokenPair(codec *token.Codec, store token.RevocationStore, refreshMaxAge time.Duration, options ...Option) *TokenPair {
	return &TokenPair{
		settings:      newSettings(options),
		codec:         codec,
		store:         store,
		refreshMaxAge: refreshMaxAge,
	}
}

func (tp *TokenPair) Kind() Kind {
	return KindTokenPair
}

func (tp *TokenPair) Issue(ctx context.Context, subjectID uuid.UUID) (*Credential, error) {
	now := tp.nowFunc()
	tokenID := uuid.New()

	refreshToken, refreshExp, err := tp.codec.IssueRefresh(subjectID, tokenID, tp.refreshMaxAge, now)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenPair.Issue]")
	}
	accessToken, accessExp, err := tp.codec.IssueAccess(subjectID, tokenID, now)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenPair.Issue]")
	}

	family := &token.Family{TokenID: tokenID, SubjectID: subjectID, ExpiresAt: refreshExp}
	if err := tp.store.Create(ctx, family); err != nil {
		return nil, errors.Wrap(err, "[TokenPair.Issue] store token family")
	}

	return &Credential{
		Kind:            KindTokenPair,
		ID:              tokenID,
		SubjectID:       subjectID,
		AccessToken:     accessToken,
		AccessExpiresAt: accessExp,
		RefreshToken:    refreshToken,
		ExpiresAt:       refreshExp,
	}, nil
}

func (tp *TokenPair) Validate(ctx context.Context, raw string) (*Identity, error) {
	claims, err := tp.codec.DecodeAccess(raw)
	if err != nil {
		return nil, err
	}
	if err := tp.requireLiveFamily(ctx, claims.TokenID); err != nil {
		return nil, err
	}
	return &Identity{SubjectID: claims.Subject, CredentialID: claims.TokenID, ExpiresAt: claims.ExpiresAt}, nil
}

// Refresh mints a new access token for a live family. The refresh token itself
// is not rotated.
func (tp *TokenPair) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	claims, err := tp.codec.DecodeRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	if err := tp.requireLiveFamily(ctx, claims.TokenID); err != nil {
		return nil, err
	}

	accessToken, accessExp, err := tp.codec.IssueAccess(claims.Subject, claims.TokenID, tp.nowFunc())
	if err != nil {
		return nil, errors.Wrap(err, "[TokenPair.Refresh]")
	}

	return &Credential{
		Kind:            KindTokenPair,
		ID:              claims.TokenID,
		SubjectID:       claims.Subject,
		AccessToken:     accessToken,
		AccessExpiresAt: accessExp,
		ExpiresAt:       claims.ExpiresAt,
	}, nil
}

// Revoke accepts either token of a pair and removes the whole family.
func (tp *TokenPair) Revoke(ctx context.Context, raw string) error {
	claims, err := tp.codec.DecodeAccess(raw)
	if err != nil {
		if claims, err = tp.codec.DecodeRefresh(raw); err != nil {
			return err
		}
	}

	removed, err := tp.store.Delete(ctx, claims.TokenID)
	if err != nil {
		return errors.Wrap(err, "[TokenPair.Revoke]")
	}
	tp.logger.Debug().
		Str("token_id", claims.TokenID.String()).
		Bool("removed", removed).
		Msg("token family revoked")
	return nil
}

func (tp *TokenPair) RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) error {
	return errors.Wrap(tp.store.DeleteAllForSubject(ctx, subjectID), "[TokenPair.RevokeAllForSubject]")
}

func (tp *TokenPair) requireLiveFamily(ctx context.Context, tokenID uuid.UUID) error {
	valid, err := tp.store.IsValid(ctx, tokenID)
	if err != nil {
		return errors.Wrap(err, "[TokenPair] check token family")
	}
	if !valid {
		tp.logger.Debug().Str("token_id", tokenID.String()).Msg("token family revoked or expired")
		return apperrors.ErrInvalidToken
	}
	return nil
}
