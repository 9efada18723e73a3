package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/energy-community-auth/auth"
	"github.com/jrsteele09/energy-community-auth/credential"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

const healthCheckTimeout = 2 * time.Second

// authResponse is returned by every flow that signs a user in. Only the
// fields of the configured credential variant are set.
type authResponse struct {
	UUID                 string     `json:"uuid"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	AccessToken          string     `json:"accessToken,omitempty"`
	AccessTokenExpiresAt *time.Time `json:"accessTokenExpiresAt,omitempty"`
	RefreshToken         string     `json:"refreshToken,omitempty"`
	SessionID            string     `json:"sessionId,omitempty"`
	ExpiresAt            time.Time  `json:"expiresAt"`
	IsNewUser            bool       `json:"isNewUser"`
	Message              string     `json:"message,omitempty"`
}

type refreshResponse struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type meResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type oauthStartResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}

func newAuthResponse(result *auth.Result) authResponse {
	cred := result.Credential
	response := authResponse{
		UUID:      result.Account.ID.String(),
		Name:      result.Account.Name,
		Email:     result.Account.Email,
		ExpiresAt: cred.ExpiresAt,
		IsNewUser: result.IsNewUser,
	}
	switch cred.Kind {
	case credential.KindSession:
		response.SessionID = cred.ID.String()
	default:
		accessExpiresAt := cred.AccessExpiresAt
		response.AccessToken = cred.AccessToken
		response.AccessTokenExpiresAt = &accessExpiresAt
		response.RefreshToken = cred.RefreshToken
	}
	return response
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.RegisterRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}

		result, err := s.auth.Register(r.Context(), req.Email, req.Name, req.Password)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, newAuthResponse(result))
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}

		result, err := s.auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAuthResponse(result))
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.RefreshRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}

		cred, err := s.auth.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, refreshResponse{
			AccessToken:          cred.AccessToken,
			AccessTokenExpiresAt: cred.AccessExpiresAt,
		})
	}
}

func (s *Server) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.RevokeRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}

		if err := s.auth.Revoke(r.Context(), req.Token); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "credential revoked"})
	}
}

func (s *Server) RevokeAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.RevokeAll(r.Context(), bearerFromContext(r.Context())); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "all credentials revoked"})
	}
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.ChangePasswordRequest
		if !s.decodeJSON(w, r, &req) {
			return
		}

		result, err := s.auth.ChangePassword(r.Context(), bearerFromContext(r.Context()), req.OldPassword, req.NewPassword)
		if err != nil {
			s.writeError(w, err)
			return
		}
		response := newAuthResponse(result)
		response.Message = "password changed"
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := PrincipalFromContext(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meResponse{
			ID:    principal.Account.ID.String(),
			Email: principal.Account.Email,
			Name:  principal.Account.Name,
		})
	}
}

func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization, err := s.auth.OAuthStart(r.Context(), r.PathValue("provider"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.setOAuthStateCookie(w, r, authorization.State)
		writeJSON(w, http.StatusOK, oauthStartResponse{
			AuthorizationURL: authorization.URL,
			State:            authorization.State,
		})
	}
}

func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		// The provider reports a denied consent as an error parameter
		if providerErr := query.Get("error"); providerErr != "" {
			s.logger.Warn().Str("provider", r.PathValue("provider")).Str("error", providerErr).Msg("provider returned an error")
			writeJSONError(w, "oauth_exchange_failure", "provider denied the authorization request", http.StatusBadRequest)
			return
		}

		// The state must come back to the browser that started the flow
		state := query.Get("state")
		bound := s.stateMatchesCookie(r, state)
		s.clearOAuthStateCookie(w, r)
		if !bound {
			s.logger.Warn().Str("provider", r.PathValue("provider")).Msg("oauth callback state does not match the browser cookie")
			s.writeError(w, apperrors.ErrInvalidState)
			return
		}

		result, err := s.auth.OAuthCallback(r.Context(), r.PathValue("provider"), query.Get("code"), state)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAuthResponse(result))
	}
}

// PreflightHandler answers CORS preflights; the headers are set by CorsMiddleware.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONCacheable(w, s.jwks.JWKS())
	}
}

func writeJSONCacheable(w http.ResponseWriter, body any) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := s.health(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
