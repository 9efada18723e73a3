package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jrsteele09/energy-community-auth/auth"
	apperrors "github.com/jrsteele09/energy-community-auth/internal/errors"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	// oauthStateCookieName holds the state of the browser's pending provider login
	oauthStateCookieName = "oauth_state"
	oauthStateCookiePath = "/auth/oauth/"

	// maxBodyBytes bounds every JSON request body
	maxBodyBytes = 1 << 20
)

type errorResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description"`
	Fields           []auth.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, errorResponse{Error: errorCode, ErrorDescription: description})
}

// statusFor pairs each client-safe sentinel with its error code and status.
var statusFor = []struct {
	target error
	code   string
	status int
}{
	{apperrors.ErrInvalidCredentials, "invalid_credentials", http.StatusUnauthorized},
	{apperrors.ErrInvalidToken, "invalid_token", http.StatusUnauthorized},
	{apperrors.ErrEmailAlreadyInUse, "email_already_in_use", http.StatusConflict},
	{apperrors.ErrEmailNotVerified, "email_not_verified", http.StatusForbidden},
	{apperrors.ErrOAuthExchangeFailure, "oauth_exchange_failure", http.StatusBadRequest},
	{apperrors.ErrInvalidState, "invalid_state", http.StatusBadRequest},
	{apperrors.ErrUnknownProvider, "unknown_provider", http.StatusBadRequest},
	{apperrors.ErrUnsupported, "unsupported", http.StatusBadRequest},
}

// writeError renders err without leaking anything beyond its category.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:            "invalid_request",
			ErrorDescription: "request validation failed",
			Fields:           validationErr.Fields,
		})
		return
	}

	for _, entry := range statusFor {
		if errors.Is(err, entry.target) {
			writeJSONError(w, entry.code, entry.target.Error(), entry.status)
			return
		}
	}
	s.logger.Error().Err(err).Msg("request failed")
	writeJSONError(w, "server_error", "internal error", http.StatusInternalServerError)
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "invalid_request", "request body must be a JSON object", http.StatusBadRequest)
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.writeError(w, err)
		return false
	}
	return true
}

func (s *Server) setOAuthStateCookie(w http.ResponseWriter, r *http.Request, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     oauthStateCookiePath,
		HttpOnly: true,
		Secure:   r.TLS != nil, // Only set Secure flag if using HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.stateTTL.Seconds()),
	})
}

func (s *Server) clearOAuthStateCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     oauthStateCookiePath,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (s *Server) stateMatchesCookie(r *http.Request, state string) bool {
	cookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || cookie.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}
