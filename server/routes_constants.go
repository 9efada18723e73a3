package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Password
	RouteRegister       = "/auth/register"
	RouteLogin          = "/auth/login"
	RouteChangePassword = "/auth/change-password"

	// Auth Routes - Credential lifecycle
	RouteRefresh   = "/auth/refresh"
	RouteRevoke    = "/auth/revoke"
	RouteRevokeAll = "/auth/revoke-all"
	RouteMe        = "/auth/me"

	// Auth Routes - OAuth providers
	RouteOAuthStart    = "/auth/oauth/{provider}/start"
	RouteOAuthCallback = "/auth/oauth/{provider}/callback"

	RouteWellKnownJWKS = "/.well-known/jwks.json"

	// Operational Routes
	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
