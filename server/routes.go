package server

func (s *Server) initRoutes() {
	// PASSWORD
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))

	// CREDENTIALS
	s.RegisterRouteHandler("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRevoke, ChainMiddleware(s.RevokeHandler(), s.APIMiddleware()...))

	// Protected routes (require a live bearer credential)
	s.RegisterRouteHandler("POST "+RouteRevokeAll, ChainMiddleware(s.RevokeAllHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth())...))

	// OAUTH
	s.RegisterRouteHandler("GET "+RouteOAuthStart, ChainMiddleware(s.OAuthStartHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.APIMiddleware()...))

	// Browsers send a preflight before every cross-origin JSON POST
	s.RegisterRouteHandler("OPTIONS /auth/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	if s.jwks != nil {
		s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))
	}
	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics)
	}
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}
