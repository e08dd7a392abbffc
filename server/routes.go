package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Operational endpoints
	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())

	// Internal control plane (service-to-service, not browser-facing)
	s.RegisterRouteFunc("GET "+RouteInternalSocket, s.gateway.HandleWS)
	s.RegisterRouteFunc("GET "+RouteInternalConnections, s.ConnectionsHandler())

	// Browser session API
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionAccounts, ChainMiddleware(s.SignInHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteSessionCurrent, ChainMiddleware(s.SetCurrentHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSessionSignOut, ChainMiddleware(s.SignOutAllHandler(), s.APIMiddleware()...))

	// Per-account credential operations
	s.RegisterRouteHandler("POST "+RouteAccountRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAccountSignOut, ChainMiddleware(s.AccountSignOutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAccountVerify, ChainMiddleware(s.VerifyHandler(), s.APIMiddleware()...))
}
