package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Operational
	RouteHealthz             = "/healthz"
	RouteMetrics             = "/metrics"
	RouteInternalSocket      = "/internal/socket"
	RouteInternalConnections = "/internal/connections"

	// Browser session API
	RouteSession         = "/api/session"
	RouteSessionAccounts = "/api/session/accounts"
	RouteSessionCurrent  = "/api/session/current"
	RouteSessionSignOut  = "/api/session/signout"

	// Per-account routes. Credential cookies are path-scoped beneath the
	// account base path, so these must live under /api/accounts/{accountID}
	// for the browser to attach the right cookies.
	RouteAccountRefresh = "/api/accounts/{accountID}/refresh"
	RouteAccountSignOut = "/api/accounts/{accountID}/signout"
	RouteAccountVerify  = "/api/accounts/{accountID}/verify"
)
