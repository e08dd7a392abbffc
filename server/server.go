// Package server is the HTTP host: the browser-facing session API, the
// internal control-plane socket, and the operational endpoints.
package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-server/auth"
	"github.com/jrsteele09/go-session-server/gateway"
	"github.com/jrsteele09/go-session-server/internal/config"
)

type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	repos   auth.Repos
	auth    *auth.Service
	gateway *gateway.Gateway
}

func New(cfg config.Config, repos auth.Repos, authService *auth.Service, gw *gateway.Gateway) (*Server, error) {
	if repos.Accounts == nil {
		return nil, errors.New("[New] account store is required")
	}
	if authService == nil {
		return nil, errors.New("[New] auth service is required")
	}
	if gw == nil {
		return nil, errors.New("[New] gateway is required")
	}

	s := &Server{
		mux:     http.NewServeMux(),
		config:  cfg,
		repos:   repos,
		auth:    authService,
		gateway: gw,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
