// Package gateway is the websocket control plane other internal services use
// to verify credentials, look up accounts, inspect browser sessions, and
// receive push events. Connections are long lived and multiplex many
// request/response pairs; handler failures answer on the wire instead of
// tearing the connection down.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-server/accounts"
	"github.com/jrsteele09/go-session-server/services"
	"github.com/jrsteele09/go-session-server/session"
	"github.com/jrsteele09/go-session-server/token"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultQueueSize         = 64
	DefaultReadLimit         = 1 << 20

	maxPingFailures = 3
)

// Deps are the collaborators every gateway instance needs. Registry may be
// nil in relaxed deployments; hardened mode requires it.
type Deps struct {
	Tokens   *token.Manager
	Sessions *session.Manager
	Accounts accounts.Store
	Registry services.Registry
}

// Gateway upgrades requests on the internal socket endpoint and serves the
// control-plane protocol over each connection.
type Gateway struct {
	deps    Deps
	hub     *hub
	metrics *Metrics

	hardened       bool
	originPatterns []string
	queueSize      int
	readLimit      int64
	writeTimeout   time.Duration
	heartbeat      time.Duration
	nowFunc        func() time.Time
	startedAt      time.Time

	maintMu   sync.RWMutex
	maintOn   bool
	maintNote string
}

type Option func(*Gateway)

// WithHardenedMode requires every connecting service to present a TLS client
// certificate and a registered service identifier.
func WithHardenedMode() Option {
	return func(g *Gateway) { g.hardened = true }
}

func WithHeartbeat(interval time.Duration) Option {
	return func(g *Gateway) { g.heartbeat = interval }
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(g *Gateway) { g.writeTimeout = timeout }
}

func WithQueueSize(size int) Option {
	return func(g *Gateway) { g.queueSize = size }
}

func WithReadLimit(limit int64) Option {
	return func(g *Gateway) { g.readLimit = limit }
}

// WithOriginPatterns turns browser origin checking on for the listed host
// patterns. Without it any origin is accepted, which suits the non-browser
// service clients this endpoint exists for.
func WithOriginPatterns(patterns ...string) Option {
	return func(g *Gateway) { g.originPatterns = patterns }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithNowFunc(now func() time.Time) Option {
	return func(g *Gateway) { g.nowFunc = now }
}

func New(deps Deps, options ...Option) (*Gateway, error) {
	if deps.Tokens == nil {
		return nil, errors.New("[New] token manager is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[New] session manager is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("[New] account store is required")
	}

	g := &Gateway{
		deps:         deps,
		hub:          newHub(),
		queueSize:    DefaultQueueSize,
		readLimit:    DefaultReadLimit,
		writeTimeout: DefaultWriteTimeout,
		heartbeat:    DefaultHeartbeatInterval,
		nowFunc:      time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	if g.hardened && deps.Registry == nil {
		return nil, errors.New("[New] hardened mode requires a service registry")
	}
	g.startedAt = g.nowFunc()
	return g, nil
}

// Connections snapshots the identity of every live connection.
func (g *Gateway) Connections() []Identity {
	return g.hub.identities()
}

// Close asks every live connection to shut down. The HTTP server stopping
// takes care of new connections.
func (g *Gateway) Close() {
	g.hub.closeAll(websocket.StatusGoingAway, "server shutting down")
}

// HandleWS authenticates the handshake, upgrades the connection, and serves
// it until either side goes away. Handshake failures are answered with a
// plain HTTP status before any upgrade happens.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity, status, err := g.authenticate(r)
	if err != nil {
		g.metrics.connectionOpened("rejected")
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("control-plane handshake rejected")
		http.Error(w, http.StatusText(status), status)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: len(g.originPatterns) == 0,
	})
	if err != nil {
		g.metrics.connectionOpened("rejected")
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket accept failed")
		return
	}
	if wsConn.Subprotocol() != Subprotocol {
		g.metrics.connectionOpened("rejected")
		_ = wsConn.Close(websocket.StatusPolicyViolation, "subprotocol "+Subprotocol+" is required")
		return
	}
	wsConn.SetReadLimit(g.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(uuid.New().String(), identity, g.queueSize)

	var shutdownOnce sync.Once
	c.shutdown = func(code websocket.StatusCode, reason string) {
		shutdownOnce.Do(func() {
			g.hub.remove(c.id)
			_ = wsConn.Close(code, reason)
			cancel()
		})
	}

	g.hub.add(c)
	g.metrics.connectionOpened("accepted")
	defer g.metrics.connectionClosed()
	defer c.shutdown(websocket.StatusNormalClosure, "")

	log.Info().
		Str("service_id", identity.ServiceID).
		Bool("authenticated", identity.Authenticated).
		Msg("control-plane connection opened")
	defer log.Info().Str("service_id", identity.ServiceID).Msg("control-plane connection closed")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.Done():
				return
			case frame := <-c.send:
				if err := g.writeFrame(ctx, wsConn, frame); err != nil {
					log.Warn().Err(err).Str("service_id", identity.ServiceID).Msg("control-plane write failed")
					c.shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		ticker := time.NewTicker(g.heartbeat)
		defer ticker.Stop()
		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, g.writeTimeout)
				err := wsConn.Ping(pingCtx)
				pingCancel()
				if err != nil {
					failures++
					if failures >= maxPingFailures {
						log.Warn().Str("service_id", identity.ServiceID).Msg("closing unresponsive control-plane connection")
						c.shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	g.readLoop(ctx, wsConn, c)

	c.shutdown(websocket.StatusNormalClosure, "")
	<-writerDone
	<-heartbeatDone
}

func (g *Gateway) readLoop(ctx context.Context, wsConn *websocket.Conn, c *conn) {
	for {
		msgType, data, err := wsConn.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrPeerClosed, readErrCtxDone, readErrConnClosed:
			default:
				log.Warn().Err(err).Str("service_id", c.snapshot().ServiceID).Msg("control-plane read failed")
			}
			return
		}
		if msgType != websocket.MessageText {
			g.respond(c, failResponse(Request{}, CodeBadRequest, "text frames only"))
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			g.metrics.requestHandled("malformed", false)
			g.respond(c, failResponse(Request{}, CodeBadRequest, "malformed request"))
			continue
		}

		resp := g.dispatch(ctx, c, req)
		g.metrics.requestHandled(opLabel(req.Op), resp.Success)
		g.respond(c, resp)
	}
}

// respond marshals and enqueues; a saturated or dying connection drops the
// frame and the heartbeat reaps the peer.
func (g *Gateway) respond(c *conn, resp Response) {
	frame, err := json.Marshal(resp)
	if err != nil {
		log.Err(err).Msg("encoding control-plane response")
		frame = []byte(`{"success":false,"error":{"code":"SERVER_ERROR"}}`)
	}
	if !c.enqueue(frame) {
		log.Warn().Str("service_id", c.snapshot().ServiceID).Str("op", resp.Op).Msg("dropping response for saturated connection")
	}
}

// authenticate applies the handshake policy. The service identifier is
// mandatory in every mode; hardened mode additionally demands a TLS client
// certificate and a registered, enabled service.
func (g *Gateway) authenticate(r *http.Request) (Identity, int, error) {
	serviceID := r.Header.Get("X-Service-ID")
	if serviceID == "" {
		serviceID = r.URL.Query().Get("service_id")
	}
	if serviceID == "" {
		return Identity{}, http.StatusUnauthorized, errors.New("[Gateway.authenticate] service identifier is required")
	}

	if g.hardened {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			return Identity{}, http.StatusUnauthorized, errors.New("[Gateway.authenticate] client certificate is required")
		}
	}

	now := g.nowFunc()
	identity := Identity{
		ServiceID:    serviceID,
		ConnectedAt:  now,
		LastActivity: now,
	}

	if g.deps.Registry == nil {
		return identity, 0, nil
	}

	svc, err := g.deps.Registry.Get(serviceID)
	switch {
	case errors.Is(err, services.ErrNotRegistered):
		if g.hardened {
			return Identity{}, http.StatusUnauthorized, errors.Errorf("[Gateway.authenticate] unknown service %q", serviceID)
		}
		return identity, 0, nil
	case err != nil:
		return Identity{}, http.StatusInternalServerError, errors.Wrap(err, "[Gateway.authenticate] registry lookup")
	case !svc.CanConnect():
		return Identity{}, http.StatusForbidden, errors.Errorf("[Gateway.authenticate] service %q is disabled", serviceID)
	}

	identity.ServiceName = svc.Name
	identity.Authenticated = true
	return identity, 0, nil
}

func (g *Gateway) writeFrame(ctx context.Context, wsConn *websocket.Conn, frame []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	return wsConn.Write(writeCtx, websocket.MessageText, frame)
}

type readErrKind int

const (
	readErrPeerClosed readErrKind = iota
	readErrCtxDone
	readErrConnClosed
	readErrUnknown
)

func classifyReadErr(err error) readErrKind {
	switch {
	case websocket.CloseStatus(err) != -1:
		return readErrPeerClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	default:
		return readErrUnknown
	}
}

// AccountUpdated pushes the new account record to the users room.
func (g *Gateway) AccountUpdated(account *accounts.Account) int {
	if account == nil {
		return 0
	}
	return g.emit(RoomUsers, EventUserUpdated, account)
}

// AccountDeleted announces an account removal to the users room.
func (g *Gateway) AccountDeleted(accountID string) int {
	return g.emit(RoomUsers, EventUserDeleted, struct {
		ID string `json:"id"`
	}{ID: accountID})
}

// SessionExpired announces a forced sign-out to the sessions room. It is the
// event sink the auth service calls when a refresh fails terminally.
func (g *Gateway) SessionExpired(accountID string) {
	g.emit(RoomSessions, EventSessionExpired, struct {
		AccountID string `json:"accountId"`
	}{AccountID: accountID})
}

// NotifyService pushes an arbitrary notification to every subscriber of the
// named room and reports how many connections accepted it.
func (g *Gateway) NotifyService(room string, data any) int {
	return g.emit(room, EventServiceNotification, data)
}

// SetMaintenance flips maintenance mode and tells every connection, not just
// subscribers. Health responses report the current state.
func (g *Gateway) SetMaintenance(enabled bool, message string) {
	g.maintMu.Lock()
	g.maintOn = enabled
	g.maintNote = message
	g.maintMu.Unlock()

	evt, err := newEvent(EventMaintenanceMode, "", struct {
		Enabled bool   `json:"enabled"`
		Message string `json:"message,omitempty"`
	}{Enabled: enabled, Message: message})
	if err != nil {
		log.Err(err).Msg("encoding maintenance event")
		return
	}
	frame, err := json.Marshal(evt)
	if err != nil {
		log.Err(err).Msg("encoding maintenance event")
		return
	}
	g.hub.broadcastAll(frame)
	g.metrics.eventBroadcast(EventMaintenanceMode)
}

func (g *Gateway) maintenance() (bool, string) {
	g.maintMu.RLock()
	defer g.maintMu.RUnlock()
	return g.maintOn, g.maintNote
}

func (g *Gateway) emit(room, name string, data any) int {
	evt, err := newEvent(name, room, data)
	if err != nil {
		log.Err(err).Str("event", name).Msg("encoding control-plane event")
		return 0
	}
	frame, err := json.Marshal(evt)
	if err != nil {
		log.Err(err).Str("event", name).Msg("encoding control-plane event")
		return 0
	}
	delivered := g.hub.broadcast(room, frame)
	g.metrics.eventBroadcast(name)
	return delivered
}
