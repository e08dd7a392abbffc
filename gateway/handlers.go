package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-server/accounts"
	"github.com/jrsteele09/go-session-server/session"
)

var knownOps = map[string]struct{}{
	OpVerifyToken:        {},
	OpTokenInfo:          {},
	OpUserGetByID:        {},
	OpUserGetByEmail:     {},
	OpUserExists:         {},
	OpSessionGetInfo:     {},
	OpSessionGetAccounts: {},
	OpSessionValidate:    {},
	OpSubscribe:          {},
	OpHealth:             {},
	OpPing:               {},
}

// opLabel keeps metric label cardinality bounded against arbitrary op names.
func opLabel(op string) string {
	if _, ok := knownOps[op]; ok {
		return op
	}
	return "unknown"
}

// dispatch routes one request to its handler. A panicking handler answers
// with SERVER_ERROR; the connection itself stays up.
func (g *Gateway) dispatch(ctx context.Context, c *conn, req Request) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("op", req.Op).
				Str("service_id", c.snapshot().ServiceID).
				Msg("control-plane handler panicked")
			resp = failResponse(req, CodeServerError, "internal error")
		}
	}()

	c.touch(g.nowFunc())

	if err := req.Validate(); err != nil {
		return failResponse(req, CodeBadRequest, "op is required")
	}

	switch req.Op {
	case OpVerifyToken:
		return g.handleVerifyToken(req)
	case OpTokenInfo:
		return g.handleTokenInfo(req)
	case OpUserGetByID:
		return g.handleUserGetByID(ctx, req)
	case OpUserGetByEmail:
		return g.handleUserGetByEmail(ctx, req)
	case OpUserExists:
		return g.handleUserExists(ctx, req)
	case OpSessionGetInfo:
		return g.handleSessionGetInfo(ctx, req)
	case OpSessionGetAccounts:
		return g.handleSessionGetAccounts(ctx, req)
	case OpSessionValidate:
		return g.handleSessionValidate(ctx, req)
	case OpSubscribe:
		return g.handleSubscribe(c, req)
	case OpHealth:
		return g.handleHealth(req)
	case OpPing:
		return g.handlePing(req)
	default:
		return failResponse(req, CodeUnknownOp, fmt.Sprintf("unknown op %q", req.Op))
	}
}

// tokenClaimsView is what verify-token reveals about an envelope. The
// wrapped provider tokens never leave this process.
type tokenClaimsView struct {
	Subject   string        `json:"sub"`
	Kind      accounts.Kind `json:"kind"`
	IsRefresh bool          `json:"refresh"`
	IssuedAt  int64         `json:"iat"`
	ExpiresAt int64         `json:"exp,omitempty"`
	Issuer    string        `json:"iss,omitempty"`
	TokenID   string        `json:"jti"`
}

func (g *Gateway) handleVerifyToken(req Request) Response {
	var payload VerifyTokenPayload
	if err := decodePayload(req, &payload); err != nil {
		return failResponse(req, CodeBadRequest, err.Error())
	}
	if payload.Token == "" {
		return failResponse(req, CodeBadRequest, "token is required")
	}

	claims, err := g.deps.Tokens.Verify(payload.Token, payload.IsRefresh)
	if err != nil {
		return failResponse(req, CodeTokenInvalid, "token failed verification")
	}

	view := tokenClaimsView{
		Subject:   claims.Subject,
		Kind:      claims.Kind,
		IsRefresh: claims.IsRefresh,
		IssuedAt:  claims.IssuedAt.Unix(),
		Issuer:    claims.Issuer,
		TokenID:   claims.TokenID,
	}
	if !claims.ExpiresAt.IsZero() {
		view.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return okResponse(req, view)
}

// handleTokenInfo always answers. Envelopes that fail verification come back
// active false rather than as an error.
func (g *Gateway) handleTokenInfo(req Request) Response {
	var payload TokenPayload
	if err := decodePayload(req, &payload); err != nil {
		return failResponse(req, CodeBadRequest, err.Error())
	}
	return okResponse(req, g.deps.Tokens.Introspect(payload.Token))
}

func (g *Gateway) handleUserGetByID(ctx context.Context, req Request) Response {
	var payload AccountIDPayload
	if err := decodePayload(req, &payload); err != nil {
		return failResponse(req, CodeBadRequest, err.Error())
	}
	if payload.ID == "" {
		return failResponse(req, CodeBadRequest, "id is required")
	}

	account, err := g.deps.Accounts.FindByID(ctx, payload.ID)
	switch {
	case errors.Is(err, accounts.ErrNotFound):
		return failResponse(req, CodeNotFound, "account not found")
	case err != nil:
		log.Err(err).Str("account_id", payload.ID).Msg("control-plane account lookup failed")
		return failResponse(req, CodeServerError, "account lookup failed")
	}
	return okResponse(req, account)
}

func (g *Gateway) handleUserGetByEmail(ctx context.Context, req Request) Response {
	var payload EmailPayload
	if err := decodePayload(req, &payload); err != nil {
		return failResponse(req, CodeBadRequest, err.Error())
	}
	if payload.Email == "" {
		return failResponse(req, CodeBadRequest, "email is required")
	}

	account, err := g.deps.Accounts.FindByEmail(ctx, payload.Email)
	switch {
	case errors.Is(err, accounts.ErrNotFound):
		return failResponse(req, CodeNotFound, "account not found")
	case err != nil:
		log.Err(err).Msg("control-plane account lookup failed")
		return failResponse(req, CodeServerError, "account lookup failed")
	}
	return okResponse(req, account)
}

func (g *Gateway) handleUserExists(ctx context.Context, req Request) Response {
	var payload AccountIDPayload
	if err := decodePayload(req, &payload); err != nil {
		return failResponse(req, CodeBadRequest, err.Error())
	}
	if payload.ID == "" {
		return failResponse(req, CodeBadRequest, "id is required")
	}

	_, err := g.deps.Accounts.FindByID(ctx, payload.ID)
	switch {
	case errors.Is(err, accounts.ErrNotFound):
		return okResponse(req, existsView{Exists: false})
	case err != nil:
		log.Err(err).Str("account_id", payload.ID).Msg("control-plane account lookup failed")
		return failResponse(req, CodeServerError, "account lookup failed")
	}
	return okResponse(req, existsView{Exists: true})
}

type existsView struct {
	Exists bool `json:"exists"`
}

// sessionInfoView is the reconciled membership view of a browser session.
// Removed lists ids the session carried whose accounts no longer exist.
type sessionInfoView struct {
	Accounts     []string `json:"accounts"`
	Current      string   `json:"current,omitempty"`
	AccountCount int      `json:"accountCount"`
	Removed      []string `json:"removed,omitempty"`
}

func (g *Gateway) handleSessionGetInfo(ctx context.Context, req Request) Response {
	rec, missing, resp, ok := g.inspectSession(ctx, req)
	if !ok {
		return resp
	}

	ids := rec.AccountIDs
	if ids == nil {
		ids = []string{}
	}
	return okResponse(req, sessionInfoView{
		Accounts:     ids,
		Current:      rec.CurrentID,
		AccountCount: len(rec.AccountIDs),
		Removed:      missing,
	})
}

func (g *Gateway) handleSessionGetAccounts(ctx context.Context, req Request) Response {
	rec, _, resp, ok := g.inspectSession(ctx, req)
	if !ok {
		return resp
	}

	members := make([]*accounts.Account, 0, len(rec.AccountIDs))
	for _, id := range rec.AccountIDs {
		account, err := g.deps.Accounts.FindByID(ctx, id)
		if errors.Is(err, accounts.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Err(err).Str("account_id", id).Msg("control-plane account lookup failed")
			return failResponse(req, CodeServerError, "account lookup failed")
		}
		members = append(members, account)
	}
	return okResponse(req, struct {
		Accounts []*accounts.Account `json:"accounts"`
	}{Accounts: members})
}

// handleSessionValidate answers valid false for a bad session value instead
// of failing the request.
func (g *Gateway) handleSessionValidate(ctx context.Context, req Request) Response {
	var payload SessionValuePayload
	if err := decodePayload(req, &payload); err != nil {
		return failResponse(req, CodeBadRequest, err.Error())
	}

	rec, _, err := g.deps.Sessions.Inspect(ctx, payload.Session)
	switch {
	case errors.Is(err, session.ErrSessionInvalid):
		return okResponse(req, validateView{Valid: false})
	case err != nil:
		log.Err(err).Msg("control-plane session reconcile failed")
		return failResponse(req, CodeServerError, "session lookup failed")
	}
	return okResponse(req, validateView{
		Valid:        true,
		AccountCount: len(rec.AccountIDs),
		Current:      rec.CurrentID,
	})
}

type validateView struct {
	Valid        bool   `json:"valid"`
	AccountCount int    `json:"accountCount,omitempty"`
	Current      string `json:"current,omitempty"`
}

// inspectSession decodes, reconciles, and maps errors onto wire codes. The
// bool reports whether the caller should proceed with the record.
func (g *Gateway) inspectSession(ctx context.Context, req Request) (session.Record, []string, Response, bool) {
	var payload SessionValuePayload
	if err := decodePayload(req, &payload); err != nil {
		return session.Record{}, nil, failResponse(req, CodeBadRequest, err.Error()), false
	}
	if payload.Session == "" {
		return session.Record{}, nil, failResponse(req, CodeBadRequest, "session is required"), false
	}

	rec, missing, err := g.deps.Sessions.Inspect(ctx, payload.Session)
	switch {
	case errors.Is(err, session.ErrSessionInvalid):
		return session.Record{}, nil, failResponse(req, CodeSessionInvalid, "session failed verification"), false
	case err != nil:
		log.Err(err).Msg("control-plane session reconcile failed")
		return session.Record{}, nil, failResponse(req, CodeServerError, "session lookup failed"), false
	}
	return rec, missing, Response{}, true
}

func (g *Gateway) handleSubscribe(c *conn, req Request) Response {
	var payload SubscribePayload
	if err := decodePayload(req, &payload); err != nil {
		return failResponse(req, CodeBadRequest, err.Error())
	}

	joined := make([]string, 0, len(payload.Rooms))
	seen := make(map[string]struct{}, len(payload.Rooms))
	for _, room := range payload.Rooms {
		room = strings.TrimSpace(room)
		if room == "" {
			continue
		}
		if _, dup := seen[room]; dup {
			continue
		}
		seen[room] = struct{}{}
		g.hub.join(room, c)
		joined = append(joined, room)
	}
	if len(joined) == 0 {
		return failResponse(req, CodeBadRequest, "at least one room is required")
	}

	return okResponse(req, struct {
		Rooms []string `json:"rooms"`
	}{Rooms: joined})
}

type healthView struct {
	Status             string `json:"status"`
	Connections        int    `json:"connections"`
	UptimeSeconds      int64  `json:"uptimeSeconds"`
	Maintenance        bool   `json:"maintenance,omitempty"`
	MaintenanceMessage string `json:"maintenanceMessage,omitempty"`
}

func (g *Gateway) handleHealth(req Request) Response {
	maintOn, maintNote := g.maintenance()
	return okResponse(req, healthView{
		Status:             "ok",
		Connections:        g.hub.count(),
		UptimeSeconds:      int64(g.nowFunc().Sub(g.startedAt).Seconds()),
		Maintenance:        maintOn,
		MaintenanceMessage: maintNote,
	})
}

func (g *Gateway) handlePing(req Request) Response {
	return okResponse(req, struct {
		Pong bool  `json:"pong"`
		TS   int64 `json:"ts"`
	}{Pong: true, TS: g.nowFunc().Unix()})
}

func decodePayload(req Request, dst any) error {
	if len(req.Payload) == 0 {
		return errors.New("payload is required")
	}
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		return errors.New("malformed payload")
	}
	return nil
}
