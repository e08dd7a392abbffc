package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Subprotocol is the websocket subprotocol spoken by the control plane.
// Connections that negotiate anything else are closed during the handshake.
const Subprotocol = "sessionctl.v1"

// Operations a connected service may invoke.
const (
	OpVerifyToken        = "auth:verify-token"
	OpTokenInfo          = "auth:token-info"
	OpUserGetByID        = "users:get-by-id"
	OpUserGetByEmail     = "users:get-by-email"
	OpUserExists         = "users:exists"
	OpSessionGetInfo     = "session:get-info"
	OpSessionGetAccounts = "session:get-accounts"
	OpSessionValidate    = "session:validate"
	OpSubscribe          = "subscribe"
	OpHealth             = "health"
	OpPing               = "ping"
)

// Events pushed to subscribed connections.
const (
	EventUserUpdated         = "user-updated"
	EventUserDeleted         = "user-deleted"
	EventSessionExpired      = "session-expired"
	EventServiceNotification = "service-notification"
	EventMaintenanceMode     = "maintenance-mode"
)

// Rooms the gateway broadcasts into. Services subscribe to the rooms they
// care about; service-notification events may target any named room.
const (
	RoomUsers    = "users"
	RoomSessions = "sessions"
)

// Error codes carried in failed responses.
const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeUnknownOp      = "UNKNOWN_OP"
	CodeTokenInvalid   = "TOKEN_INVALID"
	CodeSessionInvalid = "SESSION_INVALID"
	CodeNotFound       = "NOT_FOUND"
	CodeServerError    = "SERVER_ERROR"
)

// Request is one control-plane call from a connected service. The id is
// opaque to the gateway and echoed back so callers can correlate responses
// on a multiplexed connection.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Op) == "" {
		return errors.New("[Request.Validate] op is required")
	}
	return nil
}

// Response answers exactly one request. Success false always carries an
// Error body; success true may carry Data.
type Response struct {
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op,omitempty"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the machine-readable failure detail of a Response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Event is an unsolicited broadcast. Unlike a Response it has no id; clients
// tell the two apart by the event field.
type Event struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	TS    time.Time       `json:"ts"`
}

// Per-operation payloads.
type (
	VerifyTokenPayload struct {
		Token     string `json:"token"`
		IsRefresh bool   `json:"isRefresh,omitempty"`
	}

	TokenPayload struct {
		Token string `json:"token"`
	}

	AccountIDPayload struct {
		ID string `json:"id"`
	}

	EmailPayload struct {
		Email string `json:"email"`
	}

	// SessionValuePayload carries the raw signed session value. Services
	// forward it verbatim from the browser cookie; the gateway decodes and
	// reconciles it without ever writing cookies back.
	SessionValuePayload struct {
		Session string `json:"session"`
	}

	SubscribePayload struct {
		Rooms []string `json:"rooms"`
	}
)

func okResponse(req Request, data any) Response {
	resp := Response{ID: req.ID, Op: req.Op, Success: true}
	if data == nil {
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return failResponse(req, CodeServerError, "encode response data")
	}
	resp.Data = raw
	return resp
}

func failResponse(req Request, code, message string) Response {
	return Response{
		ID:      req.ID,
		Op:      req.Op,
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	}
}

func newEvent(name, room string, data any) (Event, error) {
	evt := Event{Event: name, Room: room, TS: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, errors.Wrapf(err, "[newEvent] encode %s data", name)
		}
		evt.Data = raw
	}
	return evt, nil
}
