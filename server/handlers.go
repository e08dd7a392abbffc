package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-server/accounts"
	"github.com/jrsteele09/go-session-server/auth"
	"github.com/jrsteele09/go-session-server/session"
	"github.com/jrsteele09/go-session-server/token"
)

const contentTypeJSON = "application/json; charset=utf-8"

// sessionView resolves the session membership to full account records for the
// browser. Tokens never appear here; they ride in the credential cookies.
type sessionView struct {
	Accounts     []*accounts.Account `json:"accounts"`
	Current      string              `json:"current,omitempty"`
	AccountCount int                 `json:"accountCount"`
}

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	SetCurrent bool   `json:"setCurrent"`
}

type setCurrentRequest struct {
	AccountID string `json:"accountId"`
}

// refreshView reports the new credential expiries. The credentials themselves
// were already written to the account's cookies.
type refreshView struct {
	AccessExpiry  time.Time `json:"accessExpiry"`
	RefreshExpiry time.Time `json:"refreshExpiry"`
}

type verifyView struct {
	AccountID string `json:"accountId"`
	Kind      string `json:"kind"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// HealthzHandler reports process liveness
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"app":    s.config.GetAppName(),
		})
	}
}

// ConnectionsHandler lists the services currently attached to the control
// plane socket
func (s *Server) ConnectionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.gateway.Connections())
	}
}

// SessionHandler returns the reconciled session: which accounts are signed in
// on this browser and which of them is current
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.auth.CurrentSession(r.Context(), w, r)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		view, err := s.sessionViewFor(r, rec)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// SignInHandler authenticates a local account by password and adds it to the
// browser session. Lookup and password failures produce the same response so
// the endpoint never reveals whether an email is registered.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid_request", "malformed JSON body", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			writeJSONError(w, "invalid_request", "email and password are required", http.StatusBadRequest)
			return
		}

		account, err := s.repos.Accounts.FindByEmail(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, accounts.ErrNotFound) {
				writeJSONError(w, "invalid_credentials", "invalid email or password", http.StatusUnauthorized)
				return
			}
			s.writeServiceError(w, err)
			return
		}
		if account.Kind != accounts.KindLocal || !accounts.CheckPasswordHash(req.Password, account.PasswordHash) {
			writeJSONError(w, "invalid_credentials", "invalid email or password", http.StatusUnauthorized)
			return
		}

		rec, err := s.auth.SignIn(r.Context(), w, r, account.ID, token.IssueOptions{}, req.SetCurrent)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		view, err := s.sessionViewFor(r, rec)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// SetCurrentHandler moves the session's current pointer to another signed-in
// account
func (s *Server) SetCurrentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setCurrentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid_request", "malformed JSON body", http.StatusBadRequest)
			return
		}

		rec, err := s.auth.SetCurrentAccount(r.Context(), w, r, req.AccountID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		view, err := s.sessionViewFor(r, rec)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// SignOutAllHandler signs every account out and destroys the session
func (s *Server) SignOutAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.auth.SignOutAll(r.Context(), w, r)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// RefreshHandler exchanges the account's refresh cookie for fresh credentials.
// On any refresh failure the account has already been signed out of the
// session and the response is 401 reauth_required.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := r.PathValue("accountID")
		pair, err := s.auth.RefreshCredentials(r.Context(), w, r, accountID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, refreshView{
			AccessExpiry:  pair.AccessExpiry,
			RefreshExpiry: pair.RefreshExpiry,
		})
	}
}

// AccountSignOutHandler signs a single account out of the session, leaving
// the other accounts untouched
func (s *Server) AccountSignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := r.PathValue("accountID")
		result, err := s.auth.SignOutAccount(r.Context(), w, r, accountID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// VerifyHandler checks the account's access cookie and reports its claims.
// Every failure maps to 401 invalid_token: the browser's next move is always
// the refresh endpoint.
func (s *Server) VerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := r.PathValue("accountID")
		claims, err := s.auth.VerifyAccess(r, accountID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		view := verifyView{
			AccountID: claims.Subject,
			Kind:      string(claims.Kind),
			IssuedAt:  claims.IssuedAt.Unix(),
		}
		if !claims.ExpiresAt.IsZero() {
			view.ExpiresAt = claims.ExpiresAt.Unix()
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// sessionViewFor resolves the record's members to account records. Members
// that vanish between reconciliation and lookup are skipped rather than
// failing the whole view.
func (s *Server) sessionViewFor(r *http.Request, rec session.Record) (sessionView, error) {
	view := sessionView{Accounts: []*accounts.Account{}, Current: rec.CurrentID}
	for _, id := range rec.AccountIDs {
		account, err := s.repos.Accounts.FindByID(r.Context(), id)
		if errors.Is(err, accounts.ErrNotFound) {
			continue
		}
		if err != nil {
			return sessionView{}, errors.Wrap(err, "[Server.sessionViewFor] find account")
		}
		view.Accounts = append(view.Accounts, account)
	}
	view.AccountCount = len(view.Accounts)
	return view, nil
}

// writeServiceError translates service-layer failures into the API's error
// vocabulary. Anything unrecognized is logged and reported as a 500 without
// leaking internals.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrReauthRequired):
		writeJSONError(w, "reauth_required", "credentials expired, sign in again", http.StatusUnauthorized)
	case errors.Is(err, token.ErrTokenInvalid):
		writeJSONError(w, "invalid_token", "token failed verification", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrAccountDisabled):
		writeJSONError(w, "account_disabled", "account is disabled", http.StatusForbidden)
	case errors.Is(err, session.ErrNotInSession):
		writeJSONError(w, "not_in_session", "account is not part of this session", http.StatusNotFound)
	case errors.Is(err, accounts.ErrNotFound):
		writeJSONError(w, "not_found", "account not found", http.StatusNotFound)
	case errors.Is(err, token.ErrProviderUnavailable):
		writeJSONError(w, "provider_unavailable", "identity provider unavailable", http.StatusBadGateway)
	default:
		log.Err(err).Msg("unhandled service error")
		writeJSONError(w, "server_error", "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(dst)
}
