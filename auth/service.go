// Package auth ties the token lifecycle and the session record together into
// the operations the HTTP surface exposes: signing accounts in and out of a
// browser session and keeping their credentials fresh.
package auth

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-server/accounts"
	"github.com/jrsteele09/go-session-server/session"
	"github.com/jrsteele09/go-session-server/token"
)

// EventSink receives session lifecycle notifications for fan-out to
// interested services. The gateway implements it; tests use a fake.
type EventSink interface {
	SessionExpired(accountID string)
}

type noopEvents struct{}

func (noopEvents) SessionExpired(string) {}

// SignOutResult reports how a sign-out went. SessionCleared is always true
// when the call returns without error: provider failures degrade to
// Revoked=false, they never block the local sign-out.
type SignOutResult struct {
	Revoked        bool `json:"revoked"`
	SessionCleared bool `json:"sessionCleared"`
}

// Repos holds the repository dependencies for the Service.
type Repos struct {
	Accounts accounts.Store // Repository for account data
}

// Service provides the session and credential operations.
type Service struct {
	repos    Repos
	tokens   *token.Manager   // Token lifecycle: issue, refresh, revoke
	sessions *session.Manager // Session record transitions and cookies
	events   EventSink
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithEventSink routes session lifecycle events to the given sink.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(
	repos Repos,
	tokens *token.Manager,
	sessions *session.Manager,
	options ...ServiceOption,
) (*Service, error) {
	if repos.Accounts == nil {
		return nil, errors.New("[NewService] Accounts repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token manager is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewService] session manager is required")
	}

	service := &Service{
		repos:    repos,
		tokens:   tokens,
		sessions: sessions,
		events:   noopEvents{},
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// Sessions exposes the session manager for read-side collaborators.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// SignIn adds an authenticated account to the browser session and sets its
// credential cookies. The caller has already authenticated the user: local
// accounts by password, OAuth accounts by a completed provider flow whose
// tokens ride in via issueOpts.
func (s *Service) SignIn(ctx context.Context, w http.ResponseWriter, r *http.Request,
	accountID string, issueOpts token.IssueOptions, setCurrent bool) (session.Record, error) {

	account, err := s.repos.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return session.Record{}, errors.Wrap(err, "[Service.SignIn] find account")
	}
	if account.Disabled {
		return session.Record{}, errors.Wrapf(ErrAccountDisabled, "[Service.SignIn] account %q", accountID)
	}

	pair, err := s.tokens.Issue(account.ID, account.Kind, issueOpts)
	if err != nil {
		return session.Record{}, errors.Wrap(err, "[Service.SignIn] issue credentials")
	}

	rec, err := s.sessions.Load(ctx, w, r)
	if err != nil {
		return session.Record{}, errors.Wrap(err, "[Service.SignIn] load session")
	}
	rec, err = s.sessions.AddAccount(w, rec, account.ID, setCurrent)
	if err != nil {
		return session.Record{}, errors.Wrap(err, "[Service.SignIn] add account to session")
	}

	s.sessions.Cookies().SetCredentials(w, account.ID, *pair)
	return rec, nil
}

// RefreshCredentials exchanges the account's refresh envelope for fresh
// credentials. Any failure is terminal for that account's session membership:
// the account is signed out of the session, its credential cookies are
// cleared, a session-expired event is emitted, and the caller gets
// ErrReauthRequired. Other accounts in the session are untouched.
func (s *Service) RefreshCredentials(ctx context.Context, w http.ResponseWriter, r *http.Request,
	accountID string) (*token.CredentialPair, error) {

	rec, err := s.sessions.Load(ctx, w, r)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.RefreshCredentials] load session")
	}
	if !rec.Has(accountID) {
		return nil, errors.Wrapf(session.ErrNotInSession, "[Service.RefreshCredentials] account %q", accountID)
	}

	rawRefresh, ok := s.sessions.Cookies().RefreshToken(r, accountID)
	if !ok {
		return nil, s.forceSignOut(w, rec, accountID, errors.New("no refresh token cookie"))
	}

	pair, err := s.tokens.Refresh(ctx, accountID, rawRefresh)
	if err != nil {
		return nil, s.forceSignOut(w, rec, accountID, err)
	}

	s.sessions.Cookies().SetCredentials(w, accountID, *pair)
	return pair, nil
}

// SignOutAccount revokes one account's credentials and removes it from the
// session. A provider revocation failure is reported in the result, never as
// an error: local sign-out must not be blocked by an unreachable provider.
func (s *Service) SignOutAccount(ctx context.Context, w http.ResponseWriter, r *http.Request,
	accountID string) (SignOutResult, error) {

	rec, err := s.sessions.Load(ctx, w, r)
	if err != nil {
		return SignOutResult{}, errors.Wrap(err, "[Service.SignOutAccount] load session")
	}
	if !rec.Has(accountID) {
		return SignOutResult{}, errors.Wrapf(session.ErrNotInSession, "[Service.SignOutAccount] account %q", accountID)
	}

	revoked := s.revokeAccount(ctx, r, accountID)

	if _, err := s.sessions.Clear(w, rec, accountID); err != nil {
		return SignOutResult{}, errors.Wrap(err, "[Service.SignOutAccount] clear session")
	}
	return SignOutResult{Revoked: revoked, SessionCleared: true}, nil
}

// SignOutAll revokes every account's credentials and destroys the session.
func (s *Service) SignOutAll(ctx context.Context, w http.ResponseWriter, r *http.Request) (SignOutResult, error) {
	rec, err := s.sessions.Load(ctx, w, r)
	if err != nil {
		return SignOutResult{}, errors.Wrap(err, "[Service.SignOutAll] load session")
	}

	revokedAll := true
	for _, accountID := range rec.AccountIDs {
		if !s.revokeAccount(ctx, r, accountID) {
			revokedAll = false
		}
	}

	if _, err := s.sessions.Clear(w, rec); err != nil {
		return SignOutResult{}, errors.Wrap(err, "[Service.SignOutAll] clear session")
	}
	return SignOutResult{Revoked: revokedAll, SessionCleared: true}, nil
}

// CurrentSession loads and reconciles the session for read endpoints.
func (s *Service) CurrentSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (session.Record, error) {
	return s.sessions.Load(ctx, w, r)
}

// SetCurrentAccount moves the session's current pointer.
func (s *Service) SetCurrentAccount(ctx context.Context, w http.ResponseWriter, r *http.Request,
	accountID string) (session.Record, error) {

	rec, err := s.sessions.Load(ctx, w, r)
	if err != nil {
		return session.Record{}, errors.Wrap(err, "[Service.SetCurrentAccount] load session")
	}
	return s.sessions.SetCurrent(w, rec, accountID)
}

// VerifyAccess checks the account's access envelope on the request. The
// returned error always unwraps to token.ErrTokenInvalid, so callers route
// every failure the same way: to the refresh endpoint.
func (s *Service) VerifyAccess(r *http.Request, accountID string) (token.Claims, error) {
	raw, ok := s.sessions.Cookies().AccessToken(r, accountID)
	if !ok {
		return token.Claims{}, errors.Wrapf(token.ErrTokenInvalid, "[Service.VerifyAccess] no access token for account %q", accountID)
	}

	claims, err := s.tokens.Verify(raw, false)
	if err != nil {
		return token.Claims{}, errors.Wrap(err, "[Service.VerifyAccess] verify access token")
	}
	if claims.Subject != accountID {
		return token.Claims{}, errors.Wrapf(token.ErrTokenMismatch, "[Service.VerifyAccess] token subject %q", claims.Subject)
	}
	return claims, nil
}

// forceSignOut applies the terminal refresh failure policy for one account.
func (s *Service) forceSignOut(w http.ResponseWriter, rec session.Record, accountID string, cause error) error {
	if _, err := s.sessions.Clear(w, rec, accountID); err != nil {
		log.Err(err).Str("account_id", accountID).Msg("failed to clear session during forced sign-out")
	}
	s.events.SessionExpired(accountID)
	return errors.Wrapf(ErrReauthRequired, "[Service.forceSignOut] account %q: %v", accountID, cause)
}

// revokeAccount submits the account's envelopes for provider revocation and
// reports whether everything that needed revoking was revoked.
func (s *Service) revokeAccount(ctx context.Context, r *http.Request, accountID string) bool {
	rawAccess, _ := s.sessions.Cookies().AccessToken(r, accountID)
	rawRefresh, _ := s.sessions.Cookies().RefreshToken(r, accountID)

	result := s.tokens.Revoke(ctx, rawAccess, rawRefresh)
	if result.ProviderErr != nil {
		log.Warn().Err(result.ProviderErr).
			Str("account_id", accountID).
			Int("tokens_submitted", result.TokensSubmitted).
			Msg("provider revocation failed; clearing session anyway")
	}
	return result.Ok()
}
