package session

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-server/accounts"
)

// Manager owns the session record transitions. Every mutation produces a new
// record, re-persists it through the cookie store, and keeps the record
// invariants: current is empty or a member, no duplicate ids, login order
// preserved. Removing the last account destroys the cookie.
type Manager struct {
	store    *CookieStore
	accounts accounts.Store
}

// NewManager creates a session manager over a cookie store and the external
// account store used for reconciliation.
func NewManager(store *CookieStore, accountStore accounts.Store) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] cookie store is required")
	}
	if accountStore == nil {
		return nil, errors.New("[NewManager] account store is required")
	}
	return &Manager{store: store, accounts: accountStore}, nil
}

// Cookies exposes the underlying cookie store for credential cookie writes.
func (m *Manager) Cookies() *CookieStore {
	return m.store
}

// Load reads the session from the request and reconciles it against the
// account store. An absent cookie yields an empty record. A cookie that is
// present but undecodable is treated the same way, and the broken cookie is
// cleared. When reconciliation drops accounts, the cleaned record is
// re-persisted and the dropped accounts' credential cookies are cleared.
func (m *Manager) Load(ctx context.Context, w http.ResponseWriter, r *http.Request) (Record, error) {
	rec, err := m.store.LoadSession(r)
	switch {
	case errors.Is(err, ErrNoSession):
		return Record{}, nil
	case err != nil:
		log.Warn().Err(err).Msg("clearing undecodable session cookie")
		m.store.ClearSession(w)
		return Record{}, nil
	}

	clean, missing, err := m.Reconcile(ctx, rec)
	if err != nil {
		return Record{}, errors.Wrap(err, "[Manager.Load] reconcile")
	}
	if len(missing) == 0 {
		return clean, nil
	}

	for _, id := range missing {
		m.store.ClearCredentials(w, id)
	}
	if err := m.persist(w, clean); err != nil {
		return Record{}, errors.Wrap(err, "[Manager.Load] persist reconciled record")
	}
	return clean, nil
}

// Reconcile drops accounts that no longer exist in the account store. When
// the dropped set includes the current account, current falls back to the
// first survivor. The record itself is not re-persisted here.
func (m *Manager) Reconcile(ctx context.Context, rec Record) (Record, []string, error) {
	if rec.Empty() {
		return rec, nil, nil
	}

	existing, err := m.accounts.FindExistingIDs(ctx, rec.AccountIDs)
	if err != nil {
		return Record{}, nil, errors.Wrap(err, "[Manager.Reconcile] find existing ids")
	}

	keep := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		keep[id] = struct{}{}
	}

	clean := Record{CurrentID: rec.CurrentID}
	var missing []string
	for _, id := range rec.AccountIDs {
		if _, ok := keep[id]; ok {
			clean.AccountIDs = append(clean.AccountIDs, id)
		} else {
			missing = append(missing, id)
		}
	}
	if clean.CurrentID != "" && !clean.Has(clean.CurrentID) {
		clean.CurrentID = firstOrEmpty(clean.AccountIDs)
	}
	return clean, missing, nil
}

// Inspect decodes and reconciles a raw session value received outside a
// cookie. No cookies are written; the caller only learns the cleaned record
// and which accounts were dropped.
func (m *Manager) Inspect(ctx context.Context, value string) (Record, []string, error) {
	rec, err := m.store.Decode(value)
	if err != nil {
		return Record{}, nil, err
	}
	return m.Reconcile(ctx, rec)
}

// AddAccount appends the account to the session if absent and makes it
// current when setCurrent is true.
func (m *Manager) AddAccount(w http.ResponseWriter, rec Record, accountID string, setCurrent bool) (Record, error) {
	if accountID == "" {
		return Record{}, errors.New("[Manager.AddAccount] account id is required")
	}

	next := rec.clone()
	if !next.Has(accountID) {
		next.AccountIDs = append(next.AccountIDs, accountID)
	}
	if setCurrent {
		next.CurrentID = accountID
	}

	if err := m.persist(w, next); err != nil {
		return Record{}, errors.Wrap(err, "[Manager.AddAccount] persist")
	}
	return next, nil
}

// RemoveAccount drops the account from the session. When it was current, the
// first remaining account becomes current. This is a pure membership
// transition; credential cookies are the caller's concern.
func (m *Manager) RemoveAccount(w http.ResponseWriter, rec Record, accountID string) (Record, error) {
	if !rec.Has(accountID) {
		return Record{}, errors.Wrapf(ErrNotInSession, "[Manager.RemoveAccount] account %q", accountID)
	}

	next := Record{}
	for _, id := range rec.AccountIDs {
		if id != accountID {
			next.AccountIDs = append(next.AccountIDs, id)
		}
	}
	next.CurrentID = rec.CurrentID
	if next.CurrentID == accountID {
		next.CurrentID = firstOrEmpty(next.AccountIDs)
	}

	if err := m.persist(w, next); err != nil {
		return Record{}, errors.Wrap(err, "[Manager.RemoveAccount] persist")
	}
	return next, nil
}

// SetCurrent points the session at the given account. An empty id clears the
// pointer; a non-member fails with ErrNotInSession.
func (m *Manager) SetCurrent(w http.ResponseWriter, rec Record, accountID string) (Record, error) {
	if accountID != "" && !rec.Has(accountID) {
		return Record{}, errors.Wrapf(ErrNotInSession, "[Manager.SetCurrent] account %q", accountID)
	}

	next := rec.clone()
	next.CurrentID = accountID

	if err := m.persist(w, next); err != nil {
		return Record{}, errors.Wrap(err, "[Manager.SetCurrent] persist")
	}
	return next, nil
}

// Clear signs accounts out of the cookie plane. With no ids the whole record
// is destroyed; with a subset only those accounts are removed. Either way the
// removed accounts' credential cookies are cleared alongside the membership.
func (m *Manager) Clear(w http.ResponseWriter, rec Record, accountIDs ...string) (Record, error) {
	if len(accountIDs) == 0 {
		for _, id := range rec.AccountIDs {
			m.store.ClearCredentials(w, id)
		}
		m.store.ClearSession(w)
		return Record{}, nil
	}

	drop := make(map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		drop[id] = struct{}{}
	}

	next := Record{}
	for _, id := range rec.AccountIDs {
		if _, gone := drop[id]; gone {
			m.store.ClearCredentials(w, id)
			continue
		}
		next.AccountIDs = append(next.AccountIDs, id)
	}
	next.CurrentID = rec.CurrentID
	if _, gone := drop[next.CurrentID]; gone {
		next.CurrentID = firstOrEmpty(next.AccountIDs)
	}

	if err := m.persist(w, next); err != nil {
		return Record{}, errors.Wrap(err, "[Manager.Clear] persist")
	}
	return next, nil
}

// persist writes the record, destroying the cookie when the record is empty.
func (m *Manager) persist(w http.ResponseWriter, rec Record) error {
	if rec.Empty() {
		m.store.ClearSession(w)
		return nil
	}
	return m.store.SaveSession(w, rec)
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
