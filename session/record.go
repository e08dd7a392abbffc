// Package session keeps track of which accounts are signed in on a browser.
// Membership lives in a signed session cookie and each account's token pair
// lives in its own path-scoped credential cookies; nothing is stored
// server-side.
package session

import "slices"

// Record is the decoded session membership: the accounts signed in on this
// browser, in login order, and which of them is current.
type Record struct {
	AccountIDs []string `json:"accounts"`
	CurrentID  string   `json:"current,omitempty"` // "" means no current account
}

// Has reports whether the account is part of the session.
func (r Record) Has(accountID string) bool {
	return slices.Contains(r.AccountIDs, accountID)
}

// Empty reports whether the session holds no accounts.
func (r Record) Empty() bool {
	return len(r.AccountIDs) == 0
}

// Validate checks the record invariants: no empty or duplicate account ids,
// and a current pointer that is either unset or a member.
func (r Record) Validate() error {
	seen := make(map[string]struct{}, len(r.AccountIDs))
	for _, id := range r.AccountIDs {
		if id == "" {
			return ErrSessionInvalid
		}
		if _, dup := seen[id]; dup {
			return ErrSessionInvalid
		}
		seen[id] = struct{}{}
	}
	if r.CurrentID != "" {
		if _, ok := seen[r.CurrentID]; !ok {
			return ErrSessionInvalid
		}
	}
	return nil
}

func (r Record) clone() Record {
	return Record{
		AccountIDs: slices.Clone(r.AccountIDs),
		CurrentID:  r.CurrentID,
	}
}
