package accounts

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store implementations when no account matches.
var ErrNotFound = errors.New("account not found")

// Store is the read side of the external account database. Account CRUD and
// credential validation live with that service; this server only needs to
// resolve identities and check which session members still exist.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// FindExistingIDs returns the subset of ids that still resolve to live
	// accounts, preserving the order of the input. Session reconciliation
	// calls this on every read.
	FindExistingIDs(ctx context.Context, ids []string) ([]string, error)
}
