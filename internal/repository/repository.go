// Package repository defines the storage contracts for the points ledger.
//
// Two backends implement them: postgrest (Supabase, production) and
// sqlite (single-node and local development).
package repository

import (
	"context"

	"github.com/sakif/bananagen/internal/model"
)

// DefaultHistoryLimit caps History when the caller passes a non-positive
// limit.
const DefaultHistoryLimit = 100

// PointsRepository is the caller-scoped view of the ledger.
//
// Every method acts on behalf of who. Backends that enforce row-level
// security use who.AccessToken to run as the caller.
type PointsRepository interface {
	// Spend atomically decrements the balance by cost and appends one
	// ledger entry with delta -cost and the given reason and meta.
	//
	// A nil remaining balance with a nil error means the balance was
	// insufficient and nothing was written. A non-nil error means the
	// store could not be reached or rejected the call.
	Spend(ctx context.Context, who model.Identity, cost int64, reason string, meta map[string]any) (*int64, error)

	// Balance returns the current balance. A user without a balance row
	// has 0 points.
	Balance(ctx context.Context, who model.Identity) (int64, error)

	// History returns the newest ledger entries first.
	History(ctx context.Context, who model.Identity, limit int) ([]model.LedgerEntry, error)
}

// PointsGranter credits points outside of the caller's own privileges.
// Only the compensating refund and operator tooling use it.
type PointsGranter interface {
	Grant(ctx context.Context, userID string, amount int64, reason string, meta map[string]any) (int64, error)
}
