package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/bananagen/internal/model"
	"github.com/sakif/bananagen/internal/repository"
)

// compile-time checks that *DB implements the ledger interfaces
var (
	_ repository.PointsRepository = (*DB)(nil)
	_ repository.PointsGranter    = (*DB)(nil)
)

// Spend debits cost points from who's balance.
//
// The UPDATE only matches when the balance covers the cost; no match
// means insufficient funds and the transaction is rolled back with
// nothing written.
func (db *DB) Spend(ctx context.Context, who model.Identity, cost int64, reason string, meta map[string]any) (*int64, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("sqlite: spend cost must be positive, got %d", cost)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning spend: %w", err)
	}
	// Rollback after Commit is a no-op
	defer tx.Rollback()

	now := time.Now().UTC()

	var remaining int64
	err = tx.QueryRowContext(ctx,
		`UPDATE user_points SET points = points - ?, updated_at = ?
		 WHERE user_id = ? AND points >= ?
		 RETURNING points`,
		cost, now, who.ID, cost,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: debiting user %s: %w", who.ID, err)
	}

	if err := insertEntry(ctx, tx, who.ID, -cost, reason, meta, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing spend: %w", err)
	}
	return &remaining, nil
}

// Grant credits amount points to userID, creating the balance row on
// first use.
func (db *DB) Grant(ctx context.Context, userID string, amount int64, reason string, meta map[string]any) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("sqlite: grant amount must be positive, got %d", amount)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning grant: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO user_points (user_id, points, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		   SET points = points + excluded.points, updated_at = excluded.updated_at
		 RETURNING points`,
		userID, amount, now,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sqlite: crediting user %s: %w", userID, err)
	}

	if err := insertEntry(ctx, tx, userID, amount, reason, meta, now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing grant: %w", err)
	}
	return balance, nil
}

// Balance returns who's balance, 0 when no row exists yet.
func (db *DB) Balance(ctx context.Context, who model.Identity) (int64, error) {
	var points int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT points FROM user_points WHERE user_id = ?`, who.ID,
	).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading balance for %s: %w", who.ID, err)
	}
	return points, nil
}

// History returns up to limit ledger entries, newest first.
func (db *DB) History(ctx context.Context, who model.Identity, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = repository.DefaultHistoryLimit
	}

	// rowid breaks ties between entries written in the same instant
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, delta, reason, meta, created_at
		 FROM user_points_ledger
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		who.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ledger for %s: %w", who.ID, err)
	}
	// ALWAYS close rows, or the connection is never returned to the pool
	defer rows.Close()

	entries := make([]model.LedgerEntry, 0)
	for rows.Next() {
		var (
			e    model.LedgerEntry
			meta string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning ledger row: %w", err)
		}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &e.Meta); err != nil {
				return nil, fmt.Errorf("sqlite: decoding meta of entry %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ledger rows: %w", err)
	}

	return entries, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, userID string, delta int64, reason string, meta map[string]any, at time.Time) error {
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("sqlite: encoding ledger meta: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_points_ledger (id, user_id, delta, reason, meta, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		xid.New().String(), userID, delta, reason, string(raw), at,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending ledger entry for %s: %w", userID, err)
	}
	return nil
}
