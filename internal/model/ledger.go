package model

import "time"

// Balance is the single points value held per user by the external store.
type Balance struct {
	Points int64 `json:"points"`
}

// LedgerEntry is one immutable audit row. Debits carry a negative Delta.
type LedgerEntry struct {
	ID        string         `json:"id,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Delta     int64          `json:"delta"`
	Reason    string         `json:"reason"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
}
