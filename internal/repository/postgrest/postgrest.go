// Package postgrest implements the points ledger on Supabase through its
// PostgREST API.
//
// The debit runs as the calling user: every request carries the project's
// anon key plus the user's access token, so Postgres row-level security
// and auth.uid() inside spend_points see the real caller. The schema and
// functions live in migrations/ and are applied with cmd/migrate.
package postgrest

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/model"
	"github.com/sakif/bananagen/internal/repository"
)

// Migrations holds the Postgres schema for the ledger.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const provider = "Supabase"

// compile-time checks that *Client implements the ledger interfaces
var (
	_ repository.PointsRepository = (*Client)(nil)
	_ repository.PointsGranter    = (*Client)(nil)
)

// ErrNoServiceRole is returned by Grant when no service-role key is set.
var ErrNoServiceRole = errors.New("postgrest: service role key not configured")

// Client talks to {baseURL}/rest/v1.
type Client struct {
	baseURL     string
	anonKey     string
	serviceRole string
	http        *http.Client
}

// New creates a Client. serviceRoleKey may be empty, which disables Grant.
// httpClient may be nil, in which case http.DefaultClient is used.
func New(baseURL, anonKey, serviceRoleKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     baseURL,
		anonKey:     anonKey,
		serviceRole: serviceRoleKey,
		http:        httpClient,
	}
}

// CanGrant reports whether Grant can be used.
func (c *Client) CanGrant() bool {
	return c.serviceRole != ""
}

type spendArgs struct {
	Cost   int64          `json:"cost"`
	Reason string         `json:"in_reason"`
	Meta   map[string]any `json:"in_meta"`
}

// Spend calls rpc/spend_points as who. The function returns the remaining
// balance, or JSON null when the balance is insufficient.
func (c *Client) Spend(ctx context.Context, who model.Identity, cost int64, reason string, meta map[string]any) (*int64, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	body, err := c.call(ctx, http.MethodPost, "/rest/v1/rpc/spend_points", nil,
		spendArgs{Cost: cost, Reason: reason, Meta: meta}, c.anonKey, who.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("postgrest: spend_points: %w", err)
	}

	var remaining *int64
	if err := json.Unmarshal(bytes.TrimSpace(body), &remaining); err != nil {
		return nil, fmt.Errorf("postgrest: decoding spend_points result %q: %w", body, err)
	}
	return remaining, nil
}

type grantArgs struct {
	UserID string         `json:"target_user"`
	Amount int64          `json:"amount"`
	Reason string         `json:"in_reason"`
	Meta   map[string]any `json:"in_meta"`
}

// Grant calls rpc/grant_points with the service-role key.
func (c *Client) Grant(ctx context.Context, userID string, amount int64, reason string, meta map[string]any) (int64, error) {
	if !c.CanGrant() {
		return 0, ErrNoServiceRole
	}
	if meta == nil {
		meta = map[string]any{}
	}
	body, err := c.call(ctx, http.MethodPost, "/rest/v1/rpc/grant_points", nil,
		grantArgs{UserID: userID, Amount: amount, Reason: reason, Meta: meta}, c.serviceRole, c.serviceRole)
	if err != nil {
		return 0, fmt.Errorf("postgrest: grant_points: %w", err)
	}

	var balance int64
	if err := json.Unmarshal(bytes.TrimSpace(body), &balance); err != nil {
		return 0, fmt.Errorf("postgrest: decoding grant_points result %q: %w", body, err)
	}
	return balance, nil
}

// Balance reads who's row from user_points; no row means 0.
func (c *Client) Balance(ctx context.Context, who model.Identity) (int64, error) {
	q := url.Values{
		"select":  {"points"},
		"user_id": {"eq." + who.ID},
	}
	body, err := c.call(ctx, http.MethodGet, "/rest/v1/user_points", q, nil, c.anonKey, who.AccessToken)
	if err != nil {
		return 0, fmt.Errorf("postgrest: reading balance: %w", err)
	}

	var rows []struct {
		Points int64 `json:"points"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("postgrest: decoding balance: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Points, nil
}

type ledgerRow struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Delta     int64          `json:"delta"`
	Reason    string         `json:"reason"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
}

// History lists who's ledger, newest first. Row-level security already
// restricts the table to the caller; the user_id filter keeps the query
// correct when run with elevated keys.
func (c *Client) History(ctx context.Context, who model.Identity, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = repository.DefaultHistoryLimit
	}
	q := url.Values{
		"select":  {"id,user_id,delta,reason,meta,created_at"},
		"user_id": {"eq." + who.ID},
		"order":   {"created_at.desc"},
		"limit":   {strconv.Itoa(limit)},
	}
	body, err := c.call(ctx, http.MethodGet, "/rest/v1/user_points_ledger", q, nil, c.anonKey, who.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("postgrest: listing ledger: %w", err)
	}

	var rows []ledgerRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("postgrest: decoding ledger: %w", err)
	}

	entries := make([]model.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, model.LedgerEntry{
			ID:        r.ID,
			UserID:    r.UserID,
			Delta:     r.Delta,
			Reason:    r.Reason,
			Meta:      r.Meta,
			CreatedAt: r.CreatedAt,
		})
	}
	return entries, nil
}

// call performs one PostgREST request. A non-2xx answer becomes an
// apperror.Upstream carrying the status and body.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload any, apiKey, bearer string) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if bearer == "" {
		bearer = apiKey
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.Upstream(provider, resp.StatusCode, string(body))
	}
	return body, nil
}
