package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/sakif/bananagen/internal/auth"
	"github.com/sakif/bananagen/internal/billing"
	"github.com/sakif/bananagen/internal/imagegen"
	"github.com/sakif/bananagen/internal/model"
)

// =========================================================================
// FAKE LEDGER
// =========================================================================

// fakeLedger is an in-memory ledger with the same contract as the real
// stores: a refused debit returns (nil, nil) and writes nothing.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  []model.LedgerEntry
	spends   int

	spendErr error
	grantErr error
}

func newFakeLedger(balances map[string]int64) *fakeLedger {
	if balances == nil {
		balances = map[string]int64{}
	}
	return &fakeLedger{balances: balances}
}

func (f *fakeLedger) Spend(_ context.Context, who model.Identity, cost int64, reason string, meta map[string]any) (*int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spends++
	if f.spendErr != nil {
		return nil, f.spendErr
	}
	if f.balances[who.ID] < cost {
		return nil, nil
	}
	f.balances[who.ID] -= cost
	f.entries = append(f.entries, model.LedgerEntry{UserID: who.ID, Delta: -cost, Reason: reason, Meta: meta})
	left := f.balances[who.ID]
	return &left, nil
}

func (f *fakeLedger) Balance(_ context.Context, who model.Identity) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[who.ID], nil
}

func (f *fakeLedger) History(_ context.Context, who model.Identity, limit int) ([]model.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LedgerEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].UserID == who.ID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) Grant(_ context.Context, userID string, amount int64, reason string, meta map[string]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return 0, f.grantErr
	}
	f.balances[userID] += amount
	f.entries = append(f.entries, model.LedgerEntry{UserID: userID, Delta: amount, Reason: reason, Meta: meta})
	return f.balances[userID], nil
}

// =========================================================================
// FAKE GENERATOR
// =========================================================================

type fakeGenerator struct {
	readyErr error
	out      *imagegen.Output
	err      error

	calls   int
	lastReq model.GenerationRequest
	lastCtx context.Context
}

func (f *fakeGenerator) Ready() error { return f.readyErr }

func (f *fakeGenerator) Generate(ctx context.Context, req model.GenerationRequest) (*imagegen.Output, error) {
	f.calls++
	f.lastReq = req
	f.lastCtx = ctx
	if f.err != nil {
		return nil, f.err
	}
	if f.out == nil {
		return &imagegen.Output{Images: []string{}}, nil
	}
	return f.out, nil
}

// =========================================================================
// FAKE CHECKOUT AND IDENTITY PROVIDERS
// =========================================================================

type fakeCheckout struct {
	configured bool
	url        string
	err        error
	reqs       []billing.CheckoutRequest
}

func (f *fakeCheckout) Configured() bool { return f.configured }

func (f *fakeCheckout) CreateSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.url, f.err
}

type fakeIdentityProvider struct {
	lastRedirect string
	lastVerifier string
	session      *auth.Session
	exchangeErr  error
	logoutErr    error
	logouts      []string
}

func (f *fakeIdentityProvider) AuthURL(redirectTo, verifier string) string {
	f.lastRedirect = redirectTo
	f.lastVerifier = verifier
	return "https://id.example/authorize"
}

func (f *fakeIdentityProvider) ExchangeCode(_ context.Context, code, verifier string) (*auth.Session, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if code == "" {
		return nil, errors.New("missing code")
	}
	return f.session, nil
}

func (f *fakeIdentityProvider) Logout(_ context.Context, token string) error {
	f.logouts = append(f.logouts, token)
	return f.logoutErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func user(id string) *model.Identity {
	return &model.Identity{ID: id, Email: id + "@example.com", Name: "User " + id, AccessToken: "tok-" + id}
}
