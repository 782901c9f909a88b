package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/bananagen/internal/model"
)

const testIssuer = "https://proj.supabase.co/auth/v1"

// newTestTokenService creates a TokenService for testing.
// It uses a fixed, known secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", testIssuer)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

var testIdentity = model.Identity{
	ID:        "7d4c1f0e-user",
	Email:     "ada@example.com",
	Name:      "Ada Lovelace",
	AvatarURL: "https://cdn.example.com/ada.png",
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", "")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerify_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(testIdentity, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.ID != testIdentity.ID {
		t.Errorf("ID = %q, want %q", got.ID, testIdentity.ID)
	}
	if got.Email != testIdentity.Email {
		t.Errorf("Email = %q, want %q", got.Email, testIdentity.Email)
	}
	if got.Name != testIdentity.Name {
		t.Errorf("Name = %q, want %q", got.Name, testIdentity.Name)
	}
	if got.AvatarURL != testIdentity.AvatarURL {
		t.Errorf("AvatarURL = %q, want %q", got.AvatarURL, testIdentity.AvatarURL)
	}
	if got.AccessToken != token {
		t.Error("AccessToken should carry the verified token")
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(testIdentity, -time.Second)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = ts.Verify(context.Background(), token)
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Verify() error = %v, want ErrInvalidSession", err)
	}
}

func TestVerify_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(testIdentity, time.Hour)
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Verify(context.Background(), tampered); err == nil {
		t.Fatal("Verify() should reject a tampered token")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", "")
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", "")

	token, _ := ts1.Generate(testIdentity, time.Hour)

	if _, err := ts2.Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should fail when using a different secret")
	}
}

func TestVerify_WrongIssuer(t *testing.T) {
	other, _ := NewTokenService("test-secret-at-least-16-chars!!", "https://other.supabase.co/auth/v1")
	token, _ := other.Generate(testIdentity, time.Hour)

	if _, err := newTestTokenService(t).Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should reject a token from another project")
	}
}

func TestVerify_WrongAudience(t *testing.T) {
	secret := []byte("test-secret-at-least-16-chars!!")
	c := jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"anon"},
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := newTestTokenService(t).Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should reject the anon role token")
	}
}

func TestVerify_NoneAlgorithmRejected(t *testing.T) {
	c := jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := newTestTokenService(t).Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() must not accept alg=none")
	}
}

func TestVerify_GarbageString(t *testing.T) {
	ts := newTestTokenService(t)

	for _, tok := range []string{"", "not.a.jwt.token", "abc"} {
		if _, err := ts.Verify(context.Background(), tok); err == nil {
			t.Errorf("Verify(%q) should return an error", tok)
		}
	}
}

func TestFirstString(t *testing.T) {
	m := map[string]any{"name": "fallback", "picture": 42}

	if got := firstString(m, "full_name", "name"); got != "fallback" {
		t.Errorf("firstString() = %q, want %q", got, "fallback")
	}
	if got := firstString(m, "avatar_url", "picture"); got != "" {
		t.Errorf("non-string values should be skipped, got %q", got)
	}
}
