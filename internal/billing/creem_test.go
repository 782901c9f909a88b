package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bananagen/internal/apperror"
)

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantURL  string
		upstream bool
	}{
		{name: "url field", status: 200, body: `{"url":"https://pay.creem.io/c/1"}`, wantURL: "https://pay.creem.io/c/1"},
		{name: "hosted_url field", status: 201, body: `{"hosted_url":"https://pay.creem.io/c/2"}`, wantURL: "https://pay.creem.io/c/2"},
		{name: "provider error", status: 400, body: `{"message":"unknown price"}`, upstream: true},
		{name: "no url in answer", status: 200, body: `{}`, upstream: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got CheckoutRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
				assert.Equal(t, "Bearer creem-key", r.Header.Get("Authorization"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewCheckoutClient(srv.URL, "creem-key", srv.Client())
			url, err := c.CreateSession(context.Background(), CheckoutRequest{
				PriceID:    "price_pro_m",
				SuccessURL: "https://app.example/pricing?status=success",
				CancelURL:  "https://app.example/pricing?status=cancelled",
				Customer:   &Customer{Email: "ada@example.com", Name: "Ada"},
			})

			assert.Equal(t, "price_pro_m", got.PriceID)
			require.NotNil(t, got.Customer)
			assert.Equal(t, "ada@example.com", got.Customer.Email)

			if tt.upstream {
				assert.True(t, errors.Is(err, apperror.ErrUpstream))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, url)
		})
	}
}

func TestCheckoutClient_Configured(t *testing.T) {
	assert.False(t, NewCheckoutClient("https://api.creem.io", "", nil).Configured())
	assert.True(t, NewCheckoutClient("https://api.creem.io", "k", nil).Configured())
}
