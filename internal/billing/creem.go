package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sakif/bananagen/internal/apperror"
)

const creemProvider = "Creem"

// Customer pre-fills the hosted checkout form.
type Customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// CheckoutRequest is the body of POST /v1/checkout/sessions.
type CheckoutRequest struct {
	PriceID    string    `json:"price_id"`
	SuccessURL string    `json:"success_url"`
	CancelURL  string    `json:"cancel_url"`
	Customer   *Customer `json:"customer,omitempty"`
}

type checkoutResponse struct {
	URL       string `json:"url"`
	HostedURL string `json:"hosted_url"`
}

// CheckoutClient creates Creem checkout sessions.
type CheckoutClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewCheckoutClient creates a CheckoutClient. httpClient may be nil, in
// which case http.DefaultClient is used.
func NewCheckoutClient(baseURL, apiKey string, httpClient *http.Client) *CheckoutClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CheckoutClient{baseURL: baseURL, apiKey: apiKey, http: httpClient}
}

func (c *CheckoutClient) Configured() bool {
	return c.apiKey != ""
}

// CreateSession returns the hosted checkout URL for req.
func (c *CheckoutClient) CreateSession(ctx context.Context, req CheckoutRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("billing: encoding checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("billing: building checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("billing: calling checkout: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("billing: reading checkout response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperror.Upstream(creemProvider, resp.StatusCode, string(body))
	}

	var out checkoutResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("billing: decoding checkout response: %w", err)
	}
	url := out.URL
	if url == "" {
		url = out.HostedURL
	}
	if url == "" {
		return "", apperror.Upstream(creemProvider, resp.StatusCode, "checkout response has no url")
	}
	return url, nil
}
