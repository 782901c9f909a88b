package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Mode selects one of the two request shapes the provider accepts.
type Mode int

const (
	// ModeRich posts to /responses with an "input" array and an image
	// modality hint.
	ModeRich Mode = iota
	// ModeChat posts to /chat/completions with a "messages" array.
	ModeChat
)

func (m Mode) String() string {
	if m == ModeRich {
		return "responses"
	}
	return "chat"
}

func (m Mode) path() string {
	if m == ModeRich {
		return "/responses"
	}
	return "/chat/completions"
}

// ContentPart is one element of a message's content array.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextPart and ImagePart build content parts.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

type richRequest struct {
	Model      string    `json:"model"`
	Input      []Message `json:"input"`
	Modalities []string  `json:"modalities"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Reply is the provider's answer to one call, successful or not.
type Reply struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r *Reply) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// ClientConfig configures the OpenRouter client.
type ClientConfig struct {
	BaseURL  string // e.g. https://openrouter.ai/api/v1
	APIKey   string
	SiteURL  string // sent as HTTP-Referer for attribution
	SiteName string // sent as X-Title
}

// Client is a minimal OpenRouter HTTP client. It performs exactly one
// round trip per Send and never retries.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a Client. httpClient may be nil, in which case
// http.DefaultClient is used.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Send posts messages in the given mode. A non-nil error means the call
// never produced an HTTP response; provider errors come back as a Reply
// with a non-2xx status.
func (c *Client) Send(ctx context.Context, mode Mode, model string, messages []Message) (*Reply, error) {
	var payload any
	switch mode {
	case ModeRich:
		payload = richRequest{Model: model, Input: messages, Modalities: []string{"image"}}
	default:
		payload = chatRequest{Model: model, Messages: messages}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("imagegen: encoding %s request: %w", mode, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+mode.path(), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("imagegen: building %s request: %w", mode, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	req.Header.Set("X-Title", c.cfg.SiteName)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen: calling %s: %w", mode, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("imagegen: reading %s response: %w", mode, err)
	}
	return &Reply{Status: resp.StatusCode, Body: body}, nil
}
