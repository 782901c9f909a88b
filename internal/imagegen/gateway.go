// Package imagegen turns a prompt and optional reference images into
// generated images through an external multi-modal inference provider.
//
// GENERATION ALGORITHM:
//  1. Resolve the public model selector (ResolveModel).
//  2. Build a user message from the prompt and reference images, preceded
//     by a fixed system instruction that asks for image-only output.
//  3. Call the provider in rich mode; if that yields no images, call it in
//     chat mode.
//  4. Extract images from every response by walking the whole JSON tree
//     (ExtractImages).
//  5. If reference images were given and nothing came back, retry once
//     with the text alone, again rich mode then chat mode.
//
// Only a failure of both primary calls is an error. Successful calls that
// produce no image are an empty result.
package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/sakif/bananagen/internal/apperror"
	"github.com/sakif/bananagen/internal/model"
)

const providerName = "OpenRouter"

const systemInstruction = "You are an image generation model. Given user instructions and optional reference images, " +
	"generate and return an image only. Do not return plain text. If you must return data, " +
	"return a data URL (data:image/png;base64,...) of the image."

// Prompts used by the text-only retry when the caller gave no prompt.
const (
	defaultRichPrompt = "Generate an artistic variation of the provided scene."
	defaultChatPrompt = "Generate an artistic image."
)

// Provider sends one request to the inference API.
type Provider interface {
	Send(ctx context.Context, mode Mode, model string, messages []Message) (*Reply, error)
	Configured() bool
}

// Output is the result of Generate. Raw is the first provider body that
// was valid JSON, kept for diagnostics; it is nil when there was none.
type Output struct {
	Images []string
	Raw    json.RawMessage
}

// Gateway runs the generation algorithm against a Provider.
type Gateway struct {
	provider Provider
	logger   *slog.Logger
}

func NewGateway(provider Provider, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: provider, logger: logger}
}

// Ready reports whether the gateway can reach a provider. Callers check it
// before charging for a generation.
func (g *Gateway) Ready() error {
	if g.provider == nil || !g.provider.Configured() {
		return apperror.Misconfigured("Missing OPENROUTER_API_KEY")
	}
	return nil
}

// attempt tracks the state shared by the calls of one Generate.
type attempt struct {
	g      *Gateway
	model  string
	images []string
	raw    json.RawMessage
}

// keepRaw stores body as the diagnostic payload unless one is set already.
func (a *attempt) keepRaw(body []byte) {
	if a.raw == nil && len(body) > 0 && json.Valid(body) {
		a.raw = json.RawMessage(body)
	}
}

// extract reads images out of body. An unparsable body yields nothing.
func (a *attempt) extract(mode Mode, body []byte) []string {
	imgs, err := ExtractJSON(body)
	if err != nil {
		a.g.logger.Debug("provider body is not JSON",
			slog.String("mode", mode.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return imgs
}

func (a *attempt) send(ctx context.Context, mode Mode, msgs []Message) (*Reply, error) {
	reply, err := a.g.provider.Send(ctx, mode, a.model, msgs)
	switch {
	case err != nil:
		a.g.logger.Warn("provider call failed",
			slog.String("mode", mode.String()),
			slog.String("error", err.Error()),
		)
	case !reply.OK():
		a.g.logger.Warn("provider returned error status",
			slog.String("mode", mode.String()),
			slog.Int("status", reply.Status),
		)
	}
	return reply, err
}

// Generate runs the full algorithm for req.
func (g *Gateway) Generate(ctx context.Context, req model.GenerationRequest) (*Output, error) {
	if err := g.Ready(); err != nil {
		return nil, err
	}
	m, err := ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}

	a := &attempt{g: g, model: m.ProviderID}

	content := make([]ContentPart, 0, len(req.Images)+1)
	if req.Prompt != "" {
		content = append(content, TextPart(req.Prompt))
	}
	for _, img := range req.Images {
		content = append(content, ImagePart(img))
	}
	msgs := conversation(content)

	// primary attempt
	r1, err1 := a.send(ctx, ModeRich, msgs)
	richOK := err1 == nil && r1.OK()
	if richOK {
		a.keepRaw(r1.Body)
		a.images = a.extract(ModeRich, r1.Body)
	}

	if len(a.images) == 0 {
		r2, err2 := a.send(ctx, ModeChat, msgs)
		if err2 == nil {
			a.keepRaw(r2.Body)
		}
		switch {
		case err2 == nil && r2.OK():
			a.images = a.extract(ModeChat, r2.Body)
		case !richOK:
			return nil, upstreamError(r1, err1, r2, err2)
		}
	}

	// text-only retry
	if len(a.images) == 0 && len(req.Images) > 0 {
		g.logger.Info("no image from reference request, retrying text-only",
			slog.Int("references", len(req.Images)),
		)

		rt1, err := a.send(ctx, ModeRich, conversation([]ContentPart{TextPart(orDefault(req.Prompt, defaultRichPrompt))}))
		if err == nil && rt1.OK() {
			if out := a.extract(ModeRich, rt1.Body); len(out) > 0 {
				a.images = out
			}
			a.keepRaw(rt1.Body)
		}

		if len(a.images) == 0 {
			rt2, err := a.send(ctx, ModeChat, conversation([]ContentPart{TextPart(orDefault(req.Prompt, defaultChatPrompt))}))
			if err == nil {
				a.keepRaw(rt2.Body)
				if rt2.OK() {
					a.images = a.extract(ModeChat, rt2.Body)
				}
			}
		}
	}

	images := a.images
	if images == nil {
		images = []string{}
	}
	return &Output{Images: images, Raw: a.raw}, nil
}

func conversation(user []ContentPart) []Message {
	return []Message{
		{Role: "system", Content: []ContentPart{TextPart(systemInstruction)}},
		{Role: "user", Content: user},
	}
}

// upstreamError reports the failure of both primary calls. The chat call's
// status and body take precedence, as it is the most recent answer.
func upstreamError(r1 *Reply, err1 error, r2 *Reply, err2 error) error {
	status := 0
	body := ""
	if r1 != nil {
		status, body = r1.Status, string(r1.Body)
	}
	if r2 != nil {
		if r2.Status != 0 {
			status = r2.Status
		}
		if len(r2.Body) > 0 {
			body = string(r2.Body)
		}
	}
	if body == "" {
		if e := errors.Join(err1, err2); e != nil {
			body = e.Error()
		}
	}
	return apperror.Upstream(providerName, status, body)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
