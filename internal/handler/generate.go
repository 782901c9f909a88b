package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/bananagen/internal/auth"
	"github.com/sakif/bananagen/internal/service"
)

// IdempotencyHeader carries the client's request id into the ledger meta.
const IdempotencyHeader = "Idempotency-Key"

// GenerateHandler serves paid image generations.
type GenerateHandler struct {
	svc    *service.GenerationService
	logger *slog.Logger
}

func NewGenerateHandler(svc *service.GenerationService, logger *slog.Logger) *GenerateHandler {
	return &GenerateHandler{svc: svc, logger: logger}
}

// HandleGenerate runs one generation.
//
// HTTP: POST /api/generate
//
// Body: {"prompt": "...", "images": ["data:image/...", "https://..."], "model": "nano-banana"}
// Reply: {"images": [...], "raw": {...}, "remainingPoints": 8}
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	who, _ := auth.IdentityFromContext(r.Context())

	var in service.GenerateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.svc.Generate(r.Context(), who, in, r.Header.Get(IdempotencyHeader))
	if err != nil {
		status, _ := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("generation failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
