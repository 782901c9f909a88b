package handler

import (
	"net/http"

	"github.com/sakif/bananagen/internal/auth"
	"github.com/sakif/bananagen/internal/model"
	"github.com/sakif/bananagen/internal/service"
)

type PointsHandler struct {
	svc *service.PointsService
}

func NewPointsHandler(svc *service.PointsService) *PointsHandler {
	return &PointsHandler{svc: svc}
}

// HistoryResponse wraps the ledger so the reply stays an object.
type HistoryResponse struct {
	History []model.LedgerEntry `json:"history"`
}

// HandleBalance returns {"points": n}.
//
// HTTP: GET /api/points/balance
func (h *PointsHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	who, _ := auth.IdentityFromContext(r.Context())

	b, err := h.svc.Balance(r.Context(), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleHistory returns the caller's newest ledger entries.
//
// HTTP: GET /api/points/history
func (h *PointsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	who, _ := auth.IdentityFromContext(r.Context())

	entries, err := h.svc.History(r.Context(), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{History: entries})
}
