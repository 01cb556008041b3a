package quota

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/insanelabs/witchcraft/internal/api"
	"github.com/insanelabs/witchcraft/internal/auth"
	"github.com/insanelabs/witchcraft/internal/database"
)

// Handler provides HTTP handlers for the quota gate and ledger status.
type Handler struct {
	svc *Service
}

// NewHandler creates a new quota Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type consumeRequest struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

type consumeResponse struct {
	Admitted bool   `json:"admitted"`
	Reason   string `json:"reason,omitempty"`
}

// Consume is the tryConsume entry point. A denial is a 200 with
// admitted=false, not an error; a missing ledger is a 404.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if req.Tokens < 0 || req.Cost < 0 {
		api.HandleError(w, api.NewValidationError("tokens and cost must be non-negative"))
		return
	}

	dec, err := h.svc.TryConsume(r.Context(), accountID, req.Tokens, req.Cost)
	if err != nil {
		switch {
		case errors.Is(err, ErrLedgerNotFound):
			api.HandleError(w, api.ErrLedgerMissing)
		case database.IsSerializationFailure(err):
			api.HandleError(w, api.ErrTransient)
		default:
			api.HandleError(w, api.ErrInternalServer)
		}
		return
	}

	api.JSON(w, http.StatusOK, consumeResponse{Admitted: dec.Admitted, Reason: dec.Reason})
}

// GetQuota returns the authenticated account's remaining budgets.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	remaining, err := h.svc.Remaining(r.Context(), accountID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, remaining)
}
