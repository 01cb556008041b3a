package rollover

import (
	"net/http"

	"github.com/insanelabs/witchcraft/internal/api"
)

// Handler exposes the admin trigger for an on-demand maintenance pass.
type Handler struct {
	svc *Service
}

// NewHandler creates a rollover Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type runResponse struct {
	RolledOver  int64 `json:"rolled_over"`
	DailyResets int64 `json:"daily_resets"`
}

// Run executes one maintenance pass and reports how many ledgers changed.
// Safe to call repeatedly.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	rolled, err := h.svc.RolloverElapsedPeriods(r.Context())
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	daily, err := h.svc.ResetDailyCounters(r.Context())
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, runResponse{RolledOver: rolled, DailyResets: daily})
}
