package usage

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/insanelabs/witchcraft/internal/api"
	"github.com/insanelabs/witchcraft/internal/auth"
)

// Handler provides HTTP handlers for usage recording and summaries.
type Handler struct {
	svc *Service
}

// NewHandler creates a new usage Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Record ingests one usage event for the authenticated account.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	var in RecordInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	in.AccountID = accountID

	event, err := h.svc.Record(r.Context(), &in)
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, event)
}

// Summary serves the activity summary for the last N days (default 30).
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	summary, err := h.svc.Summary(r.Context(), accountID, queryDays(r))
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, summary)
}

// Daily serves the per-day breakdown for the last N days (default 30).
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	rollups, err := h.svc.Daily(r.Context(), accountID, queryDays(r))
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if rollups == nil {
		rollups = []DailyRollup{}
	}

	api.JSON(w, http.StatusOK, rollups)
}

func queryDays(r *http.Request) int {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 || days > 365 {
		return 30
	}
	return days
}
