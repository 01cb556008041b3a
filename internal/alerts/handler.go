package alerts

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/insanelabs/witchcraft/internal/api"
	"github.com/insanelabs/witchcraft/internal/auth"
)

// Handler provides HTTP handlers for alert listing and acknowledgement.
type Handler struct {
	repo *Repository
}

// NewHandler creates a new alerts Handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns the account's alerts. Pass ?include_dismissed=true to see
// dismissed ones too.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())
	includeDismissed := r.URL.Query().Get("include_dismissed") == "true"

	alerts, err := h.repo.List(r.Context(), accountID, includeDismissed)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}

	api.JSON(w, http.StatusOK, alerts)
}

// UnreadCount returns the number of unread alerts, for badge rendering.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	count, err := h.repo.UnreadCount(r.Context(), accountID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]int64{"unread": count})
}

// MarkRead marks one alert as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid alert id"))
		return
	}

	updated, err := h.repo.MarkRead(r.Context(), accountID, alertID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !updated {
		api.HandleError(w, api.NewNotFoundError("alert not found"))
		return
	}

	api.JSONMessage(w, http.StatusOK, "alert marked read")
}

// Dismiss hides one alert from the default listing.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid alert id"))
		return
	}

	updated, err := h.repo.Dismiss(r.Context(), accountID, alertID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !updated {
		api.HandleError(w, api.NewNotFoundError("alert not found"))
		return
	}

	api.JSONMessage(w, http.StatusOK, "alert dismissed")
}
