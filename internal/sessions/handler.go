package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/insanelabs/witchcraft/internal/api"
	"github.com/insanelabs/witchcraft/internal/auth"
)

// Handler provides HTTP handlers for sessions and their messages.
type Handler struct {
	repo     *Repository
	validate *validator.Validate
}

// NewHandler creates a new sessions Handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Create starts a new session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	session, err := h.repo.Create(r.Context(), accountID, &in)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, session)
}

// List returns the account's sessions, most recently active first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := h.repo.List(r.Context(), accountID, limit)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}

	api.JSON(w, http.StatusOK, sessions)
}

// Get returns one session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.repo.Get(r.Context(), accountID, sessionID)
	if err != nil {
		h.repoError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, session)
}

// End closes a session. Idempotent.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.repo.End(r.Context(), accountID, sessionID)
	if err != nil {
		h.repoError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, session)
}

// AppendMessage adds one message to a live session.
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var in MessageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	msg, err := h.repo.AppendMessage(r.Context(), accountID, sessionID, &in)
	if err != nil {
		h.repoError(w, err)
		return
	}

	api.JSON(w, http.StatusCreated, msg)
}

// ListMessages returns the session's messages in sequence order.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	msgs, err := h.repo.ListMessages(r.Context(), accountID, sessionID)
	if err != nil {
		h.repoError(w, err)
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}

	api.JSON(w, http.StatusOK, msgs)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) repoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		api.HandleError(w, api.NewNotFoundError("session not found"))
	case errors.Is(err, ErrSessionEnded):
		api.HandleError(w, api.NewBadRequestError("session already ended"))
	default:
		api.HandleError(w, api.ErrInternalServer)
	}
}
