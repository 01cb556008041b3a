package accounts

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/insanelabs/witchcraft/internal/api"
	"github.com/insanelabs/witchcraft/internal/auth"
)

// Handler provides HTTP handlers for account sync and profile reads.
type Handler struct {
	svc      *Service
	keys     *auth.APIKeyStore
	validate *validator.Validate
}

// NewHandler creates an accounts Handler.
func NewHandler(svc *Service, keys *auth.APIKeyStore) *Handler {
	return &Handler{svc: svc, keys: keys, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Ensure is the admin sync endpoint: the identity provider pushes account
// records here, which also provisions the quota ledger.
func (h *Handler) Ensure(w http.ResponseWriter, r *http.Request) {
	var in EnsureInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	account, err := h.svc.Ensure(r.Context(), &in)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, account)
}

// Me returns the authenticated account's mirror record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	account, err := h.svc.Get(r.Context(), accountID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if account == nil {
		api.HandleError(w, api.NewNotFoundError("account not found"))
		return
	}

	api.JSON(w, http.StatusOK, account)
}

type issueKeyRequest struct {
	Label string `json:"label" validate:"max=128"`
}

type issueKeyResponse struct {
	Key string `json:"key"`
}

// IssueKey mints a new API key for the authenticated account. The raw key is
// returned exactly once; only its hash is stored.
func (h *Handler) IssueKey(w http.ResponseWriter, r *http.Request) {
	accountID := auth.GetAccountID(r.Context())

	var req issueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	key, err := h.keys.Issue(r.Context(), accountID, req.Label)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, issueKeyResponse{Key: key})
}
