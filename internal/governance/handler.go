package governance

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/snaplist-app/snaplist/internal/api"
	"github.com/snaplist-app/snaplist/internal/auth"
)

// Handler provides the quota snapshot endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetQuota returns the authenticated user's current quota snapshot.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	snap, err := h.svc.GetQuotaSnapshot(r.Context(), userID)
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, snap)
}

type setPlanRequest struct {
	IsPro bool `json:"is_pro"`
}

// SetPlan is the operator endpoint that moves a user between tiers.
func (h *Handler) SetPlan(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, api.NewValidationError("user id must be a UUID"))
		return
	}

	var req setPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.svc.SetPlan(r.Context(), userID, req.IsPro); err != nil {
		slog.Error("setting plan", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "plan updated")
}
