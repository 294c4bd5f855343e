package usage

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/snaplist-app/snaplist/internal/api"
	"github.com/snaplist-app/snaplist/internal/auth"
)

// Handler exposes the authenticated user's usage history.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns the caller's gate decisions, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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

	params := DefaultListParams()
	q := r.URL.Query()
	if p := q.Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	if a := q.Get("action"); a != "" {
		params.Action = a
	}
	if al := q.Get("allowed"); al != "" {
		if parsed, err := strconv.ParseBool(al); err == nil {
			params.Allowed = &parsed
		}
	}
	if f := q.Get("from"); f != "" {
		if parsed, err := time.Parse(time.RFC3339, f); err == nil {
			params.From = &parsed
		}
	}
	if t := q.Get("to"); t != "" {
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			params.To = &parsed
		}
	}

	records, totalCount, err := h.repo.ListByUser(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing usage records", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, records, totalCount, params.Page, params.PageSize)
}
