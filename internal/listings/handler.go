package listings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/snaplist-app/snaplist/internal/api"
	"github.com/snaplist-app/snaplist/internal/auth"
)

type contextKey string

const listingCtxKey contextKey = "listing"

func SetListingInContext(ctx context.Context, l *Listing) context.Context {
	return context.WithValue(ctx, listingCtxKey, l)
}

func GetListingFromContext(ctx context.Context) *Listing {
	l, _ := ctx.Value(listingCtxKey).(*Listing)
	return l
}

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// OwnershipMiddleware loads the listing from the URL and verifies the
// authenticated caller owns it. 404 on both missing and foreign listings
// so ids cannot be probed.
func (h *Handler) OwnershipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetUserClaims(r.Context())
		if claims == nil {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}

		listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
		if err != nil {
			api.HandleError(w, api.ErrNotFound)
			return
		}

		l, err := h.svc.GetByID(r.Context(), listingID)
		if err != nil {
			slog.Error("loading listing", "error", err, "listing_id", listingID)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		if l == nil || l.OwnerUserID.String() != claims.UserID {
			api.HandleError(w, api.ErrNotFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetListingInContext(r.Context(), l)))
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	ownerID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	l, err := h.svc.Create(r.Context(), ownerID, &req)
	if err != nil {
		slog.Error("creating listing", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, l)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	ownerID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := parseListParams(r)

	items, totalCount, err := h.svc.ListByOwner(r.Context(), ownerID, params)
	if err != nil {
		slog.Error("listing listings", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, items, totalCount, params.Page, params.PageSize)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	l := GetListingFromContext(r.Context())
	if l == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSON(w, http.StatusOK, l)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	l := GetListingFromContext(r.Context())
	if l == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	var req UpdateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	updated, err := h.svc.Update(r.Context(), l, &req)
	if err != nil {
		slog.Error("updating listing", "error", err, "listing_id", l.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	l := GetListingFromContext(r.Context())
	if l == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	if err := h.svc.Delete(r.Context(), l.ID); err != nil {
		slog.Error("deleting listing", "error", err, "listing_id", l.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "listing deleted")
}

// AddFeedback accepts feedback on any listing, signed-in or not. It is
// deliberately outside the ownership chain: buyers are not owners.
func (h *Handler) AddFeedback(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
	if err != nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	l, err := h.svc.GetByID(r.Context(), listingID)
	if err != nil {
		slog.Error("loading listing for feedback", "error", err, "listing_id", listingID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if l == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	var userID *uuid.UUID
	if claims := auth.GetUserClaims(r.Context()); claims != nil {
		if parsed, perr := uuid.Parse(claims.UserID); perr == nil {
			userID = &parsed
		}
	}

	f, err := h.svc.AddFeedback(r.Context(), listingID, userID, &req)
	if err != nil {
		slog.Error("adding feedback", "error", err, "listing_id", listingID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, f)
}

func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
	if err != nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	items, err := h.svc.ListFeedback(r.Context(), listingID, parseListParams(r))
	if err != nil {
		slog.Error("listing feedback", "error", err, "listing_id", listingID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, items)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	return params
}
