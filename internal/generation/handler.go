package generation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/snaplist-app/snaplist/internal/api"
	"github.com/snaplist-app/snaplist/internal/auth"
	"github.com/snaplist-app/snaplist/internal/governance"
	"github.com/snaplist-app/snaplist/internal/listings"
	"github.com/snaplist-app/snaplist/internal/metrics"
	"github.com/snaplist-app/snaplist/internal/middleware"
	inats "github.com/snaplist-app/snaplist/internal/nats"
	"github.com/snaplist-app/snaplist/internal/quota"
	"github.com/snaplist-app/snaplist/internal/ratelimit"
)

type GenerateRequest struct {
	ListingID *uuid.UUID `json:"listing_id"`
	Title     string     `json:"title" validate:"required,min=1,max=255"`
	Category  string     `json:"category" validate:"max=100"`
	Condition string     `json:"condition" validate:"omitempty,oneof=new like_new good fair poor"`
	Notes     string     `json:"notes" validate:"max=2000"`
	PhotoURLs []string   `json:"photo_urls" validate:"max=12,dive,url"`
}

type GenerateResponse struct {
	Copy      *Copy                    `json:"copy"`
	RateLimit ratelimit.Result         `json:"rate_limit"`
	Quota     *quota.Snapshot          `json:"quota,omitempty"`
	Anonymous *quota.AnonymousSnapshot `json:"anonymous,omitempty"`
}

// Handler fronts the metered generation endpoint: resolve identity,
// run the governance gates, generate, attach copy to the caller's
// listing when one is named, and emit a usage event off the hot path.
type Handler struct {
	gov         *governance.Service
	generator   Generator
	listingsSvc *listings.Service
	publisher   *inats.Publisher
	validate    *validator.Validate
}

func NewHandler(gov *governance.Service, generator Generator, listingsSvc *listings.Service, publisher *inats.Publisher) *Handler {
	return &Handler{
		gov:         gov,
		generator:   generator,
		listingsSvc: listingsSvc,
		publisher:   publisher,
		validate:    validator.New(),
	}
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	var identity *governance.Identity
	if claims := auth.GetUserClaims(r.Context()); claims != nil {
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		identity = &governance.Identity{UserID: userID}
	}

	ip := middleware.ClientIP(r)

	decision, err := h.gov.EvaluateRequest(r.Context(), identity, ip, governance.ActionGenerate)
	if err != nil {
		slog.Error("evaluating generation request", "error", err, "ip", ip)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	if !decision.Allowed {
		h.publishUsage(identity, ip, req.ListingID, false, decision.ErrorCode)
		api.HandleError(w, throttledError(decision))
		return
	}

	copyResult, err := h.generator.Generate(r.Context(), Input{
		Title:     req.Title,
		Category:  req.Category,
		Condition: req.Condition,
		Notes:     req.Notes,
		PhotoURLs: req.PhotoURLs,
	})
	if err != nil {
		// The unit is already consumed. No automatic refund: the caller
		// decides whether to retry or ask for their unit back.
		metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		slog.Error("generating listing copy", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	metrics.GenerationsTotal.WithLabelValues("success").Inc()

	if req.ListingID != nil && identity != nil {
		h.attachCopy(r.Context(), identity.UserID, *req.ListingID, copyResult)
	}

	h.publishUsage(identity, ip, req.ListingID, true, "")

	api.JSON(w, http.StatusOK, GenerateResponse{
		Copy:      copyResult,
		RateLimit: decision.RateLimit,
		Quota:     decision.Quota,
		Anonymous: decision.Anonymous,
	})
}

// attachCopy stores the copy on the caller's listing. Failures are
// logged, not surfaced: the caller already has the copy in the response.
func (h *Handler) attachCopy(ctx context.Context, userID, listingID uuid.UUID, c *Copy) {
	l, err := h.listingsSvc.GetByID(ctx, listingID)
	if err != nil || l == nil || l.OwnerUserID != userID {
		slog.Warn("skipping copy attach", "error", err, "listing_id", listingID)
		return
	}

	copyJSON, err := json.Marshal(c)
	if err != nil {
		slog.Error("marshaling generated copy", "error", err)
		return
	}

	if err := h.listingsSvc.AttachGeneratedCopy(ctx, l, copyJSON); err != nil {
		slog.Error("attaching generated copy", "error", err, "listing_id", listingID)
	}
}

// publishUsage emits the gate decision as a fire-and-forget event. The
// request context may be gone by the time the publish runs, so it gets
// its own deadline.
func (h *Handler) publishUsage(identity *governance.Identity, ip string, listingID *uuid.UUID, allowed bool, errorCode string) {
	if h.publisher == nil {
		return
	}

	event := inats.UsageEvent{
		Identifier: ratelimit.IPIdentifier(ip),
		Action:     governance.ActionGenerate,
		Allowed:    allowed,
		ErrorCode:  errorCode,
		IPAddress:  ip,
		Timestamp:  time.Now().UTC(),
	}
	if identity != nil {
		userID := identity.UserID
		event.UserID = &userID
		event.Identifier = ratelimit.UserIdentifier(userID.String())
	}
	if listingID != nil {
		event.ListingID = listingID.String()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.publisher.PublishUsageEvent(ctx, event); err != nil {
			slog.Warn("publishing usage event", "error", err)
		}
	}()
}

func throttledError(d *governance.Decision) *api.AppError {
	details := map[string]any{
		"rate_limit": d.RateLimit,
	}
	if d.Quota != nil {
		details["quota"] = d.Quota
	}
	if d.Anonymous != nil {
		details["anonymous"] = d.Anonymous
	}

	switch d.ErrorCode {
	case governance.CodeAnonymousDailyLimit:
		return api.NewThrottledError(api.CodeAnonymousDailyLimit, "anonymous daily creation limit reached, sign up to continue", details)
	case governance.CodeQuotaExceeded:
		return api.NewThrottledError(api.CodeQuotaExceeded, "creation quota exhausted", details)
	default:
		return api.NewThrottledError(api.CodeRateLimited, "too many requests, slow down", details)
	}
}
