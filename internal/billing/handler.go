package billing

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/snaplist-app/snaplist/internal/api"
)

// Handler exposes the payment webhook and the operator reconciliation
// endpoints.
type Handler struct {
	payments   Repository
	reconciler *Reconciler
	secret     string
	validate   *validator.Validate
}

func NewHandler(payments Repository, reconciler *Reconciler, webhookSecret string) *Handler {
	return &Handler{
		payments:   payments,
		reconciler: reconciler,
		secret:     webhookSecret,
		validate:   validator.New(),
	}
}

type WebhookRequest struct {
	SessionID   string `json:"session_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required,uuid"`
	AmountCents int    `json:"amount_cents" validate:"required,gt=0"`
}

type ReconcileRequest struct {
	CreditsOverride *int `json:"credits_override" validate:"omitempty,gt=0"`
}

// Webhook records a completed checkout session and immediately grants
// its credits through the reconcile path. A replayed delivery inserts
// nothing and the recomputed shortfall is zero, so nothing is granted
// twice even when the provider retries.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		api.HandleError(w, api.NewValidationError("user_id must be a UUID"))
		return
	}

	payment := &Payment{
		SessionID:   req.SessionID,
		UserID:      userID,
		AmountCents: req.AmountCents,
	}
	if err := h.payments.Insert(r.Context(), payment); err != nil {
		slog.Error("recording payment", "error", err, "session_id", req.SessionID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	result := h.reconciler.ReconcilePayment(r.Context(), req.SessionID, nil)
	if !result.Success {
		slog.Error("crediting payment", "error", result.Error, "session_id", req.SessionID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// Reconcile repairs a single payment by session id.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		api.HandleError(w, api.NewValidationError("session id is required"))
		return
	}

	var req ReconcileRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.HandleError(w, api.ErrBadRequest)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
	}

	result := h.reconciler.ReconcilePayment(r.Context(), sessionID, req.CreditsOverride)
	if !result.Success {
		if result.Error == ErrPaymentNotFound.Error() {
			api.HandleError(w, api.NewNotFoundError("payment not found"))
			return
		}
		api.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	api.JSON(w, http.StatusOK, result)
}

// ReconcileAll repairs every undercredited payment.
func (h *Handler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reconciler.ReconcileAllPending(r.Context())
	if err != nil {
		slog.Error("bulk reconciliation", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, summary)
}

// OperatorMiddleware guards the admin reconciliation routes with the
// shared operator token.
func (h *Handler) OperatorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Operator-Token")), []byte(h.secret)) != 1 {
			api.HandleError(w, api.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		// No secret configured: accept and rely on network controls.
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Webhook-Secret")), []byte(h.secret)) == 1
}
