package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/snaplist-app/snaplist/internal/metrics"
)

// Reconciler re-derives credits owed from payment records and grants any
// shortfall. It is the compensating mechanism for webhook delivery
// failures: safe to re-run, safe to run concurrently with live payment
// processing, and per-payment failures never abort a batch.
type Reconciler struct {
	payments Repository
	pricing  Pricing
}

func NewReconciler(payments Repository, pricing Pricing) *Reconciler {
	return &Reconciler{payments: payments, pricing: pricing}
}

// ReconcilePayment grants the shortfall for one payment. creditsOverride,
// when non-nil, replaces the amount-derived owed value (operator repair
// for mispriced sessions). Re-invoking after a successful grant adds
// nothing: the shortfall recomputes to zero from persisted state.
func (r *Reconciler) ReconcilePayment(ctx context.Context, sessionID string, creditsOverride *int) CreditGrantResult {
	result := CreditGrantResult{SessionID: sessionID}

	if sessionID == "" {
		result.Error = "session id is required"
		return result
	}

	p, err := r.payments.GetBySession(ctx, sessionID)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	owed := r.pricing.CreditsOwed(p.AmountCents)
	if creditsOverride != nil {
		owed = *creditsOverride
	}
	if owed <= 0 {
		result.Error = fmt.Sprintf("credits owed must be positive, got %d", owed)
		return result
	}

	added, err := r.payments.ClaimShortfall(ctx, sessionID, owed)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.CreditsAdded = added
	if added > 0 {
		metrics.CreditsReconciledTotal.Add(float64(added))
		slog.Info("reconciled payment credits",
			"session_id", sessionID, "user_id", p.UserID, "credits_added", added)
	}
	return result
}

// ReconcileAllPending scans payments with granted credits below owed and
// repairs each independently. The returned summary reports every
// payment's outcome; an individual failure is counted, not propagated.
func (r *Reconciler) ReconcileAllPending(ctx context.Context) (*ReconcileSummary, error) {
	pending, err := r.payments.ListUndercredited(ctx, r.pricing.CreditsPerDollar)
	if err != nil {
		return nil, fmt.Errorf("scanning pending payments: %w", err)
	}

	summary := &ReconcileSummary{}
	for _, p := range pending {
		res := r.ReconcilePayment(ctx, p.SessionID, nil)
		summary.Processed++
		if res.Success {
			summary.Successful++
			summary.TotalCreditsAdded += res.CreditsAdded
		} else {
			summary.Failed++
			slog.Warn("payment reconciliation failed",
				"session_id", p.SessionID, "error", res.Error)
		}
		summary.Results = append(summary.Results, res)
	}

	slog.Info("bulk reconciliation finished",
		"processed", summary.Processed,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"total_credits_added", summary.TotalCreditsAdded)
	return summary, nil
}
