package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"dostarBack/internal/models"
)

// ReconcileState names the stations of one purchase event's reconciliation.
// Terminal states are the Acknowledged variants and Cancelled.
type ReconcileState string

const (
	StateReceived               ReconcileState = "received"
	StateValidating             ReconcileState = "validating"
	StateVerified               ReconcileState = "verified"
	StateIdentified             ReconcileState = "identified"
	StatePersisted              ReconcileState = "persisted"
	StateAcknowledged           ReconcileState = "acknowledged"
	StateAcknowledgedUnverified ReconcileState = "acknowledged_unverified"
	StateCancelled              ReconcileState = "cancelled"
)

// ReceiptVerifier is what the reconciler needs from the receipt validator.
type ReceiptVerifier interface {
	Validate(ctx context.Context, receipt string) (models.ValidationResult, error)
}

// PurchaseReconciler turns one at-least-once purchase event into a verified,
// idempotent entitlement: validate, identify, persist, acknowledge. A user
// is never granted entitlement without a successful validation, and once
// granted it is never revoked because a later step failed.
type PurchaseReconciler struct {
	Platform  BillingPlatform
	Validator ReceiptVerifier
	Resolver  *UserIdentityResolver
	Store     EntitlementStore
	Ledger    PurchaseLedger
	Acks      AckCache
	Anomalies *AnomalyReporter
	Registry  *CallbackRegistry
	// LookupProduct reports the catalog entry for a product id; used only to
	// decide whether acknowledging consumes the product.
	LookupProduct func(productID string) (models.Product, bool)

	InfoLog  *log.Logger
	ErrorLog *log.Logger

	now func() time.Time
}

func (r *PurchaseReconciler) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

// Reconcile drives a single event to a terminal state. The returned error is
// non-nil only when the event could not reach one: validation that never
// concluded leaves the event unacknowledged so the platform redelivers it.
func (r *PurchaseReconciler) Reconcile(ctx context.Context, event models.PurchaseEvent) (ReconcileState, error) {
	if event.State == models.PurchaseStateCancelled {
		// Cancellation is not a completed transaction: no validation, no
		// acknowledgement. The callback gets the cancellation signal.
		if reg := r.takeRegistration(event); reg != nil && reg.Callbacks.OnError != nil {
			reg.Callbacks.OnError(models.NewPurchaseError(models.CategoryUserCancelled, 0, "purchase was cancelled"))
		}
		r.infof("purchase %s cancelled by user", event.TransactionID)
		return StateCancelled, nil
	}

	result, err := r.Validator.Validate(ctx, event.Receipt)
	if err != nil {
		// Transient budget exhausted. Surface it, but do not acknowledge:
		// the event stays pending at the platform and will be redelivered.
		if reg := r.takeRegistration(event); reg != nil && reg.Callbacks.OnError != nil {
			reg.Callbacks.OnError(models.NewPurchaseError(models.CategoryTransient, result.StatusCode,
				"the purchase could not be verified right now, it will be retried"))
		}
		return StateValidating, fmt.Errorf("validate %s: %w", event.TransactionID, err)
	}

	if !result.IsValid {
		// Terminal-invalid receipts are still acknowledged so the platform
		// does not redeliver them forever.
		r.acknowledge(ctx, event)
		if reg := r.takeRegistration(event); reg != nil && reg.Callbacks.OnError != nil {
			reg.Callbacks.OnError(models.NewPurchaseError(models.CategoryTerminalInvalid, result.StatusCode, result.Reason))
		}
		r.errorf("purchase %s rejected (status %d): %s", event.TransactionID, result.StatusCode, result.Reason)
		return StateAcknowledgedUnverified, nil
	}

	facts := result.Facts
	if facts == nil {
		facts = &models.EntitlementFacts{Active: true}
	}

	reg := r.takeRegistration(event)
	userID, err := r.resolveUser(ctx, event, reg)
	if err != nil {
		// Verified but ownerless: acknowledge, report the orphan, grant
		// nothing. Entitlement is never guessed.
		r.Anomalies.ReportOrphan(ctx, event)
		r.acknowledge(ctx, event)
		return StateAcknowledged, nil
	}

	r.persist(ctx, event, userID, facts)
	r.acknowledge(ctx, event)

	if reg != nil && reg.Callbacks.OnSuccess != nil {
		reg.Callbacks.OnSuccess(event, *facts)
	}
	r.infof("purchase %s reconciled for user %d (plan %s)", event.TransactionID, userID, facts.PlanID)
	return StateAcknowledged, nil
}

func (r *PurchaseReconciler) takeRegistration(event models.PurchaseEvent) *models.CallbackRegistration {
	if r.Registry == nil {
		return nil
	}
	return r.Registry.Take(event.AttemptID, event.ProductID)
}

func (r *PurchaseReconciler) resolveUser(ctx context.Context, event models.PurchaseEvent, reg *models.CallbackRegistration) (int, error) {
	if reg != nil && reg.UserID != 0 {
		return reg.UserID, nil
	}
	if r.Resolver == nil {
		return 0, models.ErrOwnerNotFound
	}
	return r.Resolver.Resolve(ctx, event.TransactionID, event.OriginalTransactionID)
}

// persist merge-writes the subscription record and appends the ledger row.
// Both writes are best-effort with respect to acknowledgement: a lost write
// becomes a monitored anomaly, never a repeated payment prompt.
func (r *PurchaseReconciler) persist(ctx context.Context, event models.PurchaseEvent, userID int, facts *models.EntitlementFacts) {
	if r.Store != nil {
		fields := models.SubscriptionFields(event, *facts, r.clock())
		if err := r.Store.MergeWriteSubscription(ctx, userID, fields); err != nil {
			r.Anomalies.ReportPersistenceFailure(ctx, event, userID, err)
		}
	}
	if r.Ledger != nil {
		processed, err := r.Ledger.IsProcessed(ctx, event.TransactionID)
		if err != nil {
			r.errorf("ledger check %s: %v", event.TransactionID, err)
			return
		}
		if processed {
			return
		}
		if err := r.Ledger.Save(ctx, event, userID, facts); err != nil {
			r.Anomalies.ReportPersistenceFailure(ctx, event, userID, err)
		}
	}
}

// acknowledge performs at most one logical acknowledgement per transaction.
// The cache is consulted first to suppress duplicates across redeliveries,
// but it is only marked after the platform confirmed the ack: a failed ack
// must stay retryable or the platform never hears about the transaction.
// Cache outages degrade to acknowledging, which the platform treats as a
// no-op when duplicated.
func (r *PurchaseReconciler) acknowledge(ctx context.Context, event models.PurchaseEvent) {
	if r.Acks != nil {
		done, err := r.Acks.IsAcknowledged(ctx, event.TransactionID)
		if err != nil {
			r.errorf("ack cache %s: %v", event.TransactionID, err)
		} else if done {
			return
		}
	}
	consumable := false
	if r.LookupProduct != nil {
		if product, ok := r.LookupProduct(event.ProductID); ok {
			consumable = product.IsConsumable()
		}
	}
	if err := r.Platform.Acknowledge(ctx, event, consumable); err != nil {
		r.errorf("acknowledge %s: %v", event.TransactionID, err)
		return
	}
	if r.Acks != nil {
		if _, err := r.Acks.MarkAcknowledged(ctx, event.TransactionID); err != nil {
			r.errorf("ack cache %s: %v", event.TransactionID, err)
		}
	}
}

func (r *PurchaseReconciler) infof(format string, args ...interface{}) {
	if r.InfoLog != nil {
		r.InfoLog.Printf(format, args...)
	}
}

func (r *PurchaseReconciler) errorf(format string, args ...interface{}) {
	if r.ErrorLog != nil {
		r.ErrorLog.Printf(format, args...)
	}
}
