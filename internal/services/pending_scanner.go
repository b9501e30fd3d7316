package services

import (
	"context"
	"log"

	"dostarBack/internal/models"
)

// PendingPurchaseScanner drains every purchase the platform still considers
// unacknowledged through the normal reconciliation path. It runs on every
// cold start so purchases completed while the process was down are never
// lost. Items are processed sequentially on purpose: it bounds load on the
// verification service and keeps one user's pending purchases from racing
// each other's writes.
type PendingPurchaseScanner struct {
	Platform   BillingPlatform
	Reconciler *PurchaseReconciler
	InfoLog    *log.Logger
	ErrorLog   *log.Logger
}

// Scan lists and reconciles pending purchases one by one. A failure on one
// item is isolated; the rest of the scan continues.
func (s *PendingPurchaseScanner) Scan(ctx context.Context) error {
	pending, err := s.Platform.ListPendingPurchases(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	if s.InfoLog != nil {
		s.InfoLog.Printf("recovering %d pending purchase(s)", len(pending))
	}
	for _, event := range pending {
		s.reconcileOne(ctx, event)
	}
	return nil
}

func (s *PendingPurchaseScanner) reconcileOne(ctx context.Context, event models.PurchaseEvent) {
	defer func() {
		if rec := recover(); rec != nil && s.ErrorLog != nil {
			s.ErrorLog.Printf("panic while recovering purchase %s: %v", event.TransactionID, rec)
		}
	}()
	if _, err := s.Reconciler.Reconcile(ctx, event); err != nil && s.ErrorLog != nil {
		s.ErrorLog.Printf("recover purchase %s: %v", event.TransactionID, err)
	}
}
