package services

import (
	"context"
	"errors"
	"strings"

	"dostarBack/internal/models"
)

// UserIdentityResolver looks up which user owns a transaction id. It is a
// pure lookup and never creates or mutates records. The ledger is consulted
// first as a cheap exact-match index; the entitlement store is the source of
// truth behind it.
type UserIdentityResolver struct {
	Store  EntitlementStore
	Ledger PurchaseLedger
}

// Resolve tries the transaction id first and falls back to the original
// transaction id, the platform's alias for the first purchase in a renewal
// chain. Returns models.ErrOwnerNotFound when no record matches.
func (r *UserIdentityResolver) Resolve(ctx context.Context, transactionID, originalTransactionID string) (int, error) {
	ids := make([]string, 0, 2)
	if strings.TrimSpace(transactionID) != "" {
		ids = append(ids, transactionID)
	}
	if strings.TrimSpace(originalTransactionID) != "" && originalTransactionID != transactionID {
		ids = append(ids, originalTransactionID)
	}

	for _, id := range ids {
		if r.Ledger != nil {
			userID, err := r.Ledger.GetOwnerByTransactionID(ctx, id)
			if err == nil && userID != 0 {
				return userID, nil
			}
			if err != nil && !errors.Is(err, models.ErrNoRecord) {
				return 0, err
			}
		}
		if r.Store != nil {
			userID, err := r.Store.FindOwnerByTransactionID(ctx, id)
			if err == nil && userID != 0 {
				return userID, nil
			}
			if err != nil && !errors.Is(err, models.ErrNoRecord) {
				return 0, err
			}
		}
	}
	return 0, models.ErrOwnerNotFound
}
