package models

import "time"

// SubscriptionRecord is the durable per-user entitlement document. IsPremium
// is set to true only as the direct result of a successful receipt
// validation; writes are field-level merges and are never rolled back when a
// later reconciliation step fails.
type SubscriptionRecord struct {
	IsPremium             bool      `json:"is_premium" firestore:"isPremium"`
	PlanID                string    `json:"plan_id" firestore:"planId"`
	TransactionID         string    `json:"transaction_id" firestore:"transactionId"`
	OriginalTransactionID string    `json:"original_transaction_id" firestore:"originalTransactionId"`
	ExpiresAt             time.Time `json:"expires_at" firestore:"expiresAt"`
	IsActive              bool      `json:"is_active" firestore:"isActive"`
	UpdatedAt             time.Time `json:"updated_at" firestore:"updatedAt"`
}

// SubscriptionFields builds the field-level merge payload for a verified
// purchase. Only entitlement fields are touched so unrelated user data is
// never clobbered.
func SubscriptionFields(event PurchaseEvent, facts EntitlementFacts, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"isPremium":             true,
		"planId":                facts.PlanID,
		"transactionId":         event.TransactionID,
		"originalTransactionId": event.OriginalTransactionID,
		"expiresAt":             facts.ExpiresAt,
		"isActive":              facts.Active,
		"updatedAt":             now,
	}
}

// PurchaseHistoryItem is one ledger row surfaced on the history endpoint.
type PurchaseHistoryItem struct {
	TransactionID         string    `json:"transaction_id"`
	OriginalTransactionID string    `json:"original_transaction_id"`
	ProductID             string    `json:"product_id"`
	Platform              string    `json:"platform"`
	PlanID                string    `json:"plan_id,omitempty"`
	ExpiresAt             time.Time `json:"expires_at,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}
