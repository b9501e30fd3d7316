package services

import (
	"context"

	"dostarBack/internal/models"
)

// Normalized billing platform error codes. Both store variants are mapped
// into this set by the bridge before they reach the classifier.
const (
	PlatformErrServiceDisconnected = -1
	PlatformErrUserCancelled       = 1
	PlatformErrServiceUnavailable  = 2
	PlatformErrBillingUnavailable  = 3
	PlatformErrItemUnavailable     = 4
	PlatformErrDeveloperError      = 5
	PlatformErrGeneric             = 6
	PlatformErrItemAlreadyOwned    = 7
	PlatformErrItemNotOwned        = 8
	PlatformErrNetwork             = 12
)

// PlatformError is a raw error event delivered by the billing platform
// alongside the purchase stream.
type PlatformError struct {
	Code      int
	Message   string
	AttemptID string
	ProductID string
}

// PurchaseRequest asks the platform to start its native purchase flow. The
// call only starts the flow; completion arrives later through the listener,
// possibly after this process has been restarted.
type PurchaseRequest struct {
	AttemptID string
	ProductID string
	UserID    int
}

// PurchaseListener receives the single event stream of the platform
// connection. There is exactly one active listener per session.
type PurchaseListener interface {
	OnPurchaseUpdated(models.PurchaseEvent)
	OnPurchaseFailed(PlatformError)
}

// ListenerHandle is an owned reference to an attached listener. The session
// keeps it so re-initialization can check handle presence instead of a
// package-level flag.
type ListenerHandle interface {
	Detach()
}

// BillingPlatform is the external store subsystem that sells products and
// emits purchase events.
type BillingPlatform interface {
	AttachListener(l PurchaseListener) (ListenerHandle, error)
	LoadProducts(ctx context.Context) ([]models.Product, error)
	StartPurchase(ctx context.Context, req PurchaseRequest) error
	// Acknowledge tells the platform this transaction is fully handled so it
	// stops redelivering it. The platform side treats duplicates as no-ops.
	Acknowledge(ctx context.Context, event models.PurchaseEvent, consumable bool) error
	ListPendingPurchases(ctx context.Context) ([]models.PurchaseEvent, error)
}

// EntitlementStore is the document-per-user store holding subscription
// records. Writes are field-level merges and tolerate eventual consistency.
type EntitlementStore interface {
	GetSubscription(ctx context.Context, userID int) (models.SubscriptionRecord, error)
	MergeWriteSubscription(ctx context.Context, userID int, fields map[string]interface{}) error
	// FindOwnerByTransactionID matches stored transactionId or
	// originalTransactionId, most recent match first.
	FindOwnerByTransactionID(ctx context.Context, transactionID string) (int, error)
}

// PurchaseLedger is the durable record of reconciled purchases, used for
// audit, history and as a cheap owner index.
type PurchaseLedger interface {
	IsProcessed(ctx context.Context, transactionID string) (bool, error)
	Save(ctx context.Context, event models.PurchaseEvent, userID int, facts *models.EntitlementFacts) error
	GetOwnerByTransactionID(ctx context.Context, transactionID string) (int, error)
}

// AckCache deduplicates logical acknowledgements across redeliveries. The
// mark is written only after the platform confirmed the ack, so a failed or
// undeliverable ack is retried on the next redelivery. On cache outage both
// sides degrade to acknowledging, since the platform tolerates duplicate
// acks.
type AckCache interface {
	IsAcknowledged(ctx context.Context, transactionID string) (bool, error)
	MarkAcknowledged(ctx context.Context, transactionID string) (bool, error)
}
