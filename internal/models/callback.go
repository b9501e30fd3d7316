package models

// PurchaseCallbacks deliver the asynchronous outcome of a purchase started
// in this process. Completion may never arrive here: a purchase finished
// after a restart is recovered by the pending scanner and resolves without
// callbacks.
type PurchaseCallbacks struct {
	OnSuccess func(PurchaseEvent, EntitlementFacts)
	OnError   func(error)
}

// CallbackRegistration is the ephemeral, in-memory link between a purchase
// attempt started here and the platform event that completes it. It is
// consumed exactly once. Keyed primarily by the locally generated attempt
// id; the product id is the fallback for platform variants that do not echo
// the attempt id back.
type CallbackRegistration struct {
	AttemptID string
	ProductID string
	UserID    int
	Callbacks PurchaseCallbacks
}
