package models

const (
	ProductKindSubscription = "subscription"
	ProductKindConsumable   = "consumable"
)

// Product is a catalog entry. The catalog is loaded once per billing session
// and is immutable afterwards.
type Product struct {
	ID    string  `json:"id" yaml:"id"`
	Kind  string  `json:"kind" yaml:"kind"`
	Price float64 `json:"price" yaml:"price"`
	Title string  `json:"title" yaml:"title"`
}

// IsConsumable reports whether acknowledging this product should consume it.
// Unknown kinds are treated as non-consumable so a subscription is never
// accidentally consumed.
func (p Product) IsConsumable() bool {
	return p.Kind == ProductKindConsumable
}
