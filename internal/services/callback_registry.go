package services

import (
	"sync"

	"dostarBack/internal/models"
)

// CallbackRegistry holds the in-flight purchase registrations. Lookup order
// is the generated attempt id first; for platform variants that never echo
// the attempt id back, the oldest registration for the product id serves as
// the fallback. Registrations are consumed exactly once.
type CallbackRegistry struct {
	mu        sync.Mutex
	byAttempt map[string]*models.CallbackRegistration
	byProduct map[string][]string
}

func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{
		byAttempt: make(map[string]*models.CallbackRegistration),
		byProduct: make(map[string][]string),
	}
}

func (r *CallbackRegistry) Register(reg *models.CallbackRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAttempt[reg.AttemptID] = reg
	r.byProduct[reg.ProductID] = append(r.byProduct[reg.ProductID], reg.AttemptID)
}

// Take removes and returns the registration matching the event, or nil.
// Events recovered after a restart typically have none; that is expected.
func (r *CallbackRegistry) Take(attemptID, productID string) *models.CallbackRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if attemptID != "" {
		if reg, ok := r.byAttempt[attemptID]; ok {
			r.removeLocked(reg)
			return reg
		}
	}
	for _, id := range r.byProduct[productID] {
		if reg, ok := r.byAttempt[id]; ok {
			r.removeLocked(reg)
			return reg
		}
	}
	return nil
}

func (r *CallbackRegistry) removeLocked(reg *models.CallbackRegistration) {
	delete(r.byAttempt, reg.AttemptID)
	ids := r.byProduct[reg.ProductID]
	for i, id := range ids {
		if id == reg.AttemptID {
			r.byProduct[reg.ProductID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byProduct[reg.ProductID]) == 0 {
		delete(r.byProduct, reg.ProductID)
	}
}

func (r *CallbackRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAttempt)
}
