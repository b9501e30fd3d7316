package services

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"dostarBack/internal/models"
)

func discardLog() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type ackCall struct {
	transactionID string
	consumable    bool
}

type fakePlatform struct {
	mu          sync.Mutex
	listener    PurchaseListener
	attachErr   error
	attaches    int
	products    []models.Product
	loadErr     error
	startErr    error
	started     []PurchaseRequest
	acks        []ackCall
	ackFailures int
	ackAttempts int
	pending     []models.PurchaseEvent
	pendingErr  error
}

type fakeHandle struct{ platform *fakePlatform }

func (h fakeHandle) Detach() {
	h.platform.mu.Lock()
	h.platform.listener = nil
	h.platform.mu.Unlock()
}

func (p *fakePlatform) AttachListener(l PurchaseListener) (ListenerHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attachErr != nil {
		return nil, p.attachErr
	}
	p.attaches++
	p.listener = l
	return fakeHandle{platform: p}, nil
}

func (p *fakePlatform) LoadProducts(ctx context.Context) ([]models.Product, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return p.products, nil
}

func (p *fakePlatform) StartPurchase(ctx context.Context, req PurchaseRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.started = append(p.started, req)
	return nil
}

func (p *fakePlatform) Acknowledge(ctx context.Context, event models.PurchaseEvent, consumable bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ackAttempts++
	if p.ackFailures > 0 {
		p.ackFailures--
		return errors.New("platform ack failed")
	}
	p.acks = append(p.acks, ackCall{transactionID: event.TransactionID, consumable: consumable})
	return nil
}

func (p *fakePlatform) ListPendingPurchases(ctx context.Context) ([]models.PurchaseEvent, error) {
	if p.pendingErr != nil {
		return nil, p.pendingErr
	}
	out := p.pending
	p.pending = nil
	return out, nil
}

func (p *fakePlatform) ackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.acks)
}

type mergeCall struct {
	userID int
	fields map[string]interface{}
}

type fakeStore struct {
	mu       sync.Mutex
	merges   []mergeCall
	owners   map[string]int
	records  map[int]models.SubscriptionRecord
	mergeErr error
}

func (s *fakeStore) GetSubscription(ctx context.Context, userID int) (models.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return models.SubscriptionRecord{}, models.ErrNoRecord
	}
	return rec, nil
}

func (s *fakeStore) MergeWriteSubscription(ctx context.Context, userID int, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mergeErr != nil {
		return s.mergeErr
	}
	s.merges = append(s.merges, mergeCall{userID: userID, fields: fields})
	return nil
}

func (s *fakeStore) FindOwnerByTransactionID(ctx context.Context, transactionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID, ok := s.owners[transactionID]; ok {
		return userID, nil
	}
	return 0, models.ErrNoRecord
}

type saveCall struct {
	event  models.PurchaseEvent
	userID int
}

type fakeLedger struct {
	mu        sync.Mutex
	processed map[string]bool
	saves     []saveCall
	owners    map[string]int
	saveErr   error
}

func (l *fakeLedger) IsProcessed(ctx context.Context, transactionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed[transactionID], nil
}

func (l *fakeLedger) Save(ctx context.Context, event models.PurchaseEvent, userID int, facts *models.EntitlementFacts) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saveErr != nil {
		return l.saveErr
	}
	if l.processed == nil {
		l.processed = make(map[string]bool)
	}
	l.processed[event.TransactionID] = true
	l.saves = append(l.saves, saveCall{event: event, userID: userID})
	return nil
}

func (l *fakeLedger) GetOwnerByTransactionID(ctx context.Context, transactionID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if userID, ok := l.owners[transactionID]; ok {
		return userID, nil
	}
	return 0, models.ErrNoRecord
}

type fakeAcks struct {
	mu     sync.Mutex
	marked map[string]bool
	err    error
}

func (a *fakeAcks) IsAcknowledged(ctx context.Context, transactionID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return false, a.err
	}
	return a.marked[transactionID], nil
}

func (a *fakeAcks) MarkAcknowledged(ctx context.Context, transactionID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return true, a.err
	}
	if a.marked == nil {
		a.marked = make(map[string]bool)
	}
	if a.marked[transactionID] {
		return false, nil
	}
	a.marked[transactionID] = true
	return true, nil
}

type fakeVerifier struct {
	fn    func(ctx context.Context, receipt string) (models.ValidationResult, error)
	calls int
}

func (v *fakeVerifier) Validate(ctx context.Context, receipt string) (models.ValidationResult, error) {
	v.calls++
	return v.fn(ctx, receipt)
}

func validVerifier(facts models.EntitlementFacts) *fakeVerifier {
	return &fakeVerifier{fn: func(ctx context.Context, receipt string) (models.ValidationResult, error) {
		return models.ValidationResult{IsValid: true, Facts: &facts}, nil
	}}
}
