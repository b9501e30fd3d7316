package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"dostarBack/internal/models"
	"dostarBack/internal/services"
)

// Frame is the wire envelope of the store bridge. Devices relay raw store
// events upward (purchase_update, purchase_error, pending) and receive
// start_purchase and acknowledge frames back.
type Frame struct {
	Type     string                  `json:"type"`
	Platform models.PurchasePlatform `json:"platform,omitempty"`
	Payload  json.RawMessage         `json:"payload,omitempty"`
	Events   []json.RawMessage       `json:"events,omitempty"`

	Code      int    `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	AttemptID string `json:"attempt_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`

	TransactionID string `json:"transaction_id,omitempty"`
	Consumable    bool   `json:"consumable,omitempty"`
}

type inbound struct {
	userID int
	frame  Frame
}

// Bridge is the billing platform connection: mobile devices keep one
// websocket each and relay their store's purchase stream through it. All
// inbound frames funnel into a single dispatch goroutine, so the engine
// sees exactly one event stream with no polling loop.
type Bridge struct {
	Products []models.Product

	// OnPending runs after a device's pending report has been queued, so
	// the owner can drain the queue through the reconciler right away
	// instead of waiting for the next session initialization. Set once
	// during wiring, before Run starts.
	OnPending func()

	upgrader websocket.Upgrader
	infoLog  *log.Logger
	errorLog *log.Logger

	mu       sync.Mutex
	conns    map[int]*websocket.Conn
	origin   map[string]int
	pending  []models.PurchaseEvent
	listener services.PurchaseListener

	events chan inbound
	done   chan struct{}
}

func New(products []models.Product, infoLog, errorLog *log.Logger) *Bridge {
	return &Bridge{
		Products: products,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		infoLog:  infoLog,
		errorLog: errorLog,
		conns:    make(map[int]*websocket.Conn),
		origin:   make(map[string]int),
		events:   make(chan inbound, 64),
		done:     make(chan struct{}),
	}
}

// Run is the single dispatch loop. Handler faults are recovered here so the
// loop that owns the connection boundary always survives application bugs.
func (b *Bridge) Run() {
	for {
		select {
		case <-b.done:
			return
		case in := <-b.events:
			b.dispatch(in)
		}
	}
}

func (b *Bridge) Close() {
	close(b.done)
}

func (b *Bridge) dispatch(in inbound) {
	defer func() {
		if rec := recover(); rec != nil && b.errorLog != nil {
			b.errorLog.Printf("bridge: panic in %s handler: %v", in.frame.Type, rec)
		}
	}()

	switch in.frame.Type {
	case "purchase_update":
		event, err := models.NormalizePurchaseEvent(in.frame.Platform, in.frame.Payload)
		if err != nil {
			b.errorf("bridge: bad purchase_update from user %d: %v", in.userID, err)
			return
		}
		b.rememberOrigin(event.TransactionID, in.userID)
		if l := b.currentListener(); l != nil {
			l.OnPurchaseUpdated(event)
		}
	case "purchase_error":
		if l := b.currentListener(); l != nil {
			l.OnPurchaseFailed(services.PlatformError{
				Code:      in.frame.Code,
				Message:   in.frame.Message,
				AttemptID: in.frame.AttemptID,
				ProductID: in.frame.ProductID,
			})
		}
	case "pending":
		// Devices report their store's unacknowledged purchases on connect;
		// the pending scanner drains them through the reconciler.
		queued := 0
		for _, payload := range in.frame.Events {
			event, err := models.NormalizePurchaseEvent(in.frame.Platform, payload)
			if err != nil {
				b.errorf("bridge: bad pending event from user %d: %v", in.userID, err)
				continue
			}
			b.rememberOrigin(event.TransactionID, in.userID)
			b.mu.Lock()
			b.pending = append(b.pending, event)
			b.mu.Unlock()
			queued++
		}
		if queued > 0 && b.OnPending != nil {
			b.OnPending()
		}
	default:
		b.errorf("bridge: unknown frame type %q from user %d", in.frame.Type, in.userID)
	}
}

// HandleWS upgrades a device connection. The user id must already be in the
// request context (auth middleware).
func (b *Bridge) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.errorf("bridge: upgrade for user %d: %v", userID, err)
		return
	}

	b.mu.Lock()
	if old, ok := b.conns[userID]; ok {
		old.Close()
	}
	b.conns[userID] = conn
	b.mu.Unlock()
	if b.infoLog != nil {
		b.infoLog.Printf("bridge: device connected for user %d", userID)
	}

	go b.readLoop(userID, conn)
}

func (b *Bridge) readLoop(userID int, conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		if b.conns[userID] == conn {
			delete(b.conns, userID)
		}
		b.mu.Unlock()
		conn.Close()
	}()
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		select {
		case b.events <- inbound{userID: userID, frame: frame}:
		case <-b.done:
			return
		}
	}
}

// AttachListener registers the single listener pair. A second attach without
// detaching first is an error; idempotency lives in the session, which
// checks its own handle before calling.
func (b *Bridge) AttachListener(l services.PurchaseListener) (services.ListenerHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener != nil {
		return nil, models.ErrListenerAttached
	}
	b.listener = l
	return &listenerHandle{bridge: b}, nil
}

type listenerHandle struct {
	bridge *Bridge
}

func (h *listenerHandle) Detach() {
	h.bridge.mu.Lock()
	defer h.bridge.mu.Unlock()
	h.bridge.listener = nil
}

func (b *Bridge) currentListener() services.PurchaseListener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener
}

func (b *Bridge) LoadProducts(ctx context.Context) ([]models.Product, error) {
	if len(b.Products) == 0 {
		return nil, models.ErrProductNotFound
	}
	out := make([]models.Product, len(b.Products))
	copy(out, b.Products)
	return out, nil
}

// StartPurchase pushes the native purchase flow request down to the user's
// device. The flow completes asynchronously through the event stream.
func (b *Bridge) StartPurchase(ctx context.Context, req services.PurchaseRequest) error {
	conn := b.connFor(req.UserID)
	if conn == nil {
		return models.ErrDeviceOffline
	}
	return conn.WriteJSON(Frame{
		Type:      "start_purchase",
		AttemptID: req.AttemptID,
		ProductID: req.ProductID,
	})
}

// Acknowledge routes the finish frame back to the device that delivered the
// event. An unreachable device is reported as an error so the caller does
// not record the transaction as acknowledged; the store keeps it pending and
// the next connect replays it through the pending path.
func (b *Bridge) Acknowledge(ctx context.Context, event models.PurchaseEvent, consumable bool) error {
	b.mu.Lock()
	userID, ok := b.origin[event.TransactionID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("acknowledge %s: no origin device: %w", event.TransactionID, models.ErrDeviceOffline)
	}
	conn := b.connFor(userID)
	if conn == nil {
		return fmt.Errorf("acknowledge %s for user %d: %w", event.TransactionID, userID, models.ErrDeviceOffline)
	}
	if err := conn.WriteJSON(Frame{
		Type:          "acknowledge",
		TransactionID: event.TransactionID,
		Consumable:    consumable,
	}); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.origin, event.TransactionID)
	b.mu.Unlock()
	return nil
}

// ListPendingPurchases drains the events queued from device pending reports.
func (b *Bridge) ListPendingPurchases(ctx context.Context) ([]models.PurchaseEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out, nil
}

func (b *Bridge) connFor(userID int) *websocket.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[userID]
}

func (b *Bridge) rememberOrigin(transactionID string, userID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.origin[transactionID] = userID
}

func (b *Bridge) errorf(format string, args ...interface{}) {
	if b.errorLog != nil {
		b.errorLog.Printf(format, args...)
	}
}
