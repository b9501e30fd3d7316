package services

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"dostarBack/internal/models"
)

// BillingSessionManager owns the platform connection for one process:
// listener lifecycle, catalog loading and purchase initiation. It is an
// explicit session object rather than package state so re-initialization is
// testable and side-effect-free.
type BillingSessionManager struct {
	Platform   BillingPlatform
	Reconciler *PurchaseReconciler
	Scanner    *PendingPurchaseScanner
	Classifier *ErrorClassifier
	Registry   *CallbackRegistry

	InfoLog  *log.Logger
	ErrorLog *log.Logger

	mu          sync.Mutex
	listener    ListenerHandle
	catalog     map[string]models.Product
	initialized bool

	newAttemptID func() string
}

// Initialize opens the platform connection: attaches the single
// purchase/error listener pair, loads the product catalog and recovers
// pending purchases. A second call while listeners are attached is a no-op.
// Catalog-load failure is non-fatal — listeners still attach so redelivered
// purchases remain processable. On failure the session stays safely
// re-initializable.
func (m *BillingSessionManager) Initialize(ctx context.Context) bool {
	m.mu.Lock()
	if m.listener == nil {
		handle, err := m.Platform.AttachListener(sessionListener{m})
		if err != nil {
			m.mu.Unlock()
			if m.ErrorLog != nil {
				m.ErrorLog.Printf("billing: attach listener: %v", err)
			}
			return false
		}
		m.listener = handle
	}
	m.initialized = true
	m.mu.Unlock()

	products, err := m.Platform.LoadProducts(ctx)
	if err != nil {
		if m.ErrorLog != nil {
			m.ErrorLog.Printf("billing: load catalog: %v", err)
		}
	} else {
		catalog := make(map[string]models.Product, len(products))
		for _, p := range products {
			catalog[p.ID] = p
		}
		m.mu.Lock()
		m.catalog = catalog
		m.mu.Unlock()
	}

	if m.Scanner != nil {
		if err := m.Scanner.Scan(ctx); err != nil && m.ErrorLog != nil {
			m.ErrorLog.Printf("billing: pending scan: %v", err)
		}
	}
	return true
}

// Purchase starts the platform's native purchase flow for the user. The
// result is delivered through the callbacks when the matching event arrives
// on the listener, which may be after a process restart (in which case the
// pending scanner completes the purchase without callbacks). Returns the
// generated attempt id.
func (m *BillingSessionManager) Purchase(ctx context.Context, productID string, userID int, callbacks models.PurchaseCallbacks) string {
	m.mu.Lock()
	initialized := m.initialized
	product, known := m.catalog[productID]
	m.mu.Unlock()

	if !initialized {
		if callbacks.OnError != nil {
			callbacks.OnError(models.NewPurchaseError(models.CategoryNotInitialized, 0, "billing is not initialized"))
		}
		return ""
	}
	if !known {
		if callbacks.OnError != nil {
			callbacks.OnError(models.NewPurchaseError(models.CategoryCatalogMiss, 0, "unknown product: "+productID))
		}
		return ""
	}

	attemptID := m.attemptID()
	m.Registry.Register(&models.CallbackRegistration{
		AttemptID: attemptID,
		ProductID: product.ID,
		UserID:    userID,
		Callbacks: callbacks,
	})

	err := m.Platform.StartPurchase(ctx, PurchaseRequest{
		AttemptID: attemptID,
		ProductID: product.ID,
		UserID:    userID,
	})
	if err != nil {
		// The flow never started; consume the registration right away.
		if reg := m.Registry.Take(attemptID, product.ID); reg != nil && reg.Callbacks.OnError != nil {
			reg.Callbacks.OnError(models.NewPurchaseError(models.CategoryTransient, 0, "could not start the purchase flow"))
		}
		if m.ErrorLog != nil {
			m.ErrorLog.Printf("billing: start purchase %s for user %d: %v", product.ID, userID, err)
		}
		return ""
	}
	return attemptID
}

// GetProducts returns the loaded catalog sorted by product id.
func (m *BillingSessionManager) GetProducts() []models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := maps.Keys(m.catalog)
	slices.Sort(ids)
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.catalog[id])
	}
	return out
}

// LookupProduct is handed to the reconciler for consumable detection.
func (m *BillingSessionManager) LookupProduct(productID string) (models.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.catalog[productID]
	return p, ok
}

func (m *BillingSessionManager) attemptID() string {
	if m.newAttemptID != nil {
		return m.newAttemptID()
	}
	return uuid.NewString()
}

// sessionListener adapts the session to the platform listener interface.
// Every handler body is wrapped so an application fault never propagates
// into the platform's dispatch loop.
type sessionListener struct {
	session *BillingSessionManager
}

func (l sessionListener) OnPurchaseUpdated(event models.PurchaseEvent) {
	m := l.session
	defer m.recoverHandler("purchase update")
	if _, err := m.Reconciler.Reconcile(context.Background(), event); err != nil && m.ErrorLog != nil {
		m.ErrorLog.Printf("billing: reconcile %s: %v", event.TransactionID, err)
	}
}

func (l sessionListener) OnPurchaseFailed(perr PlatformError) {
	m := l.session
	defer m.recoverHandler("purchase error")

	class := m.Classifier.Classify(perr.Code)
	report := m.Classifier.ShouldReport(class)

	switch class {
	case ErrorClassUserCancelled:
		if reg := m.Registry.Take(perr.AttemptID, perr.ProductID); reg != nil && reg.Callbacks.OnError != nil {
			reg.Callbacks.OnError(models.NewPurchaseError(models.CategoryUserCancelled, perr.Code, "purchase was cancelled"))
		}
		if report && m.InfoLog != nil {
			m.InfoLog.Printf("billing: purchase cancelled (product %s)", perr.ProductID)
		}
	case ErrorClassRetryable:
		if report && m.InfoLog != nil {
			m.InfoLog.Printf("billing: transient platform error %d: %s", perr.Code, perr.Message)
		}
	default:
		if reg := m.Registry.Take(perr.AttemptID, perr.ProductID); reg != nil && reg.Callbacks.OnError != nil {
			reg.Callbacks.OnError(models.NewPurchaseError(models.CategoryTerminalInvalid, perr.Code, "the purchase could not be completed"))
		}
		if report && m.ErrorLog != nil {
			m.ErrorLog.Printf("billing: platform error %d: %s", perr.Code, perr.Message)
		}
	}
}

func (m *BillingSessionManager) recoverHandler(kind string) {
	if rec := recover(); rec != nil && m.ErrorLog != nil {
		m.ErrorLog.Printf("billing: panic in %s handler: %v", kind, rec)
	}
}
