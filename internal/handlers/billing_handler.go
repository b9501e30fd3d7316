package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"dostarBack/internal/models"
	"dostarBack/internal/repositories"
	"dostarBack/internal/services"
)

// BillingHandler is the thin HTTP surface over the billing session. Purchase
// results are delivered asynchronously through the store bridge; the HTTP
// response only confirms that the flow was started.
type BillingHandler struct {
	Session *services.BillingSessionManager
	Store   services.EntitlementStore
	Ledger  *repositories.PurchaseLedger
}

func NewBillingHandler(session *services.BillingSessionManager, store services.EntitlementStore, ledger *repositories.PurchaseLedger) *BillingHandler {
	return &BillingHandler{Session: session, Store: store, Ledger: ledger}
}

// GetProducts returns the loaded catalog.
func (h *BillingHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products := h.Session.GetProducts()
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"products": products})
}

// StartPurchase begins the native purchase flow for the authenticated user.
func (h *BillingHandler) StartPurchase(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var startErr error
	attemptID := h.Session.Purchase(r.Context(), req.ProductID, userID, models.PurchaseCallbacks{
		OnError: func(err error) { startErr = err },
	})
	if attemptID == "" {
		status := http.StatusBadGateway
		var pe *models.PurchaseError
		if errors.As(startErr, &pe) {
			switch pe.Category {
			case models.CategoryCatalogMiss:
				status = http.StatusNotFound
			case models.CategoryNotInitialized:
				status = http.StatusServiceUnavailable
			}
		}
		message := "failed to start purchase"
		if startErr != nil {
			message = startErr.Error()
		}
		http.Error(w, message, status)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"attempt_id": attemptID,
		"product_id": req.ProductID,
		"status":     "started",
	})
}

// GetEntitlements returns the user's current subscription record.
func (h *BillingHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	record, err := h.Store.GetSubscription(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNoRecord) {
			_ = json.NewEncoder(w).Encode(models.SubscriptionRecord{})
			return
		}
		http.Error(w, "failed to load entitlements", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(record)
}

// GetHistory returns the user's reconciled purchase history.
func (h *BillingHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("user_id").(int)
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.Ledger == nil {
		http.Error(w, "history is not configured", http.StatusNotImplemented)
		return
	}

	items, err := h.Ledger.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.PurchaseHistoryItem{}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"purchases": items})
}
