package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
)

type PurchasePlatform string

const (
	PlatformAppStore  PurchasePlatform = "appstore"
	PlatformPlayStore PurchasePlatform = "playstore"
)

type PurchaseState string

const (
	PurchaseStatePurchased PurchaseState = "purchased"
	PurchaseStatePending   PurchaseState = "pending"
	PurchaseStateCancelled PurchaseState = "cancelled"
)

// PurchaseEvent is the normalized shape both store variants are mapped into.
// Events are platform-owned facts and may be redelivered for the same
// logical purchase; nothing here is mutated after normalization.
type PurchaseEvent struct {
	ProductID             string           `json:"product_id"`
	TransactionID         string           `json:"transaction_id"`
	OriginalTransactionID string           `json:"original_transaction_id"`
	AttemptID             string           `json:"attempt_id,omitempty"`
	PurchasedAt           time.Time        `json:"purchased_at"`
	Receipt               string           `json:"receipt"`
	Platform              PurchasePlatform `json:"platform"`
	State                 PurchaseState    `json:"state"`
	Raw                   json.RawMessage  `json:"-"`
}

// EntitlementFacts are derived from the verification service response, never
// from the raw event.
type EntitlementFacts struct {
	PlanID    string    `json:"plan_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// appStorePayload mirrors the StoreKit-side event shape. The transaction may
// arrive either as plain fields or as a signed JWS blob.
type appStorePayload struct {
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	ProductID             string `json:"product_id"`
	PurchaseDateMS        int64  `json:"purchase_date_ms,string"`
	ReceiptData           string `json:"receipt_data"`
	AppAccountToken       string `json:"app_account_token"`
	SignedTransactionInfo string `json:"signed_transaction_info"`
	Status                string `json:"status"`
}

// playStorePayload mirrors the Play Billing purchase shape. The purchase
// token doubles as the receipt; the renewal-chain root is recovered by
// stripping the order id renewal suffix ("GPA.xxxx-...-..3" -> "GPA.xxxx-...").
type playStorePayload struct {
	ProductID                   string `json:"productId"`
	OrderID                     string `json:"orderId"`
	PurchaseToken               string `json:"purchaseToken"`
	ObfuscatedExternalAccountID string `json:"obfuscatedExternalAccountId"`
	PurchaseTimeMillis          int64  `json:"purchaseTime"`
	// 0 = purchased, 1 = cancelled, 2 = pending
	PurchaseState int64 `json:"purchaseState"`
}

// NormalizePurchaseEvent maps a raw platform payload into the internal
// PurchaseEvent shape. The receipt stays opaque: fields decoded here are
// identification hints only, entitlement is always derived by the
// verification service.
func NormalizePurchaseEvent(platform PurchasePlatform, payload []byte) (PurchaseEvent, error) {
	switch platform {
	case PlatformAppStore:
		return normalizeAppStore(payload)
	case PlatformPlayStore:
		return normalizePlayStore(payload)
	default:
		return PurchaseEvent{}, fmt.Errorf("unsupported purchase platform: %s", platform)
	}
}

func normalizeAppStore(payload []byte) (PurchaseEvent, error) {
	var p appStorePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return PurchaseEvent{}, fmt.Errorf("decode appstore payload: %w", err)
	}
	if p.SignedTransactionInfo != "" {
		if decoded, err := decodeSignedTransaction(p.SignedTransactionInfo); err == nil {
			if p.TransactionID == "" {
				p.TransactionID = decoded.TransactionID
			}
			if p.OriginalTransactionID == "" {
				p.OriginalTransactionID = decoded.OriginalTransactionID
			}
			if p.ProductID == "" {
				p.ProductID = decoded.ProductID
			}
			if p.PurchaseDateMS == 0 {
				p.PurchaseDateMS = decoded.PurchaseDateMS
			}
		}
	}
	if p.TransactionID == "" {
		return PurchaseEvent{}, fmt.Errorf("appstore payload missing transaction_id")
	}
	if p.OriginalTransactionID == "" {
		p.OriginalTransactionID = p.TransactionID
	}
	return PurchaseEvent{
		ProductID:             p.ProductID,
		TransactionID:         p.TransactionID,
		OriginalTransactionID: p.OriginalTransactionID,
		AttemptID:             p.AppAccountToken,
		PurchasedAt:           millisToTime(p.PurchaseDateMS),
		Receipt:               p.ReceiptData,
		Platform:              PlatformAppStore,
		State:                 appStoreState(p.Status),
		Raw:                   json.RawMessage(payload),
	}, nil
}

func normalizePlayStore(payload []byte) (PurchaseEvent, error) {
	var p playStorePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return PurchaseEvent{}, fmt.Errorf("decode playstore payload: %w", err)
	}
	if p.OrderID == "" && p.PurchaseToken == "" {
		return PurchaseEvent{}, fmt.Errorf("playstore payload missing orderId and purchaseToken")
	}
	txnID := p.OrderID
	if txnID == "" {
		txnID = p.PurchaseToken
	}
	var state PurchaseState
	switch p.PurchaseState {
	case 1:
		state = PurchaseStateCancelled
	case 2:
		state = PurchaseStatePending
	default:
		state = PurchaseStatePurchased
	}
	return PurchaseEvent{
		ProductID:             p.ProductID,
		TransactionID:         txnID,
		OriginalTransactionID: playOriginalOrderID(p.OrderID, p.PurchaseToken),
		AttemptID:             p.ObfuscatedExternalAccountID,
		PurchasedAt:           millisToTime(p.PurchaseTimeMillis),
		Receipt:               p.PurchaseToken,
		Platform:              PlatformPlayStore,
		State:                 state,
		Raw:                   json.RawMessage(payload),
	}, nil
}

// playOriginalOrderID strips the "..N" renewal suffix Play appends to order
// ids in a renewal chain, so every renewal shares one original id.
func playOriginalOrderID(orderID, purchaseToken string) string {
	if orderID == "" {
		return purchaseToken
	}
	if idx := strings.Index(orderID, ".."); idx > 0 {
		return orderID[:idx]
	}
	return orderID
}

func appStoreState(status string) PurchaseState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled":
		return PurchaseStateCancelled
	case "pending", "deferred":
		return PurchaseStatePending
	default:
		return PurchaseStatePurchased
	}
}

type signedTransaction struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	PurchaseDateMS        int64  `json:"purchaseDate"`
}

// decodeSignedTransaction extracts the payload of a signedTransactionInfo
// JWS. Signature verification is deliberately skipped: these fields are
// routing hints, the receipt itself still goes through the verification
// service before any entitlement is granted.
func decodeSignedTransaction(token string) (signedTransaction, error) {
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.ES256, jose.RS256})
	if err != nil {
		return signedTransaction{}, err
	}
	var txn signedTransaction
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &txn); err != nil {
		return signedTransaction{}, err
	}
	return txn, nil
}

func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ParseMillis converts a millisecond string timestamp as delivered by the
// verification service ("expires_date_ms") into a time.
func ParseMillis(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, fmt.Errorf("empty millis timestamp")
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return millisToTime(ms), nil
}
