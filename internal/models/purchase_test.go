package models

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
)

func TestNormalizeAppStore(t *testing.T) {
	payload := []byte(`{
		"transaction_id": "100001",
		"original_transaction_id": "100000",
		"product_id": "monthly",
		"purchase_date_ms": "1770000000000",
		"receipt_data": "base64-receipt",
		"app_account_token": "a1"
	}`)

	event, err := NormalizePurchaseEvent(PlatformAppStore, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.TransactionID != "100001" || event.OriginalTransactionID != "100000" {
		t.Errorf("ids = %s/%s", event.TransactionID, event.OriginalTransactionID)
	}
	if event.ProductID != "monthly" || event.Receipt != "base64-receipt" || event.AttemptID != "a1" {
		t.Errorf("event = %+v", event)
	}
	if event.State != PurchaseStatePurchased {
		t.Errorf("state = %s, want purchased", event.State)
	}
	if want := time.UnixMilli(1770000000000).UTC(); !event.PurchasedAt.Equal(want) {
		t.Errorf("purchased at = %s, want %s", event.PurchasedAt, want)
	}
	if len(event.Raw) == 0 {
		t.Error("raw payload not preserved")
	}
}

func TestNormalizeAppStoreStates(t *testing.T) {
	tests := []struct {
		status string
		want   PurchaseState
	}{
		{"", PurchaseStatePurchased},
		{"purchased", PurchaseStatePurchased},
		{"Cancelled", PurchaseStateCancelled},
		{"canceled", PurchaseStateCancelled},
		{"pending", PurchaseStatePending},
		{"deferred", PurchaseStatePending},
	}
	for _, tt := range tests {
		payload, _ := json.Marshal(map[string]string{
			"transaction_id": "T1",
			"status":         tt.status,
		})
		event, err := NormalizePurchaseEvent(PlatformAppStore, payload)
		if err != nil {
			t.Fatalf("status %q: %v", tt.status, err)
		}
		if event.State != tt.want {
			t.Errorf("status %q: state = %s, want %s", tt.status, event.State, tt.want)
		}
	}
}

func TestNormalizeAppStoreDefaultsOriginalID(t *testing.T) {
	event, err := NormalizePurchaseEvent(PlatformAppStore, []byte(`{"transaction_id":"T1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.OriginalTransactionID != "T1" {
		t.Errorf("original id = %q, want the transaction id itself", event.OriginalTransactionID)
	}
}

func TestNormalizeAppStoreSignedTransaction(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key}, nil)
	if err != nil {
		t.Fatal(err)
	}
	claims, _ := json.Marshal(signedTransaction{
		TransactionID:         "200002",
		OriginalTransactionID: "200000",
		ProductID:             "yearly",
		PurchaseDateMS:        1770000000000,
	})
	obj, err := signer.Sign(claims)
	if err != nil {
		t.Fatal(err)
	}
	token, err := obj.CompactSerialize()
	if err != nil {
		t.Fatal(err)
	}

	payload, _ := json.Marshal(map[string]string{
		"signed_transaction_info": token,
		"receipt_data":            "base64-receipt",
	})
	event, err := NormalizePurchaseEvent(PlatformAppStore, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.TransactionID != "200002" || event.OriginalTransactionID != "200000" || event.ProductID != "yearly" {
		t.Errorf("event = %+v, want ids from the signed payload", event)
	}
}

func TestNormalizeAppStoreMissingTransactionID(t *testing.T) {
	if _, err := NormalizePurchaseEvent(PlatformAppStore, []byte(`{"product_id":"monthly"}`)); err == nil {
		t.Fatal("want error for a payload with no transaction id")
	}
}

func TestNormalizePlayStore(t *testing.T) {
	payload := []byte(`{
		"productId": "monthly",
		"orderId": "GPA.3333-4444-5555-66666",
		"purchaseToken": "token-abc",
		"obfuscatedExternalAccountId": "a1",
		"purchaseTime": 1770000000000,
		"purchaseState": 0
	}`)

	event, err := NormalizePurchaseEvent(PlatformPlayStore, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.TransactionID != "GPA.3333-4444-5555-66666" {
		t.Errorf("transaction id = %q", event.TransactionID)
	}
	if event.Receipt != "token-abc" {
		t.Errorf("receipt = %q, want the purchase token", event.Receipt)
	}
	if event.AttemptID != "a1" {
		t.Errorf("attempt id = %q", event.AttemptID)
	}
	if event.State != PurchaseStatePurchased {
		t.Errorf("state = %s", event.State)
	}
}

func TestNormalizePlayStoreRenewalChain(t *testing.T) {
	payload := []byte(`{
		"productId": "monthly",
		"orderId": "GPA.3333-4444-5555-66666..3",
		"purchaseToken": "token-abc",
		"purchaseState": 0
	}`)
	event, err := NormalizePurchaseEvent(PlatformPlayStore, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.TransactionID != "GPA.3333-4444-5555-66666..3" {
		t.Errorf("transaction id = %q, want the renewal's own order id", event.TransactionID)
	}
	if event.OriginalTransactionID != "GPA.3333-4444-5555-66666" {
		t.Errorf("original id = %q, want the chain root", event.OriginalTransactionID)
	}
}

func TestNormalizePlayStoreStates(t *testing.T) {
	for state, want := range map[int]PurchaseState{
		0: PurchaseStatePurchased,
		1: PurchaseStateCancelled,
		2: PurchaseStatePending,
	} {
		payload, _ := json.Marshal(map[string]interface{}{
			"orderId":       "GPA.1",
			"purchaseToken": "tok",
			"purchaseState": state,
		})
		event, err := NormalizePurchaseEvent(PlatformPlayStore, payload)
		if err != nil {
			t.Fatalf("state %d: %v", state, err)
		}
		if event.State != want {
			t.Errorf("purchaseState %d: state = %s, want %s", state, event.State, want)
		}
	}
}

func TestNormalizePlayStoreTokenFallback(t *testing.T) {
	event, err := NormalizePurchaseEvent(PlatformPlayStore, []byte(`{"purchaseToken":"tok-1","purchaseState":0}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.TransactionID != "tok-1" || event.OriginalTransactionID != "tok-1" {
		t.Errorf("ids = %s/%s, want the purchase token for both", event.TransactionID, event.OriginalTransactionID)
	}
}

func TestNormalizeUnsupportedPlatform(t *testing.T) {
	if _, err := NormalizePurchaseEvent("huawei", []byte(`{}`)); err == nil {
		t.Fatal("want error for an unsupported platform")
	}
}

func TestParseMillis(t *testing.T) {
	ts, err := ParseMillis("1770000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.UnixMilli(1770000000000).UTC(); !ts.Equal(want) {
		t.Errorf("ts = %s, want %s", ts, want)
	}
	if _, err := ParseMillis(""); err == nil {
		t.Error("want error for an empty timestamp")
	}
	if _, err := ParseMillis("not-a-number"); err == nil {
		t.Error("want error for a malformed timestamp")
	}
}
