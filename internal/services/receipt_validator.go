package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"dostarBack/internal/models"
)

const (
	verifyProdURL    = "https://buy.itunes.apple.com/verifyReceipt"
	verifySandboxURL = "https://sandbox.itunes.apple.com/verifyReceipt"
)

type ReceiptValidatorConfig struct {
	ProductionURL string
	SandboxURL    string
	SharedSecret  string
	HTTPClient    *http.Client
	Logger        *log.Logger
}

// ReceiptValidator confirms a receipt against the external verification
// service and derives entitlement facts from it. It alone decides
// transient-vs-terminal and performs any retries: production first, exactly
// one sandbox attempt on an environment mismatch, and exponential backoff
// (base 1s, factor 2, at most 2 retries) across transient failures.
type ReceiptValidator struct {
	productionURL string
	sandboxURL    string
	sharedSecret  string
	client        *http.Client
	logger        *log.Logger

	backoffBase time.Duration
	maxRetries  int
	wait        func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

func NewReceiptValidator(cfg ReceiptValidatorConfig) *ReceiptValidator {
	prod := strings.TrimSpace(cfg.ProductionURL)
	if prod == "" {
		prod = verifyProdURL
	}
	sandbox := strings.TrimSpace(cfg.SandboxURL)
	if sandbox == "" {
		sandbox = verifySandboxURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ReceiptValidator{
		productionURL: prod,
		sandboxURL:    sandbox,
		sharedSecret:  cfg.SharedSecret,
		client:        client,
		logger:        cfg.Logger,
		backoffBase:   time.Second,
		maxRetries:    2,
		wait:          waitBackoff,
		now:           time.Now,
	}
}

// waitBackoff sleeps for the backoff delay but returns early when the
// context is cancelled.
func waitBackoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type verifyRequest struct {
	ReceiptData string `json:"receipt-data"`
	Password    string `json:"password,omitempty"`
}

type verifyResponse struct {
	Status            int                 `json:"status"`
	LatestReceiptInfo []receiptLineItem   `json:"latest_receipt_info"`
	Receipt           *verifyReceiptField `json:"receipt"`
}

type verifyReceiptField struct {
	InApp []receiptLineItem `json:"in_app"`
}

type receiptLineItem struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDateMS        string `json:"purchase_date_ms"`
	ExpiresDateMS         string `json:"expires_date_ms"`
}

// Validate runs the two-step environment probe. The sandbox attempt
// triggered by a 21007 response is not counted against the transient retry
// budget; that budget is shared across the whole call so only-transient
// failures make at most 3 requests total.
func (v *ReceiptValidator) Validate(ctx context.Context, receipt string) (models.ValidationResult, error) {
	if strings.TrimSpace(receipt) == "" {
		return models.ValidationResult{
			StatusCode: models.VerifyStatusMalformedReceipt,
			Reason:     models.VerifyStatusReason(models.VerifyStatusMalformedReceipt),
		}, nil
	}

	budget := &retryBudget{remaining: v.maxRetries}
	resp, err := v.verifyWithRetry(ctx, v.productionURL, receipt, budget)
	if err != nil {
		return models.ValidationResult{IsTransient: true}, err
	}

	mismatch := false
	if resp.Status == models.VerifyStatusSandboxReceipt {
		mismatch = true
		resp, err = v.verifyWithRetry(ctx, v.sandboxURL, receipt, budget)
		if err != nil {
			return models.ValidationResult{IsTransient: true, IsEnvironmentMismatch: true}, err
		}
	}

	result := v.resultFromResponse(resp)
	result.IsEnvironmentMismatch = mismatch
	return result, nil
}

type retryBudget struct {
	remaining int
	attempt   int
}

// verifyWithRetry posts the receipt, retrying transient conditions (status
// 21005, transport errors) with exponential backoff until the shared budget
// is spent.
func (v *ReceiptValidator) verifyWithRetry(ctx context.Context, url, receipt string, budget *retryBudget) (*verifyResponse, error) {
	var lastErr error
	for {
		resp, err := v.verifyOnce(ctx, url, receipt)
		if err == nil && resp.Status != models.VerifyStatusServiceUnavailable {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("verification service unavailable (status %d)", resp.Status)
		}
		if budget.remaining == 0 {
			return nil, fmt.Errorf("receipt verification: transient retries exhausted: %w", lastErr)
		}
		delay := v.backoffBase << budget.attempt
		budget.remaining--
		budget.attempt++
		if v.logger != nil {
			v.logger.Printf("receipt verification transient failure, retrying in %s: %v", delay, lastErr)
		}
		if err := v.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (v *ReceiptValidator) verifyOnce(ctx context.Context, url, receipt string) (*verifyResponse, error) {
	body, err := json.Marshal(verifyRequest{ReceiptData: receipt, Password: v.sharedSecret})
	if err != nil {
		return nil, fmt.Errorf("marshal verify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("verification service %s: %s (%s)", url, resp.Status, strings.TrimSpace(string(raw)))
	}

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode verification response: %w", err)
	}
	return &decoded, nil
}

func (v *ReceiptValidator) resultFromResponse(resp *verifyResponse) models.ValidationResult {
	if resp.Status != models.VerifyStatusOK {
		return models.ValidationResult{
			StatusCode: resp.Status,
			Reason:     models.VerifyStatusReason(resp.Status),
		}
	}
	facts := v.factsFromLatest(resp)
	return models.ValidationResult{IsValid: true, Facts: facts, StatusCode: resp.Status}
}

// factsFromLatest derives entitlement facts from the latest transaction in
// the receipt, not its full history. Consumables carry no expiration and are
// considered active at purchase time.
func (v *ReceiptValidator) factsFromLatest(resp *verifyResponse) *models.EntitlementFacts {
	items := resp.LatestReceiptInfo
	if len(items) == 0 && resp.Receipt != nil {
		items = resp.Receipt.InApp
	}
	if len(items) == 0 {
		return &models.EntitlementFacts{Active: true}
	}

	latest := items[0]
	latestKey := lineItemSortKey(latest)
	for _, item := range items[1:] {
		if key := lineItemSortKey(item); key.After(latestKey) {
			latest = item
			latestKey = key
		}
	}

	facts := &models.EntitlementFacts{PlanID: latest.ProductID, Active: true}
	if expires, err := models.ParseMillis(latest.ExpiresDateMS); err == nil {
		facts.ExpiresAt = expires
		facts.Active = expires.After(v.now())
	}
	return facts
}

func lineItemSortKey(item receiptLineItem) time.Time {
	if ts, err := models.ParseMillis(item.ExpiresDateMS); err == nil {
		return ts
	}
	if ts, err := models.ParseMillis(item.PurchaseDateMS); err == nil {
		return ts
	}
	return time.Time{}
}
