package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"dostarBack/internal/models"
)

// PurchaseLedger is the durable MySQL record of every reconciled purchase
// event: audit trail, purchase history and a cheap owner index for identity
// resolution. Inserts are idempotent per transaction id.
type PurchaseLedger struct {
	DB *sql.DB

	once sync.Once
	err  error
}

func NewPurchaseLedger(db *sql.DB) *PurchaseLedger {
	return &PurchaseLedger{DB: db}
}

func (r *PurchaseLedger) ensureSchema(ctx context.Context) error {
	r.once.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS billing_purchases (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    transaction_id VARCHAR(255) NOT NULL,
    original_transaction_id VARCHAR(255) NOT NULL,
    user_id INT NOT NULL,
    product_id VARCHAR(255) DEFAULT '',
    platform VARCHAR(32) DEFAULT '',
    plan_id VARCHAR(255) DEFAULT '',
    expires_at TIMESTAMP NULL DEFAULT NULL,
    raw_event LONGTEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id),
    UNIQUE KEY uniq_transaction_id (transaction_id),
    KEY idx_original_transaction (original_transaction_id),
    KEY idx_user_id (user_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`
		_, r.err = r.DB.ExecContext(ctx, ddl)
	})
	return r.err
}

// IsProcessed returns true if the transaction id is already recorded.
func (r *PurchaseLedger) IsProcessed(ctx context.Context, transactionID string) (bool, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return false, err
	}
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM billing_purchases WHERE transaction_id = ?)`,
		transactionID,
	).Scan(&exists)
	return exists, err
}

// Save records the reconciled event. Safe to call more than once for the
// same transaction id: duplicates are ignored.
func (r *PurchaseLedger) Save(ctx context.Context, event models.PurchaseEvent, userID int, facts *models.EntitlementFacts) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	if event.TransactionID == "" {
		return fmt.Errorf("transaction_id is required")
	}
	var planID string
	var expiresAt sql.NullTime
	if facts != nil {
		planID = facts.PlanID
		if !facts.ExpiresAt.IsZero() {
			expiresAt = sql.NullTime{Time: facts.ExpiresAt, Valid: true}
		}
	}
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO billing_purchases (transaction_id, original_transaction_id, user_id, product_id, platform, plan_id, expires_at, raw_event)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE transaction_id = transaction_id
`, event.TransactionID, event.OriginalTransactionID, userID, event.ProductID, string(event.Platform), planID, expiresAt, string(event.Raw))
	return err
}

// GetOwnerByTransactionID returns the most recent owner recorded for the
// given transaction or original-transaction id.
func (r *PurchaseLedger) GetOwnerByTransactionID(ctx context.Context, transactionID string) (int, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return 0, err
	}
	var userID int
	err := r.DB.QueryRowContext(ctx, `
SELECT user_id FROM billing_purchases
WHERE transaction_id = ? OR original_transaction_id = ?
ORDER BY id DESC LIMIT 1`,
		transactionID, transactionID,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, models.ErrNoRecord
		}
		return 0, err
	}
	return userID, nil
}

// ListByUser returns the user's purchase history, newest first.
func (r *PurchaseLedger) ListByUser(ctx context.Context, userID int) ([]models.PurchaseHistoryItem, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, `
SELECT transaction_id, original_transaction_id, product_id, platform, plan_id, expires_at, created_at
FROM billing_purchases
WHERE user_id = ?
ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PurchaseHistoryItem
	for rows.Next() {
		var item models.PurchaseHistoryItem
		var expires sql.NullTime
		var created time.Time
		if err := rows.Scan(&item.TransactionID, &item.OriginalTransactionID, &item.ProductID, &item.Platform, &item.PlanID, &expires, &created); err != nil {
			return nil, err
		}
		if expires.Valid {
			item.ExpiresAt = expires.Time
		}
		item.CreatedAt = created
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
