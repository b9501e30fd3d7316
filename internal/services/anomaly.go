package services

import (
	"context"
	"fmt"
	"log"

	"firebase.google.com/go/messaging"

	"dostarBack/internal/models"
)

// ReceiptArchiver stores raw receipt payloads of anomalous events for later
// investigation.
type ReceiptArchiver interface {
	ArchiveReceipt(fileName string, payload []byte) (string, error)
}

// AnomalyReporter is the out-of-band channel for conditions that must become
// monitored anomalies instead of blocking reconciliation: orphaned purchases
// and entitlement writes lost after a successful validation. Reporting
// failures are swallowed; the reporter never fails a reconciliation.
type AnomalyReporter struct {
	Messaging *messaging.Client
	Topic     string
	Archive   ReceiptArchiver
	ErrorLog  *log.Logger
}

func (a *AnomalyReporter) ReportOrphan(ctx context.Context, event models.PurchaseEvent) {
	a.report(ctx, event, fmt.Sprintf("orphaned purchase: no owner for transaction %s (product %s)", event.TransactionID, event.ProductID))
}

func (a *AnomalyReporter) ReportPersistenceFailure(ctx context.Context, event models.PurchaseEvent, userID int, cause error) {
	a.report(ctx, event, fmt.Sprintf("entitlement write failed for user %d, transaction %s: %v", userID, event.TransactionID, cause))
}

func (a *AnomalyReporter) report(ctx context.Context, event models.PurchaseEvent, summary string) {
	if a == nil {
		return
	}
	if a.ErrorLog != nil {
		a.ErrorLog.Printf("billing anomaly: %s", summary)
	}
	if a.Archive != nil && len(event.Raw) > 0 {
		name := fmt.Sprintf("%s_%s.json", event.Platform, event.TransactionID)
		if _, err := a.Archive.ArchiveReceipt(name, event.Raw); err != nil && a.ErrorLog != nil {
			a.ErrorLog.Printf("billing anomaly: archive receipt %s: %v", event.TransactionID, err)
		}
	}
	if a.Messaging != nil && a.Topic != "" {
		msg := &messaging.Message{
			Topic: a.Topic,
			Data: map[string]string{
				"transaction_id": event.TransactionID,
				"product_id":     event.ProductID,
				"summary":        summary,
			},
		}
		if _, err := a.Messaging.Send(ctx, msg); err != nil && a.ErrorLog != nil {
			a.ErrorLog.Printf("billing anomaly: publish to topic %s: %v", a.Topic, err)
		}
	}
}
