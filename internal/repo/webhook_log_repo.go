// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the WebhookLog
// model: the append-only audit trail of received deliveries.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-webhook-backend/internal/domain"
)

// CreateWebhookLog appends one audit row for a received delivery.
//
// There is no uniqueness constraint on transaction_id here: every delivery,
// duplicate or not, gets its own row.
func CreateWebhookLog(ctx context.Context, db *gorm.DB, txnID, payload string) (*domain.WebhookLog, error) {
	l := &domain.WebhookLog{
		ID:            uuid.NewString(),
		TransactionID: txnID,
		Payload:       payload,
		ReceivedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// CountWebhookLogs uses a raw COUNT so a missing table surfaces as an error.
func CountWebhookLogs(ctx context.Context, db *gorm.DB, txnID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM webhook_logs WHERE transaction_id = ?", txnID).
		Scan(&total).Error
	return total, err
}

// ListWebhookLogsPage returns a paginated slice of audit rows for txnID,
// ordered deterministically (ReceivedAt ASC, ID ASC).
func ListWebhookLogsPage(ctx context.Context, db *gorm.DB, txnID string, offset, limit int) ([]domain.WebhookLog, error) {
	var out []domain.WebhookLog
	err := db.WithContext(ctx).
		Where("transaction_id = ?", txnID).
		Order("received_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
