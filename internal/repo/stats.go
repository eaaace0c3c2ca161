// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the HTTP layer (pagination totals for the audit listing) and by
// operators watching the unbounded audit trail grow.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-webhook-backend/internal/domain"
)

// WebhookLogsStats returns aggregate metadata for the audit rows of one
// transaction identifier: the total number of rows and the most recent
// ReceivedAt among them.
//
// When the identifier has no audit rows, the returned count is 0 and
// lastReceivedAt is nil.
//
// Return values:
//   - count:          total audit rows for txnID
//   - lastReceivedAt: pointer to the greatest ReceivedAt, or nil if no rows
//   - err:            database error, if any
func WebhookLogsStats(ctx context.Context, db *gorm.DB, txnID string) (count int64, lastReceivedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.WebhookLog{}).Where("transaction_id = ?", txnID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest received_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		ReceivedAt time.Time
	}
	if err = q.Select("received_at").Order("received_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.ReceivedAt, nil
}

// TransactionsByStatus returns the number of transaction rows currently in
// the given lifecycle state.
func TransactionsByStatus(ctx context.Context, db *gorm.DB, status domain.TransactionStatus) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("status = ?", status).
		Count(&n).Error
	return n, err
}
