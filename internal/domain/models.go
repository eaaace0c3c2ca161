// Package domain defines the persistence models for transactions and webhook
// audit logs. These types are mapped with GORM and form the core data layer
// of the webhook backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// TransactionStatus is the lifecycle state of a Transaction.
//
// A transaction starts in StatusProcessing and transitions exactly once to a
// terminal state. StatusProcessed is the normal settlement outcome;
// StatusFailed is reserved for error paths.
type TransactionStatus string

const (
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusProcessed  TransactionStatus = "PROCESSED"
	StatusFailed     TransactionStatus = "FAILED"
)

// Terminal reports whether s is a state from which no further transition is
// expected.
func (s TransactionStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// Transaction is the authoritative record of a single financial transfer
// event and its lifecycle state. There is at most one row per business
// transaction identifier, enforced by the unique index on TransactionID;
// the database constraint, not application locking, resolves concurrent
// deliveries of the same identifier.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - TransactionID: business identifier from the sender; unique, immutable.
//   - SourceAccount / DestinationAccount: opaque account identifiers.
//   - Amount / Currency: transfer quantity and ISO-4217 code; immutable.
//   - Status: lifecycle state, see TransactionStatus.
//   - ProcessedAt: set exactly once, when the terminal transition commits.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker; soft-deleted rows are excluded from
//     all normal reads, including the deferred processor's re-read.
type Transaction struct {
	ID                 string            `json:"-"                      gorm:"type:char(36);primaryKey"`
	TransactionID      string            `json:"transaction_id"         gorm:"type:varchar(255);not null;uniqueIndex:ux_transaction_id"`
	SourceAccount      string            `json:"source_account"         gorm:"type:varchar(255);not null"`
	DestinationAccount string            `json:"destination_account"    gorm:"type:varchar(255);not null"`
	Amount             float64           `json:"amount"                 gorm:"not null"`
	Currency           string            `json:"currency"               gorm:"type:varchar(10);not null"`
	Status             TransactionStatus `json:"status"                 gorm:"type:varchar(16);not null;default:'PROCESSING';check:status IN ('PROCESSING','PROCESSED','FAILED')"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	ProcessedAt        *time.Time        `json:"processed_at"`
	DeletedAt          gorm.DeletedAt    `json:"-"                      gorm:"index"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// WebhookLog is the append-only audit record of one received webhook
// delivery, written unconditionally for every payload, duplicates included.
// Rows are never mutated after creation; many rows may carry the same
// TransactionID (one per retry), which is why the column is indexed but
// deliberately not unique.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - TransactionID: denormalized business identifier (indexed, not unique).
//   - Payload: the raw payload serialized as a JSON string.
//   - ReceivedAt: server-side arrival time.
//   - CreatedAt / UpdatedAt / DeletedAt: base-model bookkeeping, kept for
//     schema uniformity; the ingestion path never updates or deletes logs.
type WebhookLog struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	TransactionID string         `json:"transaction_id" gorm:"type:varchar(255);not null;index:idx_webhook_logs_txn"`
	Payload       string         `json:"payload"        gorm:"type:text"`
	ReceivedAt    time.Time      `json:"received_at"    gorm:"not null"`
	CreatedAt     time.Time      `json:"-"`
	UpdatedAt     time.Time      `json:"-"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for WebhookLog.
func (WebhookLog) TableName() string { return "webhook_logs" }
