// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Transaction
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a transaction is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - A violated uniqueness constraint on transaction_id surfaces as the raw
//     GORM error (gorm.ErrDuplicatedKey with TranslateError, or a driver
//     message otherwise). The service layer translates it into a domain-level
//     conflict error.
//
// Functions:
//
//   - CreateTransaction(ctx, db, txnID, src, dst, amount, currency) -> *domain.Transaction, error
//     Inserts a new Transaction row in StatusProcessing with UUID primary key.
//
//   - GetTransaction(ctx, db, txnID) -> *domain.Transaction, error
//     Fetches a single transaction by business identifier, or ErrNotFound.
//
//   - TransactionExists(ctx, db, txnID) -> (bool, error)
//     Reports whether a row with the given business identifier exists.
//
//   - MarkTransactionProcessed(ctx, db, txnID, now) -> (bool, error)
//     Conditionally advances PROCESSING -> PROCESSED, stamping processed_at.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.WebhookService / services.ProcessorService) which enforces
// the ingestion and deferred-transition rules.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-webhook-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
//
// It aliases gorm.ErrRecordNotFound so callers can use errors.Is with either.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateTransaction inserts a new Transaction row with status PROCESSING.
//
// The transaction_id column carries a unique index; inserting an identifier
// that already exists returns the database's duplicate-key error, which the
// caller is expected to translate. The row is written in a single INSERT, so
// a failed insert never leaves a partially populated transaction behind.
func CreateTransaction(ctx context.Context, db *gorm.DB, txnID, sourceAccount, destinationAccount string, amount float64, currency string) (*domain.Transaction, error) {
	t := &domain.Transaction{
		ID:                 uuid.NewString(),
		TransactionID:      txnID,
		SourceAccount:      sourceAccount,
		DestinationAccount: destinationAccount,
		Amount:             amount,
		Currency:           currency,
		Status:             domain.StatusProcessing,
		CreatedAt:          time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetTransaction fetches a transaction by its business identifier.
//
// Soft-deleted rows are excluded by GORM's default scope, so a deleted
// transaction reads as ErrNotFound.
func GetTransaction(ctx context.Context, db *gorm.DB, txnID string) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := db.WithContext(ctx).Where("transaction_id = ?", txnID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// TransactionExists reports whether a transaction row exists for txnID.
func TransactionExists(ctx context.Context, db *gorm.DB, txnID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("transaction_id = ?", txnID).
		Count(&n).Error
	return n > 0, err
}

// MarkTransactionProcessed advances the row for txnID from PROCESSING to
// PROCESSED and stamps processed_at with now. The status predicate makes the
// update a no-op when another invocation already won; the boolean result
// reports whether this call performed the transition.
func MarkTransactionProcessed(ctx context.Context, db *gorm.DB, txnID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("transaction_id = ? AND status = ?", txnID, domain.StatusProcessing).
		Updates(map[string]any{
			"status":       domain.StatusProcessed,
			"processed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
