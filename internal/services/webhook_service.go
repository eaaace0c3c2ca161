// Package services – WebhookService
//
// This file implements the WebhookService, which governs the idempotent
// ingestion write path and the read path for transactions. Every delivery is
// audited unconditionally; only the first delivery of an identifier creates a
// Transaction row, and only that first delivery schedules deferred
// processing. Service-level errors (ErrTransactionExists,
// ErrTransactionNotFound) are returned for predictable cases so handlers can
// map them to HTTP results consistently.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-webhook-backend/internal/domain"
	"github.com/tbourn/go-webhook-backend/internal/repo"
	"github.com/tbourn/go-webhook-backend/internal/scheduler"
)

// WebhookPayload is the validated body of one transaction webhook delivery.
type WebhookPayload struct {
	TransactionID      string  `json:"transaction_id"`
	SourceAccount      string  `json:"source_account"`
	DestinationAccount string  `json:"destination_account"`
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency"`
}

// IngestResult describes the outcome of one accepted delivery.
//
// Duplicate is true when the identifier already had a Transaction row: the
// delivery was audited and nothing else happened. Otherwise Transaction holds
// the newly created row.
type IngestResult struct {
	Transaction *domain.Transaction
	Duplicate   bool
}

// WebhookService implements the ingestion and query use-cases.
//
// All coordination between concurrent deliveries goes through the database:
// the unique index on transaction_id is the sole arbiter of races, and the
// service holds no mutable state of its own. It is safe for concurrent use.
type WebhookService struct {
	// DB is the database handle used for all operations.
	DB *gorm.DB

	// Scheduler enqueues deferred processing after a new transaction commits.
	// It may be nil (e.g. in read-only deployments or tests), in which case
	// accepted transactions simply stay in PROCESSING.
	Scheduler scheduler.Scheduler
}

// HandleIncoming ingests one webhook delivery.
//
// Semantics:
//   - A WebhookLog row is written for every delivery, duplicates included.
//   - If a Transaction with this identifier already exists, only the audit
//     row is committed and the result reports Duplicate.
//   - Otherwise the audit row and a new Transaction (status PROCESSING) are
//     committed in one database transaction, and deferred processing is
//     scheduled after the commit. Scheduling is fire-and-forget: its failure
//     is logged and never fails the ingestion.
//
// Concurrency & atomicity:
//   - The existence check and the insert are a check-then-act pair; two
//     concurrent deliveries of a fresh identifier can both pass the check.
//     The unique index on transaction_id resolves that race: the loser's
//     insert fails, the enclosing transaction rolls back (so no partial
//     Transaction row survives), and the delivery is re-audited outside the
//     failed transaction before ErrTransactionExists is returned. From the
//     caller's perspective both the pre-checked and the raced duplicate mean
//     "already exists"; only the error shape differs.
//
// Errors:
//   - ErrTransactionExists for the raced duplicate insert.
//   - The underlying DB error for unexpected persistence failures.
func (s *WebhookService) HandleIncoming(ctx context.Context, p WebhookPayload) (*IngestResult, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	var result IngestResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) Audit the delivery unconditionally.
		if _, err := repo.CreateWebhookLog(ctx, tx, p.TransactionID, string(raw)); err != nil {
			return err
		}

		// 2) Duplicate check.
		exists, err := repo.TransactionExists(ctx, tx, p.TransactionID)
		if err != nil {
			return err
		}
		if exists {
			// Commit the audit row only.
			result.Duplicate = true
			return nil
		}

		// 3) First delivery: create the transaction in the same unit.
		t, err := repo.CreateTransaction(ctx, tx, p.TransactionID, p.SourceAccount, p.DestinationAccount, p.Amount, p.Currency)
		if err != nil {
			return err
		}
		result.Transaction = t
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
			// Raced insert: the rollback discarded the audit row too, so
			// re-log the delivery on its own before reporting the conflict.
			// The audit trail must record every delivery, winners and losers.
			if _, logErr := repo.CreateWebhookLog(ctx, s.DB, p.TransactionID, string(raw)); logErr != nil {
				log.Warn().
					Err(logErr).
					Str("transaction_id", p.TransactionID).
					Msg("failed to re-audit raced duplicate delivery")
			}
			return nil, ErrTransactionExists
		}
		return nil, err
	}

	if !result.Duplicate && s.Scheduler != nil {
		// Decoupled from the request: a scheduling failure is logged, never
		// returned, and the caller does not wait for processing.
		if err := s.Scheduler.Schedule(ctx, p.TransactionID); err != nil {
			log.Error().
				Err(err).
				Str("transaction_id", p.TransactionID).
				Msg("transaction created but deferred processing could not be scheduled")
		}
	}

	return &result, nil
}

// GetTransaction returns the current projection of a transaction by its
// business identifier.
//
// Errors:
//   - ErrTransactionNotFound when no (visible) row exists.
//   - The underlying DB error for unexpected persistence failures.
func (s *WebhookService) GetTransaction(ctx context.Context, txnID string) (*domain.Transaction, error) {
	t, err := repo.GetTransaction(ctx, s.DB, txnID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListWebhookLogs returns one page of the audit trail for a transaction
// identifier plus the total number of audit rows for it.
//
// The transaction itself must exist; otherwise ErrTransactionNotFound is
// returned even when stray audit rows reference the identifier.
func (s *WebhookService) ListWebhookLogs(ctx context.Context, txnID string, page, pageSize int) ([]domain.WebhookLog, int64, error) {
	if _, err := s.GetTransaction(ctx, txnID); err != nil {
		return nil, 0, err
	}

	total, _, err := repo.WebhookLogsStats(ctx, s.DB, txnID)
	if err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	logs, err := repo.ListWebhookLogsPage(ctx, s.DB, txnID, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// isDuplicate attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
