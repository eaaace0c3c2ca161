// Package services – ProcessorService
//
// This file implements the deferred transition that models downstream
// settlement: some time after ingestion, a transaction in PROCESSING is
// advanced to PROCESSED. The operation is deliberately idempotent so that
// duplicate scheduling, process restarts, or concurrent firings for the same
// identifier can never double-apply the terminal transition.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-webhook-backend/internal/repo"
)

// ProcessorService advances transactions to their terminal state.
//
// It trusts nothing captured at scheduling time: the row is re-read at fire
// time inside a database transaction, and the guard clauses below make any
// invocation after the first a no-op.
type ProcessorService struct {
	// DB is the database handle used for the transition.
	DB *gorm.DB
}

// ProcessTransaction attempts the PROCESSING -> PROCESSED transition for the
// given business identifier.
//
// Guard clauses (all normal outcomes, not errors):
//   - the row no longer exists (or was soft-deleted): nothing to do;
//   - the row is already in a terminal state: another invocation won.
//
// Otherwise the status change and the processed_at stamp commit atomically.
// The UPDATE carries its own status predicate, so even a firing that
// interleaves with another between the read and the write cannot overwrite an
// already-set processed_at.
//
// Callers treat this as fire-and-forget: the returned error exists for
// logging at the call site, never for retry or surfacing to a client.
func (s *ProcessorService) ProcessTransaction(ctx context.Context, txnID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := repo.GetTransaction(ctx, tx, txnID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		if t.Status.Terminal() {
			return nil
		}

		_, err = repo.MarkTransactionProcessed(ctx, tx, txnID, time.Now().UTC())
		return err
	})
}
