// Package scheduler decouples deferred transaction processing from the
// request lifecycle. Ingestion asks a Scheduler to fire the processor for an
// identifier after a delay and then forgets about it; whatever fires later
// relies on the processor's own guards for safety, not on anything captured
// here.
package scheduler

import "context"

// Scheduler defines the interface for a component that schedules a
// transaction for later processing.
type Scheduler interface {
	// Schedule arranges for deferred processing of the transaction with the
	// given business identifier. It must return promptly: the delay elapses
	// and the processing runs outside the caller's lifecycle, and no
	// completion signal is ever delivered back.
	Schedule(ctx context.Context, txnID string) error
}
