package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ProcessFunc is the deferred work a TimerScheduler fires: typically
// services.ProcessorService.ProcessTransaction.
type ProcessFunc func(ctx context.Context, txnID string) error

// TimerScheduler implements the Scheduler interface with in-process timers.
//
// Each Schedule call arms one timer; when it fires, the process function runs
// on its own goroutine with a detached context so it survives the originating
// request. There is no cancellation path: an armed timer always fires, and a
// firing that finds nothing to do is a normal outcome. Pending timers are
// lost on process exit, which the processor's re-read guard makes harmless.
type TimerScheduler struct {
	delay   time.Duration
	timeout time.Duration
	process ProcessFunc
}

// NewTimerScheduler creates a TimerScheduler that waits delay before each
// firing and gives each firing at most timeout of database budget.
func NewTimerScheduler(delay, timeout time.Duration, process ProcessFunc) *TimerScheduler {
	return &TimerScheduler{
		delay:   delay,
		timeout: timeout,
		process: process,
	}
}

// Make sure we conform to the interface
var _ Scheduler = (*TimerScheduler)(nil)

// Schedule arms a timer for txnID and returns immediately. The caller's
// context is ignored on purpose: the deferred work must outlive the request
// that scheduled it.
func (s *TimerScheduler) Schedule(_ context.Context, txnID string) error {
	time.AfterFunc(s.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.process(ctx, txnID); err != nil {
			// Fire-and-forget: log and move on. The request that triggered
			// this completed long ago, and there is no retry path.
			log.Error().
				Err(err).
				Str("transaction_id", txnID).
				Msg("deferred transaction processing failed")
			return
		}
		log.Debug().
			Str("transaction_id", txnID).
			Msg("deferred transaction processing fired")
	})
	return nil
}
