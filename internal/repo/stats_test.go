package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-webhook-backend/internal/domain"
)

func TestWebhookLogsStats_EmptyIdentifier(t *testing.T) {
	db := newRepoDB(t, &domain.WebhookLog{})

	count, last, err := WebhookLogsStats(context.Background(), db, "txn_none")
	if err != nil {
		t.Fatalf("WebhookLogsStats: %v", err)
	}
	if count != 0 || last != nil {
		t.Fatalf("empty identifier: count=%d last=%v", count, last)
	}
}

func TestWebhookLogsStats_CountAndLatest(t *testing.T) {
	db := newRepoDB(t, &domain.WebhookLog{})
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	times := []time.Time{base, base.Add(2 * time.Second), base.Add(time.Second)}
	for i, ts := range times {
		l := &domain.WebhookLog{
			ID:            uuidForTest(i),
			TransactionID: "txn_stats",
			Payload:       `{}`,
			ReceivedAt:    ts,
		}
		if err := db.Create(l).Error; err != nil {
			t.Fatalf("seed row %d: %v", i, err)
		}
	}

	count, last, err := WebhookLogsStats(ctx, db, "txn_stats")
	if err != nil {
		t.Fatalf("WebhookLogsStats: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	if last == nil || !last.Equal(base.Add(2*time.Second)) {
		t.Fatalf("last = %v, want %v", last, base.Add(2*time.Second))
	}
}

func TestWebhookLogsStats_Error_NoTable(t *testing.T) {
	db := newRepoDB(t)
	if _, _, err := WebhookLogsStats(context.Background(), db, "txn_1"); err == nil {
		t.Fatalf("expected error without table")
	}
}

func TestTransactionsByStatus(t *testing.T) {
	db := newRepoDB(t, &domain.Transaction{})
	ctx := context.Background()

	for _, id := range []string{"txn_a", "txn_b"} {
		if _, err := CreateTransaction(ctx, db, id, "s", "d", 1, "USD"); err != nil {
			t.Fatalf("CreateTransaction %s: %v", id, err)
		}
	}
	if _, err := MarkTransactionProcessed(ctx, db, "txn_b", time.Now().UTC()); err != nil {
		t.Fatalf("MarkTransactionProcessed: %v", err)
	}

	processing, err := TransactionsByStatus(ctx, db, domain.StatusProcessing)
	if err != nil || processing != 1 {
		t.Fatalf("processing count = %d err=%v, want 1", processing, err)
	}
	processed, err := TransactionsByStatus(ctx, db, domain.StatusProcessed)
	if err != nil || processed != 1 {
		t.Fatalf("processed count = %d err=%v, want 1", processed, err)
	}
	failed, err := TransactionsByStatus(ctx, db, domain.StatusFailed)
	if err != nil || failed != 0 {
		t.Fatalf("failed count = %d err=%v, want 0", failed, err)
	}
}
