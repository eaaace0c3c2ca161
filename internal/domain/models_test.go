package domain

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("domain_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&Transaction{}, &WebhookLog{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	if got := (Transaction{}).TableName(); got != "transactions" {
		t.Fatalf("Transaction table = %q", got)
	}
	if got := (WebhookLog{}).TableName(); got != "webhook_logs" {
		t.Fatalf("WebhookLog table = %q", got)
	}
}

func TestTransactionStatus_Terminal(t *testing.T) {
	cases := []struct {
		status TransactionStatus
		want   bool
	}{
		{StatusProcessing, false},
		{StatusProcessed, true},
		{StatusFailed, true},
		{TransactionStatus("UNKNOWN"), false},
	}
	for _, c := range cases {
		if got := c.status.Terminal(); got != c.want {
			t.Fatalf("Terminal(%q) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestMigrations_UniqueTransactionID_NonUniqueLogs(t *testing.T) {
	db := newDomainDB(t)

	mk := func(id, txnID string) *Transaction {
		return &Transaction{ID: id, TransactionID: txnID, SourceAccount: "s", DestinationAccount: "d", Amount: 1, Currency: "USD", Status: StatusProcessing}
	}

	if err := db.Create(mk("00000000-0000-0000-0000-000000000001", "txn_1")).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := db.Create(mk("00000000-0000-0000-0000-000000000002", "txn_1")).Error; err == nil {
		t.Fatalf("duplicate transaction_id must violate the unique index")
	}

	// The audit table deliberately has no such constraint.
	for i := 0; i < 2; i++ {
		l := &WebhookLog{
			ID:            fmt.Sprintf("00000000-0000-0000-0000-00000000001%d", i),
			TransactionID: "txn_1",
			Payload:       `{}`,
			ReceivedAt:    time.Now().UTC(),
		}
		if err := db.Create(l).Error; err != nil {
			t.Fatalf("audit insert %d: %v", i, err)
		}
	}
}

func TestTransaction_SoftDeleteHiddenFromDefaultScope(t *testing.T) {
	db := newDomainDB(t)

	txn := &Transaction{ID: "00000000-0000-0000-0000-000000000003", TransactionID: "txn_del", SourceAccount: "s", DestinationAccount: "d", Amount: 2, Currency: "EUR", Status: StatusProcessing}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Delete(txn).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	var n int64
	if err := db.Model(&Transaction{}).Where("transaction_id = ?", "txn_del").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("soft-deleted row visible in default scope")
	}
	if err := db.Unscoped().Model(&Transaction{}).Where("transaction_id = ?", "txn_del").Count(&n).Error; err != nil {
		t.Fatalf("unscoped count: %v", err)
	}
	if n != 1 {
		t.Fatalf("soft-deleted row must survive unscoped, got %d", n)
	}
}
