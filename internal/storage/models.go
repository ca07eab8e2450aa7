package storage

import (
	"time"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Transaction is the persisted outcome of one STK push. Rows are written once,
// when the push reaches a terminal state, and removed only by the retention sweep.
type Transaction struct {
	ID           uint      `gorm:"primaryKey"`
	PhoneNumber  string    `gorm:"size:20;not null;index:idx_payer_amount,priority:1"`
	Amount       int64     `gorm:"not null;index:idx_payer_amount,priority:2"`
	SyncStatus   string    `gorm:"size:64"`
	CreatedAt    time.Time `gorm:"index"`
	MpesaReceipt *string   `gorm:"size:32;uniqueIndex"`
	AccountNo    string    `gorm:"size:64;index"`
}

// Paid reports whether the record carries proof of payment.
func (t *Transaction) Paid() bool {
	return t.MpesaReceipt != nil && *t.MpesaReceipt != ""
}
