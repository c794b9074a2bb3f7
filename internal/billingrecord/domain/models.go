package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RecordType string

const (
	RecordTypeUsage  RecordType = "usage"
	RecordTypeCharge RecordType = "charge"
)

const StatusCompleted = "completed"

// BillingRecord is the customer-facing line for a deduction or a top-up.
type BillingRecord struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID         string        `gorm:"type:varchar(191);not null;index" json:"user_id"`
	LedgerEntryID  *snowflake.ID `gorm:"index" json:"ledger_entry_id,omitempty"`
	Type           RecordType    `gorm:"type:varchar(16);not null" json:"type"`
	Amount         int64         `gorm:"not null" json:"amount"`
	Description    string        `gorm:"type:text" json:"description"`
	Status         string        `gorm:"type:varchar(16);not null" json:"status"`
	IdempotencyKey string        `gorm:"type:varchar(191);not null;uniqueIndex" json:"idempotency_key"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
}

func (BillingRecord) TableName() string { return "billing_records" }

func UsageKey(ledgerEntryID snowflake.ID) string {
	return "usage:" + ledgerEntryID.String()
}

func ChargeKey(reference string) string {
	return "charge:" + reference
}

// UnbilledEntry is an accepted ledger entry that has no usage record yet.
type UnbilledEntry struct {
	ID           snowflake.ID
	UserID       string
	ModelName    string
	TotalCredits int64
}

type ListFilter struct {
	UserID   string
	Type     RecordType
	BeforeID snowflake.ID
	Limit    int
}

type Repository interface {
	// Insert returns false when a record with the same idempotency key exists.
	Insert(ctx context.Context, db *gorm.DB, record *BillingRecord) (bool, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*BillingRecord, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*BillingRecord, error)
	ListUnbilled(ctx context.Context, db *gorm.DB, limit int) ([]UnbilledEntry, error)
}
