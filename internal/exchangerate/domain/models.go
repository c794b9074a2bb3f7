package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExchangeRate converts one currency unit into credits. Exactly one row is active.
type ExchangeRate struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	CreditsPerUnit decimal.Decimal `json:"credits_per_unit" gorm:"type:numeric(20,6);not null"`
	IsActive       bool            `json:"is_active" gorm:"not null;default:false;index"`
	EffectiveFrom  time.Time       `json:"effective_from" gorm:"not null"`
	CreatedBy      string          `json:"created_by" gorm:"type:varchar(128);not null"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
}

func (ExchangeRate) TableName() string { return "exchange_rates" }

// HistoryEntry is insert-only; nothing in this service updates or deletes it.
type HistoryEntry struct {
	ID        snowflake.ID        `json:"id" gorm:"primaryKey"`
	OldRate   decimal.NullDecimal `json:"old_rate" gorm:"type:numeric(20,6)"`
	NewRate   decimal.Decimal     `json:"new_rate" gorm:"type:numeric(20,6);not null"`
	Reason    string              `json:"reason" gorm:"type:text"`
	ChangedBy string              `json:"changed_by" gorm:"type:varchar(128);not null"`
	CreatedAt time.Time           `json:"created_at" gorm:"not null;index"`
}

func (HistoryEntry) TableName() string { return "exchange_rate_history" }

type Repository interface {
	FindActive(ctx context.Context, db *gorm.DB) (*ExchangeRate, error)
	DeactivateAll(ctx context.Context, db *gorm.DB) error
	Insert(ctx context.Context, db *gorm.DB, rate *ExchangeRate) error
	InsertHistory(ctx context.Context, db *gorm.DB, entry *HistoryEntry) error
	ListHistory(ctx context.Context, db *gorm.DB, limit int) ([]HistoryEntry, error)
}
