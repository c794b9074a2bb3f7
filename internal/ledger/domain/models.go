package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

type RejectReason string

const (
	ReasonInvalidEvent        RejectReason = "invalid_event"
	ReasonUnknownModel        RejectReason = "unknown_model"
	ReasonInvalidTokenCount   RejectReason = "invalid_token_count"
	ReasonConfigUnavailable   RejectReason = "config_unavailable"
	ReasonCostAnomaly         RejectReason = "cost_anomaly"
	ReasonInsufficientBalance RejectReason = "insufficient_balance"
)

// LedgerEntry is the immutable record of one usage event decision.
// IdempotencyKey is only set on accepted entries, so a rejected event can
// be submitted again once the account is topped up.
type LedgerEntry struct {
	ID               snowflake.ID            `gorm:"primaryKey" json:"id"`
	UserID           string                  `gorm:"type:varchar(191);not null;index" json:"user_id"`
	DedupeKey        string                  `gorm:"type:varchar(191);not null;index" json:"dedupe_key"`
	IdempotencyKey   *string                 `gorm:"type:varchar(191);uniqueIndex" json:"idempotency_key,omitempty"`
	ConversationID   string                  `gorm:"type:varchar(191)" json:"conversation_id,omitempty"`
	MessageID        string                  `gorm:"type:varchar(191)" json:"message_id,omitempty"`
	ModelName        string                  `gorm:"type:varchar(191);not null" json:"model_name"`
	InputTokens      int64                   `gorm:"not null" json:"input_tokens"`
	OutputTokens     int64                   `gorm:"not null" json:"output_tokens"`
	TotalTokens      int64                   `gorm:"not null" json:"total_tokens"`
	InputPricePerK   decimal.Decimal         `gorm:"type:numeric(20,10);not null" json:"input_price_per_k"`
	OutputPricePerK  decimal.Decimal         `gorm:"type:numeric(20,10);not null" json:"output_price_per_k"`
	InputCost        decimal.Decimal         `gorm:"type:numeric(30,10);not null" json:"input_cost"`
	OutputCost       decimal.Decimal         `gorm:"type:numeric(30,10);not null" json:"output_cost"`
	TotalCost        decimal.Decimal         `gorm:"type:numeric(30,10);not null" json:"total_cost"`
	InputCredits     int64                   `gorm:"not null" json:"input_credits"`
	OutputCredits    int64                   `gorm:"not null" json:"output_credits"`
	TotalCredits     int64                   `gorm:"not null" json:"total_credits"`
	ExchangeRateUsed decimal.Decimal         `gorm:"type:numeric(20,6);not null" json:"exchange_rate_used"`
	ServiceType      pricedomain.ServiceType `gorm:"type:varchar(32);not null" json:"service_type"`
	PriceAutoCreated bool                    `gorm:"not null;default:false" json:"price_auto_created"`
	Status           Status                  `gorm:"type:varchar(16);not null;index" json:"status"`
	RejectReason     RejectReason            `gorm:"type:varchar(32)" json:"reject_reason,omitempty"`
	Warnings         datatypes.JSON          `json:"warnings,omitempty"`
	BalanceBefore    int64                   `gorm:"not null" json:"balance_before"`
	BalanceAfter     int64                   `gorm:"not null" json:"balance_after"`
	SourceTimestamp  *time.Time              `json:"source_timestamp,omitempty"`
	CreatedAt        time.Time               `gorm:"not null" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

type ListFilter struct {
	UserID   string
	Status   Status
	BeforeID snowflake.ID
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LedgerEntry, error)
	// FindAccepted looks up the accepted entry holding key.
	FindAccepted(ctx context.Context, db *gorm.DB, key string) (*LedgerEntry, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*LedgerEntry, error)
}
