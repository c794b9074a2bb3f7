package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Account holds the spendable credit balance of one user.
type Account struct {
	UserID        string    `gorm:"primaryKey;type:varchar(191)" json:"user_id"`
	CreditBalance int64     `gorm:"not null;default:0;check:chk_accounts_credit_balance,credit_balance >= 0" json:"credit_balance"`
	Version       int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Account, error)
	// EnsureAccount creates a zero-balance account if none exists.
	EnsureAccount(ctx context.Context, db *gorm.DB, userID string, now time.Time) error
	// Debit subtracts amount when the balance covers it and the version still matches.
	// It returns the number of rows changed.
	Debit(ctx context.Context, db *gorm.DB, userID string, amount, version int64, now time.Time) (int64, error)
	Credit(ctx context.Context, db *gorm.DB, userID string, amount, version int64, now time.Time) (int64, error)
}
