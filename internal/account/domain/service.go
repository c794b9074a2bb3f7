package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidUserID       = errors.New("invalid_user_id")
)

// BalanceValidation is the outcome of checking a balance against a required amount.
type BalanceValidation struct {
	UserID           string `json:"user_id"`
	RequiredCredits  int64  `json:"required_credits"`
	CurrentBalance   int64  `json:"current_balance"`
	HasEnoughBalance bool   `json:"has_enough_balance"`
	Shortfall        int64  `json:"shortfall"`
}

// Evaluate compares balance with required. A missing account has balance zero.
func Evaluate(userID string, balance, required int64) BalanceValidation {
	v := BalanceValidation{
		UserID:           userID,
		RequiredCredits:  required,
		CurrentBalance:   balance,
		HasEnoughBalance: balance >= required,
	}
	if !v.HasEnoughBalance {
		v.Shortfall = required - balance
	}
	return v
}

type Balance struct {
	UserID        string `json:"user_id"`
	CreditBalance int64  `json:"credit_balance"`
	Version       int64  `json:"version"`
}

type Service interface {
	Validate(ctx context.Context, userID string, requiredCredits int64) (BalanceValidation, error)
	// ValidateTx reads through tx and also returns the loaded account, nil when missing.
	ValidateTx(ctx context.Context, tx *gorm.DB, userID string, requiredCredits int64) (BalanceValidation, *Account, error)
	GetBalance(ctx context.Context, userID string) (Balance, error)
}
