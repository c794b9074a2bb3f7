package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
)

// Calculator is pure: no I/O, no clock reads.
type Calculator interface {
	Calculate(modelName string, inputTokens, outputTokens int64, price pricedomain.ModelPriceConfig, rate decimal.Decimal, at time.Time) (CostCalculation, error)
}

// Service resolves price and rate through the pricing store before calculating.
type Service interface {
	Calculate(ctx context.Context, modelName string, inputTokens, outputTokens int64, allowAutoCreate bool) (CostCalculation, error)
}

// TokenCounter estimates the token count of free text for a model.
type TokenCounter interface {
	CountTokens(modelName, text string) int64
}

var (
	ErrInvalidTokenCount = errors.New("invalid_token_count")
	ErrInvalidRate       = errors.New("invalid_rate")
	ErrCreditOverflow    = errors.New("credit_overflow")
)
