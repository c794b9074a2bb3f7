package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Service interface {
	GetCurrent(ctx context.Context) (*ExchangeRate, error)
	SetNew(ctx context.Context, req SetRateRequest) (*ExchangeRate, error)
	History(ctx context.Context, limit int) ([]HistoryEntry, error)
	EnsureBootstrap(ctx context.Context, rate decimal.Decimal) error
}

type SetRateRequest struct {
	CreditsPerUnit decimal.Decimal `json:"credits_per_unit"`
	Reason         string          `json:"reason"`
	Actor          string          `json:"-"`
}

// RateChangeListener is notified after a new rate has been committed.
type RateChangeListener interface {
	OnExchangeRateChanged(rate decimal.Decimal)
}

var (
	ErrNoActiveRate = errors.New("no_active_exchange_rate")
	ErrInvalidRate  = errors.New("invalid_rate")
)
