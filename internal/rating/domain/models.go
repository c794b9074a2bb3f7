package domain

import (
	"time"

	"github.com/shopspring/decimal"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
)

// CostCalculation is a value: every price and rate that produced it is copied
// in, so later configuration changes never alter it.
type CostCalculation struct {
	ModelName        string                  `json:"model_name"`
	InputTokens      int64                   `json:"input_tokens"`
	OutputTokens     int64                   `json:"output_tokens"`
	TotalTokens      int64                   `json:"total_tokens"`
	InputPricePerK   decimal.Decimal         `json:"input_price_per_k"`
	OutputPricePerK  decimal.Decimal         `json:"output_price_per_k"`
	InputCost        decimal.Decimal         `json:"input_cost"`
	OutputCost       decimal.Decimal         `json:"output_cost"`
	TotalCost        decimal.Decimal         `json:"total_cost"`
	InputCredits     int64                   `json:"input_credits"`
	OutputCredits    int64                   `json:"output_credits"`
	TotalCredits     int64                   `json:"total_credits"`
	ExchangeRateUsed decimal.Decimal         `json:"exchange_rate_used"`
	ServiceType      pricedomain.ServiceType `json:"service_type"`
	PriceAutoCreated bool                    `json:"price_auto_created"`
	IsPaidModel      bool                    `json:"is_paid_model"`
	CalculatedAt     time.Time               `json:"calculated_at"`
}
