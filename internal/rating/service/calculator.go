package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
)

type calculator struct{}

func NewCalculator() ratingdomain.Calculator {
	return calculator{}
}

// Calculate prices input and output separately at 1000-token granularity and
// rounds each side half away from zero, so InputCredits + OutputCredits is
// always exactly TotalCredits.
func (calculator) Calculate(modelName string, inputTokens, outputTokens int64, price pricedomain.ModelPriceConfig, rate decimal.Decimal, at time.Time) (ratingdomain.CostCalculation, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return ratingdomain.CostCalculation{}, ratingdomain.ErrInvalidTokenCount
	}
	if !rate.IsPositive() {
		return ratingdomain.CostCalculation{}, ratingdomain.ErrInvalidRate
	}
	totalTokens := inputTokens + outputTokens
	if totalTokens < 0 {
		return ratingdomain.CostCalculation{}, ratingdomain.ErrInvalidTokenCount
	}

	inputCost := decimal.NewFromInt(inputTokens).Mul(price.InputPricePerK).Shift(-3)
	outputCost := decimal.NewFromInt(outputTokens).Mul(price.OutputPricePerK).Shift(-3)

	inputCredits, err := toCredits(inputCost, rate)
	if err != nil {
		return ratingdomain.CostCalculation{}, err
	}
	outputCredits, err := toCredits(outputCost, rate)
	if err != nil {
		return ratingdomain.CostCalculation{}, err
	}
	totalCredits := inputCredits + outputCredits
	if totalCredits < inputCredits {
		return ratingdomain.CostCalculation{}, ratingdomain.ErrCreditOverflow
	}

	return ratingdomain.CostCalculation{
		ModelName:        pricedomain.NormalizeModelName(modelName),
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		TotalTokens:      totalTokens,
		InputPricePerK:   price.InputPricePerK,
		OutputPricePerK:  price.OutputPricePerK,
		InputCost:        inputCost,
		OutputCost:       outputCost,
		TotalCost:        inputCost.Add(outputCost),
		InputCredits:     inputCredits,
		OutputCredits:    outputCredits,
		TotalCredits:     totalCredits,
		ExchangeRateUsed: rate,
		ServiceType:      price.ServiceType,
		PriceAutoCreated: price.AutoCreated,
		IsPaidModel:      price.IsPaid(),
		CalculatedAt:     at.UTC(),
	}, nil
}

// toCredits rounds cost*rate half away from zero.
func toCredits(cost, rate decimal.Decimal) (int64, error) {
	credits := cost.Mul(rate).Round(0)
	big := credits.BigInt()
	if !big.IsInt64() {
		return 0, fmt.Errorf("%w: %s", ratingdomain.ErrCreditOverflow, credits.String())
	}
	return big.Int64(), nil
}
