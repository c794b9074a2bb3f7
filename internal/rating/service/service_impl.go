package service

import (
	"context"

	"github.com/smallbiznis/tokenledger/internal/clock"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Store      pricedomain.Store
	Calculator ratingdomain.Calculator
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	store      pricedomain.Store
	calculator ratingdomain.Calculator
}

func NewService(p ServiceParam) ratingdomain.Service {
	calc := p.Calculator
	if calc == nil {
		calc = NewCalculator()
	}
	return &Service{
		log:        p.Log.Named("rating.service"),
		clock:      p.Clock,
		store:      p.Store,
		calculator: calc,
	}
}

func (s *Service) Calculate(ctx context.Context, modelName string, inputTokens, outputTokens int64, allowAutoCreate bool) (ratingdomain.CostCalculation, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return ratingdomain.CostCalculation{}, ratingdomain.ErrInvalidTokenCount
	}

	price, err := s.store.Resolve(ctx, modelName, allowAutoCreate)
	if err != nil {
		return ratingdomain.CostCalculation{}, err
	}
	rate, err := s.store.GetCurrentExchangeRate(ctx)
	if err != nil {
		return ratingdomain.CostCalculation{}, err
	}

	calc, err := s.calculator.Calculate(modelName, inputTokens, outputTokens, price, rate, s.clock.Now())
	if err != nil {
		return ratingdomain.CostCalculation{}, err
	}

	if ce := s.log.Check(zap.DebugLevel, "cost calculated"); ce != nil {
		ce.Write(
			zap.String("model_name", calc.ModelName),
			zap.Int64("input_tokens", calc.InputTokens),
			zap.Int64("output_tokens", calc.OutputTokens),
			zap.String("total_cost", calc.TotalCost.String()),
			zap.Int64("total_credits", calc.TotalCredits),
		)
	}
	return calc, nil
}
