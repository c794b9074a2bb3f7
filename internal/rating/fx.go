package rating

import (
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	"github.com/smallbiznis/tokenledger/internal/rating/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rating.service",
	fx.Provide(service.NewCalculator),
	fx.Provide(service.NewService),
	fx.Provide(service.NewTokenizer),
	fx.Provide(func(t *service.Tokenizer) ratingdomain.TokenCounter { return t }),
)
