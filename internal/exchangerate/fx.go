package exchangerate

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	"github.com/smallbiznis/tokenledger/internal/exchangerate/repository"
	"github.com/smallbiznis/tokenledger/internal/exchangerate/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("exchangerate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(registerBootstrap),
)

func registerBootstrap(lc fx.Lifecycle, cfg config.Config, svc domain.Service, log *zap.Logger) error {
	raw := strings.TrimSpace(cfg.Pricing.BootstrapExchangeRate)
	if raw == "" {
		return nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	if !rate.IsPositive() {
		return domain.ErrInvalidRate
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := svc.EnsureBootstrap(ctx, rate); err != nil {
				log.Error("failed to install bootstrap exchange rate", zap.Error(err))
				return err
			}
			return nil
		},
	})
	return nil
}
