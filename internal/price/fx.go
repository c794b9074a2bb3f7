package price

import (
	"context"
	"strings"

	"github.com/smallbiznis/tokenledger/internal/config"
	exchangeratedomain "github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	"github.com/smallbiznis/tokenledger/internal/price/repository"
	"github.com/smallbiznis/tokenledger/internal/price/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("price.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Store) pricedomain.Store { return s }),
	fx.Provide(fx.Annotate(
		func(s *service.Store) exchangeratedomain.RateChangeListener { return s },
		fx.ResultTags(`group:"exchange_rate_listeners"`),
	)),
	fx.Invoke(registerCatalogSeed),
)

func registerCatalogSeed(lc fx.Lifecycle, cfg config.Config, store pricedomain.Store, log *zap.Logger) {
	path := strings.TrimSpace(cfg.Pricing.CatalogPath)
	if path == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			entries, err := service.LoadCatalogFile(path)
			if err != nil {
				return err
			}
			inserted, err := store.SeedCatalog(ctx, entries)
			if err != nil {
				return err
			}
			log.Info("price catalog seeded", zap.String("path", path), zap.Int("inserted", inserted))
			return nil
		},
	})
}
