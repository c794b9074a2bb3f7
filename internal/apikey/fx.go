package apikey

import (
	"context"

	"github.com/smallbiznis/tokenledger/internal/apikey/domain"
	"github.com/smallbiznis/tokenledger/internal/apikey/repository"
	"github.com/smallbiznis/tokenledger/internal/apikey/service"
	"github.com/smallbiznis/tokenledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(registerBootstrapKey),
)

func registerBootstrapKey(lc fx.Lifecycle, cfg config.Config, svc domain.Service) {
	if cfg.Auth.BootstrapKey == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.EnsureBootstrap(ctx, cfg.Auth.BootstrapKey, cfg.Auth.BootstrapLabel, cfg.Auth.BootstrapRole)
		},
	})
}
