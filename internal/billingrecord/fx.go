package billingrecord

import (
	"context"

	"github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	"github.com/smallbiznis/tokenledger/internal/billingrecord/repository"
	"github.com/smallbiznis/tokenledger/internal/billingrecord/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingrecord.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewRetryQueue),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(service.ProvideReconcileConfig),
	fx.Provide(service.NewReconciler),
	fx.Invoke(registerReconciler),
)

func registerReconciler(lc fx.Lifecycle, r *service.Reconciler) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})
			go func() {
				defer close(done)
				r.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
