package dedupe

import (
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("usage.dedupe",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	Redis  *redis.Client `optional:"true"`
}

func New(p Params) (domain.Deduper, error) {
	cfg := p.Config.Dedupe
	log := p.Log.Named("usage.dedupe")

	if cfg.Backend == config.BackendRedis {
		if p.Redis == nil {
			return nil, errors.New("dedupe backend redis requires REDIS_ADDR")
		}
		log.Info("using redis deduper", zap.Duration("retention", cfg.Retention))
		return NewRedis(p.Redis, cfg.Retention), nil
	}

	log.Info("using in-memory deduper",
		zap.Duration("retention", cfg.Retention),
		zap.Int("max_entries", cfg.MaxEntries),
	)
	return NewMemory(p.Clock, cfg.Retention, cfg.MaxEntries), nil
}
