package account

import (
	"github.com/smallbiznis/tokenledger/internal/account/liveevents"
	"github.com/smallbiznis/tokenledger/internal/account/repository"
	"github.com/smallbiznis/tokenledger/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewValidator),
	fx.Provide(liveevents.NewHub),
)
