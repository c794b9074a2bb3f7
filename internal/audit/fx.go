package audit

import (
	"github.com/smallbiznis/tokenledger/internal/audit/repository"
	"github.com/smallbiznis/tokenledger/internal/audit/service"
	"go.uber.org/fx"
)

// Module records admin actions (credits, price and rate changes, key
// lifecycle) to the append-only audit_logs table.
var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
