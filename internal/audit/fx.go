package audit

import (
	"github.com/smallbiznis/timeledger/internal/audit/repository"
	"github.com/smallbiznis/timeledger/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
