package alert

import (
	"github.com/smallbiznis/timeledger/internal/alert/repository"
	"github.com/smallbiznis/timeledger/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
