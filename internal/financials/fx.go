package financials

import (
	"github.com/smallbiznis/timeledger/internal/financials/repository"
	"github.com/smallbiznis/timeledger/internal/financials/service"
	"go.uber.org/fx"
)

var Module = fx.Module("financials.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideInvalidator),
	fx.Provide(service.New),
)
