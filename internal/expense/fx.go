package expense

import (
	"github.com/smallbiznis/timeledger/internal/expense/repository"
	"github.com/smallbiznis/timeledger/internal/expense/service"
	"go.uber.org/fx"
)

var Module = fx.Module("expense.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideStore),
	fx.Provide(service.New),
)
