package project

import (
	"github.com/smallbiznis/timeledger/internal/project/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("project.repository",
	fx.Provide(repository.Provide),
)
