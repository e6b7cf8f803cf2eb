package providers

import (
	"github.com/smallbiznis/timeledger/internal/providers/email"
	"github.com/smallbiznis/timeledger/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
