package log

import (
	"context"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/timeledger/internal/observability/context"
	"github.com/smallbiznis/timeledger/internal/observability/logger"
	"go.uber.org/zap"
)

// L returns a context-aware logger with correlation and tracing metadata.
func L(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx)
}

// EnsureCorrelationID guarantees a correlation id on ctx, generating a ULID when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if cid := obscontext.CorrelationIDFromContext(ctx); cid != "" {
		return ctx, cid
	}
	cid := ulid.Make().String()
	return obscontext.WithCorrelationID(ctx, cid), cid
}
