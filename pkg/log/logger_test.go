package log

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/timeledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCorrelationIDGeneratesULID(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	_, err := ulid.Parse(cid)
	require.NoError(t, err)
	assert.Equal(t, cid, obscontext.CorrelationIDFromContext(ctx))
}

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	base := obscontext.WithCorrelationID(context.Background(), "existing")
	ctx, cid := EnsureCorrelationID(base)
	assert.Equal(t, "existing", cid)
	assert.Equal(t, base, ctx)
}
