package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("payout.reference", "WIRE-123"),
		attribute.String("rate.hourly_rate", "100"),
		attribute.Int64("project_id", 9),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("project_id"), attrs[0].Key)
}

func TestSafeErrorHidesMessage(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.Equal(t, "*errors.errorString", SafeError(errors.New("secret detail")).Error())
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.1, clampRatio(0))
	assert.Equal(t, 1.0, clampRatio(5))
	assert.Equal(t, 0.5, clampRatio(0.5))
}
