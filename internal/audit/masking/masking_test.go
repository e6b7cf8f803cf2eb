package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReference(t *testing.T) {
	assert.Equal(t, "", Reference("  "))
	assert.Equal(t, "****", Reference("abc"))
	assert.Equal(t, "****7890", Reference("WIRE1234567890"))
	assert.Equal(t, "ach_****4321", Reference("ach_987654321"))
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "b****@acme.test", Email("billing@acme.test"))
	assert.Equal(t, "****", Email("@x"))
}

func TestMetadataMasksSensitiveKeysOnly(t *testing.T) {
	masked := Metadata(map[string]any{
		"payout_reference": "WIRE1234567890",
		"to":               "billing@acme.test",
		"amount":           "500.00",
		"nested":           map[string]any{"recipient": "ops@acme.test", "number": "INV-000001"},
		"recipient":        42,
	})

	assert.Equal(t, "****7890", masked["payout_reference"])
	assert.Equal(t, "b****@acme.test", masked["to"])
	assert.Equal(t, "500.00", masked["amount"])
	nested := masked["nested"].(map[string]any)
	assert.Equal(t, "o****@acme.test", nested["recipient"])
	assert.Equal(t, "INV-000001", nested["number"])
	assert.NotContains(t, masked, "recipient")
	assert.Nil(t, Metadata(nil))
}
