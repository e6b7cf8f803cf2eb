package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumberDefault(t *testing.T) {
	out, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, time.Now(), 1)
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", out)

	out, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, time.Now(), 1234567)
	require.NoError(t, err)
	assert.Equal(t, "INV-1234567", out)
}

func TestFormatInvoiceNumberDateTokens(t *testing.T) {
	issued := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	out, err := FormatInvoiceNumber("{YYYY}{MM}{DD}-{SEQ}", issued, 42)
	require.NoError(t, err)
	assert.Equal(t, "20240309-42", out)
}

func TestFormatInvoiceNumberRejectsBadInput(t *testing.T) {
	_, err := FormatInvoiceNumber("", time.Now(), 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, time.Now(), 0)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("INV-{UNKNOWN}", time.Now(), 1)
	assert.Error(t, err)
}
