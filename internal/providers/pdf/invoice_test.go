package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderInvoiceProducesPDF(t *testing.T) {
	out, err := New().RenderInvoice(context.Background(), InvoiceDocument{
		Number:      "INV-000001",
		ProjectName: "Website",
		IssueDate:   "2024-02-01",
		DueDate:     "2024-03-01",
		Status:      "draft",
		Lines: []InvoiceLine{
			{Description: "Design", Hours: "5", Rate: "USD 60.00", Amount: "USD 300.00"},
		},
		Total: "USD 300.00",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderInvoiceHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().RenderInvoice(ctx, InvoiceDocument{})
	assert.ErrorIs(t, err, context.Canceled)
}
