package pdf

import "context"

type InvoiceLine struct {
	Description string
	Hours       string
	Rate        string
	Amount      string
}

// InvoiceDocument is the pre-formatted content of an invoice export.
type InvoiceDocument struct {
	Number        string
	ProjectName   string
	IssueDate     string
	DueDate       string
	ServicePeriod string
	Status        string
	BillToName    string
	BillToEmail   string
	Lines         []InvoiceLine
	Total         string
}

type Provider interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error)
}
