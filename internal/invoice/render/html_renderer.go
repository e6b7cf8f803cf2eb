// Package render produces the HTML body used when an invoice is delivered by email.
package render

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Renderer interface {
	RenderHTML(input RenderInput) (string, error)
}

type RenderInput struct {
	Invoice InvoiceView
	Lines   []LineView
}

type InvoiceView struct {
	Number      string
	ProjectName string
	ClientName  string
	ClientEmail string
	Currency    string
	Total       decimal.Decimal
	IssuedAt    *time.Time
	DueDate     *time.Time
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

type LineView struct {
	Description string
	Hours       decimal.Decimal
	Rate        decimal.Decimal
	Amount      decimal.Decimal
	IsExpense   bool
}

const invoiceHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Invoice.Number}}</title>
  <style>
    body { margin: 0; padding: 32px; font-family: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; color: #1a1f36; background: #f7f9fc; }
    .card { background: #fff; max-width: 720px; margin: 0 auto; padding: 48px; border-radius: 4px; }
    .label { font-size: 11px; text-transform: uppercase; color: #8792a2; font-weight: 600; }
    .total { font-size: 28px; font-weight: 700; margin: 24px 0; }
    table { width: 100%; border-collapse: collapse; }
    th { text-align: left; font-size: 11px; color: #8792a2; border-bottom: 1px solid #e3e8ee; padding: 8px 0; }
    td { padding: 12px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; }
    .num { text-align: right; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Invoice {{.Invoice.Number}}</h1>
    <div class="label">Project</div>
    <div>{{.Invoice.ProjectName}}</div>
    <div class="label" style="margin-top: 12px;">Bill to</div>
    <div><strong>{{.Invoice.ClientName}}</strong> {{.Invoice.ClientEmail}}</div>
    {{if .Invoice.PeriodStart}}<div class="label" style="margin-top: 12px;">Service period</div>
    <div>{{formatDate .Invoice.PeriodStart}} to {{formatDate .Invoice.PeriodEnd}}</div>{{end}}
    <div class="total">{{formatMoney .Invoice.Total .Invoice.Currency}}</div>
    <div>due {{formatDate .Invoice.DueDate}}</div>
    <table>
      <thead>
        <tr><th>Description</th><th class="num">Hours</th><th class="num">Rate</th><th class="num">Amount</th></tr>
      </thead>
      <tbody>
        {{range .Lines}}
        <tr>
          <td>{{.Description}}</td>
          {{if .IsExpense}}<td class="num">-</td><td class="num">-</td>{{else}}<td class="num">{{formatHours .Hours}}</td><td class="num">{{formatMoney .Rate $.Invoice.Currency}}</td>{{end}}
          <td class="num">{{formatMoney .Amount $.Invoice.Currency}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </div>
</body>
</html>
`

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	funcs := template.FuncMap{
		"formatMoney": FormatMoney,
		"formatDate":  FormatDate,
		"formatHours": FormatHours,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceHTMLTemplate)),
	}
}

func (r *HTMLRenderer) RenderHTML(input RenderInput) (string, error) {
	if strings.TrimSpace(input.Invoice.ClientName) == "" {
		input.Invoice.ClientName = "Client"
	}
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func FormatMoney(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return amount.StringFixed(2)
	}
	return currency + " " + amount.StringFixed(2)
}

func FormatDate(value *time.Time) string {
	if value == nil || value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02")
}

func FormatHours(value decimal.Decimal) string {
	return value.Round(2).String()
}
