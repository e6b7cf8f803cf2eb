package service

import (
	"context"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/timeledger/internal/invoice/domain"
	"github.com/smallbiznis/timeledger/internal/invoice/render"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	"github.com/smallbiznis/timeledger/internal/providers/email"
	"github.com/smallbiznis/timeledger/internal/providers/pdf"
)

const pdfContentType = "application/pdf"

func (s *Service) deliver(ctx context.Context, invoice domain.Invoice, project *projectdomain.Project, to string) error {
	html, err := s.renderer.RenderHTML(renderInput(invoice, project))
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	doc, err := s.pdf.RenderInvoice(ctx, pdfDocument(invoice, project, s.presentStatus(invoice)))
	if err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}

	return s.mailer.Send(ctx, email.Message{
		To:       []string{to},
		Subject:  fmt.Sprintf("Invoice %s", invoice.Number),
		HTMLBody: html,
		Attachments: []email.Attachment{{
			Filename:    fileName(invoice, project),
			ContentType: pdfContentType,
			Data:        doc,
		}},
	})
}

func (s *Service) ExportPDF(ctx context.Context, id string) (domain.Document, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	project, err := s.projectRepo.FindByID(ctx, s.db, invoice.OrgID, invoice.ProjectID)
	if err != nil {
		return domain.Document{}, err
	}

	data, err := s.pdf.RenderInvoice(ctx, pdfDocument(invoice, project, invoice.Status))
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		Filename:    fileName(invoice, project),
		ContentType: pdfContentType,
		Data:        data,
	}, nil
}

func fileName(invoice domain.Invoice, project *projectdomain.Project) string {
	base := invoice.Number
	if project != nil && project.Name != "" {
		base = project.Name + " " + invoice.Number
	}
	return slug.Make(base) + ".pdf"
}

func projectName(project *projectdomain.Project) string {
	if project == nil {
		return ""
	}
	return project.Name
}

func renderInput(invoice domain.Invoice, project *projectdomain.Project) render.RenderInput {
	view := render.InvoiceView{
		Number:      invoice.Number,
		ProjectName: projectName(project),
		Currency:    invoice.Currency,
		Total:       invoice.Total,
		IssuedAt:    &invoice.CreatedAt,
		DueDate:     invoice.DueDate,
		PeriodStart: invoice.PeriodStart,
		PeriodEnd:   invoice.PeriodEnd,
	}
	if invoice.ClientName != nil {
		view.ClientName = *invoice.ClientName
	}
	if invoice.ClientEmail != nil {
		view.ClientEmail = *invoice.ClientEmail
	}

	lines := make([]render.LineView, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		lines = append(lines, render.LineView{
			Description: line.Description,
			Hours:       line.Hours,
			Rate:        line.Rate,
			Amount:      line.Amount,
			IsExpense:   line.Kind == domain.LineKindExpense,
		})
	}
	return render.RenderInput{Invoice: view, Lines: lines}
}

func pdfDocument(invoice domain.Invoice, project *projectdomain.Project, status domain.Status) pdf.InvoiceDocument {
	doc := pdf.InvoiceDocument{
		Number:      invoice.Number,
		ProjectName: projectName(project),
		IssueDate:   render.FormatDate(&invoice.CreatedAt),
		DueDate:     render.FormatDate(invoice.DueDate),
		Status:      string(status),
		Total:       render.FormatMoney(invoice.Total, invoice.Currency),
	}
	if invoice.PeriodStart != nil || invoice.PeriodEnd != nil {
		doc.ServicePeriod = render.FormatDate(invoice.PeriodStart) + " - " + render.FormatDate(invoice.PeriodEnd)
	}
	if invoice.ClientName != nil {
		doc.BillToName = *invoice.ClientName
	}
	if invoice.ClientEmail != nil {
		doc.BillToEmail = *invoice.ClientEmail
	}
	for _, line := range invoice.Lines {
		row := pdf.InvoiceLine{
			Description: line.Description,
			Hours:       "-",
			Rate:        "-",
			Amount:      render.FormatMoney(line.Amount, invoice.Currency),
		}
		if line.Kind == domain.LineKindTime {
			row.Hours = render.FormatHours(line.Hours)
			row.Rate = render.FormatMoney(line.Rate, invoice.Currency)
		}
		doc.Lines = append(doc.Lines, row)
	}
	return doc
}
