package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/timeledger/internal/invoice/domain"
)

type draftInvoiceRequest struct {
	ProjectID       string     `json:"project_id"`
	Start           *time.Time `json:"start"`
	End             *time.Time `json:"end"`
	ClientName      *string    `json:"client_name"`
	ClientEmail     *string    `json:"client_email"`
	DueDate         *time.Time `json:"due_date"`
	IncludeExpenses *bool      `json:"include_expenses"`
	SendNow         bool       `json:"send_now"`
}

type sendInvoiceRequest struct {
	ToEmail string `json:"to_email"`
}

type cancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

type markInvoicePaidRequest struct {
	PaidAt *time.Time `json:"paid_at"`
}

type listInvoicesQuery struct {
	ProjectID string `form:"project_id"`
	Status    string `form:"status"`
	PageSize  int    `form:"page_size"`
	Page      int    `form:"page"`
}

func (s *Server) DraftInvoice(c *gin.Context) {
	var req draftInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Draft(c.Request.Context(), invoicedomain.DraftInvoiceRequest{
		ProjectID:       strings.TrimSpace(req.ProjectID),
		Start:           req.Start,
		End:             req.End,
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		DueDate:         req.DueDate,
		IncludeExpenses: req.IncludeExpenses,
		SendNow:         req.SendNow,
	})
	if errors.Is(err, invoicedomain.ErrDeliveryFailed) {
		// The draft exists; the client needs it to retry the send.
		_ = c.Error(err)
		status, payload := mapError(err)
		c.JSON(status, gin.H{"error": payload, "data": invoice})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		ProjectID: strings.TrimSpace(query.ProjectID),
		Status:    strings.TrimSpace(query.Status),
		PageSize:  query.PageSize,
		Page:      query.Page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices})
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) SendInvoice(c *gin.Context) {
	var req sendInvoiceRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.Send(c.Request.Context(), invoicedomain.SendInvoiceRequest{
		ID:      c.Param("id"),
		ToEmail: strings.TrimSpace(req.ToEmail),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CancelInvoice(c *gin.Context) {
	var req cancelInvoiceRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Cancel(c.Request.Context(), invoicedomain.CancelInvoiceRequest{
		ID:     c.Param("id"),
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	var req markInvoicePaidRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.MarkPaid(c.Request.Context(), invoicedomain.MarkPaidRequest{
		ID:     c.Param("id"),
		PaidAt: req.PaidAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ExportInvoicePDF(c *gin.Context) {
	doc, err := s.invoiceSvc.ExportPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, doc.ContentType, doc.Data)
}
