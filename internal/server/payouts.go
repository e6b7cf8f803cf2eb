package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	payoutdomain "github.com/smallbiznis/timeledger/internal/payout/domain"
)

type createPayoutRequest struct {
	FreelancerUserID string           `json:"freelancer_user_id"`
	ProjectID        string           `json:"project_id"`
	Amount           *decimal.Decimal `json:"amount"`
	Currency         string           `json:"currency"`
	PayoutMethod     string           `json:"payout_method"`
	ScheduledFor     *time.Time       `json:"scheduled_for"`
	Notes            *string          `json:"notes"`
}

type markPayoutCompletedRequest struct {
	PayoutReference string     `json:"payout_reference"`
	PaidAt          *time.Time `json:"paid_at"`
}

type markPayoutFailedRequest struct {
	Reason string `json:"reason"`
}

type listPayoutsQuery struct {
	FreelancerUserID string `form:"freelancer_user_id"`
	ProjectID        string `form:"project_id"`
	Status           string `form:"status"`
	PageSize         int    `form:"page_size"`
	Page             int    `form:"page"`
}

func (q listPayoutsQuery) request() payoutdomain.ListPayoutRequest {
	return payoutdomain.ListPayoutRequest{
		FreelancerUserID: strings.TrimSpace(q.FreelancerUserID),
		ProjectID:        strings.TrimSpace(q.ProjectID),
		Status:           strings.TrimSpace(q.Status),
		PageSize:         q.PageSize,
		Page:             q.Page,
	}
}

type financeSummaryQuery struct {
	Start string `form:"start"`
	End   string `form:"end"`
}

func (s *Server) CreatePayout(c *gin.Context) {
	var req createPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}

	payout, err := s.payoutSvc.Create(c.Request.Context(), payoutdomain.CreatePayoutRequest{
		FreelancerUserID: strings.TrimSpace(req.FreelancerUserID),
		ProjectID:        strings.TrimSpace(req.ProjectID),
		Amount:           *req.Amount,
		Currency:         req.Currency,
		PayoutMethod:     req.PayoutMethod,
		ScheduledFor:     req.ScheduledFor,
		Notes:            req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payout})
}

func (s *Server) ListPayouts(c *gin.Context) {
	var query listPayoutsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.List(c.Request.Context(), query.request())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payouts})
}

func (s *Server) GetPayout(c *gin.Context) {
	payout, err := s.payoutSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) MarkPayoutCompleted(c *gin.Context) {
	var req markPayoutCompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payout, err := s.payoutSvc.MarkCompleted(c.Request.Context(), payoutdomain.MarkCompletedRequest{
		ID:              c.Param("id"),
		PayoutReference: strings.TrimSpace(req.PayoutReference),
		PaidAt:          req.PaidAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) MarkPayoutFailed(c *gin.Context) {
	var req markPayoutFailedRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payout, err := s.payoutSvc.MarkFailed(c.Request.Context(), payoutdomain.MarkFailedRequest{
		ID:     c.Param("id"),
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) ExportPayouts(c *gin.Context) {
	var query listPayoutsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	export, err := s.payoutSvc.ExportCSV(c.Request.Context(), query.request())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, export.ContentType, export.Data)
}

func (s *Server) FreelancerFinanceSummary(c *gin.Context) {
	var query financeSummaryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	start, err := parseOptionalTime(query.Start, false)
	if err != nil {
		AbortWithError(c, newValidationError("start", "invalid_start", "invalid start"))
		return
	}
	end, err := parseOptionalTime(query.End, true)
	if err != nil {
		AbortWithError(c, newValidationError("end", "invalid_end", "invalid end"))
		return
	}

	summary, err := s.payoutSvc.FinanceSummary(c.Request.Context(), payoutdomain.FinanceSummaryRequest{
		UserID: c.Param("id"),
		Start:  start,
		End:    end,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
