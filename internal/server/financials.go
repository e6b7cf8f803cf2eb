package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
)

type updateProjectFinanceRequest struct {
	// BudgetAmount set to null clears the budget; absent leaves it unchanged.
	BudgetAmount json.RawMessage `json:"budget_amount"`
	Notes        *string         `json:"notes"`
}

type costSummaryQuery struct {
	Start string `form:"start"`
	End   string `form:"end"`
}

type listAlertsQuery struct {
	Type         string `form:"type"`
	ProjectID    string `form:"project_id"`
	UserID       string `form:"user_id"`
	IncludeAcked string `form:"include_acknowledged"`
	Limit        int    `form:"limit"`
}

func (s *Server) GetProjectFinancials(c *gin.Context) {
	snapshot, err := s.financialsSvc.Get(c.Request.Context(), financialsdomain.GetFinancialsRequest{ProjectID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) RecomputeProjectFinancials(c *gin.Context) {
	snapshot, err := s.financialsSvc.Recompute(c.Request.Context(), financialsdomain.RecomputeRequest{ProjectID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) UpdateProjectFinance(c *gin.Context) {
	var req updateProjectFinanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := financialsdomain.UpdateProjectFinanceRequest{
		ProjectID: c.Param("id"),
		Notes:     req.Notes,
	}
	raw := bytes.TrimSpace(req.BudgetAmount)
	switch {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		update.ClearBudget = true
	default:
		var amount decimal.Decimal
		if err := json.Unmarshal(raw, &amount); err != nil {
			AbortWithError(c, newValidationError("budget_amount", "invalid_budget_amount", "invalid budget_amount"))
			return
		}
		update.BudgetAmount = &amount
	}

	snapshot, err := s.financialsSvc.UpdateProjectFinance(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) ProjectCostSummary(c *gin.Context) {
	var query costSummaryQuery
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

	summary, err := s.financialsSvc.ProjectCostSummary(c.Request.Context(), financialsdomain.ProjectCostSummaryRequest{
		ProjectID: c.Param("id"),
		Start:     start,
		End:       end,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListFinanceAlerts(c *gin.Context) {
	var query listAlertsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	includeAcked, err := parseOptionalBool(query.IncludeAcked)
	if err != nil {
		AbortWithError(c, newValidationError("include_acknowledged", "invalid_include_acknowledged", "invalid include_acknowledged"))
		return
	}

	alerts, err := s.alertSvc.List(c.Request.Context(), alertdomain.ListAlertRequest{
		Kind:         strings.TrimSpace(query.Type),
		ProjectID:    strings.TrimSpace(query.ProjectID),
		UserID:       strings.TrimSpace(query.UserID),
		IncludeAcked: includeAcked != nil && *includeAcked,
		Limit:        query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func (s *Server) AcknowledgeFinanceAlert(c *gin.Context) {
	alert, err := s.alertSvc.Acknowledge(c.Request.Context(), alertdomain.AcknowledgeRequest{ID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}
