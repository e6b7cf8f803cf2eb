package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	expensedomain "github.com/smallbiznis/timeledger/internal/expense/domain"
)

type createExpenseRequest struct {
	ProjectID   string           `json:"project_id"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency"`
	Category    string           `json:"category"`
	Description string           `json:"description"`
	ReceiptURL  string           `json:"receipt_url"`
	IncurredOn  *time.Time       `json:"incurred_on"`
}

type updateExpenseRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency"`
	Category    *string          `json:"category"`
	Description *string          `json:"description"`
	ReceiptURL  *string          `json:"receipt_url"`
	IncurredOn  *time.Time       `json:"incurred_on"`
}

type listExpensesQuery struct {
	ProjectID string `form:"project_id"`
	Category  string `form:"category"`
	PageSize  int    `form:"page_size"`
	Page      int    `form:"page"`
}

func (s *Server) CreateExpense(c *gin.Context) {
	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}

	expense, err := s.expenseSvc.Create(c.Request.Context(), expensedomain.CreateExpenseRequest{
		ProjectID:   strings.TrimSpace(req.ProjectID),
		Amount:      *req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		ReceiptURL:  strings.TrimSpace(req.ReceiptURL),
		IncurredOn:  req.IncurredOn,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": expense})
}

func (s *Server) ListExpenses(c *gin.Context) {
	var query listExpensesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	expenses, err := s.expenseSvc.List(c.Request.Context(), expensedomain.ListExpenseRequest{
		ProjectID: strings.TrimSpace(query.ProjectID),
		Category:  strings.TrimSpace(query.Category),
		PageSize:  query.PageSize,
		Page:      query.Page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expenses})
}

func (s *Server) GetExpense(c *gin.Context) {
	expense, err := s.expenseSvc.Get(c.Request.Context(), expensedomain.ExpenseRequest{ID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expense})
}

func (s *Server) UpdateExpense(c *gin.Context) {
	var req updateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	expense, err := s.expenseSvc.Update(c.Request.Context(), expensedomain.UpdateExpenseRequest{
		ID:          c.Param("id"),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		ReceiptURL:  req.ReceiptURL,
		IncurredOn:  req.IncurredOn,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expense})
}

func (s *Server) DeleteExpense(c *gin.Context) {
	if err := s.expenseSvc.Delete(c.Request.Context(), expensedomain.ExpenseRequest{ID: c.Param("id")}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
