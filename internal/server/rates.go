package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
)

type createRateRequest struct {
	Scope         string           `json:"scope"`
	ScopeID       string           `json:"scope_id"`
	ProjectID     string           `json:"project_id"`
	RateType      string           `json:"rate_type"`
	Currency      string           `json:"currency"`
	HourlyRate    *decimal.Decimal `json:"hourly_rate"`
	EffectiveFrom *time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time       `json:"effective_to"`
}

type listRatesQuery struct {
	Scope    string `form:"scope"`
	ScopeID  string `form:"scope_id"`
	RateType string `form:"rate_type"`
	Currency string `form:"currency"`
	ActiveAt string `form:"active_at"`
}

type resolveRateQuery struct {
	ProjectID string `form:"project_id"`
	ForUserID string `form:"for_user_id"`
	RateType  string `form:"rate_type"`
	At        string `form:"at"`
	Currency  string `form:"currency"`
}

func (s *Server) CreateRate(c *gin.Context) {
	var req createRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.HourlyRate == nil {
		AbortWithError(c, newValidationError("hourly_rate", "required", "hourly_rate is required"))
		return
	}

	resp, err := s.rateSvc.Create(c.Request.Context(), ratedomain.CreateRateRequest{
		Scope:         strings.TrimSpace(req.Scope),
		ScopeID:       strings.TrimSpace(req.ScopeID),
		ProjectID:     strings.TrimSpace(req.ProjectID),
		RateType:      strings.TrimSpace(req.RateType),
		Currency:      strings.TrimSpace(req.Currency),
		HourlyRate:    *req.HourlyRate,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp.Rate, "superseded": resp.Superseded})
}

func (s *Server) ListRates(c *gin.Context) {
	var query listRatesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	activeAt, err := parseOptionalTime(query.ActiveAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("active_at", "invalid_active_at", "invalid active_at"))
		return
	}

	rates, err := s.rateSvc.List(c.Request.Context(), ratedomain.ListRateRequest{
		Scope:    strings.TrimSpace(query.Scope),
		ScopeID:  strings.TrimSpace(query.ScopeID),
		RateType: strings.TrimSpace(query.RateType),
		Currency: strings.TrimSpace(query.Currency),
		ActiveAt: activeAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rates})
}

func (s *Server) ResolveRate(c *gin.Context) {
	var query resolveRateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	at, err := parseOptionalTime(query.At, false)
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
		return
	}

	resolved, err := s.rateSvc.Resolve(c.Request.Context(), ratedomain.ResolveRateRequest{
		ProjectID: strings.TrimSpace(query.ProjectID),
		ForUserID: strings.TrimSpace(query.ForUserID),
		RateType:  strings.TrimSpace(query.RateType),
		At:        at,
		Currency:  strings.TrimSpace(query.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resolved})
}
