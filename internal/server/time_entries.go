package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"github.com/smallbiznis/timeledger/pkg/db/pagination"
)

type createManualEntryRequest struct {
	ProjectID    string    `json:"project_id"`
	TaskID       string    `json:"task_id"`
	Description  string    `json:"description"`
	StartTS      time.Time `json:"start_ts"`
	EndTS        time.Time `json:"end_ts"`
	Billable     *bool     `json:"billable"`
	Source       string    `json:"source"`
	AllowOverlap bool      `json:"allow_overlap"`
}

type updateTimeEntryRequest struct {
	ProjectID    *string    `json:"project_id"`
	TaskID       *string    `json:"task_id"`
	Description  *string    `json:"description"`
	StartTS      *time.Time `json:"start_ts"`
	EndTS        *time.Time `json:"end_ts"`
	Billable     *bool      `json:"billable"`
	AllowOverlap bool       `json:"allow_overlap"`
}

type adjustmentRequest struct {
	Type    string          `json:"type"`
	Seconds int64           `json:"seconds"`
	Factor  decimal.Decimal `json:"factor"`
}

type bulkAdjustRequest struct {
	EntryIDs   []string          `json:"entry_ids"`
	Adjustment adjustmentRequest `json:"adjustment"`
}

type listTimeEntriesQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	ProjectID string `form:"project_id"`
	UserID    string `form:"user_id"`
	Start     string `form:"start"`
	End       string `form:"end"`
	Billable  string `form:"billable"`
	Unbilled  string `form:"unbilled"`
}

func (s *Server) ListTimeEntries(c *gin.Context) {
	var query listTimeEntriesQuery
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
	billable, err := parseOptionalBool(query.Billable)
	if err != nil {
		AbortWithError(c, newValidationError("billable", "invalid_billable", "invalid billable"))
		return
	}
	unbilled, err := parseOptionalBool(query.Unbilled)
	if err != nil {
		AbortWithError(c, newValidationError("unbilled", "invalid_unbilled", "invalid unbilled"))
		return
	}

	resp, err := s.timeEntrySvc.List(c.Request.Context(), timeentrydomain.ListTimeEntryRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		ProjectID: strings.TrimSpace(query.ProjectID),
		UserID:    strings.TrimSpace(query.UserID),
		Start:     start,
		End:       end,
		Billable:  billable,
		Unbilled:  unbilled != nil && *unbilled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.TimeEntries, "page_info": resp.PageInfo})
}

func (s *Server) CreateManualEntry(c *gin.Context) {
	var req createManualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.timeEntrySvc.CreateManual(c.Request.Context(), timeentrydomain.CreateManualEntryRequest{
		ProjectID:    strings.TrimSpace(req.ProjectID),
		TaskID:       strings.TrimSpace(req.TaskID),
		Description:  req.Description,
		StartTS:      req.StartTS,
		EndTS:        req.EndTS,
		Billable:     req.Billable,
		Source:       strings.TrimSpace(req.Source),
		AllowOverlap: req.AllowOverlap,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

func (s *Server) GetTimeEntry(c *gin.Context) {
	entry, err := s.timeEntrySvc.Get(c.Request.Context(), timeentrydomain.EntryRequest{ID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) UpdateTimeEntry(c *gin.Context) {
	var req updateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.timeEntrySvc.Update(c.Request.Context(), timeentrydomain.UpdateEntryRequest{
		ID:           c.Param("id"),
		ProjectID:    req.ProjectID,
		TaskID:       req.TaskID,
		Description:  req.Description,
		StartTS:      req.StartTS,
		EndTS:        req.EndTS,
		Billable:     req.Billable,
		AllowOverlap: req.AllowOverlap,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) DeleteTimeEntry(c *gin.Context) {
	if err := s.timeEntrySvc.Delete(c.Request.Context(), timeentrydomain.EntryRequest{ID: c.Param("id")}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) BulkAdjustEntries(c *gin.Context) {
	var req bulkAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries, err := s.timeEntrySvc.BulkAdjust(c.Request.Context(), timeentrydomain.BulkAdjustRequest{
		IDs: req.EntryIDs,
		Adjustment: timeentrydomain.Adjustment{
			Kind:    timeentrydomain.AdjustmentKind(strings.TrimSpace(req.Adjustment.Type)),
			Seconds: req.Adjustment.Seconds,
			Factor:  req.Adjustment.Factor,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}
