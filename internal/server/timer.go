package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

type startTimerRequest struct {
	ProjectID      string `json:"project_id"`
	TaskID         string `json:"task_id"`
	Description    string `json:"description"`
	Billable       *bool  `json:"billable"`
	IdempotencyKey string `json:"idempotency_key"`
}

type idleInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type stopTimerRequest struct {
	ClientIdleIntervals  []idleInterval `json:"client_idle_intervals"`
	AcceptServerIdleTrim bool           `json:"accept_server_idle_trim"`
}

type applyIdleTrimRequest struct {
	TrimSeconds *int64 `json:"trim_seconds"`
}

func (s *Server) StartTimer(c *gin.Context) {
	var req startTimerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	}

	entry, err := s.timeEntrySvc.Start(c.Request.Context(), timeentrydomain.StartTimerRequest{
		ProjectID:      strings.TrimSpace(req.ProjectID),
		TaskID:         strings.TrimSpace(req.TaskID),
		Description:    req.Description,
		Billable:       req.Billable,
		IdempotencyKey: key,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

func (s *Server) CurrentTimer(c *gin.Context) {
	current, err := s.timeEntrySvc.Current(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": current})
}

func (s *Server) PauseTimer(c *gin.Context) {
	entry, err := s.timeEntrySvc.Pause(c.Request.Context(), timeentrydomain.EntryRequest{ID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ResumeTimer(c *gin.Context) {
	entry, err := s.timeEntrySvc.Resume(c.Request.Context(), timeentrydomain.EntryRequest{ID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) StopTimer(c *gin.Context) {
	var req stopTimerRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// nil means the client did not report; an empty list means it saw no idle time.
	var intervals []timeentrydomain.Interval
	if req.ClientIdleIntervals != nil {
		intervals = make([]timeentrydomain.Interval, 0, len(req.ClientIdleIntervals))
		for _, interval := range req.ClientIdleIntervals {
			intervals = append(intervals, timeentrydomain.Interval{Start: interval.Start, End: interval.End})
		}
	}

	entry, err := s.timeEntrySvc.Stop(c.Request.Context(), timeentrydomain.StopTimerRequest{
		ID:                   c.Param("id"),
		ClientIdleIntervals:  intervals,
		AcceptServerIdleTrim: req.AcceptServerIdleTrim,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) Heartbeat(c *gin.Context) {
	entry, err := s.timeEntrySvc.Heartbeat(c.Request.Context(), timeentrydomain.HeartbeatRequest{ID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ApplyIdleTrim(c *gin.Context) {
	var req applyIdleTrimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.TrimSeconds == nil {
		AbortWithError(c, newValidationError("trim_seconds", "required", "trim_seconds is required"))
		return
	}

	entry, err := s.timeEntrySvc.ApplyIdleTrim(c.Request.Context(), timeentrydomain.ApplyIdleTrimRequest{
		ID:          c.Param("id"),
		TrimSeconds: *req.TrimSeconds,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, out any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
