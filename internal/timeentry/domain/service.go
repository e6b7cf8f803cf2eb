package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/timeledger/pkg/db/pagination"
)

type StartTimerRequest struct {
	ProjectID      string
	TaskID         string
	Description    string
	Billable       *bool
	IdempotencyKey string
}

type EntryRequest struct {
	ID string
}

type StopTimerRequest struct {
	ID string
	// ClientIdleIntervals is nil when the client did not report idle time.
	ClientIdleIntervals  []Interval
	AcceptServerIdleTrim bool
}

type ApplyIdleTrimRequest struct {
	ID          string
	TrimSeconds int64
}

type HeartbeatRequest struct {
	ID string
}

type CreateManualEntryRequest struct {
	ProjectID    string
	TaskID       string
	Description  string
	StartTS      time.Time
	EndTS        time.Time
	Billable     *bool
	Source       string
	AllowOverlap bool
}

type UpdateEntryRequest struct {
	ID           string
	ProjectID    *string
	TaskID       *string
	Description  *string
	StartTS      *time.Time
	EndTS        *time.Time
	Billable     *bool
	AllowOverlap bool
}

type AdjustmentKind string

const (
	AdjustSetDuration AdjustmentKind = "set_duration"
	AdjustMultiply    AdjustmentKind = "multiply"
	AdjustAddSeconds  AdjustmentKind = "add_seconds"
)

type Adjustment struct {
	Kind    AdjustmentKind
	Seconds int64
	Factor  decimal.Decimal
}

type BulkAdjustRequest struct {
	IDs        []string
	Adjustment Adjustment
}

type ListTimeEntryRequest struct {
	pagination.Pagination
	ProjectID string
	UserID    string
	Start     *time.Time
	End       *time.Time
	Billable  *bool
	Unbilled  bool
}

type ListTimeEntryResponse struct {
	pagination.PageInfo
	TimeEntries []TimeEntry `json:"time_entries"`
}

type CurrentTimer struct {
	Entry          *TimeEntry `json:"entry"`
	State          State      `json:"state,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
}

type Service interface {
	Start(ctx context.Context, req StartTimerRequest) (TimeEntry, error)
	Pause(ctx context.Context, req EntryRequest) (TimeEntry, error)
	Resume(ctx context.Context, req EntryRequest) (TimeEntry, error)
	Stop(ctx context.Context, req StopTimerRequest) (TimeEntry, error)
	ApplyIdleTrim(ctx context.Context, req ApplyIdleTrimRequest) (TimeEntry, error)
	Heartbeat(ctx context.Context, req HeartbeatRequest) (TimeEntry, error)
	Current(ctx context.Context) (CurrentTimer, error)
	CreateManual(ctx context.Context, req CreateManualEntryRequest) (TimeEntry, error)
	Update(ctx context.Context, req UpdateEntryRequest) (TimeEntry, error)
	Delete(ctx context.Context, req EntryRequest) error
	BulkAdjust(ctx context.Context, req BulkAdjustRequest) ([]TimeEntry, error)
	Get(ctx context.Context, req EntryRequest) (TimeEntry, error)
	List(ctx context.Context, req ListTimeEntryRequest) (ListTimeEntryResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidProject      = errors.New("invalid_project")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrInvalidAdjustment   = errors.New("invalid_adjustment")
	ErrInvalidTrim         = errors.New("invalid_trim_seconds")
	ErrNotFound            = errors.New("time_entry_not_found")
	ErrProjectNotFound     = errors.New("project_not_found")
	ErrForbidden           = errors.New("time_entry_forbidden")
	ErrTimerRunning        = errors.New("timer_already_running")
	ErrOverlap             = errors.New("time_entry_overlap")
	ErrInvalidState        = errors.New("invalid_state")
	ErrEntryLocked         = errors.New("time_entry_locked")
	ErrTrimExceedsDuration = errors.New("trim_exceeds_duration")
	ErrNegativeDuration    = errors.New("negative_duration")
	ErrEmptyBatch          = errors.New("empty_batch")
	ErrDuplicateItem       = errors.New("duplicate_item")
)
