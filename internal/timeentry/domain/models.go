package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Source string

const (
	SourceTimer    Source = "timer"
	SourceManual   Source = "manual"
	SourceCalendar Source = "calendar"
	SourceImport   Source = "import"
)

type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

type PausedInterval struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end"`
}

// IdleSuggestion is advisory; only IdleTrimAppliedSeconds changes duration.
type IdleSuggestion struct {
	IdleSeconds          int64   `json:"idle_seconds"`
	IdlePercent          float64 `json:"idle_percent"`
	SuggestedTrimSeconds int64   `json:"suggested_trim_seconds"`
	Basis                string  `json:"basis"`
}

type TimeEntry struct {
	ID                     snowflake.ID                        `gorm:"primaryKey" json:"id"`
	OrgID                  snowflake.ID                        `gorm:"not null;index" json:"organization_id"`
	UserID                 snowflake.ID                        `gorm:"not null;index" json:"user_id"`
	ProjectID              snowflake.ID                        `gorm:"not null;index" json:"project_id"`
	TaskID                 *snowflake.ID                       `gorm:"index" json:"task_id"`
	Description            string                              `gorm:"type:text" json:"description"`
	StartTS                time.Time                           `gorm:"column:start_ts;not null;index" json:"start_ts"`
	EndTS                  *time.Time                          `gorm:"column:end_ts;index" json:"end_ts"`
	DurationSeconds        int64                               `gorm:"not null;default:0" json:"duration_seconds"`
	Billable               bool                                `gorm:"not null" json:"billable"`
	PausedIntervals        datatypes.JSONSlice[PausedInterval] `gorm:"not null" json:"paused_intervals"`
	IdleSuggestion         datatypes.JSONType[*IdleSuggestion] `gorm:"not null" json:"idle_suggestion"`
	IdleTrimAppliedSeconds int64                               `gorm:"not null;default:0" json:"idle_trim_applied_seconds"`
	Source                 Source                              `gorm:"type:text;not null" json:"source"`
	IdempotencyKey         *string                             `gorm:"type:text;index" json:"-"`
	LastHeartbeatAt        *time.Time                          `json:"last_heartbeat_at,omitempty"`
	InvoiceID              *snowflake.ID                       `gorm:"index" json:"invoice_id"`
	Version                int64                               `gorm:"not null;default:1" json:"-"`
	CreatedAt              time.Time                           `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time                           `gorm:"not null" json:"updated_at"`
}

func (TimeEntry) TableName() string { return "time_entries" }

// Heartbeat is one activity ping from the client for an open entry.
type Heartbeat struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID   snowflake.ID `gorm:"not null" json:"organization_id"`
	EntryID snowflake.ID `gorm:"not null;index" json:"time_entry_id"`
	UserID  snowflake.ID `gorm:"not null" json:"user_id"`
	At      time.Time    `gorm:"not null" json:"at"`
}

func (Heartbeat) TableName() string { return "time_entry_heartbeats" }

// Interval is a closed span used by idle detection.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Seconds() int64 {
	if !i.End.After(i.Start) {
		return 0
	}
	return int64(i.End.Sub(i.Start) / time.Second)
}
