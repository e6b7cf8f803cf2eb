package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopeClient  Scope = "client"
	ScopeDefault Scope = "default"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeUser, ScopeProject, ScopeClient, ScopeDefault:
		return true
	}
	return false
}

type RateType string

const (
	RateTypeBillable RateType = "billable"
	RateTypeInternal RateType = "internal"
)

func (t RateType) Valid() bool {
	return t == RateTypeBillable || t == RateTypeInternal
}

// Rate is an hourly price valid over the half-open window [EffectiveFrom, EffectiveTo).
// A nil bound is unbounded on that side. Rows are never edited except to close
// EffectiveTo when a newer rate supersedes them.
type Rate struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID    `gorm:"not null;index:idx_rates_key,priority:1" json:"organization_id"`
	Scope         Scope           `gorm:"type:text;not null;index:idx_rates_key,priority:2" json:"scope"`
	ScopeID       *snowflake.ID   `gorm:"index:idx_rates_key,priority:3" json:"scope_id"`
	ProjectID     *snowflake.ID   `gorm:"index" json:"project_id,omitempty"`
	RateType      RateType        `gorm:"type:text;not null;index:idx_rates_key,priority:4" json:"rate_type"`
	Currency      string          `gorm:"type:text;not null" json:"currency"`
	HourlyRate    decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"hourly_rate"`
	EffectiveFrom *time.Time      `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to"`
	CreatedBy     *snowflake.ID   `json:"created_by,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (Rate) TableName() string { return "rates" }

// Covers reports whether at falls inside the rate's effective window.
func (r Rate) Covers(at time.Time) bool {
	if r.EffectiveFrom != nil && at.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// Overlaps reports whether the two effective windows share any instant.
func (r Rate) Overlaps(other Rate) bool {
	return windowsOverlap(r.EffectiveFrom, r.EffectiveTo, other.EffectiveFrom, other.EffectiveTo)
}

func windowsOverlap(aFrom, aTo, bFrom, bTo *time.Time) bool {
	// a starts before b ends and b starts before a ends
	if aFrom != nil && bTo != nil && !aFrom.Before(*bTo) {
		return false
	}
	if bFrom != nil && aTo != nil && !bFrom.Before(*aTo) {
		return false
	}
	return true
}

// ResolvedRate is the outcome of a resolution; it is never persisted.
type ResolvedRate struct {
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	Currency        string          `json:"currency"`
	Source          Scope           `json:"source"`
	ResolvedScopeID *snowflake.ID   `json:"resolved_scope_id"`
	RateID          snowflake.ID    `json:"rate_id"`
}
