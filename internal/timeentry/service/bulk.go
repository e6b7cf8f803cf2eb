package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"github.com/smallbiznis/timeledger/pkg/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxBulkItems = 500

// BulkAdjust applies one duration transform to every entry or to none of them.
func (s *Service) BulkAdjust(ctx context.Context, req domain.BulkAdjustRequest) ([]domain.TimeEntry, error) {
	orgID, userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateAdjustment(req.Adjustment); err != nil {
		return nil, err
	}
	if len(req.IDs) == 0 || len(req.IDs) > maxBulkItems {
		return nil, domain.ErrEmptyBatch
	}

	ids := make([]snowflake.ID, 0, len(req.IDs))
	seen := make(map[snowflake.ID]struct{}, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := parseID(raw, domain.ErrInvalidID)
		if err != nil {
			return nil, &errs.ItemError{ID: raw, Err: err}
		}
		if _, dup := seen[id]; dup {
			return nil, errs.NewItemError(id, domain.ErrDuplicateItem)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	now := s.now()
	adjusted := make([]domain.TimeEntry, 0, len(ids))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects := map[snowflake.ID]struct{}{}
		for _, id := range ids {
			entry, err := s.adjustOne(ctx, tx, orgID, userID, id, req.Adjustment, now)
			if err != nil {
				return errs.NewItemError(id, err)
			}
			projects[entry.ProjectID] = struct{}{}
			adjusted = append(adjusted, *entry)
		}

		idStrings := make([]string, 0, len(ids))
		for _, id := range ids {
			idStrings = append(idStrings, id.String())
		}
		metadata := map[string]any{
			"kind":           string(req.Adjustment.Kind),
			"time_entry_ids": idStrings,
		}
		switch req.Adjustment.Kind {
		case domain.AdjustMultiply:
			metadata["factor"] = req.Adjustment.Factor.String()
		default:
			metadata["seconds"] = req.Adjustment.Seconds
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "time_entry.bulk_adjusted",
			TargetType: "time_entry",
			Metadata:   metadata,
		}); err != nil {
			return err
		}

		projectIDs := make([]snowflake.ID, 0, len(projects))
		for id := range projects {
			projectIDs = append(projectIDs, id)
		}
		sort.Slice(projectIDs, func(i, j int) bool { return projectIDs[i] < projectIDs[j] })
		for _, projectID := range projectIDs {
			if err := s.invalidator.InvalidateProject(ctx, tx, orgID, projectID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if itemErr, ok := errs.AsItemError(err); ok {
			s.log.Info("bulk adjust rejected",
				zap.String("org_id", orgID.String()),
				zap.String("time_entry_id", itemErr.ID),
				zap.Error(itemErr.Err),
			)
		}
		return nil, err
	}
	return adjusted, nil
}

func (s *Service) adjustOne(ctx context.Context, tx *gorm.DB, orgID, userID, id snowflake.ID, adj domain.Adjustment, now time.Time) (*domain.TimeEntry, error) {
	entry, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, domain.ErrNotFound
	}
	if entry.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if entry.State() != domain.StateStopped {
		return nil, domain.ErrInvalidState
	}
	if entry.Billed() {
		return nil, domain.ErrEntryLocked
	}

	var target int64
	switch adj.Kind {
	case domain.AdjustSetDuration:
		target = adj.Seconds
	case domain.AdjustMultiply:
		target = decimal.NewFromInt(entry.DurationSeconds).Mul(adj.Factor).Round(0).IntPart()
	case domain.AdjustAddSeconds:
		target = entry.DurationSeconds + adj.Seconds
	}
	if target < 0 {
		return nil, domain.ErrNegativeDuration
	}

	previousEnd := *entry.EndTS
	version := entry.Version
	if err := entry.Resize(target); err != nil {
		return nil, err
	}
	if entry.EndTS.After(previousEnd) {
		other, err := s.repo.FindOverlapping(ctx, tx, orgID, userID, previousEnd, *entry.EndTS, now, []snowflake.ID{entry.ID})
		if err != nil {
			return nil, err
		}
		if other != nil {
			return nil, domain.ErrOverlap
		}
	}

	entry.Version = version + 1
	entry.UpdatedAt = now
	updated, err := s.repo.Update(ctx, tx, entry, version)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrInvalidState
	}
	return entry, nil
}

func validateAdjustment(adj domain.Adjustment) error {
	switch adj.Kind {
	case domain.AdjustSetDuration:
		if adj.Seconds < 0 {
			return domain.ErrInvalidAdjustment
		}
	case domain.AdjustMultiply:
		if !adj.Factor.IsPositive() {
			return domain.ErrInvalidAdjustment
		}
	case domain.AdjustAddSeconds:
		if adj.Seconds == 0 {
			return domain.ErrInvalidAdjustment
		}
	default:
		return domain.ErrInvalidAdjustment
	}
	return nil
}
