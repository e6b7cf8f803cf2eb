package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/timeledger/internal/payout/domain"
)

const exportLimit = 10000

var csvHeader = []string{
	"id", "freelancer_user_id", "project_id", "amount", "currency", "payout_method",
	"status", "payout_reference", "scheduled_for", "paid_at", "created_at",
}

// ExportCSV writes every payout matching req, ignoring paging.
func (s *Service) ExportCSV(ctx context.Context, req domain.ListPayoutRequest) (domain.Export, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.Export{}, err
	}
	filter, err := buildFilter(req)
	if err != nil {
		return domain.Export{}, err
	}
	filter.Limit = exportLimit
	filter.Offset = 0

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.Export{}, err
	}

	data, err := writeCSV(items)
	if err != nil {
		return domain.Export{}, err
	}

	name := "payouts " + s.clock.Now().UTC().Format("2006-01-02")
	if filter.Status != "" {
		name += " " + string(filter.Status)
	}
	return domain.Export{
		Filename:    slug.Make(name) + ".csv",
		ContentType: "text/csv",
		Data:        data,
	}, nil
}

func writeCSV(items []domain.Payout) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, p := range items {
		projectID := ""
		if p.ProjectID != nil {
			projectID = p.ProjectID.String()
		}
		reference := ""
		if p.PayoutReference != nil {
			reference = *p.PayoutReference
		}
		if err := w.Write([]string{
			p.ID.String(),
			p.FreelancerUserID.String(),
			projectID,
			p.Amount.StringFixed(2),
			p.Currency,
			p.PayoutMethod,
			string(p.Status),
			reference,
			formatTime(p.ScheduledFor),
			formatTime(p.PaidAt),
			p.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
