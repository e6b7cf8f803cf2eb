package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/timeledger/internal/alert/domain"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("alert.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Raise(ctx context.Context, tx *gorm.DB, req domain.RaiseRequest) (domain.Alert, error) {
	if req.OrgID == 0 {
		return domain.Alert{}, domain.ErrInvalidOrganization
	}
	switch req.Kind {
	case domain.KindBudgetExceeded, domain.KindNegativeMargin, domain.KindOverpayment:
	default:
		return domain.Alert{}, domain.ErrInvalidKind
	}
	if tx == nil {
		tx = s.db
	}
	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}
	now := s.clock.Now()

	existing, err := s.repo.FindOpen(ctx, tx, req.OrgID, req.Kind, req.ProjectID, req.UserID)
	if err != nil {
		return domain.Alert{}, err
	}
	if existing != nil {
		existing.Severity = severity
		existing.Message = req.Message
		existing.Amount = req.Amount
		existing.Currency = req.Currency
		existing.UpdatedAt = now
		if err := s.repo.Refresh(ctx, tx, existing); err != nil {
			return domain.Alert{}, err
		}
		return *existing, nil
	}

	alert := domain.Alert{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		Kind:      req.Kind,
		Severity:  severity,
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Message:   req.Message,
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, tx, &alert); err != nil {
		return domain.Alert{}, err
	}
	s.log.Info("finance alert raised",
		zap.String("org_id", req.OrgID.String()),
		zap.String("alert_id", alert.ID.String()),
		zap.String("type", string(alert.Kind)),
	)
	return alert, nil
}

func (s *Service) List(ctx context.Context, req domain.ListAlertRequest) ([]domain.Alert, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{
		Kind:         domain.Kind(strings.TrimSpace(req.Kind)),
		IncludeAcked: req.IncludeAcked,
		Limit:        req.Limit,
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 200
	}
	if value := strings.TrimSpace(req.ProjectID); value != "" {
		id, err := parseID(value)
		if err != nil {
			return nil, err
		}
		filter.ProjectID = &id
	}
	if value := strings.TrimSpace(req.UserID); value != "" {
		id, err := parseID(value)
		if err != nil {
			return nil, err
		}
		filter.UserID = &id
	}

	alerts, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return alerts, nil
}

func (s *Service) Acknowledge(ctx context.Context, req domain.AcknowledgeRequest) (domain.Alert, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Alert{}, domain.ErrInvalidOrganization
	}
	userID, _ := orgcontext.UserIDFromContext(ctx)

	id, err := parseID(req.ID)
	if err != nil {
		return domain.Alert{}, err
	}

	var alert domain.Alert
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		updated, err := s.repo.Acknowledge(ctx, tx, orgID, id, userID, s.clock.Now())
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrAlreadyAcknowledged
		}
		item, err = s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		alert = *item
		return nil
	})
	if err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
