package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/expense/domain"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	"github.com/smallbiznis/timeledger/pkg/db/option"
	pkgrepo "github.com/smallbiznis/timeledger/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCategory = "general"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Store       pkgrepo.Repository[domain.Expense]
	ProjectRepo projectdomain.Repository
	AuditSvc    auditdomain.Service
	Invalidator financialsdomain.Invalidator
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	store       pkgrepo.Repository[domain.Expense]
	projectRepo projectdomain.Repository
	auditSvc    auditdomain.Service
	invalidator financialsdomain.Invalidator
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("expense.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		store:       p.Store,
		projectRepo: p.ProjectRepo,
		auditSvc:    p.AuditSvc,
		invalidator: p.Invalidator,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateExpenseRequest) (domain.Expense, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Expense{}, domain.ErrInvalidOrganization
	}
	projectID, err := parseID(req.ProjectID, domain.ErrInvalidProject)
	if err != nil {
		return domain.Expense{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, domain.ErrInvalidAmount
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return domain.Expense{}, err
	}

	now := s.clock.Now().UTC()
	expense := domain.Expense{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		ProjectID:   projectID,
		Amount:      req.Amount.Round(2),
		Currency:    currency,
		Category:    normalizeCategory(req.Category),
		Description: strings.TrimSpace(req.Description),
		IncurredOn:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.IncurredOn != nil && !req.IncurredOn.IsZero() {
		expense.IncurredOn = req.IncurredOn.UTC()
	}
	if receipt := strings.TrimSpace(req.ReceiptURL); receipt != "" {
		expense.ReceiptURL = &receipt
	}
	if userID, ok := orgcontext.UserIDFromContext(ctx); ok && userID != 0 {
		expense.CreatedBy = &userID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := s.projectRepo.FindByID(ctx, tx, orgID, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return domain.ErrProjectNotFound
		}
		if err := s.store.WithTrx(tx).Create(ctx, &expense); err != nil {
			return err
		}
		return s.invalidator.InvalidateProject(ctx, tx, orgID, projectID)
	})
	if err != nil {
		return domain.Expense{}, err
	}
	return expense, nil
}

func (s *Service) List(ctx context.Context, req domain.ListExpenseRequest) ([]domain.Expense, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	query := &domain.Expense{OrgID: orgID, Category: strings.TrimSpace(req.Category)}
	if value := strings.TrimSpace(req.ProjectID); value != "" {
		projectID, err := parseID(value, domain.ErrInvalidProject)
		if err != nil {
			return nil, err
		}
		query.ProjectID = projectID
	}

	size := req.PageSize
	if size <= 0 || size > 250 {
		size = 50
	}
	page := req.Page
	if page < 1 {
		page = 1
	}

	items, err := s.store.Find(ctx, query,
		option.ApplyOrder("incurred_on", "desc"),
		option.ApplyOrder("id", "desc"),
		option.ApplyPagination((page-1)*size, size),
	)
	if err != nil {
		return nil, err
	}
	expenses := make([]domain.Expense, 0, len(items))
	for _, item := range items {
		expenses = append(expenses, *item)
	}
	return expenses, nil
}

func (s *Service) Get(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Expense{}, domain.ErrInvalidOrganization
	}
	id, err := parseID(req.ID, domain.ErrInvalidID)
	if err != nil {
		return domain.Expense{}, err
	}
	expense, err := s.store.FindOne(ctx, &domain.Expense{ID: id, OrgID: orgID})
	if err != nil {
		return domain.Expense{}, err
	}
	if expense == nil {
		return domain.Expense{}, domain.ErrNotFound
	}
	return *expense, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateExpenseRequest) (domain.Expense, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Expense{}, domain.ErrInvalidOrganization
	}
	id, err := parseID(req.ID, domain.ErrInvalidID)
	if err != nil {
		return domain.Expense{}, err
	}

	values := map[string]any{}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return domain.Expense{}, domain.ErrInvalidAmount
		}
		values["amount"] = req.Amount.Round(2)
	}
	if req.Currency != nil {
		currency, err := normalizeCurrency(*req.Currency)
		if err != nil {
			return domain.Expense{}, err
		}
		values["currency"] = currency
	}
	if req.Category != nil {
		values["category"] = normalizeCategory(*req.Category)
	}
	if req.Description != nil {
		values["description"] = strings.TrimSpace(*req.Description)
	}
	if req.ReceiptURL != nil {
		if receipt := strings.TrimSpace(*req.ReceiptURL); receipt != "" {
			values["receipt_url"] = receipt
		} else {
			values["receipt_url"] = nil
		}
	}
	if req.IncurredOn != nil && !req.IncurredOn.IsZero() {
		values["incurred_on"] = req.IncurredOn.UTC()
	}

	var updated domain.Expense
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.store.WithTrx(tx)
		expense, err := store.FindOne(ctx, &domain.Expense{ID: id, OrgID: orgID})
		if err != nil {
			return err
		}
		if expense == nil {
			return domain.ErrNotFound
		}
		if expense.InvoiceID != nil {
			return domain.ErrExpenseLocked
		}
		if len(values) > 0 {
			values["updated_at"] = s.clock.Now().UTC()
			if _, err := store.Update(ctx, int64(id), values); err != nil {
				return err
			}
		}
		reloaded, err := store.FindOne(ctx, &domain.Expense{ID: id, OrgID: orgID})
		if err != nil {
			return err
		}
		updated = *reloaded
		return s.invalidator.InvalidateProject(ctx, tx, orgID, expense.ProjectID)
	})
	if err != nil {
		return domain.Expense{}, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, req domain.ExpenseRequest) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	id, err := parseID(req.ID, domain.ErrInvalidID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.store.WithTrx(tx)
		expense, err := store.FindOne(ctx, &domain.Expense{ID: id, OrgID: orgID})
		if err != nil {
			return err
		}
		if expense == nil {
			return domain.ErrNotFound
		}
		if expense.InvoiceID != nil {
			return domain.ErrExpenseLocked
		}
		if _, err := store.Delete(ctx, int64(id)); err != nil {
			return err
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "expense.deleted",
			TargetType: "expense",
			TargetID:   id,
			Metadata: map[string]any{
				"project_id": expense.ProjectID.String(),
				"amount":     expense.Amount.String(),
				"currency":   expense.Currency,
			},
		}); err != nil {
			return err
		}
		return s.invalidator.InvalidateProject(ctx, tx, orgID, expense.ProjectID)
	})
}

func normalizeCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if len(currency) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	return currency, nil
}

func normalizeCategory(value string) string {
	category := strings.ToLower(strings.TrimSpace(value))
	if category == "" {
		return defaultCategory
	}
	return category
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

