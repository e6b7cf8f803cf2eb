package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	expensedomain "github.com/smallbiznis/timeledger/internal/expense/domain"
	"github.com/smallbiznis/timeledger/internal/financials/domain"
	"github.com/smallbiznis/timeledger/internal/lock"
	"github.com/smallbiznis/timeledger/internal/observability/metrics"
	"github.com/smallbiznis/timeledger/internal/observability/tracing"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	pkgdb "github.com/smallbiznis/timeledger/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeUpdated   = "updated"
	outcomeUnchanged = "unchanged"
	outcomeFailed    = "failed"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Cfg           config.Config
	Repo          domain.Repository
	Invalidator   domain.Invalidator
	ProjectRepo   projectdomain.Repository
	TimeEntryRepo timeentrydomain.Repository
	ExpenseRepo   expensedomain.Repository
	RateRepo      ratedomain.Repository
	Locker        lock.Locker
	AlertSvc      alertdomain.Service
	Policy        *config.AlertPolicyHolder `optional:"true"`
	Metrics       *metrics.Metrics          `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	repo          domain.Repository
	invalidator   domain.Invalidator
	projectRepo   projectdomain.Repository
	timeEntryRepo timeentrydomain.Repository
	expenseRepo   expensedomain.Repository
	rateRepo      ratedomain.Repository
	locker        lock.Locker
	alertSvc      alertdomain.Service
	policy        *config.AlertPolicyHolder
	metrics       *metrics.Metrics

	freshness time.Duration
	lockTTL   time.Duration
	lockWait  time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("financials.service"),
		clock:         p.Clock,
		repo:          p.Repo,
		invalidator:   p.Invalidator,
		projectRepo:   p.ProjectRepo,
		timeEntryRepo: p.TimeEntryRepo,
		expenseRepo:   p.ExpenseRepo,
		rateRepo:      p.RateRepo,
		locker:        p.Locker,
		alertSvc:      p.AlertSvc,
		policy:        p.Policy,
		metrics:       p.Metrics,
		freshness:     p.Cfg.Finance.FreshnessThreshold,
		lockTTL:       p.Cfg.Finance.LockTTL,
		lockWait:      p.Cfg.Finance.LockWait,
	}
}

func (s *Service) Get(ctx context.Context, req domain.GetFinancialsRequest) (domain.ProjectFinancials, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ProjectFinancials{}, domain.ErrInvalidOrganization
	}
	projectID, err := parseID(req.ProjectID)
	if err != nil {
		return domain.ProjectFinancials{}, err
	}

	existing, err := s.repo.FindByProject(ctx, s.db, orgID, projectID)
	if err != nil {
		return domain.ProjectFinancials{}, err
	}
	if existing != nil && s.fresh(*existing) {
		return *existing, nil
	}

	snapshot, err := s.recompute(ctx, orgID, projectID)
	if errors.Is(err, lock.ErrLockBusy) && existing != nil {
		// another writer is recomputing; serve the previous snapshot
		return *existing, nil
	}
	return snapshot, err
}

func (s *Service) Recompute(ctx context.Context, req domain.RecomputeRequest) (domain.ProjectFinancials, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ProjectFinancials{}, domain.ErrInvalidOrganization
	}
	projectID, err := parseID(req.ProjectID)
	if err != nil {
		return domain.ProjectFinancials{}, err
	}
	return s.recompute(ctx, orgID, projectID)
}

func (s *Service) UpdateProjectFinance(ctx context.Context, req domain.UpdateProjectFinanceRequest) (domain.ProjectFinancials, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ProjectFinancials{}, domain.ErrInvalidOrganization
	}
	projectID, err := parseID(req.ProjectID)
	if err != nil {
		return domain.ProjectFinancials{}, err
	}
	update := projectdomain.FinanceUpdate{ClearBudget: req.ClearBudget}
	if req.BudgetAmount != nil && !req.ClearBudget {
		if req.BudgetAmount.IsNegative() {
			return domain.ProjectFinancials{}, domain.ErrInvalidBudget
		}
		budget := req.BudgetAmount.Round(2)
		update.BudgetAmount = &budget
	}
	if req.Notes != nil {
		notes := strings.TrimSpace(*req.Notes)
		update.Notes = &notes
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.projectRepo.UpdateFinance(ctx, tx, orgID, projectID, update); err != nil {
			if errors.Is(err, projectdomain.ErrNotFound) {
				return domain.ErrProjectNotFound
			}
			return err
		}
		return s.invalidator.InvalidateProject(ctx, tx, orgID, projectID)
	})
	if err != nil {
		return domain.ProjectFinancials{}, err
	}
	return s.recompute(ctx, orgID, projectID)
}

func (s *Service) recompute(ctx context.Context, orgID, projectID snowflake.ID) (domain.ProjectFinancials, error) {
	ctx, span := tracing.Start(ctx, "financials.recompute",
		attribute.String("org_id", orgID.String()),
		attribute.String("project_id", projectID.String()),
	)

	var (
		out     domain.ProjectFinancials
		outcome = outcomeUpdated
	)
	key := fmt.Sprintf("financials:%s:%s", orgID, projectID)
	err := lock.WithLock(ctx, s.locker, key, s.lockTTL, s.lockWait, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			project, err := s.projectRepo.FindByID(ctx, tx, orgID, projectID)
			if err != nil {
				return err
			}
			if project == nil {
				return domain.ErrProjectNotFound
			}

			computed, err := s.compute(ctx, tx, project)
			if err != nil {
				return err
			}

			now := s.clock.Now().UTC().Truncate(time.Second)
			existing, err := s.repo.FindByProject(ctx, tx, orgID, projectID)
			if err != nil {
				return err
			}

			switch {
			case existing == nil:
				computed.Version = 1
				computed.LastUpdated = now
				computed.ComputedAt = now
				if err := s.repo.Insert(ctx, tx, &computed); err != nil {
					if pkgdb.IsDuplicateKeyErr(err) {
						return domain.ErrConcurrentRecompute
					}
					return err
				}
			case existing.SameFigures(computed):
				outcome = outcomeUnchanged
				if _, err := s.repo.MarkFresh(ctx, tx, orgID, projectID, existing.Version, now); err != nil {
					return err
				}
			default:
				computed.Version = existing.Version + 1
				computed.LastUpdated = now
				computed.ComputedAt = now
				saved, err := s.repo.Save(ctx, tx, &computed, existing.Version)
				if err != nil {
					return err
				}
				if !saved {
					return domain.ErrConcurrentRecompute
				}
			}

			reloaded, err := s.repo.FindByProject(ctx, tx, orgID, projectID)
			if err != nil {
				return err
			}
			if reloaded == nil {
				return domain.ErrConcurrentRecompute
			}
			out = *reloaded
			return s.raiseAlerts(ctx, tx, project, out)
		}, pkgdb.SnapshotTxOptions(s.db)...)
	})
	tracing.End(span, err)
	if err != nil {
		s.metrics.RecordRecompute(ctx, outcomeFailed)
		s.log.Warn("financials recompute failed",
			zap.String("org_id", orgID.String()),
			zap.String("project_id", projectID.String()),
			zap.Error(err),
		)
		return domain.ProjectFinancials{}, err
	}
	s.metrics.RecordRecompute(ctx, outcome)
	return out, nil
}

// compute derives a snapshot from the project's finalized entries, the org's
// rates and the project's expenses, all read inside tx.
func (s *Service) compute(ctx context.Context, tx *gorm.DB, project *projectdomain.Project) (domain.ProjectFinancials, error) {
	projectID := project.ID
	entries, err := s.timeEntryRepo.ListFinalized(ctx, tx, project.OrgID, timeentrydomain.FinalizedFilter{ProjectID: &projectID})
	if err != nil {
		return domain.ProjectFinancials{}, err
	}
	expenses, err := s.expenseRepo.List(ctx, tx, project.OrgID, expensedomain.Filter{ProjectID: &projectID})
	if err != nil {
		return domain.ProjectFinancials{}, err
	}
	rates, err := s.rateRepo.ListByOrg(ctx, tx, project.OrgID)
	if err != nil {
		return domain.ProjectFinancials{}, err
	}

	p := newPricer(rates, project.Currency)
	p.projects[project.ID] = project

	revenue, cost, expenseTotal, billableHours := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	unpriced := 0
	for _, entry := range entries {
		priced, err := p.price(ctx, entry, true)
		if err != nil {
			return domain.ProjectFinancials{}, err
		}
		revenue = revenue.Add(priced.revenue)
		cost = cost.Add(priced.cost)
		billableHours = billableHours.Add(priced.billableHours)
		if priced.unpricedCost {
			unpriced++
		}
	}
	for _, expense := range expenses {
		if err := p.guard.check(expense.Currency); err != nil {
			return domain.ProjectFinancials{}, err
		}
		expenseTotal = expenseTotal.Add(expense.Amount)
	}

	revenue = revenue.Round(2)
	cost = cost.Round(2)
	expenseTotal = expenseTotal.Round(2)
	profit := revenue.Sub(cost).Sub(expenseTotal)

	snapshot := domain.ProjectFinancials{
		ProjectID:           project.ID,
		OrgID:               project.OrgID,
		Currency:            p.guard.currency,
		Revenue:             revenue,
		FreelancerCost:      cost,
		Expenses:            expenseTotal,
		Profit:              profit,
		BillableHours:       billableHours.Round(4),
		BudgetAmount:        project.BudgetAmount,
		Notes:               project.Notes,
		UnpricedCostEntries: unpriced,
	}
	if !revenue.IsZero() {
		margin := profit.Div(revenue).Round(4)
		snapshot.MarginPercent = &margin
	}
	return snapshot, nil
}

func (s *Service) raiseAlerts(ctx context.Context, tx *gorm.DB, project *projectdomain.Project, snapshot domain.ProjectFinancials) error {
	projectID := project.ID
	policy := s.policy.Get()
	if project.BudgetAmount != nil {
		spent := snapshot.FreelancerCost.Add(snapshot.Expenses)
		threshold := project.BudgetAmount.Mul(decimal.NewFromFloat(policy.BudgetUsagePercent)).Div(decimal.NewFromInt(100))
		if spent.GreaterThan(threshold) {
			if _, err := s.alertSvc.Raise(ctx, tx, alertdomain.RaiseRequest{
				OrgID:     project.OrgID,
				Kind:      alertdomain.KindBudgetExceeded,
				Severity:  alertdomain.SeverityCritical,
				ProjectID: &projectID,
				Message: fmt.Sprintf("project %s spent %s %s against a budget of %s",
					project.Name, spent.StringFixed(2), snapshot.Currency, project.BudgetAmount.StringFixed(2)),
				Amount:   &spent,
				Currency: snapshot.Currency,
			}); err != nil {
				return err
			}
		}
	}
	belowFloor := snapshot.MarginPercent != nil &&
		snapshot.MarginPercent.Mul(decimal.NewFromInt(100)).LessThan(decimal.NewFromFloat(policy.MarginFloorPercent))
	if snapshot.Profit.IsNegative() || belowFloor {
		amount := snapshot.Profit
		message := fmt.Sprintf("project %s margin is below %.2f%%", project.Name, policy.MarginFloorPercent)
		if snapshot.Profit.IsNegative() {
			amount = snapshot.Profit.Neg()
			message = fmt.Sprintf("project %s is running at a loss of %s %s", project.Name, amount.StringFixed(2), snapshot.Currency)
		}
		if _, err := s.alertSvc.Raise(ctx, tx, alertdomain.RaiseRequest{
			OrgID:     project.OrgID,
			Kind:      alertdomain.KindNegativeMargin,
			Severity:  alertdomain.SeverityWarning,
			ProjectID: &projectID,
			Message:   message,
			Amount:    &amount,
			Currency:  snapshot.Currency,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ProjectCostSummary(ctx context.Context, req domain.ProjectCostSummaryRequest) (domain.ProjectCostSummary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ProjectCostSummary{}, domain.ErrInvalidOrganization
	}
	projectID, err := parseID(req.ProjectID)
	if err != nil {
		return domain.ProjectCostSummary{}, err
	}
	if req.Start != nil && req.End != nil && !req.End.After(*req.Start) {
		return domain.ProjectCostSummary{}, domain.ErrInvalidTimeRange
	}

	var summary domain.ProjectCostSummary
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := s.projectRepo.FindByID(ctx, tx, orgID, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return domain.ErrProjectNotFound
		}
		entries, err := s.timeEntryRepo.ListFinalized(ctx, tx, orgID, timeentrydomain.FinalizedFilter{
			ProjectID: &projectID,
			Start:     req.Start,
			End:       req.End,
		})
		if err != nil {
			return err
		}
		rates, err := s.rateRepo.ListByOrg(ctx, tx, orgID)
		if err != nil {
			return err
		}

		p := newPricer(rates, project.Currency)
		p.projects[project.ID] = project

		lines := map[snowflake.ID]*domain.UserCostLine{}
		for _, entry := range entries {
			priced, err := p.price(ctx, entry, true)
			if err != nil {
				return err
			}
			line, ok := lines[entry.UserID]
			if !ok {
				line = &domain.UserCostLine{
					UserID:        entry.UserID,
					Hours:         decimal.Zero,
					BillableHours: decimal.Zero,
					Revenue:       decimal.Zero,
					Cost:          decimal.Zero,
				}
				lines[entry.UserID] = line
			}
			line.Hours = line.Hours.Add(priced.hours)
			line.BillableHours = line.BillableHours.Add(priced.billableHours)
			line.Revenue = line.Revenue.Add(priced.revenue)
			line.Cost = line.Cost.Add(priced.cost)
			if priced.unpricedCost {
				line.UnpricedCostEntries++
			}
		}

		summary = domain.ProjectCostSummary{
			ProjectID:     projectID,
			Currency:      p.guard.currency,
			TotalHours:    decimal.Zero,
			BillableHours: decimal.Zero,
			Revenue:       decimal.Zero,
			Cost:          decimal.Zero,
			Users:         make([]domain.UserCostLine, 0, len(lines)),
		}
		for _, line := range lines {
			line.Hours = line.Hours.Round(4)
			line.BillableHours = line.BillableHours.Round(4)
			line.Revenue = line.Revenue.Round(2)
			line.Cost = line.Cost.Round(2)
			summary.TotalHours = summary.TotalHours.Add(line.Hours)
			summary.BillableHours = summary.BillableHours.Add(line.BillableHours)
			summary.Revenue = summary.Revenue.Add(line.Revenue)
			summary.Cost = summary.Cost.Add(line.Cost)
			summary.Users = append(summary.Users, *line)
		}
		sort.Slice(summary.Users, func(i, j int) bool { return summary.Users[i].UserID < summary.Users[j].UserID })
		return nil
	}, pkgdb.SnapshotTxOptions(s.db)...)
	if err != nil {
		return domain.ProjectCostSummary{}, err
	}
	return summary, nil
}

func (s *Service) UserCost(ctx context.Context, db *gorm.DB, req domain.UserCostRequest) (domain.UserCost, error) {
	if req.OrgID == 0 {
		return domain.UserCost{}, domain.ErrInvalidOrganization
	}
	if db == nil {
		db = s.db
	}
	userID := req.UserID
	entries, err := s.timeEntryRepo.ListFinalized(ctx, db, req.OrgID, timeentrydomain.FinalizedFilter{
		UserID: &userID,
		Start:  req.Start,
		End:    req.End,
	})
	if err != nil {
		return domain.UserCost{}, err
	}
	rates, err := s.rateRepo.ListByOrg(ctx, db, req.OrgID)
	if err != nil {
		return domain.UserCost{}, err
	}

	p := newPricer(rates, "")
	out := domain.UserCost{UserID: userID, TotalHours: decimal.Zero, TotalCost: decimal.Zero}
	for _, entry := range entries {
		if _, ok := p.projects[entry.ProjectID]; !ok {
			project, err := s.projectRepo.FindByID(ctx, db, req.OrgID, entry.ProjectID)
			if err != nil {
				return domain.UserCost{}, err
			}
			p.projects[entry.ProjectID] = project
		}
		priced, err := p.price(ctx, entry, false)
		if err != nil {
			return domain.UserCost{}, err
		}
		out.TotalHours = out.TotalHours.Add(priced.hours)
		out.TotalCost = out.TotalCost.Add(priced.cost)
		if priced.unpricedCost {
			out.UnpricedCostEntries++
		}
	}
	out.Currency = p.guard.currency
	out.TotalHours = out.TotalHours.Round(4)
	out.TotalCost = out.TotalCost.Round(2)
	return out, nil
}

func (s *Service) RefreshStale(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	olderThan := s.clock.Now().UTC().Add(-s.freshness)
	snapshots, err := s.repo.ListStale(ctx, s.db, olderThan, limit)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, snapshot := range snapshots {
		orgCtx := orgcontext.WithOrgID(ctx, int64(snapshot.OrgID))
		if _, err := s.recompute(orgCtx, snapshot.OrgID, snapshot.ProjectID); err != nil {
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (s *Service) fresh(snapshot domain.ProjectFinancials) bool {
	if snapshot.Stale {
		return false
	}
	return s.clock.Now().UTC().Sub(snapshot.ComputedAt) < s.freshness
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
