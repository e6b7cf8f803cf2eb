package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/clock"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	"github.com/smallbiznis/timeledger/internal/observability/metrics"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
	"github.com/smallbiznis/timeledger/internal/payout/domain"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPageSize = 50

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	ProjectRepo   projectdomain.Repository
	FinancialsSvc financialsdomain.Service
	AlertSvc      alertdomain.Service
	AuditSvc      auditdomain.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	projectRepo   projectdomain.Repository
	financialsSvc financialsdomain.Service
	alertSvc      alertdomain.Service
	auditSvc      auditdomain.Service
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payout.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		projectRepo:   p.ProjectRepo,
		financialsSvc: p.FinancialsSvc,
		alertSvc:      p.AlertSvc,
		auditSvc:      p.AuditSvc,
		metrics:       p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePayoutRequest) (domain.Payout, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.Payout{}, err
	}
	userID, err := parseID(req.FreelancerUserID)
	if err != nil {
		return domain.Payout{}, domain.ErrInvalidUser
	}
	projectID, err := parseOptionalID(req.ProjectID)
	if err != nil {
		return domain.Payout{}, domain.ErrInvalidID
	}
	if !req.Amount.IsPositive() {
		return domain.Payout{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Payout{}, domain.ErrInvalidCurrency
	}
	method := strings.TrimSpace(req.PayoutMethod)
	if method == "" {
		return domain.Payout{}, domain.ErrInvalidMethod
	}

	now := s.now()
	payout := domain.Payout{
		ID:               s.genID.Generate(),
		OrgID:            orgID,
		FreelancerUserID: userID,
		ProjectID:        projectID,
		Amount:           req.Amount.Round(2),
		Currency:         currency,
		PayoutMethod:     method,
		Status:           domain.StatusPending,
		ScheduledFor:     truncatePtr(req.ScheduledFor),
		Notes:            trimPtr(req.Notes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if actor, ok := orgcontext.UserIDFromContext(ctx); ok && actor != 0 {
		payout.CreatedBy = &actor
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if projectID != nil {
			project, err := s.projectRepo.FindByID(ctx, tx, orgID, *projectID)
			if err != nil {
				return err
			}
			if project == nil {
				return domain.ErrProjectNotFound
			}
		}
		if err := s.repo.Insert(ctx, tx, &payout); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "payout.created",
			TargetType: "payout",
			TargetID:   payout.ID,
			Metadata: map[string]any{
				"freelancer_user_id": userID.String(),
				"amount":             payout.Amount.String(),
				"currency":           currency,
				"payout_method":      method,
			},
		})
	})
	if err != nil {
		return domain.Payout{}, err
	}
	s.metrics.RecordPayoutTransition(ctx, string(domain.StatusPending))
	return payout, nil
}

func (s *Service) MarkCompleted(ctx context.Context, req domain.MarkCompletedRequest) (domain.Payout, error) {
	reference := strings.TrimSpace(req.PayoutReference)
	if reference == "" {
		return domain.Payout{}, domain.ErrInvalidReference
	}
	now := s.now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC().Truncate(time.Second)
	}
	return s.settle(ctx, req.ID, domain.StatusCompleted, map[string]any{
		"payout_reference": reference,
		"paid_at":          paidAt,
		"updated_at":       now,
	}, map[string]any{"payout_reference": reference})
}

func (s *Service) MarkFailed(ctx context.Context, req domain.MarkFailedRequest) (domain.Payout, error) {
	now := s.now()
	fields := map[string]any{
		"failed_at":  now,
		"updated_at": now,
	}
	metadata := map[string]any{}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		fields["failure_reason"] = reason
		metadata["reason"] = reason
	}
	return s.settle(ctx, req.ID, domain.StatusFailed, fields, metadata)
}

// settle applies a pending -> terminal transition. A payout that is already terminal
// is left untouched and ErrInvalidState is returned.
func (s *Service) settle(ctx context.Context, rawID string, to domain.Status, fields map[string]any, metadata map[string]any) (domain.Payout, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.Payout{}, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return domain.Payout{}, domain.ErrInvalidID
	}

	var out domain.Payout
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payout, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if payout == nil {
			return domain.ErrNotFound
		}
		if payout.Status.Terminal() {
			return domain.ErrInvalidState
		}

		moved, err := s.repo.Settle(ctx, tx, orgID, id, to, fields)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidState
		}

		metadata["previous_status"] = string(payout.Status)
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "payout." + string(to),
			TargetType: "payout",
			TargetID:   id,
			Metadata:   metadata,
		}); err != nil {
			return err
		}

		reloaded, err := s.repo.FindByID(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		out = *reloaded
		return nil
	})
	if err != nil {
		return domain.Payout{}, err
	}
	s.metrics.RecordPayoutTransition(ctx, string(to))
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Payout, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.Payout{}, err
	}
	payoutID, err := parseID(id)
	if err != nil {
		return domain.Payout{}, domain.ErrInvalidID
	}
	payout, err := s.repo.FindByID(ctx, s.db, orgID, payoutID)
	if err != nil {
		return domain.Payout{}, err
	}
	if payout == nil {
		return domain.Payout{}, domain.ErrNotFound
	}
	return *payout, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPayoutRequest) (domain.ListPayoutResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.ListPayoutResponse{}, err
	}
	filter, err := buildFilter(req)
	if err != nil {
		return domain.ListPayoutResponse{}, err
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = defaultPageSize
	}
	if req.Page > 1 {
		filter.Offset = (req.Page - 1) * filter.Limit
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListPayoutResponse{}, err
	}
	return domain.ListPayoutResponse{Payouts: items}, nil
}

// FinanceSummary reconciles the user's cost across every project against payouts
// effective in [Start, End). A negative balance is reported as overpaid and raises
// an overpayment alert instead of surfacing a negative due_total.
func (s *Service) FinanceSummary(ctx context.Context, req domain.FinanceSummaryRequest) (domain.FinanceSummary, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.FinanceSummary{}, err
	}
	userID, err := parseID(req.UserID)
	if err != nil {
		return domain.FinanceSummary{}, domain.ErrInvalidUser
	}
	if req.Start != nil && req.End != nil && !req.Start.Before(*req.End) {
		return domain.FinanceSummary{}, domain.ErrInvalidTimeRange
	}

	var out domain.FinanceSummary
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cost, err := s.financialsSvc.UserCost(ctx, tx, financialsdomain.UserCostRequest{
			OrgID:  orgID,
			UserID: userID,
			Start:  req.Start,
			End:    req.End,
		})
		if err != nil {
			return err
		}
		payouts, err := s.repo.List(ctx, tx, orgID, domain.ListFilter{FreelancerUserID: &userID})
		if err != nil {
			return err
		}

		out, err = summarize(cost, payouts, req.Start, req.End)
		if err != nil {
			return err
		}
		if !out.Overpaid {
			return nil
		}
		amount := out.OverpaidAmount
		_, err = s.alertSvc.Raise(ctx, tx, alertdomain.RaiseRequest{
			OrgID:    orgID,
			Kind:     alertdomain.KindOverpayment,
			Severity: alertdomain.SeverityWarning,
			UserID:   &userID,
			Message:  "Payouts exceed tracked cost by " + amount.StringFixed(2) + " " + out.Currency,
			Amount:   &amount,
			Currency: out.Currency,
		})
		return err
	})
	if err != nil {
		return domain.FinanceSummary{}, err
	}
	return out, nil
}

func summarize(cost financialsdomain.UserCost, payouts []domain.Payout, start, end *time.Time) (domain.FinanceSummary, error) {
	out := domain.FinanceSummary{
		UserID:              cost.UserID,
		Currency:            cost.Currency,
		TotalHours:          cost.TotalHours,
		TotalCost:           cost.TotalCost,
		PaidTotal:           decimal.Zero,
		PendingPayoutTotal:  decimal.Zero,
		DueTotal:            decimal.Zero,
		OverpaidAmount:      decimal.Zero,
		UnpricedCostEntries: cost.UnpricedCostEntries,
	}

	for _, payout := range payouts {
		if payout.Status == domain.StatusFailed {
			continue
		}
		at := payout.EffectiveAt()
		if start != nil && at.Before(*start) {
			continue
		}
		if end != nil && !at.Before(*end) {
			continue
		}
		if out.Currency == "" {
			out.Currency = payout.Currency
		}
		if payout.Currency != out.Currency {
			return domain.FinanceSummary{}, domain.ErrCurrencyMismatch
		}
		switch payout.Status {
		case domain.StatusCompleted:
			out.PaidTotal = out.PaidTotal.Add(payout.Amount)
		case domain.StatusPending:
			out.PendingPayoutTotal = out.PendingPayoutTotal.Add(payout.Amount)
		}
	}

	due := out.TotalCost.Sub(out.PaidTotal).Sub(out.PendingPayoutTotal)
	if due.IsNegative() {
		out.Overpaid = true
		out.OverpaidAmount = due.Neg()
	} else {
		out.DueTotal = due
	}
	return out, nil
}

func buildFilter(req domain.ListPayoutRequest) (domain.ListFilter, error) {
	filter := domain.ListFilter{Limit: req.PageSize}
	userID, err := parseOptionalID(req.FreelancerUserID)
	if err != nil {
		return domain.ListFilter{}, domain.ErrInvalidUser
	}
	filter.FreelancerUserID = userID
	projectID, err := parseOptionalID(req.ProjectID)
	if err != nil {
		return domain.ListFilter{}, domain.ErrInvalidID
	}
	filter.ProjectID = projectID
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := domain.Status(strings.ToLower(raw))
		if !status.Valid() {
			return domain.ListFilter{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}
	return filter, nil
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, domain.ErrInvalidOrganization
	}
	return orgID, nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Second)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("zero id")
	}
	return id, nil
}

func parseOptionalID(raw string) (*snowflake.ID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func truncatePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := value.UTC().Truncate(time.Second)
	return &out
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
