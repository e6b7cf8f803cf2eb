package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	expensedomain "github.com/smallbiznis/timeledger/internal/expense/domain"
	"github.com/smallbiznis/timeledger/internal/invoice/domain"
	"github.com/smallbiznis/timeledger/internal/invoice/format"
	"github.com/smallbiznis/timeledger/internal/invoice/render"
	"github.com/smallbiznis/timeledger/internal/lock"
	"github.com/smallbiznis/timeledger/internal/observability/metrics"
	"github.com/smallbiznis/timeledger/internal/observability/tracing"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	"github.com/smallbiznis/timeledger/internal/providers/email"
	"github.com/smallbiznis/timeledger/internal/providers/pdf"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"go.opentelemetry.io/otel/attribute"
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
	Cfg           config.Config
	Repo          domain.Repository
	ProjectRepo   projectdomain.Repository
	TimeEntryRepo timeentrydomain.Repository
	ExpenseRepo   expensedomain.Repository
	RateRepo      ratedomain.Repository
	Locker        lock.Locker
	AuditSvc      auditdomain.Service
	Mailer        email.Provider
	PDF           pdf.Provider
	Renderer      render.Renderer
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	projectRepo   projectdomain.Repository
	timeEntryRepo timeentrydomain.Repository
	expenseRepo   expensedomain.Repository
	rateRepo      ratedomain.Repository
	locker        lock.Locker
	auditSvc      auditdomain.Service
	mailer        email.Provider
	pdf           pdf.Provider
	renderer      render.Renderer
	metrics       *metrics.Metrics

	lockTTL  time.Duration
	lockWait time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("invoice.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		projectRepo:   p.ProjectRepo,
		timeEntryRepo: p.TimeEntryRepo,
		expenseRepo:   p.ExpenseRepo,
		rateRepo:      p.RateRepo,
		locker:        p.Locker,
		auditSvc:      p.AuditSvc,
		mailer:        p.Mailer,
		pdf:           p.PDF,
		renderer:      p.Renderer,
		metrics:       p.Metrics,
		lockTTL:       p.Cfg.Finance.LockTTL,
		lockWait:      p.Cfg.Finance.LockWait,
	}
}

func (s *Service) Draft(ctx context.Context, req domain.DraftInvoiceRequest) (domain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	projectID, err := parseID(req.ProjectID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}
	if req.Start != nil && req.End != nil && !req.Start.Before(*req.End) {
		return domain.Invoice{}, domain.ErrInvalidTimeRange
	}
	clientEmail, err := normalizeEmail(req.ClientEmail)
	if err != nil {
		return domain.Invoice{}, err
	}
	includeExpenses := req.IncludeExpenses == nil || *req.IncludeExpenses
	now := s.now()

	ctx, span := tracing.Start(ctx, "invoice.draft",
		attribute.String("org_id", orgID.String()),
		attribute.String("project_id", projectID.String()),
	)
	var (
		invoice domain.Invoice
		project *projectdomain.Project
	)
	err = lock.WithLock(ctx, s.locker, fmt.Sprintf("invoice:%s", orgID), s.lockTTL, s.lockWait, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			found, err := s.projectRepo.FindByID(ctx, tx, orgID, projectID)
			if err != nil {
				return err
			}
			if found == nil {
				return domain.ErrProjectNotFound
			}
			project = found
			if clientEmail == nil {
				clientEmail = project.ClientEmail
			}
			if req.SendNow && clientEmail == nil {
				return domain.ErrMissingRecipient
			}

			entries, err := s.timeEntryRepo.ListFinalized(ctx, tx, orgID, timeentrydomain.FinalizedFilter{
				ProjectID:    &projectID,
				BillableOnly: true,
				UnbilledOnly: true,
				Start:        req.Start,
				End:          req.End,
			})
			if err != nil {
				return err
			}
			var expenses []expensedomain.Expense
			if includeExpenses {
				expenses, err = s.expenseRepo.List(ctx, tx, orgID, expensedomain.Filter{
					ProjectID:    &projectID,
					UnbilledOnly: true,
					Start:        req.Start,
					End:          req.End,
				})
				if err != nil {
					return err
				}
			}
			if len(entries) == 0 && len(expenses) == 0 {
				return domain.ErrNothingToInvoice
			}

			rates, err := s.rateRepo.ListByOrg(ctx, tx, orgID)
			if err != nil {
				return err
			}
			drafted, err := buildLines(ctx, project, entries, expenses, rates)
			if err != nil {
				return err
			}

			seq, err := s.repo.NextSequence(ctx, tx, orgID)
			if err != nil {
				return err
			}
			number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, now, seq)
			if err != nil {
				return err
			}

			invoice = domain.Invoice{
				ID:          s.genID.Generate(),
				OrgID:       orgID,
				ProjectID:   projectID,
				Sequence:    seq,
				Number:      number,
				Currency:    drafted.currency,
				Status:      domain.StatusDraft,
				DueDate:     truncatePtr(req.DueDate),
				ClientName:  firstNonEmpty(req.ClientName, project.ClientName),
				ClientEmail: clientEmail,
				Total:       drafted.total,
				PeriodStart: drafted.periodStart,
				PeriodEnd:   drafted.periodEnd,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if req.Start != nil {
				invoice.PeriodStart = truncatePtr(req.Start)
			}
			if req.End != nil {
				invoice.PeriodEnd = truncatePtr(req.End)
			}
			if userID, ok := orgcontext.UserIDFromContext(ctx); ok && userID != 0 {
				invoice.CreatedBy = &userID
			}
			for i := range drafted.lines {
				line := drafted.lines[i]
				line.ID = s.genID.Generate()
				line.OrgID = orgID
				line.InvoiceID = invoice.ID
				line.Position = i + 1
				line.CreatedAt = now
				invoice.Lines = append(invoice.Lines, line)
			}
			if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
				return err
			}

			billed, err := s.timeEntryRepo.MarkBilled(ctx, tx, orgID, drafted.entryIDs, invoice.ID)
			if err != nil {
				return err
			}
			if billed != int64(len(drafted.entryIDs)) {
				return domain.ErrSelectionChanged
			}
			billedExpenses, err := s.expenseRepo.MarkBilled(ctx, tx, orgID, drafted.expenseIDs, invoice.ID)
			if err != nil {
				return err
			}
			if billedExpenses != int64(len(drafted.expenseIDs)) {
				return domain.ErrSelectionChanged
			}

			return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
				Action:     "invoice.drafted",
				TargetType: "invoice",
				TargetID:   invoice.ID,
				Metadata: map[string]any{
					"number":        invoice.Number,
					"project_id":    projectID.String(),
					"currency":      invoice.Currency,
					"total":         invoice.Total.String(),
					"time_entries":  len(drafted.entryIDs),
					"expense_count": len(drafted.expenseIDs),
				},
			})
		})
	})
	tracing.End(span, err)
	if err != nil {
		return domain.Invoice{}, err
	}

	if req.SendNow {
		return s.deliverAndMarkSent(ctx, invoice, project, *clientEmail)
	}
	return invoice, nil
}

func (s *Service) Send(ctx context.Context, req domain.SendInvoiceRequest) (domain.SendInvoiceResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.SendInvoiceResponse{}, err
	}
	id, err := parseID(req.ID)
	if err != nil {
		return domain.SendInvoiceResponse{}, domain.ErrInvalidID
	}
	to, err := normalizeEmail(&req.ToEmail)
	if err != nil {
		return domain.SendInvoiceResponse{}, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.SendInvoiceResponse{}, err
	}
	if invoice == nil {
		return domain.SendInvoiceResponse{}, domain.ErrNotFound
	}
	if invoice.Status.Terminal() {
		return domain.SendInvoiceResponse{}, domain.ErrInvalidState
	}
	if to == nil {
		to = invoice.ClientEmail
	}
	if to == nil {
		return domain.SendInvoiceResponse{}, domain.ErrMissingRecipient
	}

	project, err := s.projectRepo.FindByID(ctx, s.db, orgID, invoice.ProjectID)
	if err != nil {
		return domain.SendInvoiceResponse{}, err
	}

	out, err := s.deliverAndMarkSent(ctx, *invoice, project, *to)
	resp := domain.SendInvoiceResponse{ID: out.ID.String(), Status: s.presentStatus(out)}
	return resp, err
}

// deliverAndMarkSent delivers invoice and moves a draft to sent. On delivery failure the
// invoice is returned unchanged together with ErrDeliveryFailed. Re-sending a sent
// invoice re-delivers without changing its status.
func (s *Service) deliverAndMarkSent(ctx context.Context, invoice domain.Invoice, project *projectdomain.Project, to string) (domain.Invoice, error) {
	if err := s.deliver(ctx, invoice, project, to); err != nil {
		s.metrics.RecordInvoiceDelivery(ctx, "failed")
		s.log.Warn("invoice delivery failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
		return invoice, fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	s.metrics.RecordInvoiceDelivery(ctx, "delivered")

	now := s.now()
	var out domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		action := "invoice.resent"
		if invoice.Status == domain.StatusDraft {
			moved, err := s.repo.Transition(ctx, tx, invoice.OrgID, invoice.ID,
				[]domain.Status{domain.StatusDraft}, domain.StatusSent,
				map[string]any{"sent_at": now, "updated_at": now},
			)
			if err != nil {
				return err
			}
			if moved {
				action = "invoice.sent"
			}
		}

		reloaded, err := s.repo.FindByID(ctx, tx, invoice.OrgID, invoice.ID)
		if err != nil {
			return err
		}
		if reloaded == nil {
			return domain.ErrNotFound
		}
		out = *reloaded

		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     action,
			TargetType: "invoice",
			TargetID:   invoice.ID,
			Metadata: map[string]any{
				"number": invoice.Number,
				"to":     to,
			},
		})
	})
	if err != nil {
		return invoice, err
	}
	return out, nil
}

func (s *Service) Cancel(ctx context.Context, req domain.CancelInvoiceRequest) (domain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}
	now := s.now()

	var out domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}
		previous := invoice.Status

		moved, err := s.repo.Transition(ctx, tx, orgID, id,
			[]domain.Status{domain.StatusDraft, domain.StatusSent, domain.StatusOverdue}, domain.StatusCancelled,
			map[string]any{"cancelled_at": now, "updated_at": now},
		)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidState
		}

		releasedEntries, err := s.timeEntryRepo.ReleaseInvoice(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		releasedExpenses, err := s.expenseRepo.ReleaseInvoice(ctx, tx, orgID, id)
		if err != nil {
			return err
		}

		metadata := map[string]any{
			"number":            invoice.Number,
			"previous_status":   string(previous),
			"released_entries":  releasedEntries,
			"released_expenses": releasedExpenses,
		}
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			metadata["reason"] = reason
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "invoice.cancelled",
			TargetType: "invoice",
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
		return domain.Invoice{}, err
	}
	return out, nil
}

func (s *Service) MarkPaid(ctx context.Context, req domain.MarkPaidRequest) (domain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}
	now := s.now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = req.PaidAt.UTC().Truncate(time.Second)
	}

	var out domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}

		moved, err := s.repo.Transition(ctx, tx, orgID, id,
			[]domain.Status{domain.StatusSent, domain.StatusOverdue}, domain.StatusPaid,
			map[string]any{"paid_at": paidAt, "updated_at": now},
		)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidState
		}

		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "invoice.paid",
			TargetType: "invoice",
			TargetID:   id,
			Metadata: map[string]any{
				"number":          invoice.Number,
				"previous_status": string(invoice.Status),
				"paid_at":         paidAt.Format(time.RFC3339),
			},
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
		return domain.Invoice{}, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidID
	}

	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	invoice.Status = s.presentStatus(*invoice)
	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	filter := domain.ListFilter{Limit: req.PageSize}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = defaultPageSize
	}
	if req.Page > 1 {
		filter.Offset = (req.Page - 1) * filter.Limit
	}
	if raw := strings.TrimSpace(req.ProjectID); raw != "" {
		projectID, err := parseID(raw)
		if err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidID
		}
		filter.ProjectID = &projectID
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := domain.Status(strings.ToLower(raw))
		if !status.Valid() {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	for i := range items {
		items[i].Status = s.presentStatus(items[i])
	}
	return domain.ListInvoiceResponse{Invoices: items}, nil
}

func (s *Service) MarkOverdue(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.MarkOverdue(ctx, s.db, s.now(), limit)
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.log.Info("invoices marked overdue", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// presentStatus reports sent invoices past their due date as overdue before the
// scheduler has persisted the transition.
func (s *Service) presentStatus(invoice domain.Invoice) domain.Status {
	if invoice.Overdue(s.clock.Now()) {
		return domain.StatusOverdue
	}
	return invoice.Status
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

func normalizeEmail(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	return &addr.Address, nil
}

func firstNonEmpty(values ...*string) *string {
	for _, value := range values {
		if value == nil {
			continue
		}
		if trimmed := strings.TrimSpace(*value); trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

func truncatePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := value.UTC().Truncate(time.Second)
	return &out
}
