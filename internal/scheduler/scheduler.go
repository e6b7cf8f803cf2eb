package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/auditcontext"
	"github.com/smallbiznis/timeledger/internal/clock"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	invoicedomain "github.com/smallbiznis/timeledger/internal/invoice/domain"
	"github.com/smallbiznis/timeledger/internal/lock"
	obsmetrics "github.com/smallbiznis/timeledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobInvoiceOverdue    = "invoice_overdue"
	JobFinancialsRefresh = "financials_refresh"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type overdueMarker interface {
	MarkOverdue(ctx context.Context, limit int) (int, error)
}

type staleRefresher interface {
	RefreshStale(ctx context.Context, limit int) (int, error)
}

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Locker        lock.Locker
	InvoiceSvc    invoicedomain.Service
	FinancialsSvc financialsdomain.Service
	Config        Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	locker     lock.Locker
	metrics    *obsmetrics.SchedulerMetrics
	invoices   overdueMarker
	financials staleRefresher
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Locker == nil || p.InvoiceSvc == nil || p.FinancialsSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		metrics:    obsmetrics.Scheduler(),
		invoices:   p.InvoiceSvc,
		financials: p.FinancialsSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx = auditcontext.WithJob(ctx, name)
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.metrics.AddBatchProcessed(name, run.processedCount)
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next tick picks up the remainder.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobInvoiceOverdue, s.InvoiceOverdueJob},
		{JobFinancialsRefresh, s.FinancialsRefreshJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.withJobLock(parent, job.Name, func(ctx context.Context) error {
			return s.runJob(ctx, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run)
		}))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// InvoiceOverdueJob persists the overdue transition for sent invoices past
// their due date, draining full batches until the backlog is empty.
func (s *Scheduler) InvoiceOverdueJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := s.invoices.MarkOverdue(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.invoice_overdue.failed", JobInvoiceOverdue, err)
			return err
		}
		run.AddProcessed(count)
		if count < s.cfg.BatchSize {
			return nil
		}
	}
}

// FinancialsRefreshJob recomputes one batch of stale project snapshots. Snapshots
// that fail to recompute stay stale and are retried on a later tick.
func (s *Scheduler) FinancialsRefreshJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	count, err := s.financials.RefreshStale(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.financials_refresh.failed", JobFinancialsRefresh, err)
		return err
	}
	run.AddProcessed(count)
	return nil
}
