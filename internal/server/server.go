package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/timeledger/internal/alert"
	alertdomain "github.com/smallbiznis/timeledger/internal/alert/domain"
	"github.com/smallbiznis/timeledger/internal/audit"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/authorization"
	"github.com/smallbiznis/timeledger/internal/config"
	"github.com/smallbiznis/timeledger/internal/expense"
	expensedomain "github.com/smallbiznis/timeledger/internal/expense/domain"
	"github.com/smallbiznis/timeledger/internal/financials"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	"github.com/smallbiznis/timeledger/internal/invoice"
	invoicedomain "github.com/smallbiznis/timeledger/internal/invoice/domain"
	"github.com/smallbiznis/timeledger/internal/lock"
	"github.com/smallbiznis/timeledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/timeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/timeledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/timeledger/internal/observability/tracing"
	"github.com/smallbiznis/timeledger/internal/payout"
	payoutdomain "github.com/smallbiznis/timeledger/internal/payout/domain"
	"github.com/smallbiznis/timeledger/internal/project"
	"github.com/smallbiznis/timeledger/internal/providers"
	"github.com/smallbiznis/timeledger/internal/rate"
	ratedomain "github.com/smallbiznis/timeledger/internal/rate/domain"
	"github.com/smallbiznis/timeledger/internal/ratelimit"
	"github.com/smallbiznis/timeledger/internal/timeentry"
	timeentrydomain "github.com/smallbiznis/timeledger/internal/timeentry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	lock.Module,
	ratelimit.Module,
	project.Module,
	rate.Module,
	timeentry.Module,
	expense.Module,
	financials.Module,
	alert.Module,
	providers.Module,
	invoice.Module,
	payout.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func init() {
	// Money travels as JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	rateSvc       ratedomain.Service
	timeEntrySvc  timeentrydomain.Service
	expenseSvc    expensedomain.Service
	financialsSvc financialsdomain.Service
	alertSvc      alertdomain.Service
	invoiceSvc    invoicedomain.Service
	payoutSvc     payoutdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	RateSvc       ratedomain.Service
	TimeEntrySvc  timeentrydomain.Service
	ExpenseSvc    expensedomain.Service
	FinancialsSvc financialsdomain.Service
	AlertSvc      alertdomain.Service
	InvoiceSvc    invoicedomain.Service
	PayoutSvc     payoutdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		rateSvc:       p.RateSvc,
		timeEntrySvc:  p.TimeEntrySvc,
		expenseSvc:    p.ExpenseSvc,
		financialsSvc: p.FinancialsSvc,
		alertSvc:      p.AlertSvc,
		invoiceSvc:    p.InvoiceSvc,
		payoutSvc:     p.PayoutSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.IdentityRequired())

	track := s.authorizeOrgAction(authorization.ObjectTimeEntry, authorization.ActionTimeTrack)

	// -------- Timer --------
	api.POST("/timer/start", track, s.StartTimer)
	api.GET("/timer/current", track, s.CurrentTimer)
	api.POST("/time-entries/:id/pause", track, s.PauseTimer)
	api.POST("/time-entries/:id/resume", track, s.ResumeTimer)
	api.POST("/time-entries/:id/stop", track, s.StopTimer)
	api.POST("/time-entries/:id/heartbeat", track, s.Heartbeat)
	api.POST("/time-entries/:id/idle-trim", track, s.ApplyIdleTrim)

	// -------- Time entries --------
	api.GET("/time-entries", track, s.ListTimeEntries)
	api.POST("/time-entries", track, s.CreateManualEntry)
	api.POST("/time-entries/bulk-adjust", track, s.BulkAdjustEntries)
	api.GET("/time-entries/:id", track, s.GetTimeEntry)
	api.PATCH("/time-entries/:id", track, s.UpdateTimeEntry)
	api.DELETE("/time-entries/:id", track, s.DeleteTimeEntry)

	// -------- Rates --------
	api.GET("/rates", s.authorizeOrgAction(authorization.ObjectRate, authorization.ActionFinanceRead), s.ListRates)
	api.POST("/rates", s.authorizeOrgAction(authorization.ObjectRate, authorization.ActionFinanceWrite), s.CreateRate)
	api.GET("/rates/resolve", s.authorizeOrgAction(authorization.ObjectRate, authorization.ActionFinanceRead), s.ResolveRate)

	// -------- Expenses --------
	expenseRead := s.authorizeOrgAction(authorization.ObjectExpense, authorization.ActionFinanceRead)
	expenseWrite := s.authorizeOrgAction(authorization.ObjectExpense, authorization.ActionFinanceWrite)
	api.GET("/expenses", expenseRead, s.ListExpenses)
	api.POST("/expenses", expenseWrite, s.CreateExpense)
	api.GET("/expenses/:id", expenseRead, s.GetExpense)
	api.PATCH("/expenses/:id", expenseWrite, s.UpdateExpense)
	api.DELETE("/expenses/:id", expenseWrite, s.DeleteExpense)

	// -------- Financials --------
	financeRead := s.authorizeOrgAction(authorization.ObjectFinancials, authorization.ActionFinanceRead)
	financeWrite := s.authorizeOrgAction(authorization.ObjectFinancials, authorization.ActionFinanceWrite)
	api.GET("/projects/:id/financials", financeRead, s.GetProjectFinancials)
	api.POST("/projects/:id/financials/recompute", financeWrite, s.RecomputeProjectFinancials)
	api.PATCH("/projects/:id/financials", financeWrite, s.UpdateProjectFinance)
	api.GET("/projects/:id/cost-summary", financeRead, s.ProjectCostSummary)

	// -------- Finance alerts --------
	api.GET("/finance/alerts", s.authorizeOrgAction(authorization.ObjectFinanceAlert, authorization.ActionFinanceRead), s.ListFinanceAlerts)
	api.POST("/finance/alerts/:id/acknowledge", s.authorizeOrgAction(authorization.ObjectFinanceAlert, authorization.ActionFinanceWrite), s.AcknowledgeFinanceAlert)

	// -------- Invoices --------
	invoiceRead := s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionFinanceRead)
	invoiceWrite := s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionFinanceWrite)
	api.GET("/invoices", invoiceRead, s.ListInvoices)
	api.POST("/invoices", invoiceWrite, s.DraftInvoice)
	api.GET("/invoices/:id", invoiceRead, s.GetInvoice)
	api.GET("/invoices/:id/pdf", invoiceRead, s.ExportInvoicePDF)
	api.POST("/invoices/:id/send", invoiceWrite, s.SendInvoice)
	api.POST("/invoices/:id/cancel", invoiceWrite, s.CancelInvoice)
	api.POST("/invoices/:id/mark-paid", invoiceWrite, s.MarkInvoicePaid)

	// -------- Payouts --------
	payoutRead := s.authorizeOrgAction(authorization.ObjectPayout, authorization.ActionFinanceRead)
	payoutWrite := s.authorizeOrgAction(authorization.ObjectPayout, authorization.ActionFinanceWrite)
	api.GET("/payouts", payoutRead, s.ListPayouts)
	api.POST("/payouts", payoutWrite, s.CreatePayout)
	api.GET("/payouts/export", payoutRead, s.ExportPayouts)
	api.GET("/payouts/:id", payoutRead, s.GetPayout)
	api.POST("/payouts/:id/complete", payoutWrite, s.MarkPayoutCompleted)
	api.POST("/payouts/:id/fail", payoutWrite, s.MarkPayoutFailed)
	api.GET("/freelancers/:id/finance-summary", payoutRead, s.FreelancerFinanceSummary)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionFinanceRead), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
