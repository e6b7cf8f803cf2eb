package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/cache"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	"github.com/smallbiznis/timeledger/internal/lock"
	"github.com/smallbiznis/timeledger/internal/observability/tracing"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	"github.com/smallbiznis/timeledger/internal/rate/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	Repo        domain.Repository
	ProjectRepo projectdomain.Repository
	Locker      lock.Locker
	AuditSvc    auditdomain.Service
	Invalidator financialsdomain.Invalidator
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	projectRepo projectdomain.Repository
	locker      lock.Locker
	auditSvc    auditdomain.Service
	invalidator financialsdomain.Invalidator
	resolver    *domain.Resolver
	source      *cachedSource
	lockTTL     time.Duration
	lockWait    time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("rate.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		projectRepo: p.ProjectRepo,
		locker:      p.Locker,
		auditSvc:    p.AuditSvc,
		invalidator: p.Invalidator,
		resolver:    domain.NewResolver(),
		source: &cachedSource{
			db:    p.DB,
			repo:  p.Repo,
			cache: cache.NewTTLCache[domain.ScopeKey, []domain.Rate](),
			ttl:   p.Cfg.Finance.RateCacheTTL,
		},
		lockTTL:  p.Cfg.Finance.LockTTL,
		lockWait: p.Cfg.Finance.LockWait,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRateRequest) (domain.CreateRateResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.CreateRateResponse{}, domain.ErrInvalidOrganization
	}

	rate, err := s.buildRate(orgID, req)
	if err != nil {
		return domain.CreateRateResponse{}, err
	}
	if userID, ok := orgcontext.UserIDFromContext(ctx); ok && userID != 0 {
		rate.CreatedBy = &userID
	}

	ctx, span := tracing.Start(ctx, "rate.create",
		attribute.String("org_id", orgID.String()),
		attribute.String("scope", string(rate.Scope)),
	)
	var resp domain.CreateRateResponse
	err = lock.WithLock(ctx, s.locker, lockKey(rate), s.lockTTL, s.lockWait, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			existing, err := s.repo.FindByKeyForUpdate(ctx, tx, domain.KeyOf(rate))
			if err != nil {
				return err
			}

			superseded := make([]domain.Rate, 0, 1)
			for _, prior := range existing {
				if prior.Currency != rate.Currency {
					continue
				}
				if supersedes(rate, prior) {
					closed := prior
					closed.EffectiveTo = rate.EffectiveFrom
					superseded = append(superseded, closed)
					continue
				}
				if prior.Overlaps(rate) {
					return domain.ErrRateOverlap
				}
			}

			for _, prior := range superseded {
				if err := s.repo.CloseWindow(ctx, tx, orgID, prior.ID, *prior.EffectiveTo); err != nil {
					return err
				}
			}
			if err := s.repo.Insert(ctx, tx, &rate); err != nil {
				return err
			}

			metadata := map[string]any{
				"scope":       string(rate.Scope),
				"rate_type":   string(rate.RateType),
				"currency":    rate.Currency,
				"hourly_rate": rate.HourlyRate.String(),
			}
			if len(superseded) > 0 {
				ids := make([]string, 0, len(superseded))
				for _, prior := range superseded {
					ids = append(ids, prior.ID.String())
				}
				metadata["superseded_rate_ids"] = ids
			}
			if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
				Action:     "rate.created",
				TargetType: "rate",
				TargetID:   rate.ID,
				Metadata:   metadata,
			}); err != nil {
				return err
			}
			if err := s.invalidator.InvalidateOrg(ctx, tx, orgID); err != nil {
				return err
			}

			resp = domain.CreateRateResponse{Rate: rate, Superseded: superseded}
			return nil
		})
	})
	tracing.End(span, err)
	if err != nil {
		return domain.CreateRateResponse{}, err
	}

	s.source.invalidateOrg(orgID)
	s.log.Info("rate created",
		zap.String("org_id", orgID.String()),
		zap.String("rate_id", rate.ID.String()),
		zap.String("scope", string(rate.Scope)),
		zap.Int("superseded", len(resp.Superseded)),
	)
	return resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRateRequest) ([]domain.Rate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		ActiveAt: req.ActiveAt,
	}
	if value := strings.TrimSpace(req.Scope); value != "" {
		scope := domain.Scope(value)
		if !scope.Valid() {
			return nil, domain.ErrInvalidScope
		}
		filter.Scope = scope
	}
	if value := strings.TrimSpace(req.ScopeID); value != "" {
		id, err := parseID(value, domain.ErrInvalidScopeID)
		if err != nil {
			return nil, err
		}
		filter.ScopeID = &id
	}
	if value := strings.TrimSpace(req.RateType); value != "" {
		rateType := domain.RateType(value)
		if !rateType.Valid() {
			return nil, domain.ErrInvalidRateType
		}
		filter.RateType = rateType
	}

	rates, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return nil, err
	}
	if rates == nil {
		rates = []domain.Rate{}
	}
	return rates, nil
}

func (s *Service) Resolve(ctx context.Context, req domain.ResolveRateRequest) (domain.ResolvedRate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ResolvedRate{}, domain.ErrInvalidOrganization
	}

	projectID, err := parseID(req.ProjectID, domain.ErrInvalidID)
	if err != nil {
		return domain.ResolvedRate{}, err
	}

	rateType := domain.RateTypeBillable
	if value := strings.TrimSpace(req.RateType); value != "" {
		rateType = domain.RateType(value)
		if !rateType.Valid() {
			return domain.ResolvedRate{}, domain.ErrInvalidRateType
		}
	}

	var userID snowflake.ID
	if value := strings.TrimSpace(req.ForUserID); value != "" {
		userID, err = parseID(value, domain.ErrInvalidID)
		if err != nil {
			return domain.ResolvedRate{}, err
		}
	} else if caller, ok := orgcontext.UserIDFromContext(ctx); ok {
		userID = caller
	}

	project, err := s.projectRepo.FindByID(ctx, s.db, orgID, projectID)
	if err != nil {
		return domain.ResolvedRate{}, err
	}
	if project == nil {
		return domain.ResolvedRate{}, domain.ErrProjectNotFound
	}

	at := s.clock.Now()
	if req.At != nil {
		at = req.At.UTC()
	}

	return s.resolver.Resolve(ctx, s.source, domain.Subject{
		OrgID:     orgID,
		ProjectID: project.ID,
		ClientID:  project.ClientID,
		UserID:    userID,
		RateType:  rateType,
		At:        at,
		Currency:  strings.ToUpper(strings.TrimSpace(req.Currency)),
	})
}

func (s *Service) buildRate(orgID snowflake.ID, req domain.CreateRateRequest) (domain.Rate, error) {
	scope := domain.Scope(strings.TrimSpace(req.Scope))
	if !scope.Valid() {
		return domain.Rate{}, domain.ErrInvalidScope
	}
	rateType := domain.RateType(strings.TrimSpace(req.RateType))
	if rateType == "" {
		rateType = domain.RateTypeBillable
	}
	if !rateType.Valid() {
		return domain.Rate{}, domain.ErrInvalidRateType
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Rate{}, domain.ErrInvalidCurrency
	}
	if !req.HourlyRate.IsPositive() {
		return domain.Rate{}, domain.ErrInvalidHourlyRate
	}

	var scopeID *snowflake.ID
	rawScopeID := strings.TrimSpace(req.ScopeID)
	switch {
	case scope == domain.ScopeDefault && rawScopeID != "":
		return domain.Rate{}, domain.ErrInvalidScopeID
	case scope != domain.ScopeDefault:
		id, err := parseID(rawScopeID, domain.ErrInvalidScopeID)
		if err != nil {
			return domain.Rate{}, err
		}
		scopeID = &id
	}

	var projectID *snowflake.ID
	if value := strings.TrimSpace(req.ProjectID); value != "" {
		if scope != domain.ScopeUser {
			return domain.Rate{}, domain.ErrInvalidScope
		}
		id, err := parseID(value, domain.ErrInvalidID)
		if err != nil {
			return domain.Rate{}, err
		}
		projectID = &id
	}

	from := normalizeTime(req.EffectiveFrom)
	to := normalizeTime(req.EffectiveTo)
	if from != nil && to != nil && !from.Before(*to) {
		return domain.Rate{}, domain.ErrInvalidWindow
	}

	now := s.clock.Now()
	return domain.Rate{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		Scope:         scope,
		ScopeID:       scopeID,
		ProjectID:     projectID,
		RateType:      rateType,
		Currency:      currency,
		HourlyRate:    req.HourlyRate,
		EffectiveFrom: from,
		EffectiveTo:   to,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// supersedes reports whether next replaces an open-ended prior rate from next's start on.
func supersedes(next, prior domain.Rate) bool {
	if prior.EffectiveTo != nil || next.EffectiveFrom == nil {
		return false
	}
	return prior.EffectiveFrom == nil || prior.EffectiveFrom.Before(*next.EffectiveFrom)
}

func lockKey(rate domain.Rate) string {
	key := domain.KeyOf(rate)
	return fmt.Sprintf("rate:%s:%s:%d:%d:%s:%s", key.OrgID, key.Scope, key.ScopeID, key.ProjectID, key.RateType, rate.Currency)
}

func normalizeTime(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	normalized := value.UTC().Truncate(time.Second)
	return &normalized
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
