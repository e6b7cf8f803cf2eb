package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/clock"
	"github.com/smallbiznis/timeledger/internal/config"
	financialsdomain "github.com/smallbiznis/timeledger/internal/financials/domain"
	"github.com/smallbiznis/timeledger/internal/observability/metrics"
	"github.com/smallbiznis/timeledger/internal/orgcontext"
	projectdomain "github.com/smallbiznis/timeledger/internal/project/domain"
	"github.com/smallbiznis/timeledger/internal/ratelimit"
	"github.com/smallbiznis/timeledger/internal/timeentry/domain"
	pkgdb "github.com/smallbiznis/timeledger/pkg/db"
	"github.com/smallbiznis/timeledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	AuditSvc    auditdomain.Service
	Invalidator financialsdomain.Invalidator
	Metrics     *metrics.Metrics            `optional:"true"`
	Limiter     *ratelimit.HeartbeatLimiter `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	projectRepo projectdomain.Repository
	auditSvc    auditdomain.Service
	invalidator financialsdomain.Invalidator
	metrics     *metrics.Metrics
	limiter     *ratelimit.HeartbeatLimiter

	idleGap           time.Duration
	idempotencyWindow time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		db:                p.DB,
		log:               p.Log.Named("timeentry.service"),
		genID:             p.GenID,
		clock:             p.Clock,
		repo:              p.Repo,
		projectRepo:       p.ProjectRepo,
		auditSvc:          p.AuditSvc,
		invalidator:       p.Invalidator,
		metrics:           p.Metrics,
		limiter:           p.Limiter,
		idleGap:           p.Cfg.Timer.IdleGapThreshold,
		idempotencyWindow: p.Cfg.Timer.IdempotencyWindow,
	}
}

func (s *Service) Start(ctx context.Context, req domain.StartTimerRequest) (domain.TimeEntry, error) {
	orgID, userID, err := caller(ctx)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	projectID, err := parseID(req.ProjectID, domain.ErrInvalidProject)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	taskID, err := parseOptionalID(req.TaskID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := s.ensureProject(ctx, s.db, orgID, projectID); err != nil {
		return domain.TimeEntry{}, err
	}

	now := s.now()
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, orgID, userID, key, now.Add(-s.idempotencyWindow))
		if err != nil {
			return domain.TimeEntry{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	entry := domain.TimeEntry{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		UserID:          userID,
		ProjectID:       projectID,
		TaskID:          taskID,
		Description:     strings.TrimSpace(req.Description),
		StartTS:         now,
		Billable:        boolOr(req.Billable, true),
		PausedIntervals: datatypes.JSONSlice[domain.PausedInterval]{},
		IdleSuggestion:  datatypes.NewJSONType[*domain.IdleSuggestion](nil),
		Source:          domain.SourceTimer,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if key != "" {
		entry.IdempotencyKey = &key
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := s.repo.FindOpenByUser(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		if open != nil {
			return domain.ErrTimerRunning
		}
		return s.repo.Insert(ctx, tx, &entry)
	})
	if err != nil && pkgdb.IsDuplicateKeyErr(err) {
		// lost the race for the user's single open slot
		if key != "" {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, s.db, orgID, userID, key, now.Add(-s.idempotencyWindow))
			if findErr == nil && existing != nil {
				return *existing, nil
			}
		}
		err = domain.ErrTimerRunning
	}
	if err != nil {
		return domain.TimeEntry{}, err
	}

	s.metrics.RecordTimerTransition(ctx, "idle", string(domain.StateRunning))
	s.log.Info("timer started",
		zap.String("org_id", orgID.String()),
		zap.String("user_id", userID.String()),
		zap.String("time_entry_id", entry.ID.String()),
	)
	return entry, nil
}

func (s *Service) Pause(ctx context.Context, req domain.EntryRequest) (domain.TimeEntry, error) {
	return s.mutate(ctx, req.ID, func(_ *gorm.DB, entry *domain.TimeEntry, now time.Time) error {
		if err := entry.Pause(now); err != nil {
			return err
		}
		s.metrics.RecordTimerTransition(ctx, string(domain.StateRunning), string(domain.StatePaused))
		return nil
	})
}

func (s *Service) Resume(ctx context.Context, req domain.EntryRequest) (domain.TimeEntry, error) {
	return s.mutate(ctx, req.ID, func(_ *gorm.DB, entry *domain.TimeEntry, now time.Time) error {
		if err := entry.Resume(now); err != nil {
			return err
		}
		s.metrics.RecordTimerTransition(ctx, string(domain.StatePaused), string(domain.StateRunning))
		return nil
	})
}

func (s *Service) Stop(ctx context.Context, req domain.StopTimerRequest) (domain.TimeEntry, error) {
	clientIdle, err := normalizeIntervals(req.ClientIdleIntervals)
	if err != nil {
		return domain.TimeEntry{}, err
	}

	return s.mutate(ctx, req.ID, func(tx *gorm.DB, entry *domain.TimeEntry, now time.Time) error {
		from := entry.State()
		if err := entry.Finish(now); err != nil {
			return err
		}

		heartbeats, err := s.repo.ListHeartbeats(ctx, tx, entry.OrgID, entry.ID)
		if err != nil {
			return err
		}
		spans := entry.RunningSpans(*entry.EndTS)
		serverIdle := domain.ServerIdleIntervals(spans, heartbeats, s.idleGap)
		suggestion := domain.SuggestIdle(spans, clientIdle, serverIdle, entry.GrossSeconds(*entry.EndTS))
		entry.IdleSuggestion = datatypes.NewJSONType(suggestion)

		if req.AcceptServerIdleTrim && suggestion != nil && suggestion.SuggestedTrimSeconds > 0 {
			if err := entry.ApplyTrim(suggestion.SuggestedTrimSeconds); err != nil {
				return err
			}
			if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
				Action:     "time_entry.idle_trim_applied",
				TargetType: "time_entry",
				TargetID:   entry.ID,
				Metadata: map[string]any{
					"trim_seconds": entry.IdleTrimAppliedSeconds,
					"basis":        suggestion.Basis,
					"on_stop":      true,
				},
			}); err != nil {
				return err
			}
		}

		if err := s.invalidator.InvalidateProject(ctx, tx, entry.OrgID, entry.ProjectID); err != nil {
			return err
		}
		s.metrics.RecordTimerTransition(ctx, string(from), string(domain.StateStopped))
		return nil
	})
}

func (s *Service) ApplyIdleTrim(ctx context.Context, req domain.ApplyIdleTrimRequest) (domain.TimeEntry, error) {
	if req.TrimSeconds < 0 {
		return domain.TimeEntry{}, domain.ErrInvalidTrim
	}
	return s.mutate(ctx, req.ID, func(tx *gorm.DB, entry *domain.TimeEntry, _ time.Time) error {
		if entry.Billed() {
			return domain.ErrEntryLocked
		}
		previous := entry.IdleTrimAppliedSeconds
		if err := entry.ApplyTrim(req.TrimSeconds); err != nil {
			return err
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "time_entry.idle_trim_applied",
			TargetType: "time_entry",
			TargetID:   entry.ID,
			Metadata: map[string]any{
				"trim_seconds":          req.TrimSeconds,
				"previous_trim_seconds": previous,
			},
		}); err != nil {
			return err
		}
		return s.invalidator.InvalidateProject(ctx, tx, entry.OrgID, entry.ProjectID)
	})
}

func (s *Service) Heartbeat(ctx context.Context, req domain.HeartbeatRequest) (domain.TimeEntry, error) {
	orgID, userID, err := caller(ctx)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := s.limiter.Allow(ctx, orgID.String(), userID.String()); err != nil {
		s.metrics.RecordHeartbeatDenied(ctx, orgID.String())
		return domain.TimeEntry{}, err
	}

	return s.mutate(ctx, req.ID, func(tx *gorm.DB, entry *domain.TimeEntry, now time.Time) error {
		if entry.State() == domain.StateStopped {
			return domain.ErrInvalidState
		}
		at := now
		entry.LastHeartbeatAt = &at
		return s.repo.InsertHeartbeat(ctx, tx, &domain.Heartbeat{
			ID:      s.genID.Generate(),
			OrgID:   entry.OrgID,
			EntryID: entry.ID,
			UserID:  entry.UserID,
			At:      now,
		})
	})
}

func (s *Service) Current(ctx context.Context) (domain.CurrentTimer, error) {
	orgID, userID, err := caller(ctx)
	if err != nil {
		return domain.CurrentTimer{}, err
	}
	entry, err := s.repo.FindOpenByUser(ctx, s.db, orgID, userID)
	if err != nil {
		return domain.CurrentTimer{}, err
	}
	if entry == nil {
		return domain.CurrentTimer{}, nil
	}
	return domain.CurrentTimer{
		Entry:          entry,
		State:          entry.State(),
		ElapsedSeconds: entry.GrossSeconds(s.now()),
	}, nil
}

func (s *Service) CreateManual(ctx context.Context, req domain.CreateManualEntryRequest) (domain.TimeEntry, error) {
	orgID, userID, err := caller(ctx)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	projectID, err := parseID(req.ProjectID, domain.ErrInvalidProject)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	taskID, err := parseOptionalID(req.TaskID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	source := domain.Source(strings.TrimSpace(req.Source))
	switch source {
	case "":
		source = domain.SourceManual
	case domain.SourceManual, domain.SourceCalendar, domain.SourceImport:
	default:
		return domain.TimeEntry{}, domain.ErrInvalidSource
	}
	if req.StartTS.IsZero() || req.EndTS.IsZero() {
		return domain.TimeEntry{}, domain.ErrInvalidTimeRange
	}
	start := truncate(req.StartTS)
	end := truncate(req.EndTS)
	if !end.After(start) {
		return domain.TimeEntry{}, domain.ErrInvalidTimeRange
	}

	now := s.now()
	entry := domain.TimeEntry{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		UserID:          userID,
		ProjectID:       projectID,
		TaskID:          taskID,
		Description:     strings.TrimSpace(req.Description),
		StartTS:         start,
		EndTS:           &end,
		Billable:        boolOr(req.Billable, true),
		PausedIntervals: datatypes.JSONSlice[domain.PausedInterval]{},
		IdleSuggestion:  datatypes.NewJSONType[*domain.IdleSuggestion](nil),
		Source:          source,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	entry.Recalculate()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureProject(ctx, tx, orgID, projectID); err != nil {
			return err
		}
		if !req.AllowOverlap {
			if err := s.checkOverlap(ctx, tx, &entry, start, end, now); err != nil {
				return err
			}
		}
		if err := s.repo.Insert(ctx, tx, &entry); err != nil {
			return err
		}
		return s.invalidator.InvalidateProject(ctx, tx, orgID, projectID)
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateEntryRequest) (domain.TimeEntry, error) {
	return s.mutate(ctx, req.ID, func(tx *gorm.DB, entry *domain.TimeEntry, now time.Time) error {
		if entry.State() != domain.StateStopped {
			return domain.ErrInvalidState
		}
		if entry.Billed() {
			return domain.ErrEntryLocked
		}

		previousProject := entry.ProjectID
		if req.ProjectID != nil {
			projectID, err := parseID(*req.ProjectID, domain.ErrInvalidProject)
			if err != nil {
				return err
			}
			if err := s.ensureProject(ctx, tx, entry.OrgID, projectID); err != nil {
				return err
			}
			entry.ProjectID = projectID
		}
		if req.TaskID != nil {
			taskID, err := parseOptionalID(*req.TaskID)
			if err != nil {
				return err
			}
			entry.TaskID = taskID
		}
		if req.Description != nil {
			entry.Description = strings.TrimSpace(*req.Description)
		}
		if req.Billable != nil {
			entry.Billable = *req.Billable
		}

		if req.StartTS != nil || req.EndTS != nil {
			start, end := entry.StartTS, *entry.EndTS
			if req.StartTS != nil {
				start = truncate(*req.StartTS)
			}
			if req.EndTS != nil {
				end = truncate(*req.EndTS)
			}
			if err := entry.Reschedule(start, end); err != nil {
				return err
			}
			if !req.AllowOverlap {
				if err := s.checkOverlap(ctx, tx, entry, start, end, now); err != nil {
					return err
				}
			}
		}

		if previousProject != entry.ProjectID {
			if err := s.invalidator.InvalidateProject(ctx, tx, entry.OrgID, previousProject); err != nil {
				return err
			}
		}
		return s.invalidator.InvalidateProject(ctx, tx, entry.OrgID, entry.ProjectID)
	})
}

func (s *Service) Delete(ctx context.Context, req domain.EntryRequest) error {
	orgID, userID, err := caller(ctx)
	if err != nil {
		return err
	}
	id, err := parseID(req.ID, domain.ErrInvalidID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotFound
		}
		if entry.UserID != userID {
			return domain.ErrForbidden
		}
		if entry.Billed() {
			return domain.ErrEntryLocked
		}
		if err := s.repo.Delete(ctx, tx, orgID, id); err != nil {
			return err
		}
		if err := s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "time_entry.deleted",
			TargetType: "time_entry",
			TargetID:   id,
			Metadata: map[string]any{
				"project_id":       entry.ProjectID.String(),
				"duration_seconds": entry.DurationSeconds,
			},
		}); err != nil {
			return err
		}
		return s.invalidator.InvalidateProject(ctx, tx, orgID, entry.ProjectID)
	})
}

func (s *Service) Get(ctx context.Context, req domain.EntryRequest) (domain.TimeEntry, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.TimeEntry{}, domain.ErrInvalidOrganization
	}
	id, err := parseID(req.ID, domain.ErrInvalidID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	entry, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if entry == nil {
		return domain.TimeEntry{}, domain.ErrNotFound
	}
	return *entry, nil
}

func (s *Service) List(ctx context.Context, req domain.ListTimeEntryRequest) (domain.ListTimeEntryResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListTimeEntryResponse{}, domain.ErrInvalidOrganization
	}

	limit := req.Limit()
	filter := domain.ListFilter{
		Billable: req.Billable,
		Unbilled: req.Unbilled,
		Limit:    limit + 1,
	}
	if value := strings.TrimSpace(req.ProjectID); value != "" {
		id, err := parseID(value, domain.ErrInvalidProject)
		if err != nil {
			return domain.ListTimeEntryResponse{}, err
		}
		filter.ProjectID = &id
	}
	if value := strings.TrimSpace(req.UserID); value != "" {
		id, err := parseID(value, domain.ErrInvalidUser)
		if err != nil {
			return domain.ListTimeEntryResponse{}, err
		}
		filter.UserID = &id
	}
	if req.Start != nil {
		start := truncate(*req.Start)
		filter.Start = &start
	}
	if req.End != nil {
		end := truncate(*req.End)
		filter.End = &end
	}
	if filter.Start != nil && filter.End != nil && !filter.End.After(*filter.Start) {
		return domain.ListTimeEntryResponse{}, domain.ErrInvalidTimeRange
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListTimeEntryResponse{}, err
	}
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListTimeEntryResponse{}, pagination.ErrInvalidPageToken
		}
		startTS, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return domain.ListTimeEntryResponse{}, pagination.ErrInvalidPageToken
		}
		filter.Cursor = &domain.EntryCursor{ID: id, StartTS: startTS}
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListTimeEntryResponse{}, err
	}

	pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(entry *domain.TimeEntry) (string, error) {
		return pagination.EncodeCursor(pagination.Cursor{
			ID:        entry.ID.String(),
			CreatedAt: entry.StartTS.Format(time.RFC3339Nano),
		})
	})
	if err != nil {
		return domain.ListTimeEntryResponse{}, err
	}
	page, _ := pagination.Trim(items, limit)

	entries := make([]domain.TimeEntry, 0, len(page))
	for _, item := range page {
		entries = append(entries, *item)
	}
	return domain.ListTimeEntryResponse{PageInfo: *pageInfo, TimeEntries: entries}, nil
}

// mutate loads the caller's entry under lock, applies fn and writes it back with a version check.
func (s *Service) mutate(ctx context.Context, rawID string, fn func(tx *gorm.DB, entry *domain.TimeEntry, now time.Time) error) (domain.TimeEntry, error) {
	orgID, userID, err := caller(ctx)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	id, err := parseID(rawID, domain.ErrInvalidID)
	if err != nil {
		return domain.TimeEntry{}, err
	}

	var out domain.TimeEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotFound
		}
		if entry.UserID != userID {
			return domain.ErrForbidden
		}

		now := s.now()
		version := entry.Version
		if err := fn(tx, entry, now); err != nil {
			return err
		}
		entry.Version = version + 1
		entry.UpdatedAt = now

		updated, err := s.repo.Update(ctx, tx, entry, version)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrInvalidState
		}
		out = *entry
		return nil
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return out, nil
}

func (s *Service) checkOverlap(ctx context.Context, tx *gorm.DB, entry *domain.TimeEntry, start, end, now time.Time) error {
	exclude := []snowflake.ID{entry.ID}
	other, err := s.repo.FindOverlapping(ctx, tx, entry.OrgID, entry.UserID, start, end, now, exclude)
	if err != nil {
		return err
	}
	if other != nil {
		return domain.ErrOverlap
	}
	return nil
}

func (s *Service) ensureProject(ctx context.Context, db *gorm.DB, orgID, projectID snowflake.ID) error {
	project, err := s.projectRepo.FindByID(ctx, db, orgID, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (s *Service) now() time.Time {
	return truncate(s.clock.Now())
}

func caller(ctx context.Context) (snowflake.ID, snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, 0, domain.ErrInvalidOrganization
	}
	userID, ok := orgcontext.UserIDFromContext(ctx)
	if !ok || userID == 0 {
		return 0, 0, domain.ErrInvalidUser
	}
	return orgID, userID, nil
}

func normalizeIntervals(intervals []domain.Interval) ([]domain.Interval, error) {
	if intervals == nil {
		return nil, nil
	}
	out := make([]domain.Interval, 0, len(intervals))
	for _, iv := range intervals {
		start, end := truncate(iv.Start), truncate(iv.End)
		if end.Before(start) {
			return nil, domain.ErrInvalidTimeRange
		}
		out = append(out, domain.Interval{Start: start, End: end})
	}
	return out, nil
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func boolOr(value *bool, def bool) bool {
	if value == nil {
		return def
	}
	return *value
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

func parseOptionalID(value string) (*snowflake.ID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := parseID(value, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
