package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/timeledger/internal/audit/domain"
	"github.com/smallbiznis/timeledger/internal/auditcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const actorSystem = "system"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	parsedOrgID, err := snowflake.ParseString(strings.TrimSpace(orgID))
	if err != nil || parsedOrgID == 0 {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := s.resolveRole(ctx, actor, parsedOrgID)
	if err != nil {
		s.auditDenied(ctx, actor, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", parsedOrgID)
	if err := s.ensureGrouping(actor, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveRole(ctx context.Context, actor string, orgID snowflake.ID) (string, error) {
	if actor == actorSystem {
		return "role:system", nil
	}
	rawUserID, ok := strings.CutPrefix(actor, "user:")
	if !ok {
		return "", ErrInvalidActor
	}
	userID, err := snowflake.ParseString(rawUserID)
	if err != nil || userID == 0 {
		return "", ErrInvalidActor
	}
	role, err := s.roleForUser(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	return "role:" + strings.ToLower(role), nil
}

func (s *ServiceImpl) roleForUser(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

// ensureGrouping keeps exactly one role link per subject and domain, following membership changes.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil || has {
		return err
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorType, actorID, _ := strings.Cut(actor, ":")
	ctx = auditcontext.WithActor(ctx, actorType, actorID)
	if err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		Action:     "authorization.denied",
		TargetType: "authorization",
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	}); err != nil {
		s.log.Warn("failed to audit denied authorization", zap.Error(err))
	}
}

var financeObjects = []string{
	ObjectRate,
	ObjectFinancials,
	ObjectExpense,
	ObjectInvoice,
	ObjectPayout,
	ObjectFinanceAlert,
	ObjectAuditLog,
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members track their own time and can look up the rate applied to them.
		{"role:member", ObjectTimeEntry, ActionTimeTrack},
		{"role:member", ObjectRate, ActionFinanceRead},
	}
	for _, role := range []string{"role:owner", "role:admin", "role:finance"} {
		policies = append(policies, []string{role, ObjectTimeEntry, ActionTimeTrack})
		for _, object := range financeObjects {
			policies = append(policies,
				[]string{role, object, ActionFinanceRead},
				[]string{role, object, ActionFinanceWrite},
			)
		}
	}
	// Scheduler jobs.
	for _, object := range []string{ObjectFinancials, ObjectInvoice, ObjectFinanceAlert} {
		policies = append(policies,
			[]string{"role:system", object, ActionFinanceRead},
			[]string{"role:system", object, ActionFinanceWrite},
		)
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
