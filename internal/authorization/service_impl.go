package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectUsage         = "usage"
	ObjectAccount       = "account"
	ObjectLedgerEntry   = "ledger_entry"
	ObjectBillingRecord = "billing_record"
	ObjectModelPrice    = "model_price"
	ObjectExchangeRate  = "exchange_rate"
	ObjectAPIKey        = "api_key"
	ObjectAuditLog      = "audit_log"
)

const (
	ActionUsageIngest   = "usage.ingest"
	ActionUsageEstimate = "usage.estimate"

	ActionAccountView   = "account.view"
	ActionAccountCredit = "account.credit"
	ActionAccountStream = "account.stream"

	ActionLedgerEntryView   = "ledger_entry.view"
	ActionBillingRecordView = "billing_record.view"

	ActionModelPriceView = "model_price.view"
	ActionModelPriceSet  = "model_price.set"

	ActionExchangeRateView = "exchange_rate.view"
	ActionExchangeRateSet  = "exchange_rate.set"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
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
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role string, object string, action string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subjectFor(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, role, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, role string, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("role", role),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionAuthorizationDenied,
		TargetType: auditdomain.TargetAuthorization,
		TargetID:   object,
		Metadata:   map[string]any{"role": role, "action": action},
	})
}

func subjectFor(role string) string {
	return "role:" + role
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Reporter permissions (usage producers)
		{"role:reporter", ObjectUsage, ActionUsageIngest},
		{"role:reporter", ObjectUsage, ActionUsageEstimate},
		{"role:reporter", ObjectAccount, ActionAccountView},
		{"role:reporter", ObjectAccount, ActionAccountStream},

		// Billing permissions (top-ups and statements)
		{"role:billing", ObjectUsage, ActionUsageEstimate},
		{"role:billing", ObjectAccount, ActionAccountView},
		{"role:billing", ObjectAccount, ActionAccountCredit},
		{"role:billing", ObjectAccount, ActionAccountStream},
		{"role:billing", ObjectLedgerEntry, ActionLedgerEntryView},
		{"role:billing", ObjectBillingRecord, ActionBillingRecordView},

		// Admin permissions
		{"role:admin", ObjectModelPrice, ActionModelPriceView},
		{"role:admin", ObjectModelPrice, ActionModelPriceSet},
		{"role:admin", ObjectExchangeRate, ActionExchangeRateView},
		{"role:admin", ObjectExchangeRate, ActionExchangeRateSet},
		{"role:admin", ObjectAPIKey, ActionAPIKeyView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
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

	// Admin inherits everything the other roles can do.
	for _, inherited := range []string{"role:reporter", "role:billing"} {
		has, err := enforcer.HasGroupingPolicy("role:admin", inherited)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy("role:admin", inherited); err != nil {
			return err
		}
	}
	return nil
}
