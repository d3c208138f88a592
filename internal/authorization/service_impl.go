package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPlan         = "plan"
	ObjectProvider     = "provider"
	ObjectCheckout     = "checkout"
	ObjectSubscription = "subscription"
	ObjectEntitlement  = "entitlement"
	ObjectOrder        = "order"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionPlanView   = "plan.view"
	ActionPlanManage = "plan.manage"

	ActionProviderManage = "provider.manage"

	ActionCheckoutCreate = "checkout.create"

	ActionSubscriptionView   = "subscription.view"
	ActionSubscriptionUpdate = "subscription.update"
	ActionSubscriptionAdmin  = "subscription.admin"

	ActionEntitlementView     = "entitlement.view"
	ActionEntitlementAssign   = "entitlement.assign"
	ActionEntitlementUnassign = "entitlement.unassign"

	ActionOrderView  = "order.view"
	ActionOrderAdmin = "order.admin"

	ActionAuditLogView = "audit_log.view"
)

const (
	roleCustomer = "role:customer"
	roleAdmin    = "role:admin"
)

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
	enforcer.BuildRoleLinks()
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

func (s *ServiceImpl) Authorize(ctx context.Context, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	actor, ok := actorcontext.FromContext(ctx)
	if !ok || !actor.Role.Valid() {
		return ErrInvalidActor
	}

	subject := fmt.Sprintf("user:%s", actor.UserID.String())
	roleName := fmt.Sprintf("role:%s", actor.Role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.audit(ctx, actor, "authorization.denied", object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.audit(ctx, actor, "authorization.granted", object, action)
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject, following the role
// the identity gateway asserted on this request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) audit(ctx context.Context, actor actorcontext.Actor, auditAction string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorID := actor.UserID.String()
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, nil, string(auditdomain.ActorTypeUser), &actorID, auditAction, "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   string(actor.Role),
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionSubscriptionAdmin, ActionPlanManage, ActionProviderManage:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Customer permissions
		{roleCustomer, ObjectPlan, ActionPlanView},
		{roleCustomer, ObjectCheckout, ActionCheckoutCreate},
		{roleCustomer, ObjectSubscription, ActionSubscriptionView},
		{roleCustomer, ObjectSubscription, ActionSubscriptionUpdate},
		{roleCustomer, ObjectEntitlement, ActionEntitlementView},
		{roleCustomer, ObjectEntitlement, ActionEntitlementAssign},
		{roleCustomer, ObjectEntitlement, ActionEntitlementUnassign},
		{roleCustomer, ObjectOrder, ActionOrderView},

		// Admin permissions
		{roleAdmin, ObjectPlan, ActionPlanManage},
		{roleAdmin, ObjectProvider, ActionProviderManage},
		{roleAdmin, ObjectSubscription, ActionSubscriptionAdmin},
		{roleAdmin, ObjectOrder, ActionOrderAdmin},
		{roleAdmin, ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// Admins keep every customer capability for their own subscriptions.
	if _, err := enforcer.AddGroupingPolicy(roleAdmin, roleCustomer); err != nil {
		return err
	}
	return nil
}
