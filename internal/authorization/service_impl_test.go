package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/seatly/internal/actorcontext"
	"github.com/smallbiznis/seatly/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	db := dbtest.Open(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	return NewService(Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeCustomer(t *testing.T) {
	svc := newTestService(t)
	ctx := actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 1, Role: actorcontext.RoleCustomer})

	require.NoError(t, svc.Authorize(ctx, ObjectEntitlement, ActionEntitlementAssign))
	require.ErrorIs(t, svc.Authorize(ctx, ObjectAuditLog, ActionAuditLogView), ErrForbidden)
	require.ErrorIs(t, svc.Authorize(ctx, ObjectSubscription, ActionSubscriptionAdmin), ErrForbidden)
}

func TestAuthorizeAdminInheritsCustomer(t *testing.T) {
	svc := newTestService(t)
	ctx := actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 2, Role: actorcontext.RoleAdmin})

	require.NoError(t, svc.Authorize(ctx, ObjectAuditLog, ActionAuditLogView))
	require.NoError(t, svc.Authorize(ctx, ObjectCheckout, ActionCheckoutCreate))
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	svc := newTestService(t)
	admin := actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 3, Role: actorcontext.RoleAdmin})
	require.NoError(t, svc.Authorize(admin, ObjectOrder, ActionOrderAdmin))

	demoted := actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 3, Role: actorcontext.RoleCustomer})
	require.ErrorIs(t, svc.Authorize(demoted, ObjectOrder, ActionOrderAdmin), ErrForbidden)
}

func TestAuthorizeRequiresActor(t *testing.T) {
	svc := newTestService(t)
	require.ErrorIs(t, svc.Authorize(context.Background(), ObjectPlan, ActionPlanView), ErrInvalidActor)
	require.ErrorIs(t, svc.Authorize(context.Background(), "", ActionPlanView), ErrInvalidObject)
}
