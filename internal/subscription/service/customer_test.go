package service

import (
	"context"
	"errors"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/stretchr/testify/require"
)

func TestListAndGetSubscriptionsAreScoped(t *testing.T) {
	f := setup(t)
	own := f.seed(t, "sub_a", 42, 2)
	other := f.seed(t, "sub_b", 77, 1)

	items, err := f.svc.ListSubscriptions(ownerContext(42))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, own.ID, items[0].ID)

	got, err := f.svc.GetSubscription(ownerContext(42), own.ID.String())
	require.NoError(t, err)
	require.Len(t, got.Entitlements, 2)

	_, err = f.svc.GetSubscription(ownerContext(42), other.ID.String())
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	seats, err := f.svc.ListEntitlements(ownerContext(77), other.ID.String())
	require.NoError(t, err)
	require.Len(t, seats, 1)

	_, err = f.svc.ListSubscriptions(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestUpdateSubscriptionChangesQuantity(t *testing.T) {
	f := setup(t)
	sub := f.seed(t, "sub_news", 42, 3)
	ctx := ownerContext(42)

	updated, err := f.svc.UpdateSubscription(ctx, sub.ID.String(), domain.ChangeQuantity{Quantity: 5})
	require.NoError(t, err)
	require.Equal(t, 5, updated.Quantity)
	require.Len(t, updated.Entitlements, 5)
	require.Contains(t, f.processor.calls, "quantity:sub_news:5")

	updated, err = f.svc.UpdateSubscription(ctx, sub.ID.String(), domain.ChangeQuantity{Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, map[domain.EntitlementStatus]int{
		domain.EntitlementUnassigned: 2,
		domain.EntitlementRevoked:    3,
	}, countByStatus(updated.Entitlements))

	actions := f.auditActions(t, "subscription")
	require.Equal(t, "subscription.update", actions[len(actions)-1])
}

func TestUpdateSubscriptionCancelAndResume(t *testing.T) {
	f := setup(t)
	sub := f.seed(t, "sub_news", 42, 1)
	ctx := ownerContext(42)

	updated, err := f.svc.UpdateSubscription(ctx, sub.ID.String(), domain.CancelAtPeriodEnd{})
	require.NoError(t, err)
	require.True(t, updated.CancelAtPeriodEnd)
	require.Equal(t, domain.StatusActive, updated.Status)

	updated, err = f.svc.UpdateSubscription(ctx, sub.ID.String(), domain.Resume{})
	require.NoError(t, err)
	require.False(t, updated.CancelAtPeriodEnd)

	require.Equal(t, []string{
		"cancel_at_period_end:sub_news:true",
		"get:sub_news",
		"cancel_at_period_end:sub_news:false",
		"get:sub_news",
	}, f.processor.calls)
}

func TestUpdateSubscriptionRejects(t *testing.T) {
	f := setup(t)
	sub := f.seed(t, "sub_news", 42, 1)
	ctx := ownerContext(42)

	_, err := f.svc.UpdateSubscription(ctx, sub.ID.String(), domain.ChangeQuantity{Quantity: 0})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.UpdateSubscription(ctx, sub.ID.String(), domain.ChangeQuantity{Quantity: 101})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.UpdateSubscription(ctx, sub.ID.String(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = f.svc.UpdateSubscription(ownerContext(7), sub.ID.String(), domain.Resume{})
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	f.processor.err = errors.Join(paymentdomain.ErrUpstream, errors.New("rate limited"))
	_, err = f.svc.UpdateSubscription(ctx, sub.ID.String(), domain.ChangeQuantity{Quantity: 2})
	require.ErrorIs(t, err, paymentdomain.ErrUpstream)
	require.Len(t, f.entitlements(t, sub.ID), 1)
}

func TestUpdateSubscriptionRequiresLink(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()
	local := domain.Subscription{
		ID:               f.svc.genID.Generate(),
		UserID:           42,
		PlanID:           f.plan.ID,
		Status:           domain.StatusActive,
		Quantity:         1,
		CurrentPeriodEnd: now.Add(30 * 24 * time.Hour),
		StartDate:        now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.db.Create(&local).Error)

	_, err := f.svc.UpdateSubscription(ownerContext(42), local.ID.String(), domain.Resume{})
	require.ErrorIs(t, err, domain.ErrSubscriptionNotLinked)
}

func TestUpdateRequestToAction(t *testing.T) {
	quantity := 4
	action, err := domain.UpdateSubscriptionRequest{Action: "change_quantity", Quantity: &quantity}.ToAction()
	require.NoError(t, err)
	require.Equal(t, domain.ChangeQuantity{Quantity: 4}, action)

	_, err = domain.UpdateSubscriptionRequest{Action: "change_quantity"}.ToAction()
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	action, err = domain.UpdateSubscriptionRequest{Action: "cancel"}.ToAction()
	require.NoError(t, err)
	require.Equal(t, "cancel", domain.ActionName(action))

	_, err = domain.UpdateSubscriptionRequest{Action: "pause"}.ToAction()
	require.ErrorIs(t, err, domain.ErrInvalidAction)
}
