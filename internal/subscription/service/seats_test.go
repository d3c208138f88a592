package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/stretchr/testify/require"
)

func TestAssignSeatUntilExhausted(t *testing.T) {
	f := setup(t)
	sub := f.seed(t, "sub_news", 42, 2)
	ctx := ownerContext(42)

	first, err := f.svc.AssignSeat(ctx, sub.ID.String(), domain.AssignSeatRequest{Email: " Ann@Example.com "})
	require.NoError(t, err)
	require.Equal(t, domain.EntitlementAssigned, first.Status)
	require.Equal(t, "ann@example.com", *first.AssigneeEmail)
	require.Nil(t, first.AssigneeUserID)

	second, err := f.svc.AssignSeat(ctx, sub.ID.String(), domain.AssignSeatRequest{Email: "owner42@example.com"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.NotNil(t, second.AssigneeUserID)
	require.Equal(t, snowflake.ID(42), *second.AssigneeUserID)

	_, err = f.svc.AssignSeat(ctx, sub.ID.String(), domain.AssignSeatRequest{Email: "bob@example.com"})
	require.ErrorIs(t, err, domain.ErrNoAvailableSeat)

	require.Equal(t, map[domain.EntitlementStatus]int{domain.EntitlementAssigned: 2}, countByStatus(f.entitlements(t, sub.ID)))
	require.Equal(t, []string{"entitlement.assign", "entitlement.assign"}, f.auditActions(t, "entitlement"))
}

func TestAssignSeatSendsNotification(t *testing.T) {
	f := setup(t)
	sub := f.seed(t, "sub_news", 42, 1)

	_, err := f.svc.AssignSeat(ownerContext(42), sub.ID.String(), domain.AssignSeatRequest{Email: "ann@example.com"})
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	require.Equal(t, []string{"ann@example.com"}, f.mailer.sent[0].to)
	require.Equal(t, "NewsPro Team", f.mailer.sent[0].data["plan_name"])
	require.Equal(t, "owner42@example.com", f.mailer.sent[0].data["owner_email"])
	require.Equal(t, "https://seatly.test/dashboard", f.mailer.sent[0].data["dashboard_url"])
}

func TestAssignSeatRejects(t *testing.T) {
	f := setup(t)
	sub := f.seed(t, "sub_news", 42, 1)

	_, err := f.svc.AssignSeat(context.Background(), sub.ID.String(), domain.AssignSeatRequest{Email: "ann@example.com"})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.svc.AssignSeat(ownerContext(42), "nope", domain.AssignSeatRequest{Email: "ann@example.com"})
	require.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.AssignSeat(ownerContext(42), sub.ID.String(), domain.AssignSeatRequest{Email: "not-an-email"})
	require.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = f.svc.AssignSeat(ownerContext(7), sub.ID.String(), domain.AssignSeatRequest{Email: "ann@example.com"})
	require.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	require.Empty(t, f.mailer.sent)
}

func TestConcurrentAssignNeverOverbooks(t *testing.T) {
	f := setup(t)
	sub := f.seed(t, "sub_news", 42, 1)
	ctx := ownerContext(42)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		emails = []string{"ann@example.com", "bob@example.com"}
	)
	for _, email := range emails {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			_, err := f.svc.AssignSeat(ctx, sub.ID.String(), domain.AssignSeatRequest{Email: email})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(email)
	}
	wg.Wait()

	var succeeded, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrNoAvailableSeat):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, exhausted)
	require.Equal(t, map[domain.EntitlementStatus]int{domain.EntitlementAssigned: 1}, countByStatus(f.entitlements(t, sub.ID)))
}

func TestUnassignSeat(t *testing.T) {
	f := setup(t)
	sub := f.seed(t, "sub_news", 42, 2)
	ctx := ownerContext(42)

	seat, err := f.svc.AssignSeat(ctx, sub.ID.String(), domain.AssignSeatRequest{Email: "ann@example.com"})
	require.NoError(t, err)

	_, err = f.svc.UnassignSeat(ownerContext(7), sub.ID.String(), seat.ID.String())
	require.ErrorIs(t, err, domain.ErrEntitlementNotFound)

	released, err := f.svc.UnassignSeat(ctx, sub.ID.String(), seat.ID.String())
	require.NoError(t, err)
	require.Equal(t, domain.EntitlementUnassigned, released.Status)
	require.Nil(t, released.AssigneeEmail)

	again, err := f.svc.UnassignSeat(ctx, sub.ID.String(), seat.ID.String())
	require.NoError(t, err)
	require.Equal(t, domain.EntitlementUnassigned, again.Status)
	require.Equal(t, []string{"entitlement.assign", "entitlement.unassign"}, f.auditActions(t, "entitlement"))

	reassigned, err := f.svc.AssignSeat(ctx, sub.ID.String(), domain.AssignSeatRequest{Email: "bob@example.com"})
	require.NoError(t, err)
	require.Equal(t, seat.ID, reassigned.ID, "the freed seat is the oldest unassigned one")

	_, err = f.svc.UnassignSeat(ctx, sub.ID.String(), "12345")
	require.ErrorIs(t, err, domain.ErrEntitlementNotFound)

	require.NoError(t, f.svc.ResizePool(context.Background(), nil, sub.ID, 0))
	_, err = f.svc.UnassignSeat(ctx, sub.ID.String(), seat.ID.String())
	require.ErrorIs(t, err, domain.ErrEntitlementRevoked)
}
