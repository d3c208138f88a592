package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	auditrepo "github.com/smallbiznis/seatly/internal/audit/repository"
	auditsvc "github.com/smallbiznis/seatly/internal/audit/service"
	"github.com/smallbiznis/seatly/internal/clock"
	"github.com/smallbiznis/seatly/internal/config"
	"github.com/smallbiznis/seatly/internal/order/domain"
	"github.com/smallbiznis/seatly/internal/order/repository"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	planrepo "github.com/smallbiznis/seatly/internal/plan/repository"
	plansvc "github.com/smallbiznis/seatly/internal/plan/service"
	"github.com/smallbiznis/seatly/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProcessor struct {
	paymentdomain.Processor

	requests []paymentdomain.CheckoutSessionRequest
	err      error
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, req paymentdomain.CheckoutSessionRequest) (*paymentdomain.CheckoutSession, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &paymentdomain.CheckoutSession{
		ID:  "cs_test_" + req.ClientReferenceID,
		URL: "https://checkout.stripe.test/" + req.ClientReferenceID,
	}, nil
}

type fixture struct {
	svc       domain.Service
	db        *gorm.DB
	processor *fakeProcessor
	plan      *plandomain.Plan
	clock     *clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t, &plandomain.Provider{}, &plandomain.Plan{}, &domain.Order{}, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	audit := auditsvc.NewService(auditsvc.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: auditrepo.Provide(),
	})
	plans := plansvc.New(plansvc.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake,
		Repo: planrepo.Provide(), AuditSvc: audit,
	})

	admin := actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 1, Role: actorcontext.RoleAdmin})
	provider, err := plans.CreateProvider(admin, plandomain.CreateProviderRequest{Name: "StreamMax"})
	require.NoError(t, err)
	priceID := "price_family"
	plan, err := plans.CreatePlan(admin, plandomain.CreatePlanRequest{
		ProviderID:              provider.ID.String(),
		Name:                    "StreamMax Family",
		Description:             "Family streaming for the household.",
		Interval:                "month",
		PriceCents:              2500,
		SeatCapacityPerPurchase: 5,
		ExternalPriceID:         &priceID,
	})
	require.NoError(t, err)

	processor := &fakeProcessor{}
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Config: config.Config{Stripe: config.StripeConfig{
			SuccessURL: "https://seatly.test/dashboard",
			CancelURL:  "https://seatly.test/plans",
		}},
		Policy:    config.NewStaticSeatPolicyHolder(config.DefaultSeatPolicy()),
		Repo:      repository.Provide(),
		PlanSvc:   plans,
		Processor: processor,
		AuditSvc:  audit,
	})

	return &fixture{svc: svc, db: db, processor: processor, plan: plan, clock: fake}
}

func customerContext(id snowflake.ID) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{
		UserID: id,
		Role:   actorcontext.RoleCustomer,
		Email:  "Owner@Example.com",
	})
}

func TestCreateCheckout(t *testing.T) {
	f := setup(t)
	ctx := customerContext(42)

	resp, err := f.svc.CreateCheckout(ctx, domain.CreateCheckoutRequest{PlanID: f.plan.ID.String(), Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, "cs_test_"+resp.OrderID, resp.SessionID)

	require.Len(t, f.processor.requests, 1)
	req := f.processor.requests[0]
	require.Equal(t, "price_family", req.PriceID)
	require.Equal(t, int64(3), req.Quantity)
	require.Equal(t, "owner@example.com", req.CustomerEmail)
	require.Equal(t, "https://seatly.test/dashboard", req.SuccessURL)
	require.Equal(t, map[string]string{
		"planId":   f.plan.ID.String(),
		"userId":   "42",
		"orderId":  resp.OrderID,
		"quantity": "3",
	}, req.Metadata)

	order, err := f.svc.FindByCheckoutSession(ctx, nil, resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Equal(t, int64(7500), order.AmountCents)
	require.Equal(t, snowflake.ID(42), order.UserID)

	var actions []string
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("target_type = ?", "order").Pluck("action", &actions).Error)
	require.Equal(t, []string{"order.create"}, actions)
}

func TestCreateCheckoutDefaultsToPlanSeats(t *testing.T) {
	f := setup(t)

	_, err := f.svc.CreateCheckout(customerContext(42), domain.CreateCheckoutRequest{PlanID: f.plan.ID.String()})
	require.NoError(t, err)
	require.Equal(t, int64(5), f.processor.requests[0].Quantity)
}

func TestCreateCheckoutRejectsInvalidInput(t *testing.T) {
	f := setup(t)
	ctx := customerContext(42)

	_, err := f.svc.CreateCheckout(context.Background(), domain.CreateCheckoutRequest{PlanID: f.plan.ID.String()})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.svc.CreateCheckout(ctx, domain.CreateCheckoutRequest{PlanID: "abc"})
	require.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.CreateCheckout(ctx, domain.CreateCheckoutRequest{PlanID: "99"})
	require.ErrorIs(t, err, plandomain.ErrPlanNotFound)

	_, err = f.svc.CreateCheckout(ctx, domain.CreateCheckoutRequest{PlanID: f.plan.ID.String(), Quantity: 101})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.svc.CreateCheckout(ctx, domain.CreateCheckoutRequest{PlanID: f.plan.ID.String(), Quantity: -1})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	require.Empty(t, f.processor.requests)
}

func TestCreateCheckoutRejectsPlanWithoutPrice(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Exec(`UPDATE plans SET external_price_id = NULL WHERE id = ?`, f.plan.ID).Error)

	_, err := f.svc.CreateCheckout(customerContext(42), domain.CreateCheckoutRequest{PlanID: f.plan.ID.String()})
	require.ErrorIs(t, err, domain.ErrPlanNotPurchasable)
}

func TestCreateCheckoutMarksOrderFailedOnUpstreamError(t *testing.T) {
	f := setup(t)
	f.processor.err = errors.Join(paymentdomain.ErrUpstream, errors.New("card network down"))

	_, err := f.svc.CreateCheckout(customerContext(42), domain.CreateCheckoutRequest{PlanID: f.plan.ID.String()})
	require.ErrorIs(t, err, paymentdomain.ErrUpstream)

	var statuses []string
	require.NoError(t, f.db.Model(&domain.Order{}).Pluck("status", &statuses).Error)
	require.Equal(t, []string{string(domain.OrderStatusFailed)}, statuses)
}

func TestMarkPaidTransitionsOnce(t *testing.T) {
	f := setup(t)
	resp, err := f.svc.CreateCheckout(customerContext(42), domain.CreateCheckoutRequest{PlanID: f.plan.ID.String()})
	require.NoError(t, err)
	orderID, err := snowflake.ParseString(resp.OrderID)
	require.NoError(t, err)

	changed, err := f.svc.MarkPaid(context.Background(), nil, orderID)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = f.svc.MarkPaid(context.Background(), nil, orderID)
	require.NoError(t, err)
	require.False(t, changed)

	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "order.paid").Count(&count).Error)
	require.Equal(t, int64(1), count)

	_, err = f.svc.MarkPaid(context.Background(), nil, 12345)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestLinkSubscriptionKeepsFirstLink(t *testing.T) {
	f := setup(t)
	resp, err := f.svc.CreateCheckout(customerContext(42), domain.CreateCheckoutRequest{PlanID: f.plan.ID.String()})
	require.NoError(t, err)
	orderID, err := snowflake.ParseString(resp.OrderID)
	require.NoError(t, err)

	require.NoError(t, f.svc.LinkSubscription(context.Background(), nil, orderID, 700))
	require.NoError(t, f.svc.LinkSubscription(context.Background(), nil, orderID, 800))

	order, err := f.svc.FindByID(context.Background(), nil, orderID)
	require.NoError(t, err)
	require.NotNil(t, order.SubscriptionID)
	require.Equal(t, snowflake.ID(700), *order.SubscriptionID)
}

func TestListOrdersScopesAndPaginates(t *testing.T) {
	f := setup(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateCheckout(customerContext(42), domain.CreateCheckoutRequest{PlanID: f.plan.ID.String()})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}
	_, err := f.svc.CreateCheckout(customerContext(77), domain.CreateCheckoutRequest{PlanID: f.plan.ID.String()})
	require.NoError(t, err)

	page, err := f.svc.ListOrders(customerContext(42), domain.ListOrdersRequest{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 3)
	require.False(t, page.HasMore)

	req := domain.ListOrdersRequest{}
	req.PageSize = 2
	first, err := f.svc.AdminListOrders(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.True(t, first.HasMore)
	require.Equal(t, snowflake.ID(77), first.Orders[0].UserID)

	req.PageToken = first.NextPageToken
	second, err := f.svc.AdminListOrders(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, second.Orders, 2)
	require.False(t, second.HasMore)

	_, err = f.svc.AdminListOrders(context.Background(), domain.ListOrdersRequest{Status: "refunded"})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	bad := domain.ListOrdersRequest{}
	bad.PageToken = "not-a-token"
	_, err = f.svc.AdminListOrders(context.Background(), bad)
	require.ErrorIs(t, err, domain.ErrInvalidPageToken)

	_, err = f.svc.ListOrders(context.Background(), domain.ListOrdersRequest{})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}
