package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	auditrepo "github.com/smallbiznis/seatly/internal/audit/repository"
	auditsvc "github.com/smallbiznis/seatly/internal/audit/service"
	"github.com/smallbiznis/seatly/internal/clock"
	"github.com/smallbiznis/seatly/internal/config"
	orderdomain "github.com/smallbiznis/seatly/internal/order/domain"
	orderrepo "github.com/smallbiznis/seatly/internal/order/repository"
	ordersvc "github.com/smallbiznis/seatly/internal/order/service"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	planrepo "github.com/smallbiznis/seatly/internal/plan/repository"
	plansvc "github.com/smallbiznis/seatly/internal/plan/service"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/internal/subscription/repository"
	"github.com/smallbiznis/seatly/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProcessor struct {
	mu        sync.Mutex
	snapshots map[string]*paymentdomain.SubscriptionSnapshot
	err       error
	calls     []string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{snapshots: map[string]*paymentdomain.SubscriptionSnapshot{}}
}

func (f *fakeProcessor) Name() string { return "fake" }

func (f *fakeProcessor) put(snapshot *paymentdomain.SubscriptionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snapshot.ID] = snapshot
}

func (f *fakeProcessor) GetSubscription(_ context.Context, externalID string) (*paymentdomain.SubscriptionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "get:"+externalID)
	if f.err != nil {
		return nil, f.err
	}
	snapshot, ok := f.snapshots[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: no such subscription %s", paymentdomain.ErrUpstream, externalID)
	}
	copied := *snapshot
	copied.Items = append([]paymentdomain.SubscriptionItem(nil), snapshot.Items...)
	return &copied, nil
}

func (f *fakeProcessor) UpdateQuantity(ctx context.Context, externalID string, quantity int64) (*paymentdomain.SubscriptionSnapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("quantity:%s:%d", externalID, quantity))
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	if snapshot, ok := f.snapshots[externalID]; ok && len(snapshot.Items) > 0 {
		snapshot.Items[0].Quantity = quantity
	}
	f.mu.Unlock()
	return f.GetSubscription(ctx, externalID)
}

func (f *fakeProcessor) SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*paymentdomain.SubscriptionSnapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("cancel_at_period_end:%s:%t", externalID, cancel))
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	if snapshot, ok := f.snapshots[externalID]; ok {
		snapshot.CancelAtPeriodEnd = cancel
	}
	f.mu.Unlock()
	return f.GetSubscription(ctx, externalID)
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, req paymentdomain.CheckoutSessionRequest) (*paymentdomain.CheckoutSession, error) {
	return &paymentdomain.CheckoutSession{ID: "cs_" + req.ClientReferenceID, URL: "https://checkout.test"}, nil
}

type sentMail struct {
	to   []string
	data map[string]any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(context.Context, []string, string, string) error { return nil }

func (m *fakeMailer) SendTemplate(_ context.Context, to []string, _ string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, data: data})
	return nil
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	processor *fakeProcessor
	mailer    *fakeMailer
	orders    orderdomain.Service
	plan      *plandomain.Plan
	clock     *clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t,
		&plandomain.Provider{}, &plandomain.Plan{},
		&orderdomain.Order{},
		&domain.Subscription{}, &domain.Entitlement{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	audit := auditsvc.NewService(auditsvc.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: auditrepo.Provide()})
	plans := plansvc.New(plansvc.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: planrepo.Provide(), AuditSvc: audit})

	admin := adminContext()
	provider, err := plans.CreateProvider(admin, plandomain.CreateProviderRequest{Name: "NewsPro"})
	require.NoError(t, err)
	priceID := "price_team"
	plan, err := plans.CreatePlan(admin, plandomain.CreatePlanRequest{
		ProviderID:              provider.ID.String(),
		Name:                    "NewsPro Team",
		Description:             "Newsroom access for the whole team.",
		Interval:                "year",
		PriceCents:              99900,
		SeatCapacityPerPurchase: 25,
		ExternalPriceID:         &priceID,
	})
	require.NoError(t, err)

	processor := newFakeProcessor()
	policy := config.NewStaticSeatPolicyHolder(config.DefaultSeatPolicy())
	cfg := config.Config{PublicURL: "https://seatly.test"}
	orders := ordersvc.NewService(ordersvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Config: cfg, Policy: policy,
		Repo: orderrepo.Provide(), PlanSvc: plans, Processor: processor, AuditSvc: audit,
	})

	mailer := &fakeMailer{}
	svc := NewService(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Config:    cfg,
		Policy:    policy,
		Repo:      repository.Provide(),
		OrderSvc:  orders,
		PlanSvc:   plans,
		Processor: processor,
		AuditSvc:  audit,
		Mailer:    mailer,
	})
	svc.notify = func(fn func()) { fn() }

	return &fixture{svc: svc, db: db, processor: processor, mailer: mailer, orders: orders, plan: plan, clock: fake}
}

func adminContext() context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 1, Role: actorcontext.RoleAdmin, Email: "admin@seatly.test"})
}

func ownerContext(id snowflake.ID) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{
		UserID: id,
		Role:   actorcontext.RoleCustomer,
		Email:  fmt.Sprintf("owner%d@example.com", id),
	})
}

func snapshot(id string, status string, quantity int64) *paymentdomain.SubscriptionSnapshot {
	return &paymentdomain.SubscriptionSnapshot{
		ID:        id,
		Status:    status,
		StartDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Items: []paymentdomain.SubscriptionItem{{
			ID:               "si_" + id,
			PriceID:          "price_team",
			Quantity:         quantity,
			CurrentPeriodEnd: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Unix(),
		}},
	}
}

// seed creates a linked subscription owned by userID with quantity seats.
func (f *fixture) seed(t *testing.T, externalID string, userID snowflake.ID, quantity int64) *domain.Subscription {
	t.Helper()
	snap := snapshot(externalID, "active", quantity)
	f.processor.put(snap)
	sub, err := f.svc.Sync(context.Background(), domain.ReconcileInput{
		Snapshot: snap,
		UserID:   userID,
		PlanID:   f.plan.ID,
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) entitlements(t *testing.T, subscriptionID snowflake.ID) []domain.Entitlement {
	t.Helper()
	var items []domain.Entitlement
	require.NoError(t, f.db.Where("subscription_id = ?", subscriptionID).Order("created_at asc, id asc").Find(&items).Error)
	return items
}

func countByStatus(items []domain.Entitlement) map[domain.EntitlementStatus]int {
	out := map[domain.EntitlementStatus]int{}
	for _, item := range items {
		out[item.Status]++
	}
	return out
}

func (f *fixture) auditActions(t *testing.T, targetType string) []string {
	t.Helper()
	var actions []string
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("target_type = ?", targetType).
		Order("created_at asc, id asc").
		Pluck("action", &actions).Error)
	return actions
}
