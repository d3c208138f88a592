package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/clock"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/internal/subscription/repository"
	"github.com/smallbiznis/seatly/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubProcessor struct {
	paymentdomain.Processor
	snapshots map[string]*paymentdomain.SubscriptionSnapshot
	calls     []string
}

func (p *stubProcessor) GetSubscription(_ context.Context, externalID string) (*paymentdomain.SubscriptionSnapshot, error) {
	p.calls = append(p.calls, externalID)
	snapshot, ok := p.snapshots[externalID]
	if !ok {
		return nil, paymentdomain.ErrUpstream
	}
	return snapshot, nil
}

type recordingReconciler struct {
	subscriptiondomain.Reconciler
	synced   []subscriptiondomain.ReconcileInput
	canceled []snowflake.ID
}

func (r *recordingReconciler) Sync(_ context.Context, in subscriptiondomain.ReconcileInput) (*subscriptiondomain.Subscription, error) {
	r.synced = append(r.synced, in)
	return &subscriptiondomain.Subscription{UserID: in.UserID, PlanID: in.PlanID}, nil
}

func (r *recordingReconciler) Cancel(_ context.Context, _ *gorm.DB, subscription *subscriptiondomain.Subscription, action string) error {
	if action != "subscription.canceled" {
		return errors.New("unexpected action " + action)
	}
	r.canceled = append(r.canceled, subscription.ID)
	return nil
}

type harness struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	processor  *stubProcessor
	reconciler *recordingReconciler
	scheduler  *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t, &subscriptiondomain.Subscription{}, &subscriptiondomain.Entitlement{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	h := &harness{
		db:         conn,
		clock:      clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		processor:  &stubProcessor{snapshots: map[string]*paymentdomain.SubscriptionSnapshot{}},
		reconciler: &recordingReconciler{},
	}
	h.scheduler, err = New(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		Repo:       repository.Provide(),
		Reconciler: h.reconciler,
		Processor:  h.processor,
		GenID:      node,
		Clock:      h.clock,
		Config:     Config{BatchSize: 10, ResyncIdle: 15 * time.Minute},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) insert(t *testing.T, id int64, externalID string, status subscriptiondomain.Status, periodEnd, touched time.Time) {
	t.Helper()
	row := &subscriptiondomain.Subscription{
		ID:               snowflake.ID(id),
		UserID:           snowflake.ID(100 + id),
		PlanID:           9,
		Status:           status,
		Quantity:         3,
		CurrentPeriodEnd: periodEnd,
		StartDate:        periodEnd.AddDate(0, -1, 0),
		CreatedAt:        touched,
		UpdatedAt:        touched,
	}
	if externalID != "" {
		row.ExternalSubscriptionID = &externalID
	}
	require.NoError(t, h.db.Create(row).Error)
}

func TestResyncPicksOnlyStaleLiveLinkedSubscriptions(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	lapsed := now.Add(-2 * time.Hour)
	idle := now.Add(-time.Hour)

	h.insert(t, 1, "sub_lapsed", subscriptiondomain.StatusActive, lapsed, idle)
	h.insert(t, 2, "sub_future", subscriptiondomain.StatusActive, now.Add(24*time.Hour), idle)
	h.insert(t, 3, "sub_fresh", subscriptiondomain.StatusActive, lapsed, now.Add(-time.Minute))
	h.insert(t, 4, "sub_gone", subscriptiondomain.StatusCanceled, lapsed, idle)
	h.insert(t, 5, "", subscriptiondomain.StatusActive, lapsed, idle)

	h.processor.snapshots["sub_lapsed"] = &paymentdomain.SubscriptionSnapshot{
		ID:     "sub_lapsed",
		Status: "active",
		Items:  []paymentdomain.SubscriptionItem{{Quantity: 3, CurrentPeriodEnd: now.AddDate(0, 1, 0).Unix()}},
	}

	require.NoError(t, h.scheduler.RunOnce(context.Background()))
	require.Equal(t, []string{"sub_lapsed"}, h.processor.calls)
	require.Len(t, h.reconciler.synced, 1)
	synced := h.reconciler.synced[0]
	require.Equal(t, snowflake.ID(101), synced.UserID)
	require.Equal(t, snowflake.ID(9), synced.PlanID)
	require.Equal(t, 3, synced.FallbackQuantity)
	require.Empty(t, h.reconciler.canceled)
}

func TestResyncCancelsSubscriptionsEndedUpstream(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.insert(t, 1, "sub_ended", subscriptiondomain.StatusPastDue, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	h.processor.snapshots["sub_ended"] = &paymentdomain.SubscriptionSnapshot{ID: "sub_ended", Status: "canceled"}

	require.NoError(t, h.scheduler.RunOnce(context.Background()))
	require.Equal(t, []snowflake.ID{1}, h.reconciler.canceled)
	require.Empty(t, h.reconciler.synced)
}

func TestResyncReportsFailuresAndContinues(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.insert(t, 1, "sub_missing", subscriptiondomain.StatusActive, now.Add(-3*time.Hour), now.Add(-time.Hour))
	h.insert(t, 2, "sub_ok", subscriptiondomain.StatusActive, now.Add(-2*time.Hour), now.Add(-time.Hour))
	h.processor.snapshots["sub_ok"] = &paymentdomain.SubscriptionSnapshot{ID: "sub_ok", Status: "active"}

	err := h.scheduler.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, paymentdomain.ErrUpstream)
	require.Contains(t, err.Error(), jobResyncSubscriptions)
	require.Equal(t, []string{"sub_missing", "sub_ok"}, h.processor.calls)
	require.Len(t, h.reconciler.synced, 1)
}

func TestRunJobTreatsDeadlineAsSoftTimeout(t *testing.T) {
	h := newHarness(t)
	h.scheduler.cfg.JobTimeout = 5 * time.Millisecond

	err := h.scheduler.runJob(context.Background(), "timeout_job", 1, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, DefaultConfig().RunInterval, cfg.RunInterval)
	require.Equal(t, 50, cfg.BatchSize)
	require.Equal(t, 15*time.Minute, cfg.ResyncIdle)
	require.Equal(t, time.Minute, cfg.JobTimeout)
}
