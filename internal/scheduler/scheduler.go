package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/clock"
	obsmetrics "github.com/smallbiznis/seatly/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/seatly/internal/subscription/domain"
	subscriptionservice "github.com/smallbiznis/seatly/internal/subscription/service"
	"github.com/smallbiznis/seatly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const jobResyncSubscriptions = "resync_subscriptions"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       subscriptiondomain.Repository
	Reconciler subscriptiondomain.Reconciler
	Processor  paymentdomain.Processor
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config              `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

// Scheduler repairs local subscriptions whose renewal or cancellation
// events never reached the webhook endpoint.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	repo       subscriptiondomain.Repository
	reconciler subscriptiondomain.Reconciler
	processor  paymentdomain.Processor
	metrics    *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Repo == nil || p.Reconciler == nil || p.Processor == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		reconciler: p.Reconciler,
		processor:  p.Processor,
		metrics:    p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	ctx, cancel := context.WithTimeout(s.withLogContext(parent), s.cfg.JobTimeout)
	defer cancel()

	run := s.newJobRun(name, batchSize)
	s.logJobStart(ctx, run)
	err := fn(ctx, run)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)

	elapsed := s.clock.Now().Sub(run.startedAt)
	if err == nil {
		s.metrics.RecordJobRun(ctx, name, "ok", elapsed)
		return nil
	}

	// Deadlines are soft: the next tick picks up what is left.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.RecordJobRun(ctx, name, "timeout", elapsed)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	s.metrics.RecordJobRun(ctx, name, "failed", elapsed)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, jobResyncSubscriptions, s.cfg.BatchSize, s.ResyncSubscriptionsJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ResyncSubscriptionsJob fetches one batch of live subscriptions whose period
// ended without a renewal event and applies the processor's current state.
// Rows that fail stay due and are retried on a later run.
func (s *Scheduler) ResyncSubscriptionsJob(ctx context.Context, run *jobRun) error {
	now := s.clock.Now()
	due, err := s.repo.ListDueForResync(ctx, s.db, now, now.Add(-s.cfg.ResyncIdle), s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.resync.list_failed", err)
		return err
	}

	var jobErr error
	for _, subscription := range due {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if err := s.resync(ctx, subscription); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logSchedulerError(ctx, run, "scheduler.resync.failed", err,
				zap.String("subscription_id", subscription.ID.String()),
			)
			continue
		}
		run.AddProcessed(1)
	}
	return jobErr
}

func (s *Scheduler) resync(ctx context.Context, subscription *subscriptiondomain.Subscription) error {
	if subscription.ExternalSubscriptionID == nil {
		return nil
	}
	externalID := strings.TrimSpace(*subscription.ExternalSubscriptionID)

	snapshot, err := s.processor.GetSubscription(ctx, externalID)
	if err != nil {
		return err
	}

	if subscriptionservice.MapExternalStatus(snapshot.Status) == subscriptiondomain.StatusCanceled {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			return s.reconciler.Cancel(ctx, tx, subscription, "subscription.canceled")
		})
	}

	_, err = s.reconciler.Sync(ctx, subscriptiondomain.ReconcileInput{
		Snapshot:         snapshot,
		UserID:           subscription.UserID,
		PlanID:           subscription.PlanID,
		FallbackQuantity: subscription.Quantity,
	})
	return err
}
