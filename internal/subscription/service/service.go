package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	"github.com/smallbiznis/seatly/internal/clock"
	"github.com/smallbiznis/seatly/internal/config"
	"github.com/smallbiznis/seatly/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/seatly/internal/order/domain"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	"github.com/smallbiznis/seatly/internal/providers/email"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Policy    *config.SeatPolicyHolder
	Repo      domain.Repository
	OrderSvc  orderdomain.Service
	PlanSvc   plandomain.Service
	Processor paymentdomain.Processor
	AuditSvc  auditdomain.Service
	Mailer    email.Provider   `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	policy    *config.SeatPolicyHolder
	repo      domain.Repository
	orderSvc  orderdomain.Service
	planSvc   plandomain.Service
	processor paymentdomain.Processor
	auditSvc  auditdomain.Service
	mailer    email.Provider
	metrics   *metrics.Metrics
	validate  *validator.Validate

	// notify runs post-commit side effects; tests replace it to run inline.
	notify func(func())
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
		policy:    p.Policy,
		repo:      p.Repo,
		orderSvc:  p.OrderSvc,
		planSvc:   p.PlanSvc,
		processor: p.Processor,
		auditSvc:  p.AuditSvc,
		mailer:    p.Mailer,
		metrics:   p.Metrics,
		validate:  validator.New(),
		notify:    func(fn func()) { go fn() },
	}
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *Service) actor(ctx context.Context) (actorcontext.Actor, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return actorcontext.Actor{}, domain.ErrUnauthenticated
	}
	return actor, nil
}

// ownedSubscription hides subscriptions of other users behind not found.
func (s *Service) ownedSubscription(ctx context.Context, db *gorm.DB, actor actorcontext.Actor, id snowflake.ID) (*domain.Subscription, error) {
	subscription, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil || subscription.UserID != actor.UserID {
		return nil, domain.ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *Service) withEntitlements(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) (*domain.Subscription, error) {
	entitlements, err := s.repo.ListEntitlements(ctx, db, subscription.ID, true)
	if err != nil {
		return nil, err
	}
	subscription.Entitlements = entitlements
	return subscription, nil
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

func parseCursor(token string) (*domain.SubscriptionCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.SubscriptionCursor{ID: id, CreatedAt: createdAt}, nil
}

func idPtr(id snowflake.ID) *string {
	value := id.String()
	return &value
}
