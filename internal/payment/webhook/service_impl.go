package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	obslogger "github.com/smallbiznis/seatly/internal/observability/logger"
	"github.com/smallbiznis/seatly/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/seatly/internal/order/domain"
	"github.com/smallbiznis/seatly/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	paymentservice "github.com/smallbiznis/seatly/internal/payment/service"
	subscriptiondomain "github.com/smallbiznis/seatly/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeDropped   = "dropped"
	outcomeFailed    = "failed"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	Processor  paymentdomain.Processor
	Reconciler subscriptiondomain.Reconciler
	OrderSvc   orderdomain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	processor  paymentdomain.Processor
	reconciler subscriptiondomain.Reconciler
	orderSvc   orderdomain.Service
	metrics    *metrics.Metrics
	handlers   map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, event *paymentdomain.Event) error

func NewService(p Params) paymentdomain.Service {
	s := &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		processor:  p.Processor,
		reconciler: p.Reconciler,
		orderSvc:   p.OrderSvc,
		metrics:    p.Metrics,
	}
	s.handlers = map[string]handlerFunc{
		"checkout.session.completed":    s.handleCheckoutCompleted,
		"invoice.payment_succeeded":     s.handleInvoicePaid,
		"invoice.payment_failed":        s.handleInvoiceFailed,
		"customer.subscription.updated": s.handleSubscriptionUpdated,
		"customer.subscription.deleted": s.handleSubscriptionDeleted,
	}
	return s
}

// IngestWebhook verifies a delivery, records it in the ledger and applies it.
// A handler error leaves the ledger row unprocessed so the processor's retry
// applies it again. An object that can never decode is closed as dropped.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.Event, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	verifier, err := s.adapters.Verifier(provider)
	if err != nil {
		return nil, err
	}

	event, err := verifier.Verify(payload, headers)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, provider, "unknown", outcomeRejected)
		return nil, err
	}
	log := obslogger.WithEvent(obslogger.WithContext(ctx, s.log), provider, event.ID, event.Type)

	stored, err := s.paymentSvc.RecordEvent(ctx, provider, event)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			log.Debug("duplicate webhook delivery")
			s.metrics.RecordWebhookEvent(ctx, provider, event.Type, outcomeDuplicate)
		}
		return event, err
	}

	outcome, err := s.HandleEvent(ctx, event)
	if errors.Is(err, paymentdomain.ErrInvalidPayload) {
		log.Warn("undecodable webhook object; dropping", zap.Error(err))
		outcome, err = outcomeDropped, nil
	}
	if err != nil {
		log.Error("webhook handler failed", zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, provider, event.Type, outcomeFailed)
		return event, err
	}

	if err := s.paymentSvc.MarkProcessed(ctx, stored.ID); err != nil {
		return event, err
	}
	s.metrics.RecordWebhookEvent(ctx, provider, event.Type, outcome)
	log.Info("webhook processed", zap.String("outcome", outcome))
	return event, nil
}

// HandleEvent routes an event to its handler. Unhandled types succeed with
// the ignored outcome.
func (s *Service) HandleEvent(ctx context.Context, event *paymentdomain.Event) (string, error) {
	handler, ok := s.handlers[event.Type]
	if !ok {
		return outcomeIgnored, nil
	}
	if err := handler(ctx, event); err != nil {
		return outcomeFailed, err
	}
	return outcomeProcessed, nil
}
