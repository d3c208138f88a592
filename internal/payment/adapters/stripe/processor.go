package stripe

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/seatly/internal/audit/masking"
	"github.com/smallbiznis/seatly/internal/config"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	stripesubscription "github.com/stripe/stripe-go/v82/subscription"
	stripesubscriptionitem "github.com/stripe/stripe-go/v82/subscriptionitem"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const providerName = "stripe"

var keyOnce sync.Once

// Processor talks to the Stripe API. Calls share one client-side rate
// limiter so bursts of webhooks cannot exhaust the account's API quota.
type Processor struct {
	log     *zap.Logger
	limiter *rate.Limiter

	getSubscription       func(id string, params *stripelib.SubscriptionParams) (*stripelib.Subscription, error)
	updateSubscription    func(id string, params *stripelib.SubscriptionParams) (*stripelib.Subscription, error)
	updateItem            func(id string, params *stripelib.SubscriptionItemParams) (*stripelib.SubscriptionItem, error)
	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
}

func NewProcessor(cfg config.Config, log *zap.Logger) *Processor {
	secret := strings.TrimSpace(cfg.Stripe.SecretKey)
	keyOnce.Do(func() {
		stripelib.Key = secret
	})
	if secret == "" {
		log.Warn("stripe secret key not configured; processor calls will fail")
	} else {
		log.Info("stripe processor configured", zap.String("key", masking.MaskSecret(secret)))
	}

	rps := cfg.Stripe.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Stripe.Burst
	if burst <= 0 {
		burst = 5
	}

	return &Processor{
		log:                   log.Named("stripe.processor"),
		limiter:               rate.NewLimiter(rate.Limit(rps), burst),
		getSubscription:       stripesubscription.Get,
		updateSubscription:    stripesubscription.Update,
		updateItem:            stripesubscriptionitem.Update,
		createCheckoutSession: stripesession.New,
	}
}

func (p *Processor) Name() string {
	return providerName
}

func (p *Processor) GetSubscription(ctx context.Context, externalID string) (*paymentdomain.SubscriptionSnapshot, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := &stripelib.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := p.getSubscription(externalID, params)
	if err != nil {
		return nil, upstream("retrieve subscription", err)
	}
	return toSnapshot(sub), nil
}

// UpdateQuantity changes the quantity of the first subscription item, which
// carries the seat count.
func (p *Processor) UpdateQuantity(ctx context.Context, externalID string, quantity int64) (*paymentdomain.SubscriptionSnapshot, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	current, err := p.GetSubscription(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if len(current.Items) == 0 || current.Items[0].ID == "" {
		return nil, fmt.Errorf("%w: subscription %s has no items", paymentdomain.ErrUpstream, externalID)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	itemParams := &stripelib.SubscriptionItemParams{
		Quantity:          stripelib.Int64(quantity),
		ProrationBehavior: stripelib.String("create_prorations"),
	}
	itemParams.Context = ctx
	if _, err := p.updateItem(current.Items[0].ID, itemParams); err != nil {
		return nil, upstream("update subscription item", err)
	}

	return p.GetSubscription(ctx, externalID)
}

func (p *Processor) SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*paymentdomain.SubscriptionSnapshot, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := &stripelib.SubscriptionParams{
		CancelAtPeriodEnd: stripelib.Bool(cancel),
	}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := p.updateSubscription(externalID, params)
	if err != nil {
		return nil, upstream("update subscription", err)
	}
	return toSnapshot(sub), nil
}

func (p *Processor) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutSessionRequest) (*paymentdomain.CheckoutSession, error) {
	if strings.TrimSpace(req.PriceID) == "" {
		return nil, fmt.Errorf("price id is required")
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		SuccessURL: stripelib.String(req.SuccessURL),
		CancelURL:  stripelib.String(req.CancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(req.PriceID),
				Quantity: stripelib.Int64(req.Quantity),
			},
		},
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripelib.String(email)
	}
	if ref := strings.TrimSpace(req.ClientReferenceID); ref != "" {
		params.ClientReferenceID = stripelib.String(ref)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	params.Context = ctx

	session, err := p.createCheckoutSession(params)
	if err != nil {
		return nil, upstream("create checkout session", err)
	}
	return &paymentdomain.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func toSnapshot(sub *stripelib.Subscription) *paymentdomain.SubscriptionSnapshot {
	if sub == nil {
		return nil
	}
	snapshot := &paymentdomain.SubscriptionSnapshot{
		ID:                sub.ID,
		Status:            string(sub.Status),
		StartDate:         sub.StartDate,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CanceledAt:        sub.CanceledAt,
		TrialEnd:          sub.TrialEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			converted := paymentdomain.SubscriptionItem{
				ID:               item.ID,
				Quantity:         item.Quantity,
				CurrentPeriodEnd: item.CurrentPeriodEnd,
			}
			if item.Price != nil {
				converted.PriceID = item.Price.ID
			}
			snapshot.Items = append(snapshot.Items, converted)
		}
	}
	return snapshot
}

func upstream(op string, err error) error {
	return fmt.Errorf("%w: stripe %s: %w", paymentdomain.ErrUpstream, op, err)
}
