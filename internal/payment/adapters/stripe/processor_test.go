package stripe

import (
	"context"
	"errors"
	"testing"

	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newTestProcessor() *Processor {
	return &Processor{
		log:     zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func stripeSubscription(quantity int64) *stripelib.Subscription {
	return &stripelib.Subscription{
		ID:        "sub_123",
		Status:    stripelib.SubscriptionStatusActive,
		StartDate: 1700000000,
		Items: &stripelib.SubscriptionItemList{
			Data: []*stripelib.SubscriptionItem{{
				ID:               "si_1",
				Quantity:         quantity,
				CurrentPeriodEnd: 1702592000,
				Price:            &stripelib.Price{ID: "price_1"},
			}},
		},
	}
}

func TestGetSubscriptionExpandsPrice(t *testing.T) {
	p := newTestProcessor()
	var expanded []*string
	p.getSubscription = func(id string, params *stripelib.SubscriptionParams) (*stripelib.Subscription, error) {
		require.Equal(t, "sub_123", id)
		expanded = params.Expand
		return stripeSubscription(3), nil
	}

	snapshot, err := p.GetSubscription(context.Background(), "sub_123")
	require.NoError(t, err)
	require.Len(t, expanded, 1)
	require.Equal(t, "items.data.price", *expanded[0])
	require.Equal(t, "active", snapshot.Status)
	require.Len(t, snapshot.Items, 1)
	require.EqualValues(t, 3, snapshot.Items[0].Quantity)
	require.EqualValues(t, 1702592000, snapshot.Items[0].CurrentPeriodEnd)
	require.Equal(t, "price_1", snapshot.Items[0].PriceID)
}

func TestUpdateQuantityUpdatesFirstItem(t *testing.T) {
	p := newTestProcessor()
	quantity := int64(2)
	p.getSubscription = func(string, *stripelib.SubscriptionParams) (*stripelib.Subscription, error) {
		return stripeSubscription(quantity), nil
	}
	p.updateItem = func(id string, params *stripelib.SubscriptionItemParams) (*stripelib.SubscriptionItem, error) {
		require.Equal(t, "si_1", id)
		quantity = *params.Quantity
		return &stripelib.SubscriptionItem{ID: id, Quantity: quantity}, nil
	}

	snapshot, err := p.UpdateQuantity(context.Background(), "sub_123", 7)
	require.NoError(t, err)
	require.EqualValues(t, 7, snapshot.Items[0].Quantity)
}

func TestUpstreamErrorsAreWrapped(t *testing.T) {
	p := newTestProcessor()
	p.updateSubscription = func(string, *stripelib.SubscriptionParams) (*stripelib.Subscription, error) {
		return nil, errors.New("connection reset")
	}

	_, err := p.SetCancelAtPeriodEnd(context.Background(), "sub_123", true)
	require.ErrorIs(t, err, paymentdomain.ErrUpstream)
}

func TestCreateCheckoutSessionCarriesMetadata(t *testing.T) {
	p := newTestProcessor()
	var captured *stripelib.CheckoutSessionParams
	p.createCheckoutSession = func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		captured = params
		return &stripelib.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
	}

	session, err := p.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutSessionRequest{
		PriceID:    "price_1",
		Quantity:   2,
		SuccessURL: "https://app.example/success",
		CancelURL:  "https://app.example/cancel",
		Metadata:   map[string]string{"planId": "10", "userId": "20"},
	})
	require.NoError(t, err)
	require.Equal(t, "cs_1", session.ID)
	require.Equal(t, "subscription", *captured.Mode)
	require.Equal(t, "10", captured.Metadata["planId"])
	require.Equal(t, "20", captured.SubscriptionData.Metadata["userId"])
	require.EqualValues(t, 2, *captured.LineItems[0].Quantity)
}
