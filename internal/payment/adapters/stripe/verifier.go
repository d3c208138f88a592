package stripe

import (
	"net/http"
	"strings"

	"github.com/smallbiznis/seatly/internal/config"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/stripe/stripe-go/v82/webhook"
)

const signatureHeader = "Stripe-Signature"

type Verifier struct {
	secret string
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{secret: strings.TrimSpace(cfg.Stripe.WebhookSecret)}
}

func (v *Verifier) Provider() string {
	return providerName
}

// Verify checks the Stripe-Signature header (HMAC-SHA256 with the default
// timestamp tolerance) and decodes the event envelope.
func (v *Verifier) Verify(payload []byte, headers http.Header) (*paymentdomain.Event, error) {
	if v.secret == "" {
		return nil, paymentdomain.ErrNotConfigured
	}
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return nil, paymentdomain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, paymentdomain.ErrInvalidSignature
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(string(event.Type)) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: event.Created,
		Payload: payload,
	}
	if event.Data != nil {
		out.Object = event.Data.Raw
	}
	return out, nil
}
