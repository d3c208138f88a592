package stripe

import (
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/seatly/internal/config"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test_123"

func signedHeaders(t *testing.T, payload []byte, secret string) http.Header {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	headers := http.Header{}
	headers.Set(signatureHeader, signed.Header)
	return headers
}

func newTestVerifier() *Verifier {
	return NewVerifier(config.Config{Stripe: config.StripeConfig{WebhookSecret: testSecret}})
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.deleted","created":1700000000,"data":{"object":{"id":"sub_1","object":"subscription"}}}`)

	event, err := newTestVerifier().Verify(payload, signedHeaders(t, payload, testSecret))
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, "customer.subscription.deleted", event.Type)
	require.JSONEq(t, `{"id":"sub_1","object":"subscription"}`, string(event.Object))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.payment_failed","data":{"object":{}}}`)

	_, err := newTestVerifier().Verify(payload, signedHeaders(t, payload, "whsec_wrong"))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	_, err := newTestVerifier().Verify([]byte(`{}`), http.Header{})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestVerifyRequiresSecret(t *testing.T) {
	v := NewVerifier(config.Config{})
	_, err := v.Verify([]byte(`{}`), http.Header{})
	require.ErrorIs(t, err, paymentdomain.ErrNotConfigured)
}
