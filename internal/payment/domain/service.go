package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Processor is the outbound side of the payment processor.
type Processor interface {
	Name() string
	GetSubscription(ctx context.Context, externalID string) (*SubscriptionSnapshot, error)
	UpdateQuantity(ctx context.Context, externalID string, quantity int64) (*SubscriptionSnapshot, error)
	SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*SubscriptionSnapshot, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
}

// Verifier authenticates an inbound webhook delivery and decodes its envelope.
type Verifier interface {
	Provider() string
	Verify(payload []byte, headers http.Header) (*Event, error)
}

// Service ingests processor webhooks. It returns the verified event even
// when the error is ErrEventAlreadyProcessed.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*Event, error)
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, externalID string) (*WebhookEvent, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	RefreshPayload(ctx context.Context, db *gorm.DB, id snowflake.ID, payload []byte) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrNotConfigured         = errors.New("processor_not_configured")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrUpstream              = errors.New("upstream_error")
	ErrProviderNotFound      = errors.New("provider_not_found")
)
