package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const SourceStripe = "stripe"

// WebhookEvent is the ledger row for one processor event. A set ProcessedAt
// means the event has been fully applied and must not be applied again.
type WebhookEvent struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	ExternalID  string         `json:"external_id" gorm:"type:text;not null;uniqueIndex"`
	Source      string         `json:"source" gorm:"type:text;not null"`
	EventType   string         `json:"event_type" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// Event is a verified processor event. Object carries the raw data.object
// document so handlers can decode the shape they expect.
type Event struct {
	ID      string
	Type    string
	Created int64
	Object  json.RawMessage
	Payload []byte
}

// SubscriptionItem is one line of a processor subscription. Epoch fields are
// zero when the processor omits them.
type SubscriptionItem struct {
	ID               string
	PriceID          string
	Quantity         int64
	CurrentPeriodEnd int64
}

// SubscriptionSnapshot is the processor's current view of a subscription.
type SubscriptionSnapshot struct {
	ID                string
	Status            string
	StartDate         int64
	CancelAtPeriodEnd bool
	CanceledAt        int64
	TrialEnd          int64
	Items             []SubscriptionItem
	Metadata          map[string]string
}

type CheckoutSessionRequest struct {
	PriceID           string
	Quantity          int64
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}
