package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// Order records one checkout attempt. It moves pending -> paid at most once
// and never back.
type Order struct {
	ID                        snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID                    snowflake.ID  `gorm:"not null;index" json:"user_id"`
	PlanID                    snowflake.ID  `gorm:"not null;index" json:"plan_id"`
	SubscriptionID            *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`
	AmountCents               int64         `gorm:"not null" json:"amount_cents"`
	Currency                  string        `gorm:"type:text;not null" json:"currency"`
	Quantity                  int           `gorm:"not null" json:"quantity"`
	Status                    OrderStatus   `gorm:"type:text;not null;index" json:"status"`
	ExternalCheckoutSessionID *string       `gorm:"type:text;uniqueIndex" json:"external_checkout_session_id,omitempty"`
	PaidAt                    *time.Time    `json:"paid_at,omitempty"`
	CreatedAt                 time.Time     `gorm:"not null;index" json:"created_at"`
	UpdatedAt                 time.Time     `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }
