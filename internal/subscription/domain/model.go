package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Ended reports a terminal status. An ended subscription holds no live seats.
func (s Status) Ended() bool {
	return s == StatusCanceled || s == StatusExpired
}

type EntitlementStatus string

const (
	EntitlementUnassigned EntitlementStatus = "unassigned"
	EntitlementAssigned   EntitlementStatus = "assigned"
	EntitlementRevoked    EntitlementStatus = "revoked"
)

// Subscription mirrors one processor subscription. Rows are keyed by
// ExternalSubscriptionID and are never hard-deleted.
type Subscription struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID                 snowflake.ID `gorm:"not null;index" json:"user_id"`
	PlanID                 snowflake.ID `gorm:"not null;index" json:"plan_id"`
	ExternalSubscriptionID *string      `gorm:"type:text;uniqueIndex" json:"external_subscription_id,omitempty"`
	Status                 Status       `gorm:"type:text;not null;index" json:"status"`
	Quantity               int          `gorm:"not null" json:"quantity"`
	CurrentPeriodEnd       time.Time    `gorm:"not null" json:"current_period_end"`
	StartDate              time.Time    `gorm:"not null" json:"start_date"`
	CancelAtPeriodEnd      bool         `gorm:"not null" json:"cancel_at_period_end"`
	CanceledAt             *time.Time   `json:"canceled_at,omitempty"`
	TrialEndsAt            *time.Time   `json:"trial_ends_at,omitempty"`
	PriceID                *string      `gorm:"type:text" json:"price_id,omitempty"`
	CreatedAt              time.Time    `gorm:"not null;index" json:"created_at"`
	UpdatedAt              time.Time    `gorm:"not null" json:"updated_at"`

	Entitlements []Entitlement `gorm:"-" json:"entitlements,omitempty"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Entitlement is one seat. Revoked rows stay revoked; growing a pool always
// inserts fresh rows.
type Entitlement struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID      `gorm:"not null;index:idx_entitlements_pool,priority:1" json:"subscription_id"`
	Status         EntitlementStatus `gorm:"type:text;not null;index:idx_entitlements_pool,priority:2" json:"status"`
	AssigneeEmail  *string           `gorm:"type:text" json:"assignee_email,omitempty"`
	AssigneeUserID *snowflake.ID     `json:"assignee_user_id,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

func (Entitlement) TableName() string { return "entitlements" }

// SeatSummary counts the live seats of a pool.
type SeatSummary struct {
	Total      int `json:"total"`
	Assigned   int `json:"assigned"`
	Unassigned int `json:"unassigned"`
}

func Summarize(entitlements []Entitlement) SeatSummary {
	var summary SeatSummary
	for _, e := range entitlements {
		switch e.Status {
		case EntitlementAssigned:
			summary.Assigned++
		case EntitlementUnassigned:
			summary.Unassigned++
		default:
			continue
		}
		summary.Total++
	}
	return summary
}
