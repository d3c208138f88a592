package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Provider is the vendor whose shared subscription is resold as plans.
type Provider struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Provider) TableName() string { return "providers" }

type Plan struct {
	ID                      snowflake.ID `gorm:"primaryKey" json:"id"`
	ProviderID              snowflake.ID `gorm:"not null;index" json:"provider_id"`
	Name                    string       `gorm:"type:text;not null" json:"name"`
	Slug                    string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Description             string       `gorm:"type:text;not null" json:"description"`
	Interval                Interval     `gorm:"column:billing_interval;type:text;not null" json:"interval"`
	PriceCents              int64        `gorm:"not null" json:"price_cents"`
	Currency                string       `gorm:"type:text;not null" json:"currency"`
	SeatCapacityPerPurchase int          `gorm:"not null" json:"seat_capacity_per_purchase"`
	IsActive                bool         `gorm:"not null;default:true" json:"is_active"`
	ExternalPriceID         *string      `gorm:"type:text" json:"external_price_id,omitempty"`
	ExternalProductID       *string      `gorm:"type:text" json:"external_product_id,omitempty"`
	CreatedAt               time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time    `gorm:"not null" json:"updated_at"`

	Provider *Provider `gorm:"-" json:"provider,omitempty"`
}

func (Plan) TableName() string { return "plans" }

// Purchasable reports whether checkout can be started for the plan.
func (p *Plan) Purchasable() bool {
	return p != nil && p.IsActive && p.ExternalPriceID != nil && *p.ExternalPriceID != ""
}
