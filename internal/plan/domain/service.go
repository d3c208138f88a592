package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateProviderRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	IsActive *bool  `json:"is_active"`
}

type CreatePlanRequest struct {
	ProviderID              string  `json:"provider_id" validate:"required"`
	Name                    string  `json:"name" validate:"required,min=3"`
	Description             string  `json:"description" validate:"required,min=10"`
	Interval                string  `json:"interval" validate:"required,oneof=month year"`
	PriceCents              int64   `json:"price_cents" validate:"gte=100"`
	Currency                string  `json:"currency" validate:"omitempty,len=3"`
	SeatCapacityPerPurchase int     `json:"seat_capacity_per_purchase" validate:"gte=1,lte=100"`
	IsActive                *bool   `json:"is_active"`
	ExternalPriceID         *string `json:"external_price_id"`
	ExternalProductID       *string `json:"external_product_id"`
}

// UpdatePlanRequest applies only the fields that are set. A nil external id
// keeps the stored value.
type UpdatePlanRequest struct {
	ID                      string  `json:"-"`
	Name                    *string `json:"name" validate:"omitempty,min=3"`
	Description             *string `json:"description" validate:"omitempty,min=10"`
	Interval                *string `json:"interval" validate:"omitempty,oneof=month year"`
	PriceCents              *int64  `json:"price_cents" validate:"omitempty,gte=100"`
	Currency                *string `json:"currency" validate:"omitempty,len=3"`
	SeatCapacityPerPurchase *int    `json:"seat_capacity_per_purchase" validate:"omitempty,gte=1,lte=100"`
	IsActive                *bool   `json:"is_active"`
	ExternalPriceID         *string `json:"external_price_id"`
	ExternalProductID       *string `json:"external_product_id"`
}

type Service interface {
	ListActivePlans(ctx context.Context) ([]Plan, error)
	// GetPlan returns an active plan; inactive plans are reported as not found.
	GetPlan(ctx context.Context, id string) (*Plan, error)
	// Lookup returns any plan by id, active or not.
	Lookup(ctx context.Context, id snowflake.ID) (*Plan, error)

	ListProviders(ctx context.Context) ([]Provider, error)
	CreateProvider(ctx context.Context, req CreateProviderRequest) (*Provider, error)
	ListPlans(ctx context.Context) ([]Plan, error)
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	UpdatePlan(ctx context.Context, req UpdatePlanRequest) (*Plan, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidPlan      = errors.New("invalid_plan")
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrPlanNotFound     = errors.New("plan_not_found")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrSlugTaken        = errors.New("slug_taken")
)
