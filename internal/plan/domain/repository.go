package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertProvider(ctx context.Context, db *gorm.DB, provider *Provider) error
	FindProviderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Provider, error)
	FindProviderBySlug(ctx context.Context, db *gorm.DB, slug string) (*Provider, error)
	ListProviders(ctx context.Context, db *gorm.DB) ([]Provider, error)

	InsertPlan(ctx context.Context, db *gorm.DB, plan *Plan) error
	UpdatePlan(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindPlanByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindPlanBySlug(ctx context.Context, db *gorm.DB, slug string) (*Plan, error)
	ListPlans(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Plan, error)
}
