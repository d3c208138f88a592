package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const providerColumns = `id, name, slug, is_active, created_at, updated_at`

const planColumns = `id, provider_id, name, slug, description, billing_interval, price_cents, currency,
	seat_capacity_per_purchase, is_active, external_price_id, external_product_id,
	created_at, updated_at`

func (r *repo) InsertProvider(ctx context.Context, db *gorm.DB, provider *domain.Provider) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO providers (`+providerColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		provider.ID,
		provider.Name,
		provider.Slug,
		provider.IsActive,
		provider.CreatedAt,
		provider.UpdatedAt,
	).Error
}

func (r *repo) FindProviderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Provider, error) {
	var provider domain.Provider
	err := db.WithContext(ctx).Raw(
		`SELECT `+providerColumns+` FROM providers WHERE id = ?`,
		id,
	).Scan(&provider).Error
	if err != nil {
		return nil, err
	}
	if provider.ID == 0 {
		return nil, nil
	}
	return &provider, nil
}

func (r *repo) FindProviderBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Provider, error) {
	var provider domain.Provider
	err := db.WithContext(ctx).Raw(
		`SELECT `+providerColumns+` FROM providers WHERE slug = ?`,
		slug,
	).Scan(&provider).Error
	if err != nil {
		return nil, err
	}
	if provider.ID == 0 {
		return nil, nil
	}
	return &provider, nil
}

func (r *repo) ListProviders(ctx context.Context, db *gorm.DB) ([]domain.Provider, error) {
	var items []domain.Provider
	err := db.WithContext(ctx).Raw(
		`SELECT ` + providerColumns + ` FROM providers ORDER BY created_at DESC, id DESC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertPlan(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.ProviderID,
		plan.Name,
		plan.Slug,
		plan.Description,
		plan.Interval,
		plan.PriceCents,
		plan.Currency,
		plan.SeatCapacityPerPurchase,
		plan.IsActive,
		plan.ExternalPriceID,
		plan.ExternalProductID,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) UpdatePlan(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	if plan == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE plans
		 SET name = ?, description = ?, billing_interval = ?, price_cents = ?, currency = ?,
		     seat_capacity_per_purchase = ?, is_active = ?, external_price_id = ?,
		     external_product_id = ?, updated_at = ?
		 WHERE id = ?`,
		plan.Name,
		plan.Description,
		plan.Interval,
		plan.PriceCents,
		plan.Currency,
		plan.SeatCapacityPerPurchase,
		plan.IsActive,
		plan.ExternalPriceID,
		plan.ExternalProductID,
		plan.UpdatedAt,
		plan.ID,
	).Error
}

func (r *repo) FindPlanByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plans WHERE id = ?`,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindPlanBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plans WHERE slug = ?`,
		slug,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListPlans(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Plan, error) {
	var items []domain.Plan
	stmt := db.WithContext(ctx).Model(&domain.Plan{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true).Order("price_cents ASC, id ASC")
	} else {
		stmt = stmt.Order("created_at DESC, id DESC")
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
