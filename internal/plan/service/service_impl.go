package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	"github.com/smallbiznis/seatly/internal/clock"
	"github.com/smallbiznis/seatly/internal/plan/domain"
	"github.com/smallbiznis/seatly/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCurrency = "usd"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("plan.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		validate: validator.New(),
	}
}

func (s *Service) ListActivePlans(ctx context.Context) ([]domain.Plan, error) {
	items, err := s.repo.ListPlans(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	return s.withProviders(ctx, items)
}

func (s *Service) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || planID == 0 {
		return nil, domain.ErrInvalidID
	}

	plan, err := s.Lookup(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}

	provider, err := s.repo.FindProviderByID(ctx, s.db, plan.ProviderID)
	if err != nil {
		return nil, err
	}
	plan.Provider = provider
	return plan, nil
}

func (s *Service) Lookup(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	plan, err := s.repo.FindPlanByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) ListProviders(ctx context.Context) ([]domain.Provider, error) {
	return s.repo.ListProviders(ctx, s.db)
}

func (s *Service) CreateProvider(ctx context.Context, req domain.CreateProviderRequest) (*domain.Provider, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidProvider, err)
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	now := s.clock.Now()
	provider := &domain.Provider{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		Slug:      slug.Make(req.Name),
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertProvider(ctx, tx, provider); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}
		targetID := provider.ID.String()
		return s.auditSvc.AuditLog(ctx, tx, "", nil, "provider.create", "provider", &targetID, map[string]any{
			"name":      provider.Name,
			"is_active": provider.IsActive,
		})
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func (s *Service) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	items, err := s.repo.ListPlans(ctx, s.db, false)
	if err != nil {
		return nil, err
	}
	return s.withProviders(ctx, items)
}

func (s *Service) CreatePlan(ctx context.Context, req domain.CreatePlanRequest) (*domain.Plan, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPlan, err)
	}

	providerID, err := snowflake.ParseString(strings.TrimSpace(req.ProviderID))
	if err != nil || providerID == 0 {
		return nil, domain.ErrInvalidID
	}
	provider, err := s.repo.FindProviderByID(ctx, s.db, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, domain.ErrProviderNotFound
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	now := s.clock.Now()
	plan := &domain.Plan{
		ID:                      s.genID.Generate(),
		ProviderID:              provider.ID,
		Name:                    req.Name,
		Slug:                    slug.Make(provider.Name + " " + req.Name),
		Description:             req.Description,
		Interval:                domain.Interval(req.Interval),
		PriceCents:              req.PriceCents,
		Currency:                currency,
		SeatCapacityPerPurchase: req.SeatCapacityPerPurchase,
		IsActive:                isActive,
		ExternalPriceID:         normalizePointer(req.ExternalPriceID),
		ExternalProductID:       normalizePointer(req.ExternalProductID),
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertPlan(ctx, tx, plan); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}
		targetID := plan.ID.String()
		return s.auditSvc.AuditLog(ctx, tx, "", nil, "plan.create", "plan", &targetID, map[string]any{
			"provider_id":                provider.ID.String(),
			"name":                       plan.Name,
			"interval":                   string(plan.Interval),
			"price_cents":                plan.PriceCents,
			"currency":                   plan.Currency,
			"seat_capacity_per_purchase": plan.SeatCapacityPerPurchase,
			"is_active":                  plan.IsActive,
		})
	})
	if err != nil {
		return nil, err
	}

	plan.Provider = provider
	return plan, nil
}

func (s *Service) UpdatePlan(ctx context.Context, req domain.UpdatePlanRequest) (*domain.Plan, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPlan, err)
	}

	planID, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || planID == 0 {
		return nil, domain.ErrInvalidID
	}

	var updated *domain.Plan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindPlanByID(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrPlanNotFound
		}

		changes := map[string]any{}
		if req.Name != nil {
			plan.Name = strings.TrimSpace(*req.Name)
			changes["name"] = plan.Name
		}
		if req.Description != nil {
			plan.Description = strings.TrimSpace(*req.Description)
			changes["description"] = plan.Description
		}
		if req.Interval != nil {
			plan.Interval = domain.Interval(*req.Interval)
			changes["interval"] = *req.Interval
		}
		if req.PriceCents != nil {
			plan.PriceCents = *req.PriceCents
			changes["price_cents"] = plan.PriceCents
		}
		if req.Currency != nil {
			plan.Currency = strings.ToLower(strings.TrimSpace(*req.Currency))
			changes["currency"] = plan.Currency
		}
		if req.SeatCapacityPerPurchase != nil {
			plan.SeatCapacityPerPurchase = *req.SeatCapacityPerPurchase
			changes["seat_capacity_per_purchase"] = plan.SeatCapacityPerPurchase
		}
		if req.IsActive != nil {
			plan.IsActive = *req.IsActive
			changes["is_active"] = plan.IsActive
		}
		if value := normalizePointer(req.ExternalPriceID); value != nil {
			plan.ExternalPriceID = value
			changes["external_price_id"] = *value
		}
		if value := normalizePointer(req.ExternalProductID); value != nil {
			plan.ExternalProductID = value
			changes["external_product_id"] = *value
		}

		plan.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdatePlan(ctx, tx, plan); err != nil {
			return err
		}

		targetID := plan.ID.String()
		if err := s.auditSvc.AuditLog(ctx, tx, "", nil, "plan.update", "plan", &targetID, changes); err != nil {
			return err
		}
		updated = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) withProviders(ctx context.Context, items []domain.Plan) ([]domain.Plan, error) {
	if len(items) == 0 {
		return []domain.Plan{}, nil
	}
	providers, err := s.repo.ListProviders(ctx, s.db)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]domain.Provider, len(providers))
	for _, provider := range providers {
		byID[provider.ID] = provider
	}
	for i := range items {
		if provider, ok := byID[items[i].ProviderID]; ok {
			p := provider
			items[i].Provider = &p
		}
	}
	return items, nil
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
