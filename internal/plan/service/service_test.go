package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	auditrepo "github.com/smallbiznis/seatly/internal/audit/repository"
	auditsvc "github.com/smallbiznis/seatly/internal/audit/service"
	"github.com/smallbiznis/seatly/internal/clock"
	"github.com/smallbiznis/seatly/internal/plan/domain"
	"github.com/smallbiznis/seatly/internal/plan/repository"
	"github.com/smallbiznis/seatly/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupPlanService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	db := dbtest.Open(t, &domain.Provider{}, &domain.Plan{}, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	audit := auditsvc.NewService(auditsvc.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: auditrepo.Provide(),
	})
	svc := New(Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake,
		Repo: repository.Provide(), AuditSvc: audit,
	})
	return svc, db
}

func adminContext() context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{UserID: 1, Role: actorcontext.RoleAdmin})
}

func TestCreatePlanAndListActive(t *testing.T) {
	svc, db := setupPlanService(t)
	ctx := adminContext()

	provider, err := svc.CreateProvider(ctx, domain.CreateProviderRequest{Name: "MusicPlus"})
	require.NoError(t, err)
	require.Equal(t, "musicplus", provider.Slug)

	priceID := "price_123"
	plan, err := svc.CreatePlan(ctx, domain.CreatePlanRequest{
		ProviderID:              provider.ID.String(),
		Name:                    "MusicPlus Family",
		Description:             "Family bundle with five listeners.",
		Interval:                "month",
		PriceCents:              19900,
		SeatCapacityPerPurchase: 5,
		ExternalPriceID:         &priceID,
	})
	require.NoError(t, err)
	require.Equal(t, "usd", plan.Currency)
	require.Equal(t, "musicplus-musicplus-family", plan.Slug)
	require.True(t, plan.Purchasable())

	inactive := false
	_, err = svc.CreatePlan(ctx, domain.CreatePlanRequest{
		ProviderID:              provider.ID.String(),
		Name:                    "MusicPlus Legacy",
		Description:             "Retired single listener plan.",
		Interval:                "year",
		PriceCents:              5000,
		SeatCapacityPerPurchase: 1,
		IsActive:                &inactive,
	})
	require.NoError(t, err)

	active, err := svc.ListActivePlans(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].Provider)
	require.Equal(t, "MusicPlus", active[0].Provider.Name)

	all, err := svc.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	var audits int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Where("action = ?", "plan.create").Count(&audits).Error)
	require.EqualValues(t, 2, audits)
}

func TestCreatePlanValidation(t *testing.T) {
	svc, _ := setupPlanService(t)
	ctx := adminContext()

	provider, err := svc.CreateProvider(ctx, domain.CreateProviderRequest{Name: "NewsPro"})
	require.NoError(t, err)

	_, err = svc.CreatePlan(ctx, domain.CreatePlanRequest{
		ProviderID:              provider.ID.String(),
		Name:                    "NP",
		Description:             "short",
		Interval:                "week",
		PriceCents:              50,
		SeatCapacityPerPurchase: 101,
	})
	require.ErrorIs(t, err, domain.ErrInvalidPlan)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := map[string]bool{}
	for _, fe := range verrs {
		fields[fe.Field()] = true
	}
	require.True(t, fields["Name"])
	require.True(t, fields["Interval"])
	require.True(t, fields["PriceCents"])
	require.True(t, fields["SeatCapacityPerPurchase"])
}

func TestCreatePlanUnknownProvider(t *testing.T) {
	svc, _ := setupPlanService(t)
	_, err := svc.CreatePlan(adminContext(), domain.CreatePlanRequest{
		ProviderID:              "12345",
		Name:                    "Ghost plan",
		Description:             "Plan without a provider row.",
		Interval:                "month",
		PriceCents:              1000,
		SeatCapacityPerPurchase: 1,
	})
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestCreateProviderDuplicateSlug(t *testing.T) {
	svc, _ := setupPlanService(t)
	ctx := adminContext()

	_, err := svc.CreateProvider(ctx, domain.CreateProviderRequest{Name: "StreamMax"})
	require.NoError(t, err)
	_, err = svc.CreateProvider(ctx, domain.CreateProviderRequest{Name: "streammax"})
	require.ErrorIs(t, err, domain.ErrSlugTaken)
}

func TestUpdatePlanKeepsExternalIDsWhenOmitted(t *testing.T) {
	svc, _ := setupPlanService(t)
	ctx := adminContext()

	provider, err := svc.CreateProvider(ctx, domain.CreateProviderRequest{Name: "StreamMax"})
	require.NoError(t, err)
	priceID := "price_abc"
	plan, err := svc.CreatePlan(ctx, domain.CreatePlanRequest{
		ProviderID:              provider.ID.String(),
		Name:                    "StreamMax Premier",
		Description:             "4K streaming with five device seats.",
		Interval:                "month",
		PriceCents:              25900,
		SeatCapacityPerPurchase: 5,
		ExternalPriceID:         &priceID,
	})
	require.NoError(t, err)

	price := int64(27900)
	inactive := false
	updated, err := svc.UpdatePlan(ctx, domain.UpdatePlanRequest{
		ID:         plan.ID.String(),
		PriceCents: &price,
		IsActive:   &inactive,
	})
	require.NoError(t, err)
	require.EqualValues(t, 27900, updated.PriceCents)
	require.NotNil(t, updated.ExternalPriceID)
	require.Equal(t, "price_abc", *updated.ExternalPriceID)

	_, err = svc.GetPlan(ctx, plan.ID.String())
	require.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestGetPlanRejectsMalformedID(t *testing.T) {
	svc, _ := setupPlanService(t)
	_, err := svc.GetPlan(context.Background(), "not-a-number")
	require.ErrorIs(t, err, domain.ErrInvalidID)
}
