package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultCurrency = "usd"

type catalogPlan struct {
	name        string
	description string
	interval    plandomain.Interval
	priceCents  int64
	seats       int
}

type catalogProvider struct {
	name  string
	plans []catalogPlan
}

// catalog is the starter set of providers and plans for local and demo
// installs. Plans carry no external price id; an admin links them to the
// processor before they can be bought.
var catalog = []catalogProvider{
	{
		name: "MusicPlus",
		plans: []catalogPlan{
			{"MusicPlus Solo", "Single seat access to premium music streaming without ads.", plandomain.IntervalMonth, 9900, 1},
			{"MusicPlus Family", "Family bundle with up to five listeners and parental controls.", plandomain.IntervalMonth, 19900, 5},
		},
	},
	{
		name: "StreamMax",
		plans: []catalogPlan{
			{"StreamMax Essentials", "HD streaming with two simultaneous devices and curated channels.", plandomain.IntervalMonth, 15900, 2},
			{"StreamMax Premier", "4K streaming, premium sports add-ons, and five device seats.", plandomain.IntervalMonth, 25900, 5},
		},
	},
	{
		name: "NewsPro",
		plans: []catalogPlan{
			{"NewsPro Insider", "Daily briefings, investigative reports, and analyst Q&As.", plandomain.IntervalMonth, 12900, 3},
			{"NewsPro Enterprise", "Company-wide access with compliance archives and alerts.", plandomain.IntervalYear, 99900, 25},
		},
	},
}

// EnsureCatalog upserts the starter catalog. Running it again refreshes
// descriptions, prices and seat counts and reactivates the rows; external
// processor ids set by an admin are left alone.
func EnsureCatalog(ctx context.Context, db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, provider := range catalog {
			providerID, err := ensureProviderTx(ctx, tx, node, provider.name, now)
			if err != nil {
				return err
			}
			for _, plan := range provider.plans {
				if err := ensurePlanTx(ctx, tx, node, providerID, provider.name, plan, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func ensureProviderTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, name string, now time.Time) (snowflake.ID, error) {
	provider := plandomain.Provider{
		ID:        node.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "updated_at"}),
	}).Create(&provider).Error; err != nil {
		return 0, err
	}

	var id snowflake.ID
	if err := tx.WithContext(ctx).Raw(
		`SELECT id FROM providers WHERE slug = ?`,
		provider.Slug,
	).Scan(&id).Error; err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("seed provider missing after upsert")
	}
	return id, nil
}

// ensurePlanTx leaves external processor ids alone on conflict.
func ensurePlanTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, providerID snowflake.ID, providerName string, plan catalogPlan, now time.Time) error {
	row := plandomain.Plan{
		ID:                      node.Generate(),
		ProviderID:              providerID,
		Name:                    plan.name,
		Slug:                    slug.Make(providerName + " " + plan.name),
		Description:             plan.description,
		Interval:                plan.interval,
		PriceCents:              plan.priceCents,
		Currency:                defaultCurrency,
		SeatCapacityPerPurchase: plan.seats,
		IsActive:                true,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description",
			"billing_interval",
			"price_cents",
			"seat_capacity_per_purchase",
			"is_active",
			"updated_at",
		}),
	}).Create(&row).Error
}
