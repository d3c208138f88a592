package seed

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	"github.com/smallbiznis/seatly/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
)

func TestEnsureCatalogIsIdempotent(t *testing.T) {
	db := dbtest.Open(t, &plandomain.Provider{}, &plandomain.Plan{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, EnsureCatalog(ctx, db, node))

	priceID := "price_linked"
	require.NoError(t, db.Exec(`UPDATE plans SET external_price_id = ?, is_active = FALSE WHERE slug = ?`, priceID, "newspro-newspro-enterprise").Error)

	require.NoError(t, EnsureCatalog(ctx, db, node))

	var providers, plans int64
	require.NoError(t, db.Model(&plandomain.Provider{}).Count(&providers).Error)
	require.NoError(t, db.Model(&plandomain.Plan{}).Count(&plans).Error)
	require.Equal(t, int64(3), providers)
	require.Equal(t, int64(6), plans)

	var enterprise plandomain.Plan
	require.NoError(t, db.Where("slug = ?", "newspro-newspro-enterprise").First(&enterprise).Error)
	require.True(t, enterprise.IsActive)
	require.Equal(t, plandomain.IntervalYear, enterprise.Interval)
	require.Equal(t, 25, enterprise.SeatCapacityPerPurchase)
	require.NotNil(t, enterprise.ExternalPriceID)
	require.Equal(t, priceID, *enterprise.ExternalPriceID)
}
