package migration

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/seed"
	"github.com/smallbiznis/seatly/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
)

func TestVersionsArePairedAndOrdered(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	require.Equal(t, []string{
		"000001_catalog.up.sql",
		"000002_subscriptions.up.sql",
		"000003_orders.up.sql",
		"000004_ledger.up.sql",
	}, versions)

	for _, name := range versions {
		down := name[:len(name)-len(".up.sql")] + ".down.sql"
		_, err := embeddedMigrations.ReadFile(migrationsDir + "/" + down)
		require.NoError(t, err, down)
	}
}

func TestApplyCreatesSchemaOnSQLite(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, Apply(db))
	require.NoError(t, Apply(db))

	for _, table := range []string{"providers", "plans", "orders", "subscriptions", "entitlements", "webhook_events", "audit_logs"} {
		require.True(t, db.Migrator().HasTable(table), table)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	require.NoError(t, seed.EnsureCatalog(context.Background(), db, node))
}
