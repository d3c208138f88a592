package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/config"
	"github.com/smallbiznis/seatly/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if err := Apply(conn); err != nil {
			return err
		}

		if !cfg.Bootstrap.SeedCatalog {
			return nil
		}
		if err := seed.EnsureCatalog(context.Background(), conn, node); err != nil {
			return err
		}
		log.Named("migration").Info("catalog seeded")
		return nil
	}),
)
