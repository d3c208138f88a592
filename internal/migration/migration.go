package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	orderdomain "github.com/smallbiznis/seatly/internal/order/domain"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/seatly/internal/subscription/domain"
	"gorm.io/gorm"
)

// Models lists every table owned by the service. Non-postgres databases
// are created from these definitions instead of the SQL files.
func Models() []any {
	return []any{
		&plandomain.Provider{},
		&plandomain.Plan{},
		&orderdomain.Order{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Entitlement{},
		&paymentdomain.WebhookEvent{},
		&auditdomain.AuditLog{},
	}
}

// Apply brings the schema up to date for the connection's dialect.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(Models()...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded SQL migrations to a postgres database.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Versions returns the embedded up-migration file names in apply order.
func Versions() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
