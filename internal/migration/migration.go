package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/tokenledger/internal/account/domain"
	apikeydomain "github.com/smallbiznis/tokenledger/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	billingrecorddomain "github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	exchangeratedomain "github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	pricerepository "github.com/smallbiznis/tokenledger/internal/price/repository"
	"github.com/smallbiznis/tokenledger/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const activeExchangeRateIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS ux_exchange_rates_active
	ON exchange_rates (is_active) WHERE is_active`

// Models lists every table owned by the service, in creation order.
func Models() []any {
	return []any{
		&pricedomain.ModelPriceConfig{},
		&exchangeratedomain.ExchangeRate{},
		&exchangeratedomain.HistoryEntry{},
		&accountdomain.Account{},
		&ledgerdomain.LedgerEntry{},
		&billingrecorddomain.BillingRecord{},
		&auditdomain.AuditLog{},
		&apikeydomain.APIKey{},
	}
}

// Run brings the schema up to date for the given dialect. Postgres uses the
// versioned SQL files; the other dialects are migrated from the models.
func Run(conn *gorm.DB, dialect string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if dialect == db.DialectPostgres {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(conn, dialect)
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
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

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
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

// AutoMigrate creates the tables from the models. MySQL has no partial
// indexes, so the single-active constraints are only enforced in code there.
func AutoMigrate(conn *gorm.DB, dialect string) error {
	if dialect != db.DialectSQLite {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	if err := migrateSQLite(conn); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, ddl := range []string{pricerepository.ActiveModelIndexDDL, activeExchangeRateIndexDDL} {
		if err := conn.Exec(ddl).Error; err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}

// migrateSQLite creates missing tables and adds missing columns. Existing
// tables never go through gorm AutoMigrate: the sqlite driver cannot re-read
// its own numeric(p,s) column DDL.
func migrateSQLite(conn *gorm.DB) error {
	migrator := conn.Migrator()
	for _, model := range Models() {
		if !migrator.HasTable(model) {
			if err := migrator.CreateTable(model); err != nil {
				return fmt.Errorf("create table for %T: %w", model, err)
			}
			continue
		}

		stmt := &gorm.Statement{DB: conn}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse %T: %w", model, err)
		}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" || field.IgnoreMigration || migrator.HasColumn(model, field.DBName) {
				continue
			}
			if err := migrator.AddColumn(model, field.DBName); err != nil {
				return fmt.Errorf("add column %s.%s: %w", stmt.Schema.Table, field.DBName, err)
			}
		}
	}
	return nil
}
