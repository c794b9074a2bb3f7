package migration

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	"github.com/smallbiznis/tokenledger/pkg/db"
	"github.com/smallbiznis/tokenledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrateCreatesAllTables(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, AutoMigrate(conn, db.DialectSQLite))
	// A restart migrates the same database again.
	require.NoError(t, AutoMigrate(conn, db.DialectSQLite))

	for _, table := range []string{
		"model_price_configs",
		"exchange_rates",
		"exchange_rate_history",
		"accounts",
		"ledger_entries",
		"billing_records",
		"audit_logs",
		"api_keys",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestRunSurvivesRestartWithData(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, Run(conn, db.DialectSQLite))

	node, err := snowflake.NewNode(8)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := &pricedomain.ModelPriceConfig{
		ID:              node.Generate(),
		ModelName:       "gpt-4",
		InputPricePerK:  decimal.RequireFromString("0.03"),
		OutputPricePerK: decimal.RequireFromString("0.06"),
		ServiceType:     pricedomain.ServiceTypeAIModel,
		IsActive:        true,
		CreatedBy:       "test",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, conn.Create(price).Error)

	require.NoError(t, Run(conn, db.DialectSQLite))
	require.NoError(t, Run(conn, db.DialectSQLite))

	var stored pricedomain.ModelPriceConfig
	require.NoError(t, conn.First(&stored, "id = ?", price.ID).Error)
	assert.True(t, stored.OutputPricePerK.Equal(decimal.RequireFromString("0.06")))
}

func TestSQLiteMigrationAddsMissingColumns(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, conn.Exec(`CREATE TABLE audit_logs (
		id integer PRIMARY KEY,
		actor_type text NOT NULL DEFAULT '',
		action text NOT NULL DEFAULT '',
		target_type text NOT NULL DEFAULT '',
		created_at datetime NOT NULL
	)`).Error)
	require.False(t, conn.Migrator().HasColumn(&auditdomain.AuditLog{}, "user_agent"))

	require.NoError(t, AutoMigrate(conn, db.DialectSQLite))
	for _, column := range []string{"actor_id", "target_id", "metadata", "ip_address", "user_agent"} {
		assert.True(t, conn.Migrator().HasColumn(&auditdomain.AuditLog{}, column), column)
	}

	ua := "curl/8"
	require.NoError(t, conn.Create(&auditdomain.AuditLog{
		ID:         1,
		ActorType:  "system",
		Action:     auditdomain.ActionCreditGrant,
		TargetType: auditdomain.TargetAccount,
		UserAgent:  &ua,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}).Error)
	var stored auditdomain.AuditLog
	require.NoError(t, conn.First(&stored, "id = ?", 1).Error)
	require.NotNil(t, stored.UserAgent)
	assert.Equal(t, ua, *stored.UserAgent)
}

func TestSQLiteEnforcesSingleActivePrice(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, Run(conn, db.DialectSQLite))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row := func(active bool) *pricedomain.ModelPriceConfig {
		return &pricedomain.ModelPriceConfig{
			ID:              node.Generate(),
			ModelName:       "gpt-4",
			InputPricePerK:  decimal.RequireFromString("0.03"),
			OutputPricePerK: decimal.RequireFromString("0.06"),
			ServiceType:     pricedomain.ServiceTypeAIModel,
			IsActive:        active,
			CreatedBy:       "test",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	require.NoError(t, conn.Create(row(false)).Error)
	require.NoError(t, conn.Create(row(false)).Error)
	require.NoError(t, conn.Create(row(true)).Error)
	assert.Error(t, conn.Create(row(true)).Error)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
}
