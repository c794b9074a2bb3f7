package repository

import (
	"context"
	"time"

	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	"gorm.io/gorm"
)

const selectColumns = `id, model_name, input_price_per_k, output_price_per_k, service_type,
	 is_active, auto_created, created_by, created_at, updated_at`

type repo struct{}

func Provide() pricedomain.Repository {
	return &repo{}
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]pricedomain.ModelPriceConfig, error) {
	var items []pricedomain.ModelPriceConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM model_price_configs WHERE is_active = ? ORDER BY model_name ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, modelName string) (*pricedomain.ModelPriceConfig, error) {
	var item pricedomain.ModelPriceConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM model_price_configs WHERE model_name = ? AND is_active = ? LIMIT 1`,
		modelName,
		true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListVersions(ctx context.Context, db *gorm.DB, modelName string) ([]pricedomain.ModelPriceConfig, error) {
	var items []pricedomain.ModelPriceConfig
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+` FROM model_price_configs WHERE model_name = ? ORDER BY created_at DESC, id DESC`,
		modelName,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, modelName string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE model_price_configs SET is_active = ?, updated_at = ? WHERE model_name = ? AND is_active = ?`,
		false,
		at,
		modelName,
		true,
	).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cfg *pricedomain.ModelPriceConfig) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO model_price_configs (
			id, model_name, input_price_per_k, output_price_per_k, service_type,
			is_active, auto_created, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID,
		cfg.ModelName,
		cfg.InputPricePerK,
		cfg.OutputPricePerK,
		cfg.ServiceType,
		cfg.IsActive,
		cfg.AutoCreated,
		cfg.CreatedBy,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	).Error
}

// ActiveModelIndexDDL enforces a single active price per model. AutoMigrate
// cannot express partial indexes, so migrations apply it explicitly.
const ActiveModelIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS ux_model_price_configs_active
	ON model_price_configs (model_name) WHERE is_active`
