package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ServiceType string

const (
	ServiceTypeAIModel      ServiceType = "ai_model"
	ServiceTypeDigitalHuman ServiceType = "digital_human"
	ServiceTypeWorkflow     ServiceType = "workflow"
	ServiceTypeCustom       ServiceType = "custom"
)

func (t ServiceType) Valid() bool {
	switch t {
	case ServiceTypeAIModel, ServiceTypeDigitalHuman, ServiceTypeWorkflow, ServiceTypeCustom:
		return true
	default:
		return false
	}
}

const CreatedByHeuristic = "system:heuristic"

// ModelPriceConfig is one price version for a model. Prices are per 1000 tokens.
// At most one row per model name is active; older rows are the version history.
type ModelPriceConfig struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	ModelName       string          `json:"model_name" gorm:"type:varchar(128);not null;index"`
	InputPricePerK  decimal.Decimal `json:"input_price_per_k" gorm:"type:numeric(20,10);not null"`
	OutputPricePerK decimal.Decimal `json:"output_price_per_k" gorm:"type:numeric(20,10);not null"`
	ServiceType     ServiceType     `json:"service_type" gorm:"type:varchar(32);not null"`
	IsActive        bool            `json:"is_active" gorm:"not null;default:false"`
	AutoCreated     bool            `json:"auto_created" gorm:"not null;default:false"`
	CreatedBy       string          `json:"created_by" gorm:"type:varchar(128);not null"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`
}

func (ModelPriceConfig) TableName() string { return "model_price_configs" }

// IsPaid reports whether either direction of the model is billed.
func (c ModelPriceConfig) IsPaid() bool {
	return c.InputPricePerK.IsPositive() || c.OutputPricePerK.IsPositive()
}

// NormalizeModelName is the canonical lookup key for a model.
func NormalizeModelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type Repository interface {
	ListActive(ctx context.Context, db *gorm.DB) ([]ModelPriceConfig, error)
	FindActive(ctx context.Context, db *gorm.DB, modelName string) (*ModelPriceConfig, error)
	ListVersions(ctx context.Context, db *gorm.DB, modelName string) ([]ModelPriceConfig, error)
	Deactivate(ctx context.Context, db *gorm.DB, modelName string, at time.Time) error
	Insert(ctx context.Context, db *gorm.DB, cfg *ModelPriceConfig) error
}
