package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Store serves pricing decisions from an immutable, periodically refreshed snapshot.
type Store interface {
	GetActiveConfigs(ctx context.Context) ([]ModelPriceConfig, error)
	GetConfig(ctx context.Context, modelName string) (ModelPriceConfig, error)
	GetCurrentExchangeRate(ctx context.Context) (decimal.Decimal, error)
	RefreshIfStale(ctx context.Context) error
	Snapshot(ctx context.Context) (*Snapshot, error)
	Resolve(ctx context.Context, modelName string, allowAutoCreate bool) (ModelPriceConfig, error)
	SetModelPrice(ctx context.Context, req SetModelPriceRequest) (*ModelPriceConfig, error)
	ListVersions(ctx context.Context, modelName string) ([]ModelPriceConfig, error)
	SeedCatalog(ctx context.Context, entries []CatalogEntry) (int, error)
	Invalidate()
}

// Snapshot is never mutated after it is published.
type Snapshot struct {
	Configs      map[string]ModelPriceConfig
	ExchangeRate decimal.Decimal
	HasRate      bool
	LoadedAt     time.Time
}

func (s *Snapshot) Lookup(modelName string) (ModelPriceConfig, bool) {
	if s == nil {
		return ModelPriceConfig{}, false
	}
	cfg, ok := s.Configs[NormalizeModelName(modelName)]
	return cfg, ok
}

type SetModelPriceRequest struct {
	ModelName       string          `json:"model_name"`
	InputPricePerK  decimal.Decimal `json:"input_price_per_k"`
	OutputPricePerK decimal.Decimal `json:"output_price_per_k"`
	ServiceType     ServiceType     `json:"service_type"`
	Actor           string          `json:"-"`
}

// CatalogEntry is one model in the YAML seed catalog.
type CatalogEntry struct {
	ModelName       string `yaml:"model"`
	InputPricePerK  string `yaml:"input_price_per_k"`
	OutputPricePerK string `yaml:"output_price_per_k"`
	ServiceType     string `yaml:"service_type"`
}

var (
	ErrUnknownModel       = errors.New("unknown_model")
	ErrConfigUnavailable  = errors.New("pricing_config_unavailable")
	ErrInvalidModelName   = errors.New("invalid_model_name")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrInvalidServiceType = errors.New("invalid_service_type")
)
