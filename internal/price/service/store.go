package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/config"
	exchangeratedomain "github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	"github.com/smallbiznis/tokenledger/internal/observability/metrics"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	"github.com/smallbiznis/tokenledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	defaultSnapshotTTL = 5 * time.Minute
	refreshTimeout     = 10 * time.Second
	createdByCatalog   = "system:catalog"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Metering *config.MeteringConfigHolder
	Repo     pricedomain.Repository
	RateRepo exchangeratedomain.Repository
	Metrics  *metrics.Metrics    `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type cachedSnapshot struct {
	snapshot   *pricedomain.Snapshot
	generation uint64
}

// Store keeps an immutable pricing snapshot behind an atomic pointer.
// Readers never block on a refresh when a snapshot already exists.
type Store struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	metering *config.MeteringConfigHolder
	repo     pricedomain.Repository
	rateRepo exchangeratedomain.Repository
	metrics  *metrics.Metrics
	auditSvc auditdomain.Service
	ttl      time.Duration

	current    atomic.Pointer[cachedSnapshot]
	generation atomic.Uint64
	refreshes  singleflight.Group
}

func New(p Params) *Store {
	ttl := p.Config.Pricing.SnapshotTTL
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &Store{
		db:       p.DB,
		log:      p.Log.Named("price.store"),
		genID:    p.GenID,
		clock:    p.Clock,
		metering: p.Metering,
		repo:     p.Repo,
		rateRepo: p.RateRepo,
		metrics:  p.Metrics,
		auditSvc: p.AuditSvc,
		ttl:      ttl,
	}
}

// Invalidate forces the next read to reload from the database.
func (s *Store) Invalidate() {
	s.generation.Add(1)
}

func (s *Store) OnExchangeRateChanged(rate decimal.Decimal) {
	s.log.Debug("exchange rate changed, invalidating pricing snapshot", zap.String("rate", rate.String()))
	s.Invalidate()
}

func (s *Store) isFresh(cached *cachedSnapshot) bool {
	if cached == nil || cached.snapshot == nil {
		return false
	}
	if cached.generation != s.generation.Load() {
		return false
	}
	return s.clock.Now().Sub(cached.snapshot.LoadedAt) < s.ttl
}

func (s *Store) RefreshIfStale(ctx context.Context) error {
	cached := s.current.Load()
	if s.isFresh(cached) {
		return nil
	}

	_, err, _ := s.refreshes.Do("refresh", func() (any, error) {
		if latest := s.current.Load(); s.isFresh(latest) {
			return nil, nil
		}
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, s.refresh(refreshCtx)
	})
	if err == nil {
		s.metrics.RecordPricingRefresh(ctx, "ok")
		return nil
	}

	if cached != nil && cached.snapshot != nil {
		s.metrics.RecordPricingRefresh(ctx, "stale")
		s.log.Warn("pricing refresh failed, serving stale snapshot",
			zap.Time("loaded_at", cached.snapshot.LoadedAt),
			zap.Error(err),
		)
		return nil
	}
	s.metrics.RecordPricingRefresh(ctx, "error")
	return fmt.Errorf("%w: %v", pricedomain.ErrConfigUnavailable, err)
}

func (s *Store) refresh(ctx context.Context) error {
	generation := s.generation.Load()

	configs, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return fmt.Errorf("load model prices: %w", err)
	}
	rate, err := s.rateRepo.FindActive(ctx, s.db)
	if err != nil {
		return fmt.Errorf("load exchange rate: %w", err)
	}

	snapshot := &pricedomain.Snapshot{
		Configs:  make(map[string]pricedomain.ModelPriceConfig, len(configs)),
		LoadedAt: s.clock.Now(),
	}
	for _, cfg := range configs {
		snapshot.Configs[pricedomain.NormalizeModelName(cfg.ModelName)] = cfg
	}
	if rate != nil {
		snapshot.ExchangeRate = rate.CreditsPerUnit
		snapshot.HasRate = true
	}

	s.current.Store(&cachedSnapshot{snapshot: snapshot, generation: generation})
	s.log.Debug("pricing snapshot refreshed",
		zap.Int("models", len(configs)),
		zap.Bool("has_rate", snapshot.HasRate),
	)
	return nil
}

func (s *Store) Snapshot(ctx context.Context) (*pricedomain.Snapshot, error) {
	if err := s.RefreshIfStale(ctx); err != nil {
		return nil, err
	}
	cached := s.current.Load()
	if cached == nil || cached.snapshot == nil {
		return nil, pricedomain.ErrConfigUnavailable
	}
	return cached.snapshot, nil
}

func (s *Store) GetActiveConfigs(ctx context.Context) ([]pricedomain.ModelPriceConfig, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]pricedomain.ModelPriceConfig, 0, len(snapshot.Configs))
	for _, cfg := range snapshot.Configs {
		out = append(out, cfg)
	}
	sortByModelName(out)
	return out, nil
}

func (s *Store) GetConfig(ctx context.Context, modelName string) (pricedomain.ModelPriceConfig, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return pricedomain.ModelPriceConfig{}, err
	}
	cfg, ok := snapshot.Lookup(modelName)
	if !ok {
		return pricedomain.ModelPriceConfig{}, fmt.Errorf("%w: %s", pricedomain.ErrUnknownModel, pricedomain.NormalizeModelName(modelName))
	}
	return cfg, nil
}

func (s *Store) GetCurrentExchangeRate(ctx context.Context) (decimal.Decimal, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !snapshot.HasRate {
		return decimal.Zero, fmt.Errorf("%w: %w", pricedomain.ErrConfigUnavailable, exchangeratedomain.ErrNoActiveRate)
	}
	return snapshot.ExchangeRate, nil
}

// Resolve returns the active price for modelName. A snapshot miss falls
// through to the database before any heuristic price is created, so a model
// priced on another instance is never priced twice.
func (s *Store) Resolve(ctx context.Context, modelName string, allowAutoCreate bool) (pricedomain.ModelPriceConfig, error) {
	name := pricedomain.NormalizeModelName(modelName)
	if name == "" {
		return pricedomain.ModelPriceConfig{}, pricedomain.ErrInvalidModelName
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return pricedomain.ModelPriceConfig{}, err
	}
	if cfg, ok := snapshot.Lookup(name); ok {
		return cfg, nil
	}

	persisted, err := s.repo.FindActive(ctx, s.db, name)
	if err != nil {
		return pricedomain.ModelPriceConfig{}, fmt.Errorf("%w: %v", pricedomain.ErrConfigUnavailable, err)
	}
	if persisted != nil {
		s.Invalidate()
		return *persisted, nil
	}

	unknown := fmt.Errorf("%w: %s", pricedomain.ErrUnknownModel, name)
	if !allowAutoCreate {
		return pricedomain.ModelPriceConfig{}, unknown
	}
	metering := s.metering.Get()
	if !metering.AutoCreate {
		return pricedomain.ModelPriceConfig{}, unknown
	}
	tier, ok := metering.MatchHeuristic(name)
	if !ok {
		return pricedomain.ModelPriceConfig{}, unknown
	}

	return s.autoCreate(ctx, name, tier)
}

func (s *Store) autoCreate(ctx context.Context, name string, tier config.PriceTier) (pricedomain.ModelPriceConfig, error) {
	input, output, err := tier.Prices()
	if err != nil {
		return pricedomain.ModelPriceConfig{}, fmt.Errorf("%w: %v", pricedomain.ErrConfigUnavailable, err)
	}

	now := s.clock.Now()
	cfg := &pricedomain.ModelPriceConfig{
		ID:              s.genID.Generate(),
		ModelName:       name,
		InputPricePerK:  input,
		OutputPricePerK: output,
		ServiceType:     serviceTypeOrDefault(tier.ServiceType),
		IsActive:        true,
		AutoCreated:     true,
		CreatedBy:       pricedomain.CreatedByHeuristic,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, cfg); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return pricedomain.ModelPriceConfig{}, err
		}
		// Another writer created it first; use theirs.
		existing, findErr := s.repo.FindActive(ctx, s.db, name)
		if findErr != nil {
			return pricedomain.ModelPriceConfig{}, findErr
		}
		if existing == nil {
			return pricedomain.ModelPriceConfig{}, err
		}
		s.Invalidate()
		return *existing, nil
	}

	s.Invalidate()
	s.log.Info("auto-created model price from heuristic",
		zap.String("model_name", name),
		zap.String("input_price_per_k", input.String()),
		zap.String("output_price_per_k", output.String()),
	)
	if s.auditSvc != nil {
		_ = s.auditSvc.Record(ctx, auditdomain.Event{
			Action:     auditdomain.ActionModelPriceSet,
			TargetType: auditdomain.TargetModelPrice,
			TargetID:   cfg.ID.String(),
			ActorType:  auditdomain.ActorTypeSystem,
			ActorID:    pricedomain.CreatedByHeuristic,
			Metadata: map[string]any{
				"model_name":         name,
				"input_price_per_k":  input.String(),
				"output_price_per_k": output.String(),
				"service_type":       string(cfg.ServiceType),
				"auto_created":       true,
			},
		})
	}
	return *cfg, nil
}

// SetModelPrice deactivates the current version and inserts a new active one.
func (s *Store) SetModelPrice(ctx context.Context, req pricedomain.SetModelPriceRequest) (*pricedomain.ModelPriceConfig, error) {
	name := pricedomain.NormalizeModelName(req.ModelName)
	if name == "" {
		return nil, pricedomain.ErrInvalidModelName
	}
	if req.InputPricePerK.IsNegative() || req.OutputPricePerK.IsNegative() {
		return nil, pricedomain.ErrInvalidPrice
	}
	serviceType := req.ServiceType
	if serviceType == "" {
		serviceType = pricedomain.ServiceTypeAIModel
	}
	if !serviceType.Valid() {
		return nil, pricedomain.ErrInvalidServiceType
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "unknown"
	}

	now := s.clock.Now()
	cfg := &pricedomain.ModelPriceConfig{
		ID:              s.genID.Generate(),
		ModelName:       name,
		InputPricePerK:  req.InputPricePerK,
		OutputPricePerK: req.OutputPricePerK,
		ServiceType:     serviceType,
		IsActive:        true,
		CreatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Deactivate(ctx, tx, name, now); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, cfg)
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate()

	s.log.Info("model price set",
		zap.String("model_name", name),
		zap.String("input_price_per_k", cfg.InputPricePerK.String()),
		zap.String("output_price_per_k", cfg.OutputPricePerK.String()),
		zap.String("created_by", actor),
	)

	if s.auditSvc != nil {
		_ = s.auditSvc.Record(ctx, auditdomain.Event{
			Action:     auditdomain.ActionModelPriceSet,
			TargetType: auditdomain.TargetModelPrice,
			TargetID:   cfg.ID.String(),
			Metadata: map[string]any{
				"model_name":         name,
				"input_price_per_k":  cfg.InputPricePerK.String(),
				"output_price_per_k": cfg.OutputPricePerK.String(),
				"service_type":       string(serviceType),
			},
		})
	}

	return cfg, nil
}

func (s *Store) ListVersions(ctx context.Context, modelName string) ([]pricedomain.ModelPriceConfig, error) {
	name := pricedomain.NormalizeModelName(modelName)
	if name == "" {
		return nil, pricedomain.ErrInvalidModelName
	}
	return s.repo.ListVersions(ctx, s.db, name)
}

// SeedCatalog inserts catalog prices for models that have no active price yet.
func (s *Store) SeedCatalog(ctx context.Context, entries []pricedomain.CatalogEntry) (int, error) {
	inserted := 0
	for _, entry := range entries {
		name := pricedomain.NormalizeModelName(entry.ModelName)
		if name == "" {
			return inserted, pricedomain.ErrInvalidModelName
		}
		input, output, err := config.PriceTier{
			InputPricePerK:  entry.InputPricePerK,
			OutputPricePerK: entry.OutputPricePerK,
		}.Prices()
		if err != nil {
			return inserted, fmt.Errorf("%w: %s: %v", pricedomain.ErrInvalidPrice, name, err)
		}

		existing, err := s.repo.FindActive(ctx, s.db, name)
		if err != nil {
			return inserted, err
		}
		if existing != nil {
			continue
		}

		now := s.clock.Now()
		err = s.repo.Insert(ctx, s.db, &pricedomain.ModelPriceConfig{
			ID:              s.genID.Generate(),
			ModelName:       name,
			InputPricePerK:  input,
			OutputPricePerK: output,
			ServiceType:     serviceTypeOrDefault(entry.ServiceType),
			IsActive:        true,
			CreatedBy:       createdByCatalog,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	if inserted > 0 {
		s.Invalidate()
	}
	return inserted, nil
}

func serviceTypeOrDefault(raw string) pricedomain.ServiceType {
	st := pricedomain.ServiceType(strings.ToLower(strings.TrimSpace(raw)))
	if st.Valid() {
		return st
	}
	return pricedomain.ServiceTypeAIModel
}

var _ pricedomain.Store = (*Store)(nil)
var _ exchangeratedomain.RateChangeListener = (*Store)(nil)
