package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const systemActor = "system:bootstrap"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	AuditSvc  auditdomain.Service         `optional:"true"`
	Listeners []domain.RateChangeListener `group:"exchange_rate_listeners"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	auditSvc  auditdomain.Service
	listeners []domain.RateChangeListener
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("exchangerate.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		auditSvc:  p.AuditSvc,
		listeners: p.Listeners,
	}
}

func (s *Service) GetCurrent(ctx context.Context) (*domain.ExchangeRate, error) {
	rate, err := s.repo.FindActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, domain.ErrNoActiveRate
	}
	return rate, nil
}

// SetNew replaces the active rate and appends a history row in one transaction.
// Existing ledger entries keep the rate they captured.
func (s *Service) SetNew(ctx context.Context, req domain.SetRateRequest) (*domain.ExchangeRate, error) {
	if !req.CreditsPerUnit.IsPositive() {
		return nil, domain.ErrInvalidRate
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "unknown"
	}

	now := s.clock.Now()
	next := &domain.ExchangeRate{
		ID:             s.genID.Generate(),
		CreditsPerUnit: req.CreditsPerUnit,
		IsActive:       true,
		EffectiveFrom:  now,
		CreatedBy:      actor,
		CreatedAt:      now,
	}

	var previous *domain.ExchangeRate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindActive(ctx, tx)
		if err != nil {
			return err
		}
		previous = current

		if err := s.repo.DeactivateAll(ctx, tx); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		entry := &domain.HistoryEntry{
			ID:        s.genID.Generate(),
			NewRate:   req.CreditsPerUnit,
			Reason:    strings.TrimSpace(req.Reason),
			ChangedBy: actor,
			CreatedAt: now,
		}
		if current != nil {
			entry.OldRate = decimal.NewNullDecimal(current.CreditsPerUnit)
		}
		return s.repo.InsertHistory(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("new_rate", next.CreditsPerUnit.String()),
		zap.String("changed_by", actor),
	}
	if previous != nil {
		fields = append(fields, zap.String("old_rate", previous.CreditsPerUnit.String()))
	}
	s.log.Info("exchange rate changed", fields...)

	for _, listener := range s.listeners {
		if listener != nil {
			listener.OnExchangeRateChanged(next.CreditsPerUnit)
		}
	}

	if s.auditSvc != nil && actor != systemActor {
		targetID := next.ID.String()
		metadata := map[string]any{
			"credits_per_unit": next.CreditsPerUnit.String(),
			"reason":           strings.TrimSpace(req.Reason),
		}
		if previous != nil {
			metadata["previous_credits_per_unit"] = previous.CreditsPerUnit.String()
		}
		_ = s.auditSvc.Record(ctx, auditdomain.Event{
			Action:     auditdomain.ActionExchangeRateSet,
			TargetType: auditdomain.TargetExchangeRate,
			TargetID:   targetID,
			Metadata:   metadata,
		})
	}

	return next, nil
}

func (s *Service) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListHistory(ctx, s.db, limit)
}

// EnsureBootstrap installs rate when no active rate exists yet.
func (s *Service) EnsureBootstrap(ctx context.Context, rate decimal.Decimal) error {
	current, err := s.repo.FindActive(ctx, s.db)
	if err != nil {
		return err
	}
	if current != nil {
		return nil
	}
	_, err = s.SetNew(ctx, domain.SetRateRequest{
		CreditsPerUnit: rate,
		Reason:         "bootstrap",
		Actor:          systemActor,
	})
	return err
}
