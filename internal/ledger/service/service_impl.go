package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/tokenledger/internal/account/domain"
	"github.com/smallbiznis/tokenledger/internal/account/liveevents"
	"github.com/smallbiznis/tokenledger/internal/anomaly"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	billingrecorddomain "github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	"github.com/smallbiznis/tokenledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	"github.com/smallbiznis/tokenledger/internal/ratelimit"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	usagedomain "github.com/smallbiznis/tokenledger/internal/usage/domain"
	"github.com/smallbiznis/tokenledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        ledgerdomain.Repository
	AccountRepo accountdomain.Repository
	Accounts    accountdomain.Service
	Rating      ratingdomain.Service
	Tokens      ratingdomain.TokenCounter
	Guard       *anomaly.Guard
	Deduper     usagedomain.Deduper
	Locker      ratelimit.AccountLocker
	Billing     billingrecorddomain.Service
	Hub         *liveevents.Hub     `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        ledgerdomain.Repository
	accountRepo accountdomain.Repository
	accounts    accountdomain.Service
	rating      ratingdomain.Service
	tokens      ratingdomain.TokenCounter
	guard       *anomaly.Guard
	deduper     usagedomain.Deduper
	locker      ratelimit.AccountLocker
	billing     billingrecorddomain.Service
	hub         *liveevents.Hub
	auditSvc    auditdomain.Service
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		accounts:    p.Accounts,
		rating:      p.Rating,
		tokens:      p.Tokens,
		guard:       p.Guard,
		deduper:     p.Deduper,
		locker:      p.Locker,
		billing:     p.Billing,
		hub:         p.Hub,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

const (
	duplicateSourceDeduper = "deduper"
	duplicateSourceLedger  = "ledger"
)

// ProcessUsageEvent prices, guards and deducts one usage event. Every
// rejection returns a result in the rejected state together with the
// underlying error.
func (s *Service) ProcessUsageEvent(ctx context.Context, event usagedomain.UsageEvent) (*ledgerdomain.UsageResult, error) {
	if err := event.Validate(); err != nil {
		s.recordOutcome(ctx, event.ModelName, ledgerdomain.ReasonInvalidEvent)
		return rejectedResult(ledgerdomain.ReasonInvalidEvent), err
	}
	event.UserID = strings.TrimSpace(event.UserID)
	key, _ := event.DedupeKey()
	log := logger.WithUser(logger.WithContext(ctx, s.log), event.UserID).With(zap.String("dedupe_key", key))

	isNew, err := s.deduper.IsNew(ctx, key)
	if err != nil {
		log.Warn("deduper lookup failed, relying on ledger idempotency", zap.Error(err))
		isNew = true
	}
	if !isNew {
		existing, err := s.repo.FindAccepted(ctx, s.db, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.metrics.RecordDuplicate(ctx, duplicateSourceDeduper)
			return duplicateResult(existing), nil
		}
	}

	calc, err := s.rating.Calculate(ctx, event.ModelName, event.InputTokens, event.OutputTokens, !event.StrictPricing)
	if err != nil {
		reason, ok := pricingRejectReason(err)
		if !ok {
			return nil, err
		}
		s.recordOutcome(ctx, event.ModelName, reason)
		log.Info("usage event rejected", zap.String("reason", string(reason)), zap.Error(err))
		return rejectedResult(reason), err
	}

	guard, err := s.guard.Check(calc, anomaly.Hint{PaidTier: event.PaidTier})
	if err != nil {
		if !errors.Is(err, anomaly.ErrCostAnomaly) {
			return nil, err
		}
		return s.rejectAnomaly(ctx, log, event, key, calc, err)
	}
	for _, warning := range guard.Warnings {
		s.metrics.RecordAnomalyWarning(ctx, warning)
		log.Warn("usage event flagged", zap.String("warning", warning), zap.String("model_name", calc.ModelName))
	}

	unlock, err := s.locker.Lock(ctx, event.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result, err := s.deduct(ctx, event, key, calc, guard.Warnings)
	if err != nil {
		return nil, err
	}
	if result.Duplicate {
		s.metrics.RecordDuplicate(ctx, duplicateSourceLedger)
		return result, nil
	}
	if result.State == ledgerdomain.StateRejected {
		s.recordOutcome(ctx, calc.ModelName, result.Reason)
		log.Info("usage event rejected",
			zap.String("reason", string(result.Reason)),
			zap.Int64("required_credits", calc.TotalCredits),
			zap.Int64("balance", result.BalanceAfter),
		)
		return result, accountdomain.ErrInsufficientBalance
	}

	entry := result.Entry
	if err := s.billing.RecordUsage(ctx, billingrecorddomain.UsageRecordRequest{
		UserID:        entry.UserID,
		LedgerEntryID: entry.ID,
		ModelName:     entry.ModelName,
		Amount:        entry.TotalCredits,
	}); err != nil {
		log.Warn("billing record write failed, queued for retry",
			zap.String("ledger_entry_id", entry.ID.String()),
			zap.Error(err),
		)
	}

	if err := s.deduper.MarkProcessed(ctx, key); err != nil {
		log.Warn("failed to mark usage event processed", zap.Error(err))
	}

	s.hub.Publish(liveevents.BalanceChanged{
		UserID:        entry.UserID,
		NewBalance:    entry.BalanceAfter,
		Delta:         -entry.TotalCredits,
		Reason:        liveevents.ReasonUsage,
		LedgerEntryID: entry.ID.String(),
		OccurredAt:    entry.CreatedAt,
	})

	s.metrics.RecordUsageEvent(ctx, calc.ModelName, string(ledgerdomain.StateCompleted))
	s.metrics.RecordCreditsDeducted(ctx, calc.ModelName, calc.TotalCredits)
	log.Debug("usage event deducted",
		zap.String("ledger_entry_id", entry.ID.String()),
		zap.Int64("credits", entry.TotalCredits),
		zap.Int64("balance_after", entry.BalanceAfter),
	)
	return result, nil
}

// errAcceptedConcurrently rolls back a deduction that lost the race for the
// idempotency key.
var errAcceptedConcurrently = errors.New("accepted concurrently")

// deduct runs under the account lock. The balance change and the ledger
// entry commit together.
func (s *Service) deduct(
	ctx context.Context,
	event usagedomain.UsageEvent,
	key string,
	calc ratingdomain.CostCalculation,
	warnings []string,
) (*ledgerdomain.UsageResult, error) {
	var result *ledgerdomain.UsageResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindAccepted(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			result = duplicateResult(existing)
			return nil
		}

		validation, account, err := s.accounts.ValidateTx(ctx, tx, event.UserID, calc.TotalCredits)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		if !validation.HasEnoughBalance {
			entry := s.newEntry(event, key, calc, now)
			entry.Status = ledgerdomain.StatusRejected
			entry.RejectReason = ledgerdomain.ReasonInsufficientBalance
			entry.Warnings = encodeWarnings(warnings)
			entry.BalanceBefore = validation.CurrentBalance
			entry.BalanceAfter = validation.CurrentBalance
			if err := s.repo.Insert(ctx, tx, entry); err != nil {
				return err
			}
			result = &ledgerdomain.UsageResult{
				State:        ledgerdomain.StateRejected,
				Reason:       ledgerdomain.ReasonInsufficientBalance,
				Entry:        entry,
				Calculation:  &calc,
				Warnings:     warnings,
				BalanceAfter: validation.CurrentBalance,
				Validation:   &validation,
			}
			return nil
		}

		var version int64
		if account == nil {
			if err := s.accountRepo.EnsureAccount(ctx, tx, event.UserID, now); err != nil {
				return err
			}
		} else {
			version = account.Version
		}

		updated, err := s.accountRepo.Debit(ctx, tx, event.UserID, calc.TotalCredits, version, now)
		if err != nil {
			if db.IsCheckViolation(err) {
				return accountdomain.ErrInsufficientBalance
			}
			return err
		}
		if updated == 0 {
			return ledgerdomain.ErrConcurrentUpdate
		}

		idempotencyKey := key
		entry := s.newEntry(event, key, calc, now)
		entry.IdempotencyKey = &idempotencyKey
		entry.Status = ledgerdomain.StatusAccepted
		entry.Warnings = encodeWarnings(warnings)
		entry.BalanceBefore = validation.CurrentBalance
		entry.BalanceAfter = validation.CurrentBalance - calc.TotalCredits
		if err := s.repo.Insert(ctx, tx, entry); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errAcceptedConcurrently
			}
			return err
		}

		result = &ledgerdomain.UsageResult{
			State:        ledgerdomain.StateCompleted,
			Entry:        entry,
			Calculation:  &calc,
			Warnings:     warnings,
			BalanceAfter: entry.BalanceAfter,
		}
		return nil
	})
	if errors.Is(err, errAcceptedConcurrently) {
		existing, findErr := s.repo.FindAccepted(ctx, s.db, key)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, ledgerdomain.ErrConcurrentUpdate
		}
		return duplicateResult(existing), nil
	}
	if err != nil {
		return nil, fmt.Errorf("deduct usage: %w", err)
	}
	return result, nil
}

// rejectAnomaly records a rejected entry for audit without touching the balance.
func (s *Service) rejectAnomaly(
	ctx context.Context,
	log *zap.Logger,
	event usagedomain.UsageEvent,
	key string,
	calc ratingdomain.CostCalculation,
	cause error,
) (*ledgerdomain.UsageResult, error) {
	validation, err := s.accounts.Validate(ctx, event.UserID, 0)
	if err != nil {
		return nil, err
	}

	entry := s.newEntry(event, key, calc, s.clock.Now())
	entry.Status = ledgerdomain.StatusRejected
	entry.RejectReason = ledgerdomain.ReasonCostAnomaly
	if reason, ok := anomaly.ReasonOf(cause); ok {
		entry.Warnings = encodeWarnings([]string{reason})
	}
	entry.BalanceBefore = validation.CurrentBalance
	entry.BalanceAfter = validation.CurrentBalance
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		return nil, err
	}

	s.recordOutcome(ctx, calc.ModelName, ledgerdomain.ReasonCostAnomaly)
	log.Warn("usage event rejected as cost anomaly",
		zap.String("model_name", calc.ModelName),
		zap.Int64("total_tokens", calc.TotalTokens),
		zap.Int64("total_credits", calc.TotalCredits),
		zap.Error(cause),
	)
	return &ledgerdomain.UsageResult{
		State:        ledgerdomain.StateRejected,
		Reason:       ledgerdomain.ReasonCostAnomaly,
		Entry:        entry,
		Calculation:  &calc,
		BalanceAfter: validation.CurrentBalance,
	}, cause
}

func (s *Service) newEntry(event usagedomain.UsageEvent, key string, calc ratingdomain.CostCalculation, now time.Time) *ledgerdomain.LedgerEntry {
	entry := &ledgerdomain.LedgerEntry{
		ID:               s.genID.Generate(),
		UserID:           event.UserID,
		DedupeKey:        key,
		ConversationID:   strings.TrimSpace(event.ConversationID),
		MessageID:        strings.TrimSpace(event.MessageID),
		ModelName:        calc.ModelName,
		InputTokens:      calc.InputTokens,
		OutputTokens:     calc.OutputTokens,
		TotalTokens:      calc.TotalTokens,
		InputPricePerK:   calc.InputPricePerK,
		OutputPricePerK:  calc.OutputPricePerK,
		InputCost:        calc.InputCost,
		OutputCost:       calc.OutputCost,
		TotalCost:        calc.TotalCost,
		InputCredits:     calc.InputCredits,
		OutputCredits:    calc.OutputCredits,
		TotalCredits:     calc.TotalCredits,
		ExchangeRateUsed: calc.ExchangeRateUsed,
		ServiceType:      calc.ServiceType,
		PriceAutoCreated: calc.PriceAutoCreated,
		CreatedAt:        now,
	}
	if !event.SourceTimestamp.IsZero() {
		ts := event.SourceTimestamp.UTC()
		entry.SourceTimestamp = &ts
	}
	return entry
}

func (s *Service) recordOutcome(ctx context.Context, modelName string, reason ledgerdomain.RejectReason) {
	s.metrics.RecordUsageEvent(ctx, modelName, string(ledgerdomain.StateRejected))
	s.metrics.RecordRejection(ctx, string(reason))
}

func pricingRejectReason(err error) (ledgerdomain.RejectReason, bool) {
	switch {
	case errors.Is(err, pricedomain.ErrUnknownModel):
		return ledgerdomain.ReasonUnknownModel, true
	case errors.Is(err, ratingdomain.ErrInvalidTokenCount):
		return ledgerdomain.ReasonInvalidTokenCount, true
	case errors.Is(err, pricedomain.ErrConfigUnavailable):
		return ledgerdomain.ReasonConfigUnavailable, true
	case errors.Is(err, pricedomain.ErrInvalidModelName):
		return ledgerdomain.ReasonInvalidEvent, true
	case errors.Is(err, ratingdomain.ErrCreditOverflow):
		return ledgerdomain.ReasonCostAnomaly, true
	default:
		return "", false
	}
}

func rejectedResult(reason ledgerdomain.RejectReason) *ledgerdomain.UsageResult {
	return &ledgerdomain.UsageResult{State: ledgerdomain.StateRejected, Reason: reason}
}

func duplicateResult(entry *ledgerdomain.LedgerEntry) *ledgerdomain.UsageResult {
	return &ledgerdomain.UsageResult{
		State:        ledgerdomain.StateCompleted,
		Duplicate:    true,
		Entry:        entry,
		Warnings:     decodeWarnings(entry.Warnings),
		BalanceAfter: entry.BalanceAfter,
	}
}

func encodeWarnings(warnings []string) datatypes.JSON {
	if len(warnings) == 0 {
		return nil
	}
	raw, err := json.Marshal(warnings)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func decodeWarnings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var warnings []string
	if err := json.Unmarshal(raw, &warnings); err != nil {
		return nil
	}
	return warnings
}
