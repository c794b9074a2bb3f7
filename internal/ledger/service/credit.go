package service

import (
	"context"
	"math"
	"strings"

	accountdomain "github.com/smallbiznis/tokenledger/internal/account/domain"
	"github.com/smallbiznis/tokenledger/internal/account/liveevents"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	billingrecorddomain "github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/observability/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Credit tops up an account. The charge record and the balance change
// commit together; a reference seen before leaves the balance untouched.
func (s *Service) Credit(ctx context.Context, req ledgerdomain.CreditRequest) (*ledgerdomain.CreditResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, accountdomain.ErrInvalidUserID
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, ledgerdomain.ErrInvalidReference
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &ledgerdomain.CreditResult{UserID: userID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := s.accountRepo.EnsureAccount(ctx, tx, userID, now); err != nil {
			return err
		}
		account, err := s.accountRepo.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account == nil {
			return ledgerdomain.ErrConcurrentUpdate
		}

		inserted, err := s.billing.RecordChargeTx(ctx, tx, billingrecorddomain.ChargeRecordRequest{
			UserID:      userID,
			Reference:   reference,
			Amount:      req.Amount,
			Description: req.Description,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.Balance = account.CreditBalance
			return nil
		}

		if account.CreditBalance > math.MaxInt64-req.Amount {
			return ledgerdomain.ErrBalanceOverflow
		}
		updated, err := s.accountRepo.Credit(ctx, tx, userID, req.Amount, account.Version, now)
		if err != nil {
			return err
		}
		if updated == 0 {
			return ledgerdomain.ErrConcurrentUpdate
		}
		result.Balance = account.CreditBalance + req.Amount
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithUser(logger.WithContext(ctx, s.log), userID)
	if !result.Applied {
		log.Info("credit reference already applied", zap.String("reference", reference))
		return result, nil
	}

	s.hub.Publish(liveevents.BalanceChanged{
		UserID:     userID,
		NewBalance: result.Balance,
		Delta:      req.Amount,
		Reason:     liveevents.ReasonCredit,
		OccurredAt: s.clock.Now(),
	})
	s.metrics.RecordCreditsGranted(ctx, req.Amount)

	if s.auditSvc != nil {
		_ = s.auditSvc.Record(ctx, auditdomain.Event{
			Action:     auditdomain.ActionCreditGrant,
			TargetType: auditdomain.TargetAccount,
			TargetID:   userID,
			Metadata: map[string]any{
				"amount":      req.Amount,
				"reference":   reference,
				"new_balance": result.Balance,
				"actor":       strings.TrimSpace(req.Actor),
			},
		})
	}

	log.Info("account credited",
		zap.String("reference", reference),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", result.Balance),
	)
	return result, nil
}
