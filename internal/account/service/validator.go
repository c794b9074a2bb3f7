package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/tokenledger/internal/account/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Validator struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewValidator(p Params) domain.Service {
	return &Validator{
		db:   p.DB,
		log:  p.Log.Named("account.service"),
		repo: p.Repo,
	}
}

func (v *Validator) Validate(ctx context.Context, userID string, requiredCredits int64) (domain.BalanceValidation, error) {
	result, _, err := v.ValidateTx(ctx, v.db, userID, requiredCredits)
	return result, err
}

func (v *Validator) ValidateTx(ctx context.Context, tx *gorm.DB, userID string, requiredCredits int64) (domain.BalanceValidation, *domain.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.BalanceValidation{}, nil, domain.ErrInvalidUserID
	}
	if requiredCredits < 0 {
		return domain.BalanceValidation{}, nil, domain.ErrInvalidAmount
	}

	account, err := v.repo.FindByUserID(ctx, tx, userID)
	if err != nil {
		return domain.BalanceValidation{}, nil, err
	}

	var balance int64
	if account != nil {
		balance = account.CreditBalance
	}
	return domain.Evaluate(userID, balance, requiredCredits), account, nil
}

func (v *Validator) GetBalance(ctx context.Context, userID string) (domain.Balance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Balance{}, domain.ErrInvalidUserID
	}

	account, err := v.repo.FindByUserID(ctx, v.db, userID)
	if err != nil {
		return domain.Balance{}, err
	}
	if account == nil {
		return domain.Balance{UserID: userID}, nil
	}
	return domain.Balance{
		UserID:        account.UserID,
		CreditBalance: account.CreditBalance,
		Version:       account.Version,
	}, nil
}
