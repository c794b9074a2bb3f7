package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/tokenledger/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, credit_balance, version, created_at, updated_at
		 FROM accounts WHERE user_id = ?`,
		userID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.UserID == "" {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) EnsureAccount(ctx context.Context, db *gorm.DB, userID string, now time.Time) error {
	account := domain.Account{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account).Error
}

func (r *repo) Debit(ctx context.Context, db *gorm.DB, userID string, amount, version int64, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credit_balance = credit_balance - ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND credit_balance >= ? AND version = ?`,
		amount, now, userID, amount, version,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, userID string, amount, version int64, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credit_balance = credit_balance + ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		amount, now, userID, version,
	)
	return result.RowsAffected, result.Error
}
