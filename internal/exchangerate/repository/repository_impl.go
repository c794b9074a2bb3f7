package repository

import (
	"context"

	"github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	err := db.WithContext(ctx).Raw(
		`SELECT id, credits_per_unit, is_active, effective_from, created_by, created_at
		 FROM exchange_rates WHERE is_active = ? ORDER BY effective_from DESC, id DESC LIMIT 1`,
		true,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repo) DeactivateAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(
		`UPDATE exchange_rates SET is_active = ? WHERE is_active = ?`,
		false, true,
	).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *domain.ExchangeRate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO exchange_rates (id, credits_per_unit, is_active, effective_from, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rate.ID,
		rate.CreditsPerUnit,
		rate.IsActive,
		rate.EffectiveFrom,
		rate.CreatedBy,
		rate.CreatedAt,
	).Error
}

func (r *repo) InsertHistory(ctx context.Context, db *gorm.DB, entry *domain.HistoryEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO exchange_rate_history (id, old_rate, new_rate, reason, changed_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OldRate,
		entry.NewRate,
		entry.Reason,
		entry.ChangedBy,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, limit int) ([]domain.HistoryEntry, error) {
	var items []domain.HistoryEntry
	stmt := db.WithContext(ctx).Model(&domain.HistoryEntry{}).Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
