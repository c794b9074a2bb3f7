package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.BillingRecord) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.BillingRecord, error) {
	var record domain.BillingRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, ledger_entry_id, type, amount, description, status, idempotency_key, created_at
		 FROM billing_records WHERE idempotency_key = ?`,
		key,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.BillingRecord, error) {
	var records []*domain.BillingRecord
	stmt := db.WithContext(ctx).Model(&domain.BillingRecord{})

	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		stmt = stmt.Where("user_id = ?", userID)
	}
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.BeforeID != 0 {
		stmt = stmt.Where("id < ?", filter.BeforeID)
	}

	stmt = stmt.Order("id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) ListUnbilled(ctx context.Context, db *gorm.DB, limit int) ([]domain.UnbilledEntry, error) {
	var rows []domain.UnbilledEntry
	err := db.WithContext(ctx).Raw(
		`SELECT le.id, le.user_id, le.model_name, le.total_credits
		 FROM ledger_entries le
		 LEFT JOIN billing_records br ON br.ledger_entry_id = le.id AND br.type = ?
		 WHERE le.status = ? AND br.id IS NULL
		 ORDER BY le.id
		 LIMIT ?`,
		domain.RecordTypeUsage,
		"accepted",
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
