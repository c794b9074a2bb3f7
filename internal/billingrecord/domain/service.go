package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidReference = errors.New("invalid_reference")
	ErrInvalidUserID    = errors.New("invalid_user_id")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidType      = errors.New("invalid_type")
)

type UsageRecordRequest struct {
	UserID        string
	LedgerEntryID snowflake.ID
	ModelName     string
	Amount        int64
}

type ChargeRecordRequest struct {
	UserID      string
	Reference   string
	Amount      int64
	Description string
}

type ListRequest struct {
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	PageToken string `json:"page_token"`
	PageSize  int    `json:"page_size"`
}

type ListResponse struct {
	pagination.PageInfo
	BillingRecords []BillingRecord `json:"billing_records"`
}

type Service interface {
	// RecordUsage writes the usage record for an accepted entry. A failed
	// write is queued for retry and the error returned for logging only.
	RecordUsage(ctx context.Context, req UsageRecordRequest) error
	// RecordChargeTx writes a top-up record inside tx. It reports false when
	// the reference was already recorded.
	RecordChargeTx(ctx context.Context, tx *gorm.DB, req ChargeRecordRequest) (bool, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}
