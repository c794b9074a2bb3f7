package domain

import (
	"context"
	"errors"

	accountdomain "github.com/smallbiznis/tokenledger/internal/account/domain"
	billingrecorddomain "github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	usagedomain "github.com/smallbiznis/tokenledger/internal/usage/domain"
	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
)

type State string

const (
	StateCompleted State = "completed"
	StateRejected  State = "rejected"
)

// UsageResult is the terminal state of one usage event.
type UsageResult struct {
	State        State                            `json:"state"`
	Reason       RejectReason                     `json:"reason,omitempty"`
	Duplicate    bool                             `json:"duplicate"`
	Entry        *LedgerEntry                     `json:"entry,omitempty"`
	Calculation  *ratingdomain.CostCalculation    `json:"calculation,omitempty"`
	Warnings     []string                         `json:"warnings,omitempty"`
	BalanceAfter int64                            `json:"balance_after"`
	Validation   *accountdomain.BalanceValidation `json:"validation,omitempty"`
}

type CreditRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
	Actor       string `json:"-"`
}

type CreditResult struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	// Applied is false when the reference had already been credited.
	Applied bool `json:"applied"`
}

type ListEntriesRequest struct {
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	PageToken string `json:"page_token"`
	PageSize  int    `json:"page_size"`
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

type Service interface {
	ProcessUsageEvent(ctx context.Context, event usagedomain.UsageEvent) (*UsageResult, error)
	Credit(ctx context.Context, req CreditRequest) (*CreditResult, error)

	// EstimateCost never creates prices for unknown models.
	EstimateCost(ctx context.Context, modelName string, estInputTokens, estOutputTokens int64) (ratingdomain.CostCalculation, error)
	EstimateFromText(ctx context.Context, modelName, prompt string, estOutputTokens int64) (ratingdomain.CostCalculation, error)
	CheckBalance(ctx context.Context, userID string, requiredCredits int64) (accountdomain.BalanceValidation, error)
	GetBalance(ctx context.Context, userID string) (accountdomain.Balance, error)

	ListEntries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	GetEntry(ctx context.Context, id string) (*LedgerEntry, error)
	ListBillingRecords(ctx context.Context, req billingrecorddomain.ListRequest) (billingrecorddomain.ListResponse, error)
}

var (
	// ErrDuplicateEvent is never returned; duplicates surface as UsageResult.Duplicate.
	ErrDuplicateEvent   = errors.New("duplicate_event")
	ErrConcurrentUpdate = errors.New("concurrent_update")
	ErrEntryNotFound    = errors.New("ledger_entry_not_found")
	ErrInvalidEntryID   = errors.New("invalid_ledger_entry_id")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidReference = errors.New("invalid_reference")
	ErrBalanceOverflow  = errors.New("balance_overflow")
)
