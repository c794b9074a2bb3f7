package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
)

const (
	ActionModelPriceSet   = "model_price.set"
	ActionExchangeRateSet = "exchange_rate.set"
	ActionCreditGrant     = "account.credit"
	ActionAPIKeyCreate    = "api_key.create"
	ActionAPIKeyRevoke    = "api_key.revoke"

	ActionAuthorizationDenied = "authorization.denied"
)

const (
	TargetModelPrice    = "model_price_config"
	TargetExchangeRate  = "exchange_rate"
	TargetAccount       = "account"
	TargetAPIKey        = "api_key"
	TargetAuthorization = "authorization"
)

// Event describes one admin mutation. The actor is read from the request
// context unless ActorType is set.
type Event struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any

	ActorType ActorType
	ActorID   string
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
