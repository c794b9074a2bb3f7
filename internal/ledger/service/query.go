package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/tokenledger/internal/account/domain"
	billingrecorddomain "github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	ratingdomain "github.com/smallbiznis/tokenledger/internal/rating/domain"
	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
)

func (s *Service) EstimateCost(ctx context.Context, modelName string, estInputTokens, estOutputTokens int64) (ratingdomain.CostCalculation, error) {
	return s.rating.Calculate(ctx, modelName, estInputTokens, estOutputTokens, false)
}

func (s *Service) EstimateFromText(ctx context.Context, modelName, prompt string, estOutputTokens int64) (ratingdomain.CostCalculation, error) {
	inputTokens := s.tokens.CountTokens(modelName, prompt)
	return s.EstimateCost(ctx, modelName, inputTokens, estOutputTokens)
}

func (s *Service) CheckBalance(ctx context.Context, userID string, requiredCredits int64) (accountdomain.BalanceValidation, error) {
	return s.accounts.Validate(ctx, userID, requiredCredits)
}

func (s *Service) GetBalance(ctx context.Context, userID string) (accountdomain.Balance, error) {
	return s.accounts.GetBalance(ctx, userID)
}

func (s *Service) ListEntries(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return ledgerdomain.ListEntriesResponse{}, accountdomain.ErrInvalidUserID
	}

	filter := ledgerdomain.ListFilter{UserID: userID}
	switch ledgerdomain.Status(strings.ToLower(strings.TrimSpace(req.Status))) {
	case "":
	case ledgerdomain.StatusAccepted:
		filter.Status = ledgerdomain.StatusAccepted
	case ledgerdomain.StatusRejected:
		filter.Status = ledgerdomain.StatusRejected
	default:
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidStatus
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil || id <= 0 {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		filter.BeforeID = id
	}

	pageSize := pagination.NormalizePageSize(req.PageSize)
	filter.Limit = pageSize

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *ledgerdomain.LedgerEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: strconv.FormatInt(item.ID.Int64(), 10)})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	entries := make([]ledgerdomain.LedgerEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, *item)
	}
	return ledgerdomain.ListEntriesResponse{PageInfo: *pageInfo, Entries: entries}, nil
}

func (s *Service) GetEntry(ctx context.Context, id string) (*ledgerdomain.LedgerEntry, error) {
	entryID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || entryID <= 0 {
		return nil, ledgerdomain.ErrInvalidEntryID
	}
	entry, err := s.repo.FindByID(ctx, s.db, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ledgerdomain.ErrEntryNotFound
	}
	return entry, nil
}

func (s *Service) ListBillingRecords(ctx context.Context, req billingrecorddomain.ListRequest) (billingrecorddomain.ListResponse, error) {
	return s.billing.List(ctx, req)
}
