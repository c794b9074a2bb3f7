package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/observability/metrics"
	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Queue   *RetryQueue
	Metrics *metrics.Metrics       `optional:"true"`
	Worker  *metrics.WorkerMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	queue   *RetryQueue
	metrics *metrics.Metrics
	worker  *metrics.WorkerMetrics
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("billingrecord.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		queue:   p.Queue,
		metrics: p.Metrics,
		worker:  p.Worker,
	}
}

func (s *Service) RecordUsage(ctx context.Context, req domain.UsageRecordRequest) error {
	if err := s.writeUsage(ctx, req); err != nil {
		if s.queue.Enqueue(req, s.clock.Now()) {
			s.metrics.RecordBillingRetry(ctx, "queued")
		} else {
			s.metrics.RecordBillingRetry(ctx, "dropped")
		}
		s.worker.SetQueueDepth(metrics.JobBillingRetry, s.queue.Len())
		return err
	}
	return nil
}

func (s *Service) writeUsage(ctx context.Context, req domain.UsageRecordRequest) error {
	entryID := req.LedgerEntryID
	description := "usage"
	if model := strings.TrimSpace(req.ModelName); model != "" {
		description = fmt.Sprintf("usage: %s", model)
	}
	record := &domain.BillingRecord{
		ID:             s.genID.Generate(),
		UserID:         req.UserID,
		LedgerEntryID:  &entryID,
		Type:           domain.RecordTypeUsage,
		Amount:         req.Amount,
		Description:    description,
		Status:         domain.StatusCompleted,
		IdempotencyKey: domain.UsageKey(entryID),
		CreatedAt:      s.clock.Now(),
	}
	_, err := s.repo.Insert(ctx, s.db, record)
	return err
}

func (s *Service) RecordChargeTx(ctx context.Context, tx *gorm.DB, req domain.ChargeRecordRequest) (bool, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return false, domain.ErrInvalidUserID
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return false, domain.ErrInvalidReference
	}
	if req.Amount <= 0 {
		return false, domain.ErrInvalidAmount
	}

	record := &domain.BillingRecord{
		ID:             s.genID.Generate(),
		UserID:         userID,
		Type:           domain.RecordTypeCharge,
		Amount:         req.Amount,
		Description:    strings.TrimSpace(req.Description),
		Status:         domain.StatusCompleted,
		IdempotencyKey: domain.ChargeKey(reference),
		CreatedAt:      s.clock.Now(),
	}
	return s.repo.Insert(ctx, tx, record)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.ListResponse{}, domain.ErrInvalidUserID
	}

	filter := domain.ListFilter{UserID: userID}
	switch domain.RecordType(strings.TrimSpace(req.Type)) {
	case "":
	case domain.RecordTypeUsage:
		filter.Type = domain.RecordTypeUsage
	case domain.RecordTypeCharge:
		filter.Type = domain.RecordTypeCharge
	default:
		return domain.ListResponse{}, domain.ErrInvalidType
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil || id <= 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.BeforeID = id
	}

	pageSize := pagination.NormalizePageSize(req.PageSize)
	filter.Limit = pageSize

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.BillingRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: strconv.FormatInt(item.ID.Int64(), 10)})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	records := make([]domain.BillingRecord, 0, len(items))
	for _, item := range items {
		records = append(records, *item)
	}
	return domain.ListResponse{PageInfo: *pageInfo, BillingRecords: records}, nil
}
