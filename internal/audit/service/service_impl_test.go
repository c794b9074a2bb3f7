package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/audit/repository"
	"github.com/smallbiznis/tokenledger/internal/clock"
	obscontext "github.com/smallbiznis/tokenledger/internal/observability/context"
	"github.com/smallbiznis/tokenledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	}), fake
}

func TestRecordUsesContextActorAndMasksSecrets(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithActor(context.Background(), "api_key", "123")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	err := svc.Record(ctx, auditdomain.Event{
		Action:     auditdomain.ActionAPIKeyCreate,
		TargetType: auditdomain.TargetAPIKey,
		TargetID:   "k-1",
		Metadata: map[string]any{
			"role":    "reporter",
			"api_key": "tl_abcdefghijkl",
		},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "api_key", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "123", *entry.ActorID)
	assert.Equal(t, "tl_****ijkl", entry.Metadata["api_key"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "k-1", *entry.TargetID)
}

func TestRecordDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithActor(context.Background(), "api_key", "123")

	err := svc.Record(context.Background(), auditdomain.Event{Action: " "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	require.NoError(t, svc.Record(ctx, auditdomain.Event{
		Action:    auditdomain.ActionExchangeRateSet,
		ActorType: auditdomain.ActorTypeCLI,
		ActorID:   "ops",
	}))
	require.NoError(t, svc.Record(context.Background(), auditdomain.Event{Action: auditdomain.ActionCreditGrant}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	byAction := map[string]auditdomain.AuditLog{}
	for _, entry := range resp.AuditLogs {
		byAction[entry.Action] = entry
	}

	explicit := byAction[auditdomain.ActionExchangeRateSet]
	assert.Equal(t, "cli", explicit.ActorType)
	require.NotNil(t, explicit.ActorID)
	assert.Equal(t, "ops", *explicit.ActorID)
	assert.Equal(t, "unknown", explicit.TargetType)

	anonymous := byAction[auditdomain.ActionCreditGrant]
	assert.Equal(t, "system", anonymous.ActorType)
	assert.Nil(t, anonymous.ActorID)
	assert.Nil(t, anonymous.TargetID)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, auditdomain.Event{Action: auditdomain.ActionExchangeRateSet, TargetType: auditdomain.TargetExchangeRate}))
		fake.Advance(time.Second)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[2].CreatedAt))

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	page, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	require.True(t, page.HasMore)

	req.PageToken = page.NextPageToken
	rest, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, rest.AuditLogs, 1)
	assert.False(t, rest.HasMore)
}

func TestListRejectsInvalidRange(t *testing.T) {
	svc, _ := newTestService(t)
	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}

func TestListFiltersAndRejectsBadToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, auditdomain.Event{Action: auditdomain.ActionCreditGrant, TargetType: auditdomain.TargetAccount, TargetID: "u1"}))
	require.NoError(t, svc.Record(ctx, auditdomain.Event{Action: auditdomain.ActionCreditGrant, TargetType: auditdomain.TargetAccount, TargetID: "u2"}))
	require.NoError(t, svc.Record(ctx, auditdomain.Event{Action: auditdomain.ActionAPIKeyRevoke, TargetType: auditdomain.TargetAPIKey, TargetID: "k1"}))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: auditdomain.ActionCreditGrant, TargetID: "u2"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "u2", *resp.AuditLogs[0].TargetID)

	req := auditdomain.ListAuditLogRequest{}
	req.PageToken = "not-a-cursor"
	_, err = svc.List(ctx, req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
