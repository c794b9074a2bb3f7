package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	"github.com/smallbiznis/tokenledger/internal/exchangerate/repository"
	"github.com/smallbiznis/tokenledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingListener struct {
	mu    sync.Mutex
	rates []decimal.Decimal
}

func (l *recordingListener) OnExchangeRateChanged(rate decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rates = append(l.rates, rate)
}

func setup(t *testing.T) (domain.Service, *gorm.DB, *recordingListener, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t, &domain.ExchangeRate{}, &domain.HistoryEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	listener := &recordingListener{}
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Repo:      repository.Provide(),
		Listeners: []domain.RateChangeListener{listener},
	})
	return svc, db, listener, fake
}

func TestGetCurrentWithoutRate(t *testing.T) {
	svc, _, _, _ := setup(t)
	_, err := svc.GetCurrent(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoActiveRate)
}

func TestSetNewRejectsNonPositiveRate(t *testing.T) {
	svc, _, listener, _ := setup(t)
	for _, raw := range []string{"0", "-5"} {
		_, err := svc.SetNew(context.Background(), domain.SetRateRequest{
			CreditsPerUnit: decimal.RequireFromString(raw),
			Actor:          "admin",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRate)
	}
	assert.Empty(t, listener.rates)
}

func TestSetNewKeepsSingleActiveRateAndHistory(t *testing.T) {
	svc, db, listener, fake := setup(t)
	ctx := context.Background()

	_, err := svc.SetNew(ctx, domain.SetRateRequest{CreditsPerUnit: decimal.NewFromInt(10000), Actor: "admin", Reason: "launch"})
	require.NoError(t, err)
	fake.Advance(time.Minute)
	_, err = svc.SetNew(ctx, domain.SetRateRequest{CreditsPerUnit: decimal.NewFromInt(12000), Actor: "admin", Reason: "repricing"})
	require.NoError(t, err)

	current, err := svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.True(t, current.CreditsPerUnit.Equal(decimal.NewFromInt(12000)))

	var active int64
	require.NoError(t, db.Model(&domain.ExchangeRate{}).Where("is_active = ?", true).Count(&active).Error)
	assert.EqualValues(t, 1, active)

	history, err := svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].NewRate.Equal(decimal.NewFromInt(12000)))
	require.True(t, history[0].OldRate.Valid)
	assert.True(t, history[0].OldRate.Decimal.Equal(decimal.NewFromInt(10000)))
	assert.False(t, history[1].OldRate.Valid)

	require.Len(t, listener.rates, 2)
	assert.True(t, listener.rates[1].Equal(decimal.NewFromInt(12000)))
}

func TestEnsureBootstrapOnlyWhenMissing(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureBootstrap(ctx, decimal.NewFromInt(10000)))
	require.NoError(t, svc.EnsureBootstrap(ctx, decimal.NewFromInt(1)))

	current, err := svc.GetCurrent(ctx)
	require.NoError(t, err)
	assert.True(t, current.CreditsPerUnit.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, systemActor, current.CreatedBy)
}
