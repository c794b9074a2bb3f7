package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/tokenledger/internal/account/domain"
	"github.com/smallbiznis/tokenledger/internal/account/liveevents"
	accountrepo "github.com/smallbiznis/tokenledger/internal/account/repository"
	accountservice "github.com/smallbiznis/tokenledger/internal/account/service"
	"github.com/smallbiznis/tokenledger/internal/anomaly"
	billingrecorddomain "github.com/smallbiznis/tokenledger/internal/billingrecord/domain"
	billingrecordrepo "github.com/smallbiznis/tokenledger/internal/billingrecord/repository"
	billingrecordservice "github.com/smallbiznis/tokenledger/internal/billingrecord/service"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/config"
	exchangeratedomain "github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	exchangeraterepo "github.com/smallbiznis/tokenledger/internal/exchangerate/repository"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/tokenledger/internal/ledger/repository"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	pricerepo "github.com/smallbiznis/tokenledger/internal/price/repository"
	priceservice "github.com/smallbiznis/tokenledger/internal/price/service"
	"github.com/smallbiznis/tokenledger/internal/ratelimit"
	ratingservice "github.com/smallbiznis/tokenledger/internal/rating/service"
	usagedomain "github.com/smallbiznis/tokenledger/internal/usage/domain"
	"github.com/smallbiznis/tokenledger/internal/usage/dedupe"
	"github.com/smallbiznis/tokenledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type wordCounter struct{}

func (wordCounter) CountTokens(_, text string) int64 {
	return int64(len(text))
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	clock    *clock.FakeClock
	metering *config.MeteringConfigHolder
	store    *priceservice.Store
	hub      *liveevents.Hub
	node     *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&pricedomain.ModelPriceConfig{},
		&exchangeratedomain.ExchangeRate{},
		&exchangeratedomain.HistoryEntry{},
		&accountdomain.Account{},
		&ledgerdomain.LedgerEntry{},
		&billingrecorddomain.BillingRecord{},
	)
	require.NoError(t, conn.Exec(pricerepo.ActiveModelIndexDDL).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	metering := config.DefaultMeteringConfig()
	metering.AutoCreate = false
	holder, err := config.NewStaticMeteringConfigHolder(metering)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	store := priceservice.New(priceservice.Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    fake,
		Metering: holder,
		Repo:     pricerepo.Provide(),
		RateRepo: exchangeraterepo.Provide(),
	})
	rating := ratingservice.NewService(ratingservice.ServiceParam{
		Log:        log,
		Clock:      fake,
		Store:      store,
		Calculator: ratingservice.NewCalculator(),
	})
	accountRepo := accountrepo.Provide()
	billing := billingrecordservice.NewService(billingrecordservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  billingrecordrepo.Provide(),
		Queue: billingrecordservice.NewRetryQueue(),
	})
	hub := liveevents.NewHub()

	svc := NewService(Params{
		DB:          conn,
		Log:         log,
		GenID:       node,
		Clock:       fake,
		Repo:        ledgerrepo.Provide(),
		AccountRepo: accountRepo,
		Accounts:    accountservice.NewValidator(accountservice.Params{DB: conn, Log: log, Repo: accountRepo}),
		Rating:      rating,
		Tokens:      wordCounter{},
		Guard:       anomaly.NewGuard(holder),
		Deduper:     dedupe.NewMemory(fake, time.Hour, 1000),
		Locker:      ratelimit.NewLocalAccountLocker(5*time.Second, nil),
		Billing:     billing,
		Hub:         hub,
	}).(*Service)

	f := &fixture{svc: svc, db: conn, clock: fake, metering: holder, store: store, hub: hub, node: node}
	f.insertRate(t, 10000)
	f.setPrice(t, "gpt-4", "0.03", "0.06")
	return f
}

func (f *fixture) insertRate(t *testing.T, rate int64) {
	t.Helper()
	require.NoError(t, exchangeraterepo.Provide().Insert(context.Background(), f.db, &exchangeratedomain.ExchangeRate{
		ID:             f.node.Generate(),
		CreditsPerUnit: decimal.NewFromInt(rate),
		IsActive:       true,
		EffectiveFrom:  f.clock.Now(),
		CreatedBy:      "test",
		CreatedAt:      f.clock.Now(),
	}))
}

func (f *fixture) setPrice(t *testing.T, model, in, out string) {
	t.Helper()
	_, err := f.store.SetModelPrice(context.Background(), pricedomain.SetModelPriceRequest{
		ModelName:       model,
		InputPricePerK:  decimal.RequireFromString(in),
		OutputPricePerK: decimal.RequireFromString(out),
		Actor:           "admin",
	})
	require.NoError(t, err)
}

func (f *fixture) credit(t *testing.T, userID string, amount int64) {
	t.Helper()
	res, err := f.svc.Credit(context.Background(), ledgerdomain.CreditRequest{
		UserID:    userID,
		Amount:    amount,
		Reference: fmt.Sprintf("seed-%s-%d", userID, f.node.Generate().Int64()),
	})
	require.NoError(t, err)
	require.True(t, res.Applied)
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	bal, err := f.svc.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return bal.CreditBalance
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func gpt4Event(userID, messageID string) usagedomain.UsageEvent {
	return usagedomain.UsageEvent{
		ModelName:      "gpt-4",
		InputTokens:    1500,
		OutputTokens:   800,
		UserID:         userID,
		ConversationID: "conv-1",
		MessageID:      messageID,
	}
}

func TestProcessUsageEventDeductsGPT4Scenario(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)

	sub, _, err := f.hub.Subscribe("u1")
	require.NoError(t, err)
	defer sub.Close()

	res, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.NoError(t, err)
	require.Equal(t, ledgerdomain.StateCompleted, res.State)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(70), res.BalanceAfter)

	calc := res.Calculation
	require.NotNil(t, calc)
	assert.True(t, calc.InputCost.Equal(decimal.RequireFromString("0.045")))
	assert.True(t, calc.OutputCost.Equal(decimal.RequireFromString("0.048")))
	assert.True(t, calc.TotalCost.Equal(decimal.RequireFromString("0.093")))
	assert.Equal(t, int64(930), calc.TotalCredits)

	assert.Equal(t, int64(70), f.balance(t, "u1"))

	entry, err := f.svc.GetEntry(context.Background(), res.Entry.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StatusAccepted, entry.Status)
	assert.Equal(t, int64(1000), entry.BalanceBefore)
	assert.Equal(t, int64(70), entry.BalanceAfter)
	require.NotNil(t, entry.IdempotencyKey)
	wantKey, err := gpt4Event("u1", "m1").DedupeKey()
	require.NoError(t, err)
	assert.Equal(t, wantKey, *entry.IdempotencyKey)
	assert.Equal(t, wantKey, entry.DedupeKey)
	assert.Equal(t, "conv-1", entry.ConversationID)
	assert.Equal(t, "m1", entry.MessageID)

	assert.Equal(t, int64(1), f.count(t, &billingrecorddomain.BillingRecord{}, "type = ? AND amount = ?", "usage", 930))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, int64(70), ev.NewBalance)
		assert.Equal(t, int64(-930), ev.Delta)
		assert.Equal(t, liveevents.ReasonUsage, ev.Reason)
	case <-time.After(time.Second):
		t.Fatal("no balance change published")
	}
}

func TestProcessUsageEventDuplicateHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)

	first, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.NoError(t, err)

	second, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StateCompleted, second.State)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	assert.Equal(t, int64(70), f.balance(t, "u1"))
	assert.Equal(t, int64(1), f.count(t, &ledgerdomain.LedgerEntry{}, "user_id = ?", "u1"))
	assert.Equal(t, int64(1), f.count(t, &billingrecorddomain.BillingRecord{}, "type = ?", "usage"))
}

func TestLookalikeEventsAreBilledSeparately(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 5000)

	events := []usagedomain.UsageEvent{
		gpt4Event("u1", "c"),
		gpt4Event("u1", "m1"),
		gpt4Event("u1", "x"),
		gpt4Event("u1", ""),
	}
	events[0].ConversationID = "a:b"
	events[1].ConversationID = "a"
	events[1].MessageID = "b:c"
	events[2].ConversationID = "idem"
	events[3].ConversationID = ""
	events[3].IdempotencyKey = "x"

	for i, ev := range events {
		res, err := f.svc.ProcessUsageEvent(context.Background(), ev)
		require.NoError(t, err, "event %d", i)
		assert.False(t, res.Duplicate, "event %d", i)
	}
	assert.Equal(t, int64(5000-4*930), f.balance(t, "u1"))
	assert.Equal(t, int64(4), f.count(t, &ledgerdomain.LedgerEntry{}, "user_id = ? AND status = ?", "u1", "accepted"))
}

func TestSameMessageForAnotherUserIsNotADuplicate(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)
	f.credit(t, "u2", 1000)

	first, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.NoError(t, err)

	other, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u2", "m1"))
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
	require.NotNil(t, other.Entry)
	assert.Equal(t, "u2", other.Entry.UserID)
	assert.NotEqual(t, first.Entry.ID, other.Entry.ID)
	assert.Equal(t, int64(70), other.BalanceAfter)

	assert.Equal(t, int64(70), f.balance(t, "u1"))
	assert.Equal(t, int64(70), f.balance(t, "u2"))
}

func TestProcessUsageEventDuplicateAfterDeduperEviction(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)

	_, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.NoError(t, err)

	f.svc.deduper = dedupe.NewMemory(f.clock, time.Hour, 1000)

	res, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(70), f.balance(t, "u1"))
}

func TestProcessUsageEventInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 500)

	res, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.ErrorIs(t, err, accountdomain.ErrInsufficientBalance)
	require.NotNil(t, res)
	assert.Equal(t, ledgerdomain.StateRejected, res.State)
	assert.Equal(t, ledgerdomain.ReasonInsufficientBalance, res.Reason)
	require.NotNil(t, res.Validation)
	assert.Equal(t, int64(430), res.Validation.Shortfall)

	assert.Equal(t, int64(500), f.balance(t, "u1"))
	require.NotNil(t, res.Entry)
	assert.Equal(t, ledgerdomain.StatusRejected, res.Entry.Status)
	assert.Nil(t, res.Entry.IdempotencyKey)
	assert.Equal(t, int64(1), f.count(t, &ledgerdomain.LedgerEntry{}, "status = ?", "rejected"))
	assert.Zero(t, f.count(t, &billingrecorddomain.BillingRecord{}, "type = ?", "usage"))
}

func TestRejectedEventCanBeRetriedAfterTopUp(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 500)

	_, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.ErrorIs(t, err, accountdomain.ErrInsufficientBalance)

	f.credit(t, "u1", 500)
	res, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StateCompleted, res.State)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(70), f.balance(t, "u1"))
}

func TestProcessUsageEventUnknownModel(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)

	ev := gpt4Event("u1", "m1")
	ev.ModelName = "foo-bar"
	res, err := f.svc.ProcessUsageEvent(context.Background(), ev)
	require.ErrorIs(t, err, pricedomain.ErrUnknownModel)
	assert.Equal(t, ledgerdomain.StateRejected, res.State)
	assert.Equal(t, ledgerdomain.ReasonUnknownModel, res.Reason)

	assert.Equal(t, int64(1000), f.balance(t, "u1"))
	assert.Zero(t, f.count(t, &ledgerdomain.LedgerEntry{}, "user_id = ?", "u1"))
}

func TestStrictPricingOptsOutOfAutoCreate(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)
	metering := config.DefaultMeteringConfig()
	metering.AutoCreate = true
	require.NoError(t, f.metering.Set(metering))

	strict := gpt4Event("u1", "m1")
	strict.ModelName = "gpt-4-0613"
	strict.StrictPricing = true
	res, err := f.svc.ProcessUsageEvent(context.Background(), strict)
	require.ErrorIs(t, err, pricedomain.ErrUnknownModel)
	assert.Equal(t, ledgerdomain.ReasonUnknownModel, res.Reason)
	assert.Zero(t, f.count(t, &pricedomain.ModelPriceConfig{}, "model_name = ?", "gpt-4-0613"))

	lenient := strict
	lenient.StrictPricing = false
	res, err = f.svc.ProcessUsageEvent(context.Background(), lenient)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StateCompleted, res.State)
	require.NotNil(t, res.Calculation)
	assert.True(t, res.Calculation.PriceAutoCreated)
	assert.Equal(t, int64(70), f.balance(t, "u1"))
}

func TestProcessUsageEventInvalidInput(t *testing.T) {
	f := newFixture(t)

	ev := gpt4Event("u1", "m1")
	ev.InputTokens = -1
	res, err := f.svc.ProcessUsageEvent(context.Background(), ev)
	assert.Error(t, err)
	assert.Equal(t, ledgerdomain.ReasonInvalidTokenCount, res.Reason)

	ev = gpt4Event("u1", "")
	ev.ConversationID = ""
	res, err = f.svc.ProcessUsageEvent(context.Background(), ev)
	assert.ErrorIs(t, err, usagedomain.ErrMissingDedupeKey)
	assert.Equal(t, ledgerdomain.ReasonInvalidEvent, res.Reason)
}

func TestProcessUsageEventCostAnomalyRecordsRejectedEntry(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 10_000)

	cfg := f.metering.Get()
	cfg.Anomaly.MaxCreditsPerEvent = 500
	require.NoError(t, f.metering.Set(cfg))

	res, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.ErrorIs(t, err, anomaly.ErrCostAnomaly)
	assert.Equal(t, ledgerdomain.ReasonCostAnomaly, res.Reason)
	require.NotNil(t, res.Entry)
	assert.Equal(t, ledgerdomain.StatusRejected, res.Entry.Status)

	assert.Equal(t, int64(10_000), f.balance(t, "u1"))
	assert.Equal(t, int64(1), f.count(t, &ledgerdomain.LedgerEntry{}, "reject_reason = ?", "cost_anomaly"))
}

func TestZeroTokenEventIsAcceptedAndFlagged(t *testing.T) {
	f := newFixture(t)

	ev := gpt4Event("u-new", "m1")
	ev.InputTokens = 0
	ev.OutputTokens = 0
	res, err := f.svc.ProcessUsageEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.StateCompleted, res.State)
	assert.Contains(t, res.Warnings, anomaly.WarningSuspectedZeroUsage)
	assert.Zero(t, res.Entry.TotalCredits)

	assert.Equal(t, int64(1), f.count(t, &billingrecorddomain.BillingRecord{}, "type = ? AND amount = ?", "usage", 0))

	dup, err := f.svc.ProcessUsageEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Contains(t, dup.Warnings, anomaly.WarningSuspectedZeroUsage)
}

func TestConcurrentDeductionsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)

	const events = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ev := usagedomain.UsageEvent{
				ModelName:      "gpt-4",
				InputTokens:    150,
				OutputTokens:   80,
				UserID:         "u1",
				ConversationID: "conv-c",
				MessageID:      fmt.Sprintf("m%d", n),
			}
			res, _ := f.svc.ProcessUsageEvent(context.Background(), ev)
			mu.Lock()
			defer mu.Unlock()
			if res != nil && res.State == ledgerdomain.StateCompleted {
				accepted++
			} else {
				rejected++
			}
		}(i)
	}
	wg.Wait()

	// 93 credits per event against 1000 credits.
	assert.Equal(t, 10, accepted)
	assert.Equal(t, 10, rejected)
	assert.Equal(t, int64(70), f.balance(t, "u1"))
}

func TestStoredEntryIgnoresLaterPriceChanges(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)

	res, err := f.svc.ProcessUsageEvent(context.Background(), gpt4Event("u1", "m1"))
	require.NoError(t, err)

	f.setPrice(t, "gpt-4", "1", "1")

	entry, err := f.svc.GetEntry(context.Background(), res.Entry.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(930), entry.TotalCredits)
	assert.True(t, entry.InputPricePerK.Equal(decimal.RequireFromString("0.03")))
	assert.True(t, entry.TotalCost.Equal(decimal.RequireFromString("0.093")))
}

func TestCreditIsIdempotentByReference(t *testing.T) {
	f := newFixture(t)
	req := ledgerdomain.CreditRequest{UserID: "u1", Amount: 250, Reference: "invoice-7"}

	res, err := f.svc.Credit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, int64(250), res.Balance)

	res, err = f.svc.Credit(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, int64(250), res.Balance)

	assert.Equal(t, int64(1), f.count(t, &billingrecorddomain.BillingRecord{}, "idempotency_key = ?", "charge:invoice-7"))

	_, err = f.svc.Credit(context.Background(), ledgerdomain.CreditRequest{UserID: "u1", Amount: 0, Reference: "x"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)
	_, err = f.svc.Credit(context.Background(), ledgerdomain.CreditRequest{UserID: "u1", Amount: 1})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidReference)
}

func TestEstimateCostNeverAutoCreates(t *testing.T) {
	f := newFixture(t)
	cfg := f.metering.Get()
	cfg.AutoCreate = true
	require.NoError(t, f.metering.Set(cfg))

	calc, err := f.svc.EstimateCost(context.Background(), "gpt-4", 1500, 800)
	require.NoError(t, err)
	assert.Equal(t, int64(930), calc.TotalCredits)

	_, err = f.svc.EstimateCost(context.Background(), "gpt-4o-preview", 10, 10)
	assert.ErrorIs(t, err, pricedomain.ErrUnknownModel)
	assert.Zero(t, f.count(t, &pricedomain.ModelPriceConfig{}, "model_name = ?", "gpt-4o-preview"))

	calc, err = f.svc.EstimateFromText(context.Background(), "gpt-4", "abcd", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), calc.InputTokens)
}

func TestCheckBalanceAndListEntries(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "u1", 1000)

	check, err := f.svc.CheckBalance(context.Background(), "u1", 930)
	require.NoError(t, err)
	assert.True(t, check.HasEnoughBalance)

	for i := 0; i < 3; i++ {
		ev := gpt4Event("u1", fmt.Sprintf("m%d", i))
		ev.InputTokens, ev.OutputTokens = 10, 10
		_, err := f.svc.ProcessUsageEvent(context.Background(), ev)
		require.NoError(t, err)
	}

	page, err := f.svc.ListEntries(context.Background(), ledgerdomain.ListEntriesRequest{UserID: "u1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.True(t, page.HasMore)
	assert.Greater(t, page.Entries[0].ID, page.Entries[1].ID)

	next, err := f.svc.ListEntries(context.Background(), ledgerdomain.ListEntriesRequest{UserID: "u1", PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Entries, 1)
	assert.False(t, next.HasMore)

	_, err = f.svc.ListEntries(context.Background(), ledgerdomain.ListEntriesRequest{UserID: "u1", Status: "pending"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidStatus)

	records, err := f.svc.ListBillingRecords(context.Background(), billingrecorddomain.ListRequest{UserID: "u1", Type: "usage"})
	require.NoError(t, err)
	assert.Len(t, records.BillingRecords, 3)

	_, err = f.svc.GetEntry(context.Background(), "123")
	assert.ErrorIs(t, err, ledgerdomain.ErrEntryNotFound)
	_, err = f.svc.GetEntry(context.Background(), "nope")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidEntryID)
}
