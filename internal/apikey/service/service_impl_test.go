package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/tokenledger/internal/apikey/domain"
	"github.com/smallbiznis/tokenledger/internal/apikey/repository"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	auditrepository "github.com/smallbiznis/tokenledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/tokenledger/internal/audit/service"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc   apikeydomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t, &apikeydomain.APIKey{}, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})
	svc := New(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     repository.Provide(),
		AuditSvc: audit,
	})
	return &fixture{svc: svc, db: conn, clock: fake}
}

func TestCreateAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	secret, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "ingest", Role: "Reporter"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret.APIKey, "tl_"))
	assert.Equal(t, apikeydomain.RoleReporter, secret.Role)

	principal, err := f.svc.Authenticate(ctx, secret.APIKey)
	require.NoError(t, err)
	assert.Equal(t, secret.KeyID, principal.KeyID)
	assert.Equal(t, apikeydomain.RoleReporter, principal.Role)

	var stored apikeydomain.APIKey
	require.NoError(t, f.db.Where("key_id = ?", secret.KeyID).First(&stored).Error)
	assert.NotEqual(t, secret.APIKey, stored.KeyHash)
	assert.Equal(t, apikeydomain.HashAPIKey(secret.APIKey), stored.KeyHash)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", auditdomain.ActionAPIKeyCreate).Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Role: "admin"})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidName)

	_, err = f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "x", Role: "owner"})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidRole)

	past := f.clock.Now().Add(-time.Hour)
	_, err = f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "x", Role: "admin", ExpiresAt: &past})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidExpiry)
}

func TestAuthenticateRejectsUnknownRevokedAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Authenticate(ctx, "not-a-key")
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
	_, err = f.svc.Authenticate(ctx, "tl_unknown_deadbeef")
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)

	revoked, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "old", Role: "billing"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(ctx, revoked.KeyID))
	_, err = f.svc.Authenticate(ctx, revoked.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)

	expiry := f.clock.Now().Add(time.Hour)
	expiring, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "temp", Role: "billing", ExpiresAt: &expiry})
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, expiring.APIKey)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Authenticate(ctx, expiring.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
}

func TestRevokeUnknownKey(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.Revoke(context.Background(), " "), apikeydomain.ErrInvalidKeyID)
	assert.ErrorIs(t, f.svc.Revoke(context.Background(), "key_NOPE"), apikeydomain.ErrNotFound)
}

func TestListShowsRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "a", Role: "admin"})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "b", Role: "reporter"})
	require.NoError(t, err)

	keys, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "b", keys[0].Name)
	assert.Equal(t, apikeydomain.RoleAdmin, keys[1].Role)
}

func TestEnsureBootstrapIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := "tl_bootstrap_0123456789abcdef"

	require.NoError(t, f.svc.EnsureBootstrap(ctx, raw, "", "admin"))
	require.NoError(t, f.svc.EnsureBootstrap(ctx, raw, "", "admin"))

	keys, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "bootstrap", keys[0].Name)

	principal, err := f.svc.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, apikeydomain.RoleAdmin, principal.Role)

	assert.Error(t, f.svc.EnsureBootstrap(ctx, "plain-secret", "x", "admin"))
	assert.ErrorIs(t, f.svc.EnsureBootstrap(ctx, "tl_other", "x", "root"), apikeydomain.ErrInvalidRole)
}
