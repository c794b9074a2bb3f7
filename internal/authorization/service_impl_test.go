package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/tokenledger/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn := dbtest.Open(t)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{"reporter", ObjectUsage, ActionUsageIngest, true},
		{"reporter", ObjectAccount, ActionAccountCredit, false},
		{"reporter", ObjectModelPrice, ActionModelPriceSet, false},
		{"billing", ObjectAccount, ActionAccountCredit, true},
		{"billing", ObjectUsage, ActionUsageIngest, false},
		{"billing", ObjectLedgerEntry, ActionLedgerEntryView, true},
		{"admin", ObjectModelPrice, ActionModelPriceSet, true},
		{"admin", ObjectUsage, ActionUsageIngest, true},
		{"admin", ObjectAccount, ActionAccountCredit, true},
		{"Admin", ObjectAuditLog, ActionAuditLogView, true},
		{"guest", ObjectUsage, ActionUsageIngest, false},
	}

	for _, tc := range cases {
		t.Run(tc.role+"/"+tc.action, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.role, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", ObjectUsage, ActionUsageIngest), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(ctx, "admin", " ", ActionUsageIngest), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "admin", ObjectUsage, ""), ErrInvalidAction)
}

func TestSeedingTwiceKeepsPolicies(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewEnforcer(conn)
	require.NoError(t, err)

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 18)

	allowed, err := enforcer.Enforce("role:admin", ObjectAccount, ActionAccountStream)
	require.NoError(t, err)
	assert.True(t, allowed)
}
