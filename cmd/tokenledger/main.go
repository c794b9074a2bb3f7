package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tokenledger/internal/account"
	"github.com/smallbiznis/tokenledger/internal/anomaly"
	"github.com/smallbiznis/tokenledger/internal/apikey"
	apikeydomain "github.com/smallbiznis/tokenledger/internal/apikey/domain"
	"github.com/smallbiznis/tokenledger/internal/audit"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	"github.com/smallbiznis/tokenledger/internal/billingrecord"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/exchangerate"
	exchangeratedomain "github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	"github.com/smallbiznis/tokenledger/internal/ledger"
	"github.com/smallbiznis/tokenledger/internal/migration"
	"github.com/smallbiznis/tokenledger/internal/observability"
	obscontext "github.com/smallbiznis/tokenledger/internal/observability/context"
	"github.com/smallbiznis/tokenledger/internal/price"
	"github.com/smallbiznis/tokenledger/internal/ratelimit"
	"github.com/smallbiznis/tokenledger/internal/rating"
	"github.com/smallbiznis/tokenledger/internal/server"
	"github.com/smallbiznis/tokenledger/internal/usage/dedupe"
	"github.com/smallbiznis/tokenledger/pkg/db"
	"go.uber.org/fx"
)

const oneShotTimeout = 30 * time.Second

type cli struct {
	Serve   serveCmd   `cmd:"" default:"1" help:"Run the HTTP API and background workers."`
	Migrate migrateCmd `cmd:"" help:"Apply database migrations and exit."`
	APIKey  apiKeyCmd  `cmd:"" name:"apikey" help:"Manage API keys."`
	Rate    rateCmd    `cmd:"" help:"Manage the credit exchange rate."`
}

type serveCmd struct{}

type migrateCmd struct{}

type apiKeyCmd struct {
	Create apiKeyCreateCmd `cmd:"" help:"Create an API key and print it once."`
}

type apiKeyCreateCmd struct {
	Name string `required:"" help:"Label shown in key listings."`
	Role string `required:"" enum:"admin,reporter,billing" help:"Role granted to the key."`
}

type rateCmd struct {
	Set rateSetCmd `cmd:"" help:"Publish a new credits-per-unit exchange rate."`
}

type rateSetCmd struct {
	Rate   string `required:"" help:"Credits per currency unit, e.g. 10000."`
	Reason string `required:"" help:"Recorded in the rate history."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("tokenledger"),
		kong.Description("Token metering and credit ledger."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// infrastructure is shared by every command.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		db.Module,
		migration.Module,
		audit.Module,
	)
}

func (serveCmd) Run() error {
	app := fx.New(
		infrastructure(),

		ratelimit.Module,
		dedupe.Module,
		exchangerate.Module,
		price.Module,
		rating.Module,
		anomaly.Module,
		account.Module,
		billingrecord.Module,
		ledger.Module,
		apikey.Module,
		authorization.Module,

		server.Module,
	)
	app.Run()
	return app.Err()
}

func (migrateCmd) Run() error {
	return runOnce(nil)
}

func (c apiKeyCreateCmd) Run() error {
	var svc apikeydomain.Service
	return runOnce(func(ctx context.Context) error {
		resp, err := svc.Create(ctx, apikeydomain.CreateRequest{Name: c.Name, Role: c.Role})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "key_id:  %s\nrole:    %s\napi_key: %s\n", resp.KeyID, resp.Role, resp.APIKey)
		return nil
	}, apikey.Module, fx.Populate(&svc))
}

func (c rateSetCmd) Run() error {
	rate, err := decimal.NewFromString(c.Rate)
	if err != nil {
		return fmt.Errorf("parse rate: %w", err)
	}

	var svc exchangeratedomain.Service
	return runOnce(func(ctx context.Context) error {
		current, err := svc.SetNew(ctx, exchangeratedomain.SetRateRequest{
			CreditsPerUnit: rate,
			Reason:         c.Reason,
			Actor:          "cli",
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "exchange rate %s credits per unit (id %s)\n", current.CreditsPerUnit.String(), current.ID.String())
		return nil
	}, exchangerate.Module, fx.Populate(&svc))
}

// runOnce starts the infrastructure plus opts, runs fn and stops the app.
// Migrations have been applied before fn runs.
func runOnce(fn func(ctx context.Context) error, opts ...fx.Option) error {
	app := fx.New(append([]fx.Option{infrastructure(), fx.NopLogger}, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	var runErr error
	if fn != nil {
		ctx, runCancel := context.WithTimeout(systemContext(), oneShotTimeout)
		runErr = fn(ctx)
		runCancel()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func systemContext() context.Context {
	return obscontext.WithActor(context.Background(), string(auditdomain.ActorTypeSystem), "cli")
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
