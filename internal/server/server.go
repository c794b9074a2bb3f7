package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tokenledger/internal/account/liveevents"
	apikeydomain "github.com/smallbiznis/tokenledger/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	"github.com/smallbiznis/tokenledger/internal/config"
	exchangeratedomain "github.com/smallbiznis/tokenledger/internal/exchangerate/domain"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/tokenledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tokenledger/internal/observability/tracing"
	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	"github.com/smallbiznis/tokenledger/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET(obsCfg.MetricsRoute(), gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           withCORS(cfg.CORSAllowedOrigins, s.Engine()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	ledgerSvc    ledgerdomain.Service
	priceStore   pricedomain.Store
	rateSvc      exchangeratedomain.Service
	apiKeySvc    apikeydomain.Service
	authzSvc     authorization.Service
	auditSvc     auditdomain.Service
	balanceHub   *liveevents.Hub
	obsMetrics   *obsmetrics.Metrics
	usageLimiter *ratelimit.UsageIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	LedgerSvc    ledgerdomain.Service
	PriceStore   pricedomain.Store
	RateSvc      exchangeratedomain.Service
	APIKeySvc    apikeydomain.Service
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	BalanceHub   *liveevents.Hub               `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics           `optional:"true"`
	UsageLimiter *ratelimit.UsageIngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		ledgerSvc:    p.LedgerSvc,
		priceStore:   p.PriceStore,
		rateSvc:      p.RateSvc,
		apiKeySvc:    p.APIKeySvc,
		authzSvc:     p.AuthzSvc,
		auditSvc:     p.AuditSvc,
		balanceHub:   p.BalanceHub,
		obsMetrics:   p.ObsMetrics,
		usageLimiter: p.UsageLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.APIKeyRequired())

	// -------- Usage --------
	api.POST("/usage-events", s.authorizeAction(authorization.ObjectUsage, authorization.ActionUsageIngest), s.IngestUsageEvent)
	api.POST("/estimates", s.authorizeAction(authorization.ObjectUsage, authorization.ActionUsageEstimate), s.EstimateCost)

	// -------- Accounts --------
	accounts := api.Group("/accounts/:user_id")
	{
		accounts.GET("/balance", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountView), s.GetBalance)
		accounts.GET("/balance/stream", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountStream), s.StreamBalance)
		accounts.POST("/credits", s.authorizeAction(authorization.ObjectAccount, authorization.ActionAccountCredit), s.CreditAccount)
		accounts.GET("/ledger-entries", s.authorizeAction(authorization.ObjectLedgerEntry, authorization.ActionLedgerEntryView), s.ListLedgerEntries)
		accounts.GET("/billing-records", s.authorizeAction(authorization.ObjectBillingRecord, authorization.ActionBillingRecordView), s.ListBillingRecords)
	}

	// -------- Ledger --------
	api.GET("/ledger-entries/:id", s.authorizeAction(authorization.ObjectLedgerEntry, authorization.ActionLedgerEntryView), s.GetLedgerEntry)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.APIKeyRequired())

	// -------- Model prices --------
	admin.GET("/model-prices", s.authorizeAction(authorization.ObjectModelPrice, authorization.ActionModelPriceView), s.ListModelPrices)
	admin.GET("/model-prices/:model_name/versions", s.authorizeAction(authorization.ObjectModelPrice, authorization.ActionModelPriceView), s.ListModelPriceVersions)
	admin.PUT("/model-prices/:model_name", s.authorizeAction(authorization.ObjectModelPrice, authorization.ActionModelPriceSet), s.SetModelPrice)

	// -------- Exchange rate --------
	admin.GET("/exchange-rate", s.authorizeAction(authorization.ObjectExchangeRate, authorization.ActionExchangeRateView), s.GetExchangeRate)
	admin.PUT("/exchange-rate", s.authorizeAction(authorization.ObjectExchangeRate, authorization.ActionExchangeRateSet), s.SetExchangeRate)
	admin.GET("/exchange-rate/history", s.authorizeAction(authorization.ObjectExchangeRate, authorization.ActionExchangeRateView), s.ListExchangeRateHistory)

	// -------- API keys --------
	admin.GET("/api-keys", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	admin.POST("/api-keys", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	admin.DELETE("/api-keys/:key_id", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)

	// -------- Audit logs --------
	admin.GET("/audit-logs", s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
