package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"eventsync/internal/auth"
	"eventsync/internal/cache"
	"eventsync/internal/client/genlayer"
	"eventsync/internal/config"
	cronrunner "eventsync/internal/cron"
	"eventsync/internal/db"
	"eventsync/internal/handler"
	"eventsync/internal/ledger"
	"eventsync/internal/logger"
	"eventsync/internal/metrics"
	"eventsync/internal/repository"
	gormrepository "eventsync/internal/repository/gorm"
	"eventsync/internal/schedule"
	"eventsync/internal/service"
	"eventsync/internal/source"

	_ "eventsync/docs"
)

func main() {
	cfgPath := os.Getenv("EVS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("EVS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := mintToken(cfg.Auth, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	log, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		log.Fatal("auto-migrate failed", zap.Error(err))
	}
	repo := gormrepository.New(dbConn.Gorm)

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		log.Warn("unknown app timezone, using UTC", zap.String("timezone", cfg.App.Timezone), zap.Error(err))
		loc = time.UTC
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	kv, closeKV := newCacheStore(cfg.Cache, repo, log)
	defer closeKV()

	src, session, err := newSource(cfg, m, log)
	if err != nil {
		log.Fatal("event source init failed", zap.Error(err))
	}
	defer session.Close()

	store := &service.EventStore{
		Source:     src,
		Cache:      cache.NewLocal(kv, cfg.Cache.KeyPrefix, logger.Component(log, "cache")),
		Classifier: schedule.Classifier{Parser: schedule.Parser{Loc: loc}},
		Repo:       repo,
		Metrics:    m,
		Logger:     logger.Component(log, "event_store"),
		Scope:      cfg.Source.Scope,

		SyncCooldown: cfg.Source.SyncCooldown,
		SyncTimeout:  cfg.Source.SyncTimeout,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(auth.AuditWrites(logger.Component(log, "audit")))

	jwtAuth := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer, TokenTTL: cfg.Auth.TokenTTL}
	if !jwtAuth.Enabled() {
		log.Warn("auth.jwt_secret is empty, write routes are unauthenticated")
	}

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Store: store}
	healthHandler.Register(engine)
	eventsHandler := &handler.EventsHandler{
		Store:          store,
		Auth:           jwtAuth,
		Logger:         logger.Component(log, "http"),
		OriginPatterns: cfg.Server.StreamOrigins,
	}
	eventsHandler.Register(engine)
	if m != nil {
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger.Component(log, "cron"), ctx)
	if cfg.Cron.Enabled {
		if spec := strings.TrimSpace(cfg.Cron.Refresh); spec != "" {
			_, err = cronRunner.Add("events_refresh", spec, cfg.Cron.Timeout, func(ctx context.Context) error {
				_, err := store.Load(ctx)
				return err
			})
			if err != nil {
				log.Warn("cron register events refresh failed", zap.Error(err))
			}
		}
		if spec := strings.TrimSpace(cfg.Cron.Sync); spec != "" {
			_, err = cronRunner.Add("events_sync", spec, cfg.Cron.Timeout, func(ctx context.Context) error {
				_, err := store.Sync(ctx)
				return err
			})
			if err != nil {
				log.Warn("cron register events sync failed", zap.Error(err))
			}
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, cfg.Cron.Timeout)
		defer cancel()
		snap, err := store.Load(warmCtx)
		if err != nil {
			log.Warn("initial event load failed", zap.Error(err))
			return
		}
		log.Info("initial event load",
			zap.Int("events", len(snap.Events)),
			zap.Bool("from_cache", snap.FromCache),
		)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr), zap.String("source", src.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newCacheStore(cfg config.CacheConfig, repo repository.Repository, log *zap.Logger) (cache.Store, func()) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		return cache.NewMemoryStore(), func() {}
	case "redis":
		rs := cache.NewRedisStore(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			log.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		return rs, func() { _ = rs.Close() }
	default:
		return &cache.DBStore{Repo: repo}, func() {}
	}
}

func newSource(cfg config.Config, m *metrics.Metrics, log *zap.Logger) (source.Source, *ledger.Session, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source.Kind)) {
	case "sheets":
		return &source.SheetsSource{
			BaseURL:    cfg.Sheets.BaseURL,
			SheetID:    cfg.Sheets.SheetID,
			SheetName:  cfg.Sheets.SheetName,
			APIKey:     cfg.Sheets.APIKey,
			HTTPClient: &http.Client{Timeout: cfg.Sheets.Timeout},
			Logger:     logger.Component(log, "sheets"),
		}, nil, nil
	case "", "ledger":
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	if !common.IsHexAddress(cfg.Ledger.ContractAddress) {
		return nil, nil, fmt.Errorf("invalid contract address %q", cfg.Ledger.ContractAddress)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(cfg.Ledger.SyncValue))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid ledger.sync_value: %w", err)
	}

	ledgerLog := logger.Component(log, "ledger")
	dial := genlayer.Dialer(&http.Client{Timeout: cfg.Ledger.Timeout}, genlayer.Config{
		RPCURL:         cfg.Ledger.RPCURL,
		ChainID:        cfg.Ledger.ChainID,
		PrivateKey:     cfg.Ledger.PrivateKey,
		RequestsPerSec: cfg.Ledger.RequestsPerSec,
		Burst:          cfg.Ledger.Burst,
	}, ledgerLog)
	session := ledger.NewSession(dial, ledgerLog)

	waiter := &ledger.Waiter{
		Session: session,
		Policy: ledger.Policy{
			Interval:       cfg.Waiter.PollInterval,
			Retries:        cfg.Waiter.Retries,
			AppealInterval: cfg.Waiter.AppealPollInterval,
			AppealRetries:  cfg.Waiter.AppealRetries,
		},
		Logger: ledgerLog,
	}
	if m != nil {
		waiter.Observer = m
	}

	return &source.LedgerSource{
		Session:      session,
		Waiter:       waiter,
		Contract:     common.HexToAddress(cfg.Ledger.ContractAddress),
		ReadFunction: cfg.Ledger.ReadFunction,
		SyncFunction: cfg.Ledger.SyncFunction,
		SyncValue:    value,
		Logger:       ledgerLog,
	}, session, nil
}

// mintToken prints an operator token for the write routes: eventsync token <subject> [role].
func mintToken(cfg config.AuthConfig, args []string) error {
	if cfg.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not set")
	}
	if len(args) == 0 {
		return errors.New("usage: eventsync token <subject> [role]")
	}
	claims := auth.Claims{Role: "operator", RegisteredClaims: jwt.RegisteredClaims{Subject: args[0]}}
	if len(args) > 1 {
		claims.Role = args[1]
	}
	j := auth.JWT{Secret: []byte(cfg.JWTSecret), Issuer: cfg.Issuer, TokenTTL: cfg.TokenTTL}
	tok, exp, err := j.Sign(claims)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	if !exp.IsZero() {
		fmt.Fprintln(os.Stderr, "expires", exp.Format(time.RFC3339))
	}
	return nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
