package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/civic-tally/tally/internal/app"
	"github.com/civic-tally/tally/internal/auth"
	"github.com/civic-tally/tally/internal/feed"
	"github.com/civic-tally/tally/internal/observability"
	"github.com/civic-tally/tally/internal/platform/cache"
	"github.com/civic-tally/tally/internal/platform/db"
	"github.com/civic-tally/tally/internal/rbac"
	"github.com/civic-tally/tally/internal/roles"
	"github.com/civic-tally/tally/internal/sessions"
	"github.com/civic-tally/tally/internal/shared"
	"github.com/civic-tally/tally/internal/stats"
	"github.com/civic-tally/tally/internal/token"
	"github.com/civic-tally/tally/internal/users"
	"github.com/civic-tally/tally/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.CacheOptions())
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	codec, err := token.NewCodec(cfg.TokenSecret, clock.WallClock)
	if err != nil {
		logger.Error("init token codec", slog.Any("error", err))
		os.Exit(1)
	}

	sessionsRepo := sessions.NewRepository(dbpool)
	settings, err := sessions.NewSettings(sessionsRepo, cfg.SessionDefaultTimeout)
	if err != nil {
		logger.Error("init session settings", slog.Any("error", err))
		os.Exit(1)
	}
	if err := settings.Load(ctx); err != nil {
		logger.Warn("load global session timeout, using configured default",
			slog.Int("minutes", cfg.SessionDefaultTimeout), slog.Any("error", err))
	}
	issuer := sessions.NewIssuer(sessions.NewTimeoutPolicy(sessionsRepo, settings), codec, sessionsRepo, clock.WallClock)
	registry := sessions.NewRegistry(codec, sessionsRepo, sessions.NewRedisBlacklist(redisClient, clock.WallClock), logger)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool))
	rbacMiddleware := rbac.Middleware{Gate: rbac.NewGate(codec, registry, rbacService), Logger: logger}

	verifier := auth.NewVerifier(auth.NewRepository(dbpool), logger, auth.WithObserver(metrics))
	authService := auth.NewService(verifier, issuer, rbacService, registry, auditLogger, logger)
	authHandler := auth.NewHandler(logger, authService, rbacMiddleware, auth.HandlerConfig{
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		ProtectForceLogout: cfg.ForceLogoutRequireAuth,
	})

	usersService := users.NewService(users.NewRepository(dbpool), registry, auditLogger, logger)
	rolesService := roles.NewService(roles.NewRepository(dbpool), auditLogger, logger)

	statsCache := stats.NewCache(redisClient, cfg.StatsCacheTTL)
	statsService := stats.NewService(stats.NewRepository(dbpool), statsCache, clock.WallClock, logger)
	invalidator := stats.NewInvalidator(statsCache, logger)

	var source feed.Source
	switch cfg.FeedSource {
	case app.FeedSourceRedis:
		source = feed.NewRedisSource(redisClient)
	default:
		source = feed.NewPGSource(cfg.PGDSN)
	}
	relay := feed.NewRelay(source, feed.Config{
		Channel:    cfg.FeedChannel,
		MinBackoff: cfg.FeedMinBackoff,
		MaxBackoff: cfg.FeedMaxBackoff,
	}, feed.WithLogger(logger), feed.WithObserver(metrics))
	socket := feed.NewSocketHandler(relay, feed.SocketConfig{
		Buffer:         cfg.FeedBuffer,
		PingInterval:   cfg.FeedPingInterval,
		AllowedOrigins: cfg.FeedAllowedOrigins,
	}, logger)
	var socketGuard func(http.Handler) http.Handler
	if cfg.FeedRequireAuth {
		socketGuard = rbacMiddleware.AuthenticateWith(app.SocketToken)
	}

	inspector := asynq.NewInspector(cfg.QueueOptions())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		SessionsHandler:    sessions.NewHandler(logger, settings, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, rolesService, rbacMiddleware),
		StatsHandler:       stats.NewHandler(logger, statsService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Socket:             socket,
		SocketGuard:        socketGuard,
		Feed:               relay,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		if relay.Register(invalidator) {
			invalidator.Run(gctx)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
