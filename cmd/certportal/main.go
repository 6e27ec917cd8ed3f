package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/certid"
	"github.com/tadcs/certportal/internal/config"
	"github.com/tadcs/certportal/internal/infra/cache"
	"github.com/tadcs/certportal/internal/infra/database"
	"github.com/tadcs/certportal/internal/infra/render"
	"github.com/tadcs/certportal/internal/infra/repository"
	"github.com/tadcs/certportal/internal/present/rest"
	"github.com/tadcs/certportal/internal/service"
	"github.com/tadcs/certportal/internal/usecase"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/certportal/config.yaml", "path to the yaml config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := newLogger(cfg.Server.LogDevelopment)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("certportal stopped", zap.Error(err))
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting certportal", zap.String("version", version))

	if cfg.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, cfg.Server.TraceEndpoint, version)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	db, err := database.Open(cfg.Server.Database.Driver, cfg.Server.Database.DSN, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	var sessions usecase.SessionStore = repository.NewMemorySessionStore()
	var events usecase.EventPublisher
	var eventSource rest.EventSource
	if cfg.Server.RedisAddr != "" {
		rdb, err := database.NewRedis(ctx, cfg.Server.RedisAddr, cfg.Server.RedisPassword, cfg.Server.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()

		sessions = repository.NewRedisSessionStore(rdb)
		signalService := service.NewSignalService(rdb, logger)
		events = signalService
		eventSource = signalService
	} else {
		logger.Warn("redis not configured: sessions are kept in memory and the realtime feed is off")
	}

	certCache := cache.NewCertificateCache(nil, cfg.Verification.CacheTTL, logger)
	if cfg.Server.MemcachedAddr != "" {
		certCache = cache.NewCertificateCache(database.NewMemcached(cfg.Server.MemcachedAddr), cfg.Verification.CacheTTL, logger)
	}

	applicationRepo := repository.NewApplicationRepository(db)
	adminRepo := repository.NewAdminRepository(db)

	auth := service.NewAuthService(adminRepo, sessions, logger, cfg.Admin.SessionTTL)
	if err := auth.Bootstrap(ctx, cfg.Admin.Email, cfg.Admin.Name, cfg.Admin.Password); err != nil {
		return err
	}

	applications := usecase.NewApplicationUsecase(applicationRepo, auth, certid.New(certid.ApplicationPrefix), events, logger)
	lifecycle := usecase.NewLifecycleUsecase(
		applicationRepo,
		auth,
		certid.New(certid.CertificatePrefix),
		certCache,
		events,
		logger,
		usecase.WithMintAttempts(cfg.Certificate.MintAttempts),
	)
	verification := usecase.NewVerificationUsecase(applicationRepo, certCache, logger)

	var renderOpts []render.Option
	if cfg.Certificate.FontPath != "" {
		fonts, err := render.FontFiles(cfg.Certificate.FontPath, cfg.Certificate.BoldFontPath)
		if err != nil {
			return err
		}
		renderOpts = append(renderOpts, fonts)
	}
	documents := usecase.NewDocumentUsecase(
		verification,
		applicationRepo,
		auth,
		render.NewRenderer(cfg.Server.Origin, cfg.Certificate.Organization, renderOpts...),
	)

	handler := rest.NewHandler(
		applications,
		lifecycle,
		verification,
		documents,
		auth,
		eventSource,
		rest.Options{DiscloseStatus: cfg.Verification.DiscloseStatus},
		logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if cfg.Server.EnableTrace {
		e.Use(otelecho.Middleware(serviceName))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	handler.RegisterRoutes(e)

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := e.Start(cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
