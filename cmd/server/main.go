// @title                       Access Control API
// @version                     1.0
// @description                 Face and credential access decisions for door controllers, plus the admin API.
// @BasePath                    /
// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the admin JWT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/99minutos/access-control/internal/api"
	"github.com/99minutos/access-control/internal/api/handler"
	"github.com/99minutos/access-control/internal/core/ports"
	"github.com/99minutos/access-control/internal/core/service"
	"github.com/99minutos/access-control/internal/infrastructure/camera"
	"github.com/99minutos/access-control/internal/infrastructure/capture"
	"github.com/99minutos/access-control/internal/infrastructure/config"
	mongostore "github.com/99minutos/access-control/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/access-control/internal/infrastructure/db/redis"
	"github.com/99minutos/access-control/internal/infrastructure/db/sqlite"
	"github.com/99minutos/access-control/internal/infrastructure/encoder"
	"github.com/99minutos/access-control/internal/infrastructure/scheduler"
	"github.com/99minutos/access-control/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "access-control",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Infrastructure ---
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("closing store")
		}
	}()

	readiness := map[string]handler.Pinger{"store": store}

	tracker, closeTracker, err := openTracker(ctx, cfg, readiness)
	if err != nil {
		return err
	}
	defer closeTracker()

	captures, err := openCaptures(cfg)
	if err != nil {
		return err
	}

	faces := encoder.NewClient(cfg.Encoder.URL, cfg.Encoder.Timeout)
	readiness["encoder"] = faces

	// --- Core ---
	audit := service.NewAuditLogger(store, cfg.Recognition.AuditTimeout, logger.Component(log, "audit"))
	cache := service.NewEmbeddingCache(store, logger.Component(log, "cache"))
	refresher := scheduler.NewCacheRefresher(cache, cfg.Recognition.RefreshInterval, logger.Component(log, "scheduler"))

	recognition := service.NewRecognitionService(cache, faces, captures, audit, service.RecognitionConfig{
		Tolerance:    cfg.Recognition.Tolerance,
		SaveCaptures: cfg.Capture.Save,
	}, logger.Component(log, "recognition"))
	credentials := service.NewCredentialService(store, tracker, audit, logger.Component(log, "credentials"))
	enrollment := service.NewEnrollmentService(store, store, faces, captures, tracker, refresher, logger.Component(log, "enrollment"))
	dashboard := service.NewDashboardService(store, store, cache)

	auth, err := service.NewAdminAuthService(cfg.Admin.User, cfg.Admin.Password, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	if err != nil {
		return fmt.Errorf("admin auth: %w", err)
	}

	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		APIKey:      cfg.FaceAPIKey,
		JWTSecret:   cfg.Admin.JWTSecret,
		MaxPayload:  cfg.MaxPayload,
		Recognition: recognition,
		Credentials: credentials,
		Audit:       audit,
		Auth:        auth,
		Enrollment:  enrollment,
		Dashboard:   dashboard,
		Tracker:     tracker,
		Captures:    captures,
		Camera:      camera.NewClient(cfg.CameraURL),
		Readiness:   readiness,
		Log:         logger.Component(log, "http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", cfg.Store.Driver).
			Str("tracker", cfg.Redis.Backend).
			Str("captures", cfg.Capture.Backend).
			Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.Store, error) {
	if cfg.Store.Driver == "mongo" {
		store, err := mongostore.Open(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		}, logger.Component(log, "mongo"))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := sqlite.Open(ctx, cfg.Store.SQLitePath, logger.Component(log, "sqlite"))
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openTracker selects the last seen token backend. A Redis tracker is added
// to the readiness probes.
func openTracker(ctx context.Context, cfg *config.Config, readiness map[string]handler.Pinger) (ports.TokenTracker, func(), error) {
	if cfg.Redis.Backend != "redis" {
		return service.NewMemoryTokenTracker(cfg.Recognition.FreshWindow), func() {}, nil
	}
	client, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		return nil, nil, err
	}
	tracker := redisstore.NewTokenTracker(client, cfg.Recognition.FreshWindow)
	readiness["redis"] = tracker
	return tracker, func() { _ = client.Close() }, nil
}

func openCaptures(cfg *config.Config) (ports.CaptureStore, error) {
	if cfg.Capture.Backend == "s3" {
		return capture.NewS3Store(capture.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}), nil
	}
	store, err := capture.NewFSStore(cfg.Capture.Dir)
	if err != nil {
		return nil, err
	}
	return store, nil
}
