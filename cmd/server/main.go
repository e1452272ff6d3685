package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/KlinikCare/attendance-service/internal/client"
	"github.com/KlinikCare/attendance-service/internal/config"
	"github.com/KlinikCare/attendance-service/internal/handler"
	"github.com/KlinikCare/attendance-service/internal/middleware"
	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/notify"
	"github.com/KlinikCare/attendance-service/internal/repository"
	"github.com/KlinikCare/attendance-service/internal/service"
	"github.com/KlinikCare/attendance-service/internal/telemetry"
	"github.com/KlinikCare/attendance-service/internal/util/logger"
)

var version = "development"

func main() {
	configPath := "config/app-config.yaml"
	if p := os.Getenv("APP_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	logger.Init(&logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	defer logger.Sync()
	logger.Info("attendance-service %s starting (env=%s)", version, cfg.Env)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open postgres: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		logger.Fatal("postgres unreachable: %v", err)
	}
	pingCancel()

	redisCfg := cfg.Redis
	if redisCfg.Address == "" {
		redisCfg.Address = cfg.RedisURL
	}
	var redisClient *client.RedisClient
	if redisCfg.Address != "" {
		redisCtx, redisCancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = client.NewRedisClient(redisCtx, redisCfg)
		redisCancel()
		if err != nil {
			logger.Fatal("connect redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn("redis not configured, running without cache layer")
	}

	// Repositories
	configRepo := repository.NewPostgresConfigRepository(db)
	resultRepo := repository.NewPostgresResultRepository(db)
	deviceRepo := repository.NewPostgresDeviceRepository(db)
	locationRepo := repository.NewPostgresLocationRepository(db)
	travelRepo := repository.NewPostgresTravelRepository(db)
	blockRepo := repository.NewPostgresBlockRepository(db)

	// Telemetry
	shipper, err := telemetry.NewKafkaAuditShipper(cfg.Telemetry.Kafka)
	if err != nil {
		logger.Fatal("kafka audit shipper: %v", err)
	}
	shipper.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer stopCancel()
		shipper.Stop(stopCtx)
	}()

	var dispatcher notify.Dispatcher = notify.NopDispatcher{}
	if cfg.Notify.Enabled {
		dispatcher = notify.NewKafkaDispatcher(shipper)
	}

	// Services. A nil cache argument keeps the stores database-only; passing
	// the typed nil pointer would not.
	var store *service.ConfigStore
	var travelStore *service.TravelStore
	if redisClient != nil {
		store = service.NewConfigStore(configRepo, redisClient, cfg.Detection.CacheTTL)
		travelStore = service.NewTravelStore(travelRepo, redisClient, cfg.Detection.TravelSampleTTL)
	} else {
		store = service.NewConfigStore(configRepo, nil, cfg.Detection.CacheTTL)
		travelStore = service.NewTravelStore(travelRepo, nil, cfg.Detection.TravelSampleTTL)
	}
	if cfg.Detection.SeedDefault {
		seedDefaultConfig(configRepo, store)
	}

	evaluator := service.NewEvaluator(store, locationRepo, travelStore, resultRepo, blockRepo, shipper, dispatcher)
	deviceManager := service.NewDeviceSessionManager(deviceRepo)
	retention := service.NewRetentionService(store, resultRepo)

	// Handlers
	attendanceHandler := handler.NewAttendanceHandler(evaluator)
	deviceHandler := handler.NewDeviceHandler(deviceManager)
	adminHandler := handler.NewAdminHandler(store, evaluator, retention)
	healthHandler := handler.NewHealthHandler(db, redisClient, shipper)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", healthHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/attendance/check-in", attendanceHandler.Evaluate)

		r.Post("/devices", deviceHandler.Register)
		r.Post("/devices/{deviceID}/verify", deviceHandler.Verify)
		r.Post("/devices/{deviceID}/primary", deviceHandler.SetPrimary)
		r.Post("/devices/{deviceID}/revoke", deviceHandler.Revoke)
		r.Get("/users/{userID}/devices", deviceHandler.List)
		r.Get("/users/{userID}/devices/primary", deviceHandler.Primary)
		r.Get("/users/{userID}/results", attendanceHandler.History)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.Admin))
			r.Get("/detection-config", adminHandler.GetConfig)
			r.Put("/detection-config", adminHandler.SaveConfig)
			r.Post("/detection-config/reload", adminHandler.ReloadConfig)
			r.Post("/users/{userID}/unblock", adminHandler.Unblock)
			r.Post("/devices/{deviceID}/force-single", deviceHandler.ForceSingle)
			r.Post("/retention/purge", adminHandler.PurgeResults)
		})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown: %v", err)
	}
}

// seedDefaultConfig writes the default detection config when the singleton
// row does not exist yet, so a fresh deployment scores with sane values
// before an admin ever touches the config.
func seedDefaultConfig(repo repository.ConfigRepository, store *service.ConfigStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := repo.GetActive(ctx); err == nil {
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		logger.Warn("detection config probe failed, skipping seed: %v", err)
		return
	}

	if err := store.Save(ctx, models.DefaultDetectionConfig()); err != nil {
		logger.Warn("seeding default detection config failed: %v", err)
	} else {
		logger.Info("seeded default detection config")
	}
}
