package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/kedaikopi/delivery_layer/internal/app"
	"github.com/kedaikopi/delivery_layer/internal/app/httpapi"
	"github.com/kedaikopi/delivery_layer/internal/app/metrics"
	"github.com/kedaikopi/delivery_layer/internal/app/storage/postgres"
	"github.com/kedaikopi/delivery_layer/internal/config"
	"github.com/kedaikopi/delivery_layer/internal/platform/migrations"
	"github.com/kedaikopi/delivery_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config overlay")
	envFile := flag.String("env", "", "path to optional .env file")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logger.NewDefault("main").WithError(err).Fatal("load env file")
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("main").WithError(err).Fatal("load configuration")
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithField("component", "main")

	stores := app.Stores{}
	if cfg.Database.URL != "" {
		db, err := sqlx.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.WithError(err).Fatal("open database")
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("ping database")
		}

		if err := migrations.Apply(context.Background(), db.DB); err != nil {
			log.WithError(err).Fatal("apply migrations")
		}

		store := postgres.New(db)
		stores = app.Stores{Orders: store, Jobs: store, Notifications: store, Admins: store}
		defer db.Close()
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	application, err := app.New(stores, app.Options{
		GeocoderEndpoint:    cfg.Geocoder.Endpoint,
		GeocoderAPIKey:      cfg.Geocoder.APIKey,
		GeocoderRPS:         cfg.Geocoder.RequestsPerSecond,
		GeocoderTimeout:     cfg.Geocoder.Timeout,
		RedisAddr:           cfg.Redis.Addr,
		RedisPassword:       cfg.Redis.Password,
		RedisDB:             cfg.Redis.DB,
		RedisCacheTTL:       cfg.Redis.CacheTTL,
		PollInterval:        cfg.Geocoder.PollInterval,
		BatchSize:           cfg.Geocoder.BatchSize,
		BackoffBase:         cfg.Geocoder.BackoffBase,
		BackoffCap:          cfg.Geocoder.BackoffCap,
		EscalationThreshold: cfg.Escalation.Threshold,
		AdminBaseURL:        cfg.Escalation.AdminBaseURL,
		DigestSchedule:      cfg.Escalation.DigestSchedule,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("assemble application")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(runCtx); err != nil {
		log.WithError(err).Fatal("start application")
	}

	tokens := cfg.Server.Tokens()
	if len(tokens) == 0 {
		log.Warn("no auth tokens configured; admin API is unauthenticated")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", application.Handler())

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.WrapWithAuth(mux, tokens),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("admin API listening on %s", cfg.Server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("shutdown complete")
}
