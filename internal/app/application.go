package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kedaikopi/delivery_layer/internal/app/httpapi"
	"github.com/kedaikopi/delivery_layer/internal/app/services/escalation"
	"github.com/kedaikopi/delivery_layer/internal/app/services/geocoding"
	"github.com/kedaikopi/delivery_layer/internal/app/storage"
	"github.com/kedaikopi/delivery_layer/internal/app/storage/memory"
	"github.com/kedaikopi/delivery_layer/internal/app/system"
	"github.com/kedaikopi/delivery_layer/pkg/logger"
)

// Stores bundles the persistence interfaces the application needs. Nil fields
// default to a shared in-memory store, which keeps local development and tests
// free of external services.
type Stores struct {
	Orders        storage.OrderStore
	Jobs          storage.JobStore
	Notifications storage.NotificationStore
	Admins        storage.AdminStore
}

func (s *Stores) applyDefaults() {
	var mem *memory.Store
	ensure := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}
	if s.Orders == nil {
		s.Orders = ensure()
	}
	if s.Jobs == nil {
		s.Jobs = ensure()
	}
	if s.Notifications == nil {
		s.Notifications = ensure()
	}
	if s.Admins == nil {
		s.Admins = ensure()
	}
}

// Options carries the tunables the application wires into its services.
type Options struct {
	GeocoderEndpoint string
	GeocoderAPIKey   string
	GeocoderRPS      float64
	GeocoderTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisCacheTTL time.Duration

	PollInterval        time.Duration
	BatchSize           int
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	EscalationThreshold int
	AdminBaseURL        string
	DigestSchedule      string

	// Email delivers escalation and digest mail. Nil falls back to logging.
	Email escalation.EmailSender
}

// Application assembles the geocoding reconciliation services behind a single
// lifecycle. Construction wires everything; Start/Stop drive the background
// services in registration order.
type Application struct {
	service *geocoding.Service
	worker  *geocoding.Worker
	manager *system.Manager
	handler *httpapi.Handler
	cache   *geocoding.RedisCache
	log     *logger.Logger
}

// New wires an application from stores and options.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("delivery-layer")
	}
	stores.applyDefaults()

	service := geocoding.New(stores.Jobs, stores.Orders, opts.EscalationThreshold, log.WithField("component", "geocoding"))
	notifier := escalation.New(stores.Admins, stores.Notifications, opts.Email, opts.EscalationThreshold, opts.AdminBaseURL, log.WithField("component", "escalation"))

	worker := geocoding.NewWorker(service, notifier, log.WithField("component", "geocode-worker"))
	worker.WithInterval(opts.PollInterval)
	worker.WithBatchSize(opts.BatchSize)
	worker.WithBackoff(opts.BackoffBase, opts.BackoffCap)

	app := &Application{
		service: service,
		worker:  worker,
		manager: system.NewManager(),
		handler: httpapi.NewHandler(service, log.WithField("component", "httpapi")),
		log:     log,
	}

	if opts.GeocoderEndpoint != "" {
		client := &http.Client{Timeout: opts.GeocoderTimeout}
		geocoder, err := geocoding.NewHTTPGeocoder(client, opts.GeocoderEndpoint, opts.GeocoderAPIKey, opts.GeocoderRPS, log.WithField("component", "geocoder"))
		if err != nil {
			return nil, fmt.Errorf("configure geocoder: %w", err)
		}
		worker.WithGeocoder(geocoder)
	} else {
		log.Warn("geocoder endpoint not configured; geocode worker will be disabled")
	}

	if opts.RedisAddr != "" {
		app.cache = geocoding.NewRedisCache(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisCacheTTL)
		worker.WithCache(app.cache)
	}

	if err := app.manager.Register(worker); err != nil {
		return nil, err
	}
	if opts.DigestSchedule != "" {
		digest := escalation.NewDigest(stores.Jobs, stores.Admins, opts.Email, opts.DigestSchedule, log.WithField("component", "digest"))
		if err := app.manager.Register(digest); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Service exposes the geocoding service for callers embedding the application.
func (a *Application) Service() *geocoding.Service { return a.service }

// Worker exposes the geocode worker, mainly for one-shot CLI runs.
func (a *Application) Worker() *geocoding.Worker { return a.worker }

// Handler returns the admin HTTP handler.
func (a *Application) Handler() http.Handler { return a.handler.Router() }

// Start verifies external connectivity and launches the background services.
func (a *Application) Start(ctx context.Context) error {
	if a.cache != nil {
		if err := a.cache.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return a.manager.Start(ctx)
}

// Stop halts background services in reverse order and releases connections.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.cache != nil {
		if cerr := a.cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
