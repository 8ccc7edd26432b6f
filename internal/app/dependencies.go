package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/rawises/storefront-api/internal/auth"
	"github.com/rawises/storefront-api/internal/cart"
	"github.com/rawises/storefront-api/internal/catalog"
	"github.com/rawises/storefront-api/internal/checkout"
	"github.com/rawises/storefront-api/internal/config"
	"github.com/rawises/storefront-api/internal/db"
	"github.com/rawises/storefront-api/internal/discount"
	"github.com/rawises/storefront-api/internal/events"
	"github.com/rawises/storefront-api/internal/lock"
	"github.com/rawises/storefront-api/internal/notify"
	"github.com/rawises/storefront-api/internal/order"
	"github.com/rawises/storefront-api/internal/payment"
	"github.com/rawises/storefront-api/internal/pricing"
	"github.com/rawises/storefront-api/internal/repo"
	"github.com/rawises/storefront-api/internal/tasks"
)

// Dependencies holds the shared infrastructure of a process.
type Dependencies struct {
	Config        *config.Config
	Logger        zerolog.Logger
	DB            *pgxpool.Pool
	Redis         *redis.Client
	Repos         repo.Repos
	RedisOpt      asynq.RedisConnOpt
	TaskClient    *asynq.Client
	MeterProvider metric.MeterProvider
}

// New connects Postgres, Redis and the asynq client. component names the
// process in connection metadata.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, component string) (*Dependencies, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.Connect(connectCtx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		ApplicationName: "rawises-" + component,
	})
	if err != nil {
		return nil, err
	}

	d := &Dependencies{
		Config:        cfg,
		Logger:        logger,
		DB:            pool,
		Repos:         repo.New(pool),
		MeterProvider: otel.GetMeterProvider(),
	}
	rdb, err := NewRedis(connectCtx, cfg.RedisURL, d.MeterProvider, cfg.MetricsEnabled, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	d.Redis = rdb

	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("parse task redis url: %w", err)
	}
	d.RedisOpt = opt
	d.TaskClient = asynq.NewClient(opt)
	return d, nil
}

// NewRedis opens an instrumented Redis client and pings it.
func NewRedis(ctx context.Context, url string, mp metric.MeterProvider, withMetrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(rdb, redisotel.WithMeterProvider(mp)); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Close releases every connection held by d.
func (d *Dependencies) Close() {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// Services are the domain services shared by the API and the worker.
type Services struct {
	Catalog   *catalog.Service
	Discounts *discount.Store
	Carts     *cart.Service
	Orders    *order.Service
	Checkout  *checkout.Service
	Payments  *payment.Service
	Auth      *auth.Service
	Events    *events.Bus
	Enqueuer  tasks.Enqueuer
	Notifier  notify.EmailNotifier
	Locker    lock.Locker
}

// Services wires the domain services over d.
func (d *Dependencies) Services() (*Services, error) {
	cfg := d.Config
	component := func(name string) zerolog.Logger {
		return d.Logger.With().Str("component", name).Logger()
	}

	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:      d.Repos.Products,
		Cache:        catalog.NewCache(d.Redis, cfg.CatalogCacheTTL),
		Markup:       cfg.OriginalPriceMarkup,
		DefaultPage:  1,
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}

	authSvc, err := auth.NewService(auth.Config{
		Users:          d.Repos.Users,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	enqueuer := tasks.Enqueuer{
		Client:   d.TaskClient,
		Queue:    cfg.WorkerQueue,
		MaxRetry: cfg.TaskMaxRetry,
		Logger:   component("tasks"),
	}
	bus := &events.Bus{
		Store:     d.Repos.Events,
		Notifiers: []events.Notifier{events.NotifierFunc(enqueuer.Notify)},
	}

	discounts := &discount.Store{Repo: d.Repos.Settings, Cache: d.Redis, CacheTTL: cfg.DiscountCacheTTL}
	carts := &cart.Service{
		Store:     &cart.Store{R: d.Redis, TTL: cfg.CartTTL},
		Products:  catalogSvc,
		Discounts: discounts,
		Engine:    pricing.Engine{VATRate: cfg.VATRate},
	}

	return &Services{
		Catalog:   catalogSvc,
		Discounts: discounts,
		Carts:     carts,
		Orders:    &order.Service{Repo: d.Repos.Orders, Events: bus, Logger: component("order")},
		Checkout: &checkout.Service{
			Carts:    carts,
			Products: catalogSvc,
			Orders:   d.Repos.Orders,
			Events:   bus,
			Currency: cfg.CurrencyCode,
			Logger:   component("checkout"),
		},
		Payments: &payment.Service{
			Store:     d.Repos.Payments,
			Provider:  payment.Sipay{Gateway: cfg.Gateway()},
			Expiry:    enqueuer,
			Events:    bus,
			Logger:    component("payment"),
			IntentTTL: cfg.PaymentIntentTTL,
			Currency:  cfg.CurrencyCode,
		},
		Auth:     authSvc,
		Events:   bus,
		Enqueuer: enqueuer,
		Notifier: notify.EmailNotifier{
			Mail:    d.Mailer(),
			Enabled: cfg.MailEnabled,
			Sent:    d.Redis,
			SentTTL: cfg.MailSentTTL,
			Logger:  component("notify"),
		},
		Locker: lock.Locker{R: d.Redis},
	}, nil
}

// Mailer returns the relay mailer when MAIL_RELAY_URL is set, otherwise a
// mailer that only logs.
func (d *Dependencies) Mailer() notify.Mailer {
	logger := d.Logger.With().Str("component", "mailer").Logger()
	if d.Config.MailRelayURL == "" {
		return notify.LogMailer{Logger: logger}
	}
	return notify.NewRelayMailer(d.Config.MailRelayURL, d.Config.MailRelayToken, d.Config.MailFrom, 10*time.Second, &logger)
}
