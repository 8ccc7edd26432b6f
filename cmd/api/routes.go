package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/app"
	"github.com/rawises/storefront-api/internal/auth"
	"github.com/rawises/storefront-api/internal/cart"
	"github.com/rawises/storefront-api/internal/catalog"
	"github.com/rawises/storefront-api/internal/checkout"
	"github.com/rawises/storefront-api/internal/common"
	"github.com/rawises/storefront-api/internal/discount"
	"github.com/rawises/storefront-api/internal/health"
	"github.com/rawises/storefront-api/internal/obs"
	"github.com/rawises/storefront-api/internal/order"
	"github.com/rawises/storefront-api/internal/payment"
	"github.com/rawises/storefront-api/internal/ratelimit"
	"github.com/rawises/storefront-api/internal/security"
)

func newRouter(d *app.Dependencies, s *app.Services, tracing bool) (http.Handler, error) {
	cfg := d.Config
	logger := d.Logger
	component := func(name string) zerolog.Logger {
		return logger.With().Str("component", name).Logger()
	}

	paymentLimit, err := ratelimit.New(d.Redis, "payment", cfg.PaymentRateLimit, component("ratelimit"))
	if err != nil {
		return nil, err
	}
	loginLimit, err := ratelimit.New(d.Redis, "login", cfg.LoginRateLimit, component("ratelimit"))
	if err != nil {
		return nil, err
	}
	idem := common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL, Logger: &logger}
	authMW := auth.Middleware{Service: s.Auth}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: s.Catalog})
	discountHandler := &discount.Handler{Store: s.Discounts}
	authHandler := &auth.Handler{Service: s.Auth, Logger: component("auth")}
	cartHandler := &cart.Handler{Svc: s.Carts, Logger: component("cart")}
	checkoutHandler := &checkout.Handler{Svc: s.Checkout, Logger: component("checkout")}
	orderHandler := &order.Handler{Svc: s.Orders, Logger: component("order")}
	orderAdmin := &order.AdminHandler{Svc: s.Orders, Logger: component("order")}
	paymentHandler := &payment.Handler{Svc: s.Payments, Logger: component("payment")}
	webhook := payment.Webhook{
		Svc:       s.Payments,
		Provider:  s.Payments.Provider,
		Replay:    d.Redis,
		ReplayTTL: cfg.WebhookReplayTTL,
		Logger:    component("payment-webhook"),
	}
	healthHandler := health.Handler{
		Checker:      health.Probe{DB: d.DB, Redis: d.Redis},
		DBTimeout:    cfg.HealthDBTimeout,
		RedisTimeout: cfg.HealthRedisTimeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.Recoverer{Logger: logger}.Middleware)
	if tracing {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.MetricsEnabled {
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTSEnabled, HSTSIncludeSubdomains: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(security.CORS(corsOrigins(cfg.CORSAllowedOrigins)))
	r.Use(authMW.Authenticate)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", obs.Handler(nil))
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.ProductDetail)
		v.Get("/categories", catalogHandler.Categories)
		v.Get("/brands", catalogHandler.Brands)
		v.Get("/discounts/member", discountHandler.Get)

		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.With(loginLimit.Middleware).Post("/login", authHandler.Login)
			a.With(authMW.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Route("/carts", func(c chi.Router) {
			c.Post("/", cartHandler.Create)
			c.Get("/{id}", cartHandler.Get)
			c.Delete("/{id}", cartHandler.Clear)
			c.Post("/{id}/items", cartHandler.AddItem)
			c.Patch("/{id}/items/{productId}", cartHandler.UpdateItem)
			c.Delete("/{id}/items/{productId}", cartHandler.RemoveItem)
		})

		mountPurchase(v, idem, paymentLimit.Middleware, checkoutHandler.Checkout, paymentHandler)
		v.Get("/orders/{id}", orderHandler.Get)

		v.Get("/webhooks/sipay", webhook.Probe)
		v.Post("/webhooks/sipay", webhook.Handle)
		v.Get("/sf/ps/payment/3d/check", webhook.Probe)
		v.Post("/sf/ps/payment/3d/check", webhook.HandleCheck)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMW.RequireAuth)
			admin.Use(authMW.RequireRole(auth.RoleAdmin))
			admin.Get("/discounts/member", discountHandler.Get)
			admin.Put("/discounts/member", discountHandler.Update)
			admin.Get("/orders", orderAdmin.List)
			admin.Get("/orders/{id}", orderAdmin.Get)
			admin.Patch("/orders/{id}/status", orderAdmin.PatchStatus)
		})
	})

	return r, nil
}

type paymentEndpoints interface {
	Create(w http.ResponseWriter, r *http.Request)
	Return(w http.ResponseWriter, r *http.Request)
	Status(w http.ResponseWriter, r *http.Request)
	FailureReasons(w http.ResponseWriter, r *http.Request)
}

// mountPurchase registers checkout and the payment endpoints. Payment creation
// is not wrapped in idem because its response carries the card form, which is
// never stored. A repeated submission opens a fresh attempt; paid orders are
// rejected by the payment service.
func mountPurchase(v chi.Router, idem common.Idem, paymentLimit func(http.Handler) http.Handler, checkout http.HandlerFunc, pay paymentEndpoints) {
	v.With(idem.Middleware).Post("/checkout", checkout)
	v.Route("/payments", func(p chi.Router) {
		p.With(paymentLimit).Post("/", pay.Create)
		p.Get("/return", pay.Return)
		p.Post("/return", pay.Return)
		p.Get("/failure-reasons", pay.FailureReasons)
		p.Get("/{orderId}/status", pay.Status)
	})
}

func corsOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}
