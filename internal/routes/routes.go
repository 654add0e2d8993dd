// Package routes builds the service graph and defines the API routing
// configuration, including middleware and authentication requirements.
package routes

import (
	"context"
	"fmt"
	"time"

	"airswitch/internal/config"
	"airswitch/internal/fx"
	"airswitch/internal/handlers"
	"airswitch/internal/metrics"
	"airswitch/internal/middleware"
	"airswitch/internal/repositories"
	"airswitch/internal/repositories/cache"
	"airswitch/internal/services/auth"
	"airswitch/internal/services/compensation"
	"airswitch/internal/services/esim"
	"airswitch/internal/services/payment"
	"airswitch/internal/services/points"
	"airswitch/internal/services/provisioning"
	"airswitch/internal/services/referral"
	"airswitch/internal/services/telecom"
	"airswitch/internal/services/token"
	"airswitch/internal/services/wallet"
	"airswitch/internal/services/webhook"
	"airswitch/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const Version = "1.0.0"

// Dependencies are the process-level resources the routes are built on.
// Redis may be nil, which disables the wallet cache.
type Dependencies struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	Metrics metrics.Collector
	Logger  *zap.Logger
}

// Runtime holds the background components the caller must start and stop.
type Runtime struct {
	Compensation *compensation.Worker
}

// SetupRoutes wires services and handlers and mounts every route on app.
func SetupRoutes(app *fiber.App, d Dependencies) (*Runtime, error) {
	cfg, log := d.Config, d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	store := repositories.NewGormStore(d.DB)

	var walletCache wallet.Cache
	if d.Redis != nil {
		walletCache = cache.NewWalletCache(d.Redis, cfg.Redis.TTL)
	}

	ngnPerUSD, err := decimal.NewFromString(cfg.Ledger.NGNPerUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_NGN_PER_USD: %w", err)
	}
	rates := fx.NewFixedNGN(ngnPerUSD)

	var gateways []payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateways = append(gateways, payment.NewStripeGateway(cfg.Stripe.SecretKey, log))
	} else {
		log.Warn("stripe disabled: STRIPE_SECRET_KEY not set")
	}
	if cfg.Paystack.SecretKey != "" {
		gateways = append(gateways, payment.NewPaystackGateway(cfg.Paystack, log))
	} else {
		log.Warn("paystack disabled: PAYSTACK_SECRET_KEY not set")
	}
	payments := payment.NewRegistry(gateways...)

	tokens := token.NewManager(
		token.StaticFetcher(cfg.Telnyx.APIKey, cfg.Telnyx.TokenLifespan),
		token.WithFetchTimeout(cfg.Telnyx.Timeout),
		token.WithLogger(log.Named("telnyx_token")),
	)
	provision := provisioning.NewTelnyxClient(cfg.Telnyx, tokens, log)

	jwt, err := utils.NewJWT(cfg.JWT)
	if err != nil {
		return nil, err
	}

	catalog := esim.DefaultCatalog()
	compensator := compensation.NewService(store, provision, cfg.Compensation, d.Metrics, log)
	walletService := wallet.NewService(store, payments, walletCache, d.Metrics, log)
	pointsService := points.NewService(store, rates, cfg.Ledger, walletCache, d.Metrics, log)
	referralService := referral.NewService(store, cfg.Ledger, d.Metrics, log)
	authService := auth.NewService(store, jwt, referralService, log)
	esimService := esim.NewService(store, provision, catalog, log)
	telecomService := telecom.NewService(store, provision, provision, log)
	orchestrator := esim.NewOrchestrator(esim.OrchestratorDeps{
		Store:        store,
		Payments:     payments,
		Provisioning: provision,
		Compensator:  compensator,
		Rates:        rates,
		Catalog:      catalog,
		Cache:        walletCache,
		Metrics:      d.Metrics,
		Logger:       log,
		PointsPerUSD: cfg.Ledger.PointsPerUSD,
	})
	webhooks, err := webhook.NewService(webhook.Deps{
		Store:           store,
		Purchases:       orchestrator,
		Wallets:         walletService,
		ESims:           esimService,
		Numbers:         telecomService,
		StripeSecret:    cfg.Stripe.WebhookSecret,
		PaystackSecret:  cfg.Paystack.SecretKey,
		TelnyxPublicKey: cfg.Telnyx.PublicKey,
		Metrics:         d.Metrics,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	authHandler := handlers.NewAuthHandler(authService)
	walletHandler := handlers.NewWalletHandler(walletService)
	pointsHandler := handlers.NewPointsHandler(pointsService)
	referralHandler := handlers.NewReferralHandler(referralService)
	esimHandler := handlers.NewESimHandler(orchestrator, esimService)
	telecomHandler := handlers.NewTelecomHandler(telecomService)
	adminHandler := handlers.NewAdminHandler(walletService, pointsService)
	webhookHandler := handlers.NewWebhookHandler(webhooks, log)
	healthHandler := handlers.NewHealthHandler(Version, healthChecks(d), d.Redis)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Airswitch API",
			"version": Version,
			"docs":    "/api",
		})
	})
	app.Get("/health", healthHandler.HealthCheck)
	app.Get("/health/cache", healthHandler.CacheStats)

	hooks := app.Group("/webhooks")
	hooks.Post("/stripe", webhookHandler.Stripe)
	hooks.Post("/paystack", webhookHandler.Paystack)
	hooks.Post("/telnyx", webhookHandler.Telnyx)

	api := app.Group("/api")

	// Public endpoints (no auth required)
	api.Post("/register", authLimiter(), authHandler.Register)
	api.Post("/login", authLimiter(), authHandler.Login)
	api.Get("/esim/plans", esimHandler.Plans)
	api.Get("/numbers/search", telecomHandler.SearchNumbers)

	authMiddleware := middleware.NewAuthMiddleware(authService, log)
	protected := api.Group("", authMiddleware.Handler)

	setupAccountRoutes(protected, authHandler, walletHandler, pointsHandler, referralHandler)
	setupESimRoutes(protected, esimHandler)
	setupTelecomRoutes(protected, telecomHandler)

	admin := protected.Group("/admin", middleware.AdminOnly)
	admin.Post("/wallets/:userId/fund", adminHandler.FundWallet)
	admin.Post("/points/bonus", adminHandler.AwardBonus)

	return &Runtime{
		Compensation: compensation.NewWorker(compensator, cfg.Compensation.Interval, log),
	}, nil
}

func setupAccountRoutes(router fiber.Router, authHandler *handlers.AuthHandler, walletHandler *handlers.WalletHandler,
	pointsHandler *handlers.PointsHandler, referralHandler *handlers.ReferralHandler) {
	router.Post("/logout", authHandler.Logout)
	router.Get("/me", authHandler.Me)
	router.Put("/profile", authHandler.UpdateProfile)

	w := router.Group("/wallet")
	w.Get("/", walletHandler.GetWallet)
	w.Get("/transactions", walletHandler.Transactions)
	w.Post("/topup", walletHandler.TopUp)
	w.Post("/topup/confirm", walletHandler.ConfirmTopUp)

	p := router.Group("/points")
	p.Get("/", pointsHandler.Balance)
	p.Get("/history", pointsHandler.History)
	p.Get("/breakdown", pointsHandler.Breakdown)
	p.Post("/redeem", pointsHandler.Redeem)

	r := router.Group("/referral")
	r.Get("/code", referralHandler.Code)
	r.Get("/history", referralHandler.History)
	r.Get("/progress", referralHandler.Progress)
	r.Post("/invite", referralHandler.Invite)
	r.Post("/claim", referralHandler.Claim)
}

func setupESimRoutes(router fiber.Router, h *handlers.ESimHandler) {
	e := router.Group("/esim")
	e.Get("/", h.List)
	e.Get("/orders", h.Orders)
	e.Post("/checkout", h.Checkout)
	e.Post("/purchase", h.Purchase)
	e.Post("/:id/activate", h.Activate)
	e.Post("/:id/deactivate", h.Deactivate)
	e.Get("/:id/usage", h.Usage)
}

func setupTelecomRoutes(router fiber.Router, h *handlers.TelecomHandler) {
	router.Post("/numbers/purchase", h.PurchaseNumber)
	router.Get("/numbers/my", h.MyNumbers)
	router.Post("/messages/send", h.SendMessage)
	router.Get("/messages", h.Messages)
}

func authLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        5,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	})
}

func healthChecks(d Dependencies) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := d.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}
	}
	return checks
}
