package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/audit"
	"github.com/MikeMC777/ordenes-checkout/internal/auth"
	"github.com/MikeMC777/ordenes-checkout/internal/config"
	"github.com/MikeMC777/ordenes-checkout/internal/db"
	"github.com/MikeMC777/ordenes-checkout/internal/fulfillment"
	"github.com/MikeMC777/ordenes-checkout/internal/idempotency"
	"github.com/MikeMC777/ordenes-checkout/internal/notify"
	"github.com/MikeMC777/ordenes-checkout/internal/payment"
	"github.com/MikeMC777/ordenes-checkout/internal/pricing"
	"github.com/MikeMC777/ordenes-checkout/internal/product"
	"github.com/MikeMC777/ordenes-checkout/internal/promo"
	"github.com/MikeMC777/ordenes-checkout/internal/store"
)

type app struct {
	router  *gin.Engine
	closers []func(context.Context) error
	log     *zap.Logger
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{log: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	st, err := openStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}

	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host: cfg.SMTP.Host,
			Port: cfg.SMTP.Port,
			User: cfg.SMTP.User,
			Pass: cfg.SMTP.Pass,
			From: cfg.SMTP.From,
		})
	}
	dispatcher := notify.NewDispatcher(mailer, logger, cfg.NotifyWorkers, cfg.NotifyQueue)
	a.closers = append(a.closers, dispatcher.Close)

	var sink audit.Sink = audit.NewLogSink(logger)
	if cfg.Mongo.URI != "" {
		ms, err := audit.NewMongoSink(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		a.closers = append(a.closers, ms.Close)
		sink = ms
	}
	recorder := audit.NewRecorder(sink, "order-service", logger)

	engine := pricing.NewEngine(pricing.ShippingRules{
		DomesticFee:      cfg.Shipping.DomesticFee,
		InternationalFee: cfg.Shipping.InternationalFee,
		FreeThreshold:    cfg.Shipping.FreeThreshold,
	})
	svc := fulfillment.NewService(st, engine,
		fulfillment.WithNotifier(dispatcher),
		fulfillment.WithAuditor(recorder),
		fulfillment.WithLogger(logger))

	registry, err := providers(cfg, logger)
	if err != nil {
		return nil, err
	}
	gw := fulfillment.NewCheckoutGateway(svc, registry, fulfillment.CheckoutConfig{
		Currency:   cfg.Checkout.Currency,
		SuccessURL: cfg.Checkout.SuccessURL,
		CancelURL:  cfg.Checkout.CancelURL,
		FailureURL: cfg.Checkout.FailureURL,
	}, logger)
	rec := fulfillment.NewReconciler(svc, registry, logger)

	var idem idempotency.Store = idempotency.NewMemoryStore()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		idem = idempotency.NewRedisStore(client, "ordenes:idem:")
	}

	a.router = newRouter(routerDeps{
		Service:    svc,
		Checkout:   gw,
		Reconciler: rec,
		Verifier:   auth.NewVerifier(cfg.JWTSecret),
		Idem:       idem,
		IdemTTL:    cfg.IdemTTL,
		Logger:     logger,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, a *app) (store.Manager, error) {
	if cfg.StoreDriver == config.DriverMemory {
		m := store.NewMemory()
		seedDemo(m)
		a.log.Warn("using in-memory store; data is lost on restart")
		return m, nil
	}
	pool, err := db.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
	if err := db.Migrate(ctx, pool); err != nil {
		return nil, err
	}
	return store.NewPostgres(pool, cfg.TxTimeout), nil
}

// providers registers every provider with credentials configured.
func providers(cfg config.Config, logger *zap.Logger) (*payment.Registry, error) {
	var list []payment.Provider
	if cfg.Stripe.SecretKey != "" {
		p, err := payment.NewStripe(payment.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if cfg.Yoco.SecretKey != "" {
		p, err := payment.NewYoco(payment.YocoConfig{
			SecretKey:     cfg.Yoco.SecretKey,
			WebhookSecret: cfg.Yoco.WebhookSecret,
			BaseURL:       cfg.Yoco.BaseURL,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if len(list) == 0 {
		logger.Warn("no payment provider configured; checkout sessions will be rejected")
	}
	return payment.NewRegistry(cfg.Checkout.Provider, list...)
}

// seedDemo gives the in-memory store a small catalog for local runs.
func seedDemo(m *store.Memory) {
	m.PutProduct(product.Product{ID: 1, Name: "Monstera Deliciosa", Price: decimal.RequireFromString("249.99"), StockQuantity: 12, IsActive: true})
	m.PutProduct(product.Product{ID: 2, Name: "Snake Plant", Price: decimal.RequireFromString("129.50"), StockQuantity: 30, IsActive: true})
	m.PutProduct(product.Product{ID: 3, Name: "Terracotta Pot", Price: decimal.RequireFromString("45.00"), StockQuantity: 80, IsActive: true})
	m.PutPromo(promo.Promo{Code: "ROOTED15", Description: "15% off your order", DiscountRate: decimal.RequireFromString("0.15"), Active: true})
}
