package main

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/MikeMC777/ordenes-checkout/docs"
	"github.com/MikeMC777/ordenes-checkout/internal/auth"
	"github.com/MikeMC777/ordenes-checkout/internal/fulfillment"
	"github.com/MikeMC777/ordenes-checkout/internal/httpx"
	"github.com/MikeMC777/ordenes-checkout/internal/idempotency"
)

type routerDeps struct {
	Service    *fulfillment.Service
	Checkout   *fulfillment.CheckoutGateway
	Reconciler *fulfillment.Reconciler
	Verifier   *auth.Verifier
	Idem       idempotency.Store
	IdemTTL    time.Duration
	Logger     *zap.Logger
}

func newRouter(d routerDeps) *gin.Engine {
	httpx.RegisterValidators()

	r := gin.New()
	r.Use(httpx.RequestID(), httpx.Logger(d.Logger), httpx.Recovery())
	r.NoRoute(noRoute)

	r.GET("/healthz", healthHandler)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	// Webhooks authenticate by signature, not bearer token.
	api.POST("/webhooks/:provider", webhookHandler(d.Reconciler))
	api.POST("/promos/validate", validatePromoHandler(d.Service))
	api.GET("/promos/active", activePromosHandler(d.Service))

	authed := api.Group("", auth.Middleware(d.Verifier))
	idem := idempotency.Middleware(d.Idem, d.IdemTTL)
	authed.POST("/orders", idem, createOrderHandler(d.Service))
	authed.POST("/checkout/session", idem, checkoutSessionHandler(d.Checkout))

	user := authed.Group("", auth.RequireUser())
	user.GET("/orders", listOrdersHandler(d.Service))
	user.GET("/orders/:id", getOrderHandler(d.Service))
	user.POST("/orders/:id/cancel", cancelOrderHandler(d.Service))
	user.PATCH("/orders/:id/status", adminOnly(), updateStatusHandler(d.Service))

	return r
}
