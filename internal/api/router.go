package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paygrid/payment-orchestrator/internal/handlers"
	"github.com/paygrid/payment-orchestrator/internal/service"
	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

func NewRouter(orchestrator *service.Orchestrator, reconciler *service.Reconciler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-orchestrator"})
	})

	// Payment routes
	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	r.POST("/payments", paymentHandler.CreatePayment)
	r.GET("/payments/:id", paymentHandler.GetPayment)
	r.POST("/payments/:id/process", paymentHandler.ProcessPayment)
	r.POST("/payments/:id/complete", paymentHandler.CompletePayment)
	r.POST("/payments/:id/fail", paymentHandler.FailPayment)
	r.POST("/payments/:id/cancel", paymentHandler.CancelPayment)
	r.POST("/payments/:id/refund", paymentHandler.RefundPayment)

	// Provider callbacks
	webhookHandler := handlers.NewWebhookHandler(reconciler)
	r.POST("/webhooks/:provider", webhookHandler.HandleCallback)

	return r
}
