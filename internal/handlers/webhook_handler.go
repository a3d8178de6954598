package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/models"
	"github.com/paygrid/payment-orchestrator/internal/service"
	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

type WebhookHandler struct {
	reconciler *service.Reconciler
}

func NewWebhookHandler(reconciler *service.Reconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// HandleCallback receives asynchronous provider confirmations. Unresolvable
// callbacks get a 200 so the provider stops redelivering; verification
// failures get a 400 and never touch any payment.
func (h *WebhookHandler) HandleCallback(c *gin.Context) {
	provider := c.Param("provider")

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.GetHeader(name)
	}

	p, err := h.reconciler.HandleCallback(c.Request.Context(), provider, rawBody, headers)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSignature) || errors.Is(err, models.ErrStaleCallback) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		telemetry.Logger.Error("Callback handling failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	if p == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, paymentView(p))
}
