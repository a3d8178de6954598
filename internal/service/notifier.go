package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/models"
	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

// DefaultDeliveryRetries bounds attempts per outbound notification.
const DefaultDeliveryRetries = 5

// NotifierConfig wires destination resolution and delivery behavior.
type NotifierConfig struct {
	// MerchantURLs maps merchant id to its configured webhook endpoint.
	MerchantURLs map[string]string
	// DefaultURL is the system fallback when a merchant has no endpoint.
	DefaultURL string
	// Secret signs outgoing payloads when set.
	Secret string
	// Workers is the delivery goroutine count.
	Workers int
	// BaseRetryDelay doubles per attempt.
	BaseRetryDelay time.Duration
}

type delivery struct {
	ID         uuid.UUID
	PaymentID  uuid.UUID
	URL        string
	EventType  string
	Payload    []byte
	MaxRetries int
}

// notificationBody is what merchants receive.
type notificationBody struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Created   time.Time       `json:"created"`
	Data      json.RawMessage `json:"data"`
}

// WebhookNotifier delivers payment status changes to merchant endpoints
// through a worker queue with bounded retries. Failures are logged and
// swallowed: a notification failure never blocks or rolls back the payment.
type WebhookNotifier struct {
	cfg    NotifierConfig
	client *http.Client
	queue  chan *delivery
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewWebhookNotifier(cfg NotifierConfig, logger *zap.Logger) *WebhookNotifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		queue:  make(chan *delivery, 1000),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

// NotifyStatusChange resolves the destination and queues one delivery per
// status-change event. Destination priority: metadata override, merchant
// configuration, system default. No destination means no delivery.
func (n *WebhookNotifier) NotifyStatusChange(p *models.Payment, eventType string) {
	url := n.resolveURL(p)
	if url == "" {
		return
	}

	data, err := json.Marshal(map[string]any{
		"payment_id":     p.ID.String(),
		"merchant_id":    p.MerchantID,
		"order_id":       p.OrderID,
		"amount":         p.Amount.String(),
		"currency":       p.Currency,
		"status":         string(p.Status),
		"transaction_id": p.TransactionID,
		"failure_reason": p.FailureReason,
	})
	if err != nil {
		return
	}

	if _, err := n.ScheduleDelivery(p.ID, url, eventType, data, DefaultDeliveryRetries); err != nil {
		n.logger.Warn("Webhook delivery dropped",
			zap.String("payment_id", p.ID.String()),
			zap.Error(err),
		)
	}
}

// ScheduleDelivery queues a notification for asynchronous delivery.
func (n *WebhookNotifier) ScheduleDelivery(paymentID uuid.UUID, url, eventType string, payload []byte, maxRetries int) (string, error) {
	d := &delivery{
		ID:         uuid.New(),
		PaymentID:  paymentID,
		URL:        url,
		EventType:  eventType,
		Payload:    payload,
		MaxRetries: maxRetries,
	}
	select {
	case n.queue <- d:
		return d.ID.String(), nil
	default:
		return "", fmt.Errorf("webhook queue full")
	}
}

// Close stops accepting deliveries and waits for in-flight ones.
func (n *WebhookNotifier) Close() {
	n.cancel()
	close(n.queue)
	n.wg.Wait()
}

func (n *WebhookNotifier) resolveURL(p *models.Payment) string {
	if override := p.Metadata["webhook_url"]; override != "" {
		return override
	}
	if url := n.cfg.MerchantURLs[p.MerchantID]; url != "" {
		return url
	}
	return n.cfg.DefaultURL
}

func (n *WebhookNotifier) worker() {
	defer n.wg.Done()
	for d := range n.queue {
		n.deliverWithRetry(d)
	}
}

func (n *WebhookNotifier) deliverWithRetry(d *delivery) {
	delay := n.cfg.BaseRetryDelay
	for attempt := 1; attempt <= d.MaxRetries; attempt++ {
		err := n.deliver(d)
		if err == nil {
			telemetry.WebhookDeliveries.WithLabelValues("delivered").Inc()
			return
		}
		n.logger.Warn("Webhook delivery attempt failed",
			zap.String("delivery_id", d.ID.String()),
			zap.String("payment_id", d.PaymentID.String()),
			zap.String("url", d.URL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == d.MaxRetries {
			break
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-n.ctx.Done():
			return
		}
	}
	telemetry.WebhookDeliveries.WithLabelValues("failed").Inc()
}

func (n *WebhookNotifier) deliver(d *delivery) error {
	body, err := json.Marshal(notificationBody{
		ID:        d.ID.String(),
		EventType: d.EventType,
		Created:   time.Now().UTC(),
		Data:      d.Payload,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(n.ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	if n.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(n.cfg.Secret))
		mac.Write(body)
		req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("destination returned %d", resp.StatusCode)
	}
	return nil
}
