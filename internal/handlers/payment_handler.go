package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/models"
	"github.com/paygrid/payment-orchestrator/internal/service"
	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

type PaymentHandler struct {
	orchestrator *service.Orchestrator
}

func NewPaymentHandler(orchestrator *service.Orchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

type cardTokenBody struct {
	Token       string `json:"token"`
	Last4Digits string `json:"last4_digits"`
	Brand       string `json:"brand"`
}

type splitAccountBody struct {
	AccountType       string `json:"account_type"`
	AccountIdentifier string `json:"account_identifier"`
	Percentage        string `json:"percentage"`
	Default           bool   `json:"default"`
}

type createPaymentBody struct {
	MerchantID       string             `json:"merchant_id" binding:"required"`
	OrderID          string             `json:"order_id" binding:"required"`
	Amount           string             `json:"amount" binding:"required"`
	Currency         string             `json:"currency" binding:"required"`
	Method           string             `json:"payment_method" binding:"required"`
	Provider         string             `json:"provider" binding:"required"`
	CardToken        *cardTokenBody     `json:"card_token"`
	Metadata         map[string]string  `json:"metadata"`
	SystemFeePercent *string            `json:"system_fee_percent"`
	SplitAccounts    []splitAccountBody `json:"split_accounts"`
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is required"})
		return
	}

	var body createPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req, err := buildCreateRequest(&body)
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := h.orchestrator.CreatePayment(c.Request.Context(), req, idempotencyKey)
	if err != nil {
		telemetry.Logger.Warn("Create payment failed",
			zap.String("merchant_id", body.MerchantID),
			zap.String("order_id", body.OrderID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, paymentView(p))
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}
	p, err := h.orchestrator.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentView(p))
}

func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	h.applyTrigger(c, func(id uuid.UUID) (*models.Payment, error) {
		return h.orchestrator.Process(c.Request.Context(), id)
	})
}

func (h *PaymentHandler) CompletePayment(c *gin.Context) {
	var body struct {
		TransactionID string `json:"transaction_id"`
	}
	_ = c.ShouldBindJSON(&body)
	h.applyTrigger(c, func(id uuid.UUID) (*models.Payment, error) {
		return h.orchestrator.Complete(c.Request.Context(), id, body.TransactionID)
	})
}

func (h *PaymentHandler) FailPayment(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	h.applyTrigger(c, func(id uuid.UUID) (*models.Payment, error) {
		return h.orchestrator.Fail(c.Request.Context(), id, body.Reason)
	})
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	h.applyTrigger(c, func(id uuid.UUID) (*models.Payment, error) {
		return h.orchestrator.Cancel(c.Request.Context(), id)
	})
}

func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var body struct {
		Amount        string `json:"amount"`
		TransactionID string `json:"transaction_id"`
	}
	_ = c.ShouldBindJSON(&body)

	h.applyTrigger(c, func(id uuid.UUID) (*models.Payment, error) {
		if body.Amount == "" {
			return h.orchestrator.Refund(c.Request.Context(), id, body.TransactionID)
		}
		amount, err := decimal.NewFromString(body.Amount)
		if err != nil {
			return nil, &models.ValidationError{Field: "amount", Reason: "must be a decimal number"}
		}
		return h.orchestrator.PartialRefund(c.Request.Context(), id, amount, body.TransactionID)
	})
}

func (h *PaymentHandler) applyTrigger(c *gin.Context, fn func(id uuid.UUID) (*models.Payment, error)) {
	id, ok := paymentID(c)
	if !ok {
		return
	}
	p, err := fn(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentView(p))
}

func paymentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func buildCreateRequest(body *createPaymentBody) (*service.CreatePaymentRequest, error) {
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be a decimal number"}
	}

	req := &service.CreatePaymentRequest{
		MerchantID: body.MerchantID,
		OrderID:    body.OrderID,
		Amount:     amount,
		Currency:   body.Currency,
		Method:     models.PaymentMethod(body.Method),
		Provider:   body.Provider,
		Metadata:   models.Metadata(body.Metadata),
	}

	if body.CardToken != nil {
		token, err := models.NewCardToken(body.CardToken.Token, body.CardToken.Last4Digits, body.CardToken.Brand)
		if err != nil {
			return nil, err
		}
		req.CardToken = token
	}

	if body.SystemFeePercent != nil {
		pct, err := decimal.NewFromString(*body.SystemFeePercent)
		if err != nil {
			return nil, &models.ValidationError{Field: "system_fee_percent", Reason: "must be a decimal number"}
		}
		req.SystemFeePercent = &pct
	}

	for _, acc := range body.SplitAccounts {
		pct, err := decimal.NewFromString(acc.Percentage)
		if err != nil {
			return nil, &models.ValidationError{Field: "split_accounts", Reason: "percentage must be a decimal number"}
		}
		req.SplitAccounts = append(req.SplitAccounts, models.SplitAccount{
			AccountType:       acc.AccountType,
			AccountIdentifier: acc.AccountIdentifier,
			Percentage:        pct,
			Default:           acc.Default,
		})
	}

	return req, nil
}

func paymentView(p *models.Payment) gin.H {
	view := gin.H{
		"id":          p.ID.String(),
		"order_id":    p.OrderID,
		"merchant_id": p.MerchantID,
		"amount":      p.Amount.String(),
		"currency":    p.Currency,
		"method":      string(p.Method),
		"provider":    p.Provider,
		"status":      string(p.Status),
		"created_at":  p.CreatedAt,
		"updated_at":  p.UpdatedAt,
	}
	if p.TransactionID != "" {
		view["transaction_id"] = p.TransactionID
	}
	if p.FailureReason != "" {
		view["failure_reason"] = p.FailureReason
	}
	if p.Split != nil {
		view["split"] = p.Split
	}
	if p.Settlement != nil {
		view["settlement"] = p.Settlement
	}
	if len(p.Metadata) > 0 {
		view["metadata"] = p.Metadata
	}
	return view
}

func respondError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var transitionErr *models.InvalidTransitionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.Is(err, models.ErrIdempotencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": transitionErr.Error()})
	case errors.Is(err, models.ErrProviderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrVersionConflict), errors.Is(err, models.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
