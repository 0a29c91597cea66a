package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/service"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/response"
)

// PaymentHandler wires HTTP endpoints to the payment service.
type PaymentHandler struct {
	service *service.PaymentService
	metrics *service.MetricsService
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(svc *service.PaymentService, metrics *service.MetricsService) *PaymentHandler {
	return &PaymentHandler{service: svc, metrics: metrics}
}

// Verify godoc
// @Summary Verify payment
// @Description Settle a pending enrollment against the gateway; idempotent for settled transactions
// @Tags Payments
// @Produce json
// @Param txRef path string true "Transaction reference"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{txRef}/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	enrollment, err := h.service.Verify(c.Request.Context(), c.Param("txRef"))
	if err != nil {
		if enrollment != nil && enrollment.Status == models.EnrollmentFailed {
			h.metrics.RecordPaymentOutcome("failed")
		}
		response.Error(c, err)
		return
	}
	if enrollment.Status == models.EnrollmentCompleted {
		h.metrics.RecordPaymentOutcome("completed")
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Callback godoc
// @Summary Gateway callback
// @Description Acknowledge the asynchronous gateway callback and settle in the background
// @Tags Payments
// @Produce json
// @Param tx_ref query string true "Transaction reference"
// @Success 200 {object} response.Envelope
// @Router /payments/callback [get]
func (h *PaymentHandler) Callback(c *gin.Context) {
	txRef := c.Query("tx_ref")
	if txRef == "" {
		txRef = c.Query("trx_ref")
	}
	if txRef == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "tx_ref query parameter required"))
		return
	}
	h.service.HandleCallback(c.Request.Context(), txRef)
	response.JSON(c, http.StatusOK, gin.H{"received": true}, nil)
}
