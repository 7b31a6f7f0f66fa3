package handler

import (
	"restaurant-backend/internal/service"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/payments")
	{
		payments.POST("", h.RecordPayment)
		payments.GET("/:id", h.GetPayment)
		payments.PUT("/:id", h.UpdatePayment)
		payments.DELETE("/:id", h.DeletePayment)
	}
	router.GET("/invoices/:id/payments", h.ListByInvoice)
}

// RecordPayment handles POST /api/payments. Completed payments may not
// exceed the invoice balance and settle the invoice when they reach it.
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.RecordPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.paymentService.RecordPayment(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, payment)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	payment, err := h.paymentService.GetPayment(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, payment)
}

func (h *PaymentHandler) UpdatePayment(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.paymentService.UpdatePayment(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, payment)
}

func (h *PaymentHandler) DeletePayment(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.paymentService.DeletePayment(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

func (h *PaymentHandler) ListByInvoice(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	payments, err := h.paymentService.ListByInvoice(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, payments)
}
