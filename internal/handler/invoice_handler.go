package handler

import (
	"restaurant-backend/internal/model"
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
}

func NewInvoiceHandler(invoiceService service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/invoices")
	{
		invoices.GET("", h.ListInvoices)
		invoices.GET("/overdue", h.ListOverdue)
		invoices.GET("/:id", h.GetInvoice)
		invoices.POST("", h.CreateInvoice)
		invoices.PUT("/:id", h.UpdateInvoice)
		invoices.PUT("/:id/status", h.UpdateStatus)
		invoices.DELETE("/:id", h.DeleteInvoice)

		invoices.GET("/:id/balance", h.GetBalance)
		invoices.POST("/:id/recompute", h.RecomputeTotals)
		invoices.GET("/:id/lines", h.ListLines)
		invoices.POST("/:id/lines", h.AddLine)
	}

	lines := router.Group("/invoice-lines")
	{
		lines.PUT("/:id", h.UpdateLine)
		lines.DELETE("/:id", h.DeleteLine)
	}
}

// ListInvoices handles GET /api/invoices with restaurant_id, company_id,
// customer_id, status, type, from and to filters.
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	q := service.InvoiceQuery{Status: c.Query("status"), Type: c.Query("type")}
	var valid bool
	if q.RestaurantID, valid = queryUUID(c, "restaurant_id"); !valid {
		return
	}
	if q.CompanyID, valid = queryUUID(c, "company_id"); !valid {
		return
	}
	if q.CustomerID, valid = queryUUID(c, "customer_id"); !valid {
		return
	}
	if q.From, valid = queryTime(c, "from"); !valid {
		return
	}
	if q.To, valid = queryTime(c, "to"); !valid {
		return
	}

	page, err := h.invoiceService.ListInvoices(c.Request.Context(), actor, q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

// ListOverdue returns pending invoices past their due date.
func (h *InvoiceHandler) ListOverdue(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	page, err := h.invoiceService.ListOverdue(c.Request.Context(), actor, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, invoice)
}

func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CreateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, invoice)
}

func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoiceService.UpdateInvoice(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, invoice)
}

// UpdateStatus cancels or reopens an invoice; paid is only reached through payments.
func (h *InvoiceHandler) UpdateStatus(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoiceService.UpdateStatus(c.Request.Context(), actor, id, model.InvoiceStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, invoice)
}

func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.invoiceService.DeleteInvoice(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

func (h *InvoiceHandler) GetBalance(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	balance, err := h.invoiceService.Balance(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, balance)
}

func (h *InvoiceHandler) RecomputeTotals(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	invoice, err := h.invoiceService.RecomputeTotals(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, invoice)
}

// --- Lines ---

func (h *InvoiceHandler) ListLines(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	lines, err := h.invoiceService.ListLines(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, lines)
}

func (h *InvoiceHandler) AddLine(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.InvoiceLineRequest
	if !bindJSON(c, &req) {
		return
	}
	line, err := h.invoiceService.AddLine(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, line)
}

func (h *InvoiceHandler) UpdateLine(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.InvoiceLineRequest
	if !bindJSON(c, &req) {
		return
	}
	line, err := h.invoiceService.UpdateLine(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, line)
}

func (h *InvoiceHandler) DeleteLine(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.invoiceService.DeleteLine(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}
