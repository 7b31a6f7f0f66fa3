package handler

import (
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type CorrectionHandler struct {
	correctionService service.CorrectionService
}

func NewCorrectionHandler(correctionService service.CorrectionService) *CorrectionHandler {
	return &CorrectionHandler{correctionService: correctionService}
}

func (h *CorrectionHandler) RegisterRoutes(router *gin.RouterGroup) {
	corrections := router.Group("/corrections")
	{
		corrections.GET("", h.ListCorrections)
		corrections.GET("/:id", h.GetCorrection)
		corrections.POST("", h.CreateCorrection)
		corrections.DELETE("/:id", h.DeleteCorrection)
		corrections.PUT("/:id/approve", h.Approve)
		corrections.PUT("/:id/reject", h.Reject)
	}
}

// approveRequest.Apply defaults to true when omitted.
type approveRequest struct {
	Apply *bool `json:"apply"`
}

// ListCorrections handles GET /api/corrections?invoice_id=&status=&type=
func (h *CorrectionHandler) ListCorrections(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	invoiceID, valid := queryUUID(c, "invoice_id")
	if !valid {
		return
	}
	q := service.CorrectionQuery{InvoiceID: invoiceID, Status: c.Query("status"), Type: c.Query("type")}
	page, err := h.correctionService.ListCorrections(c.Request.Context(), actor, q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *CorrectionHandler) GetCorrection(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	correction, err := h.correctionService.GetCorrection(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, correction)
}

func (h *CorrectionHandler) CreateCorrection(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CreateCorrectionRequest
	if !bindJSON(c, &req) {
		return
	}
	correction, err := h.correctionService.CreateCorrection(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, correction)
}

func (h *CorrectionHandler) DeleteCorrection(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.correctionService.DeleteCorrection(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

// Approve handles PUT /api/corrections/:id/approve with an optional {"apply": bool} body.
func (h *CorrectionHandler) Approve(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req approveRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	apply := true
	if req.Apply != nil {
		apply = *req.Apply
	}

	correction, err := h.correctionService.Approve(c.Request.Context(), actor, id, apply)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, correction)
}

func (h *CorrectionHandler) Reject(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	correction, err := h.correctionService.Reject(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, correction)
}
