package handler

import (
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/audit-logs", h.GetAuditLogs)
}

// GetAuditLogs handles GET /api/audit-logs?user_id=&action=&entity_id=
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	userID, valid := queryUUID(c, "user_id")
	if !valid {
		return
	}
	q := service.AuditQuery{UserID: userID, Action: c.Query("action"), EntityID: c.Query("entity_id")}
	logs, err := h.auditService.GetAuditLogs(c.Request.Context(), actor, q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, logs)
}
