package handler

import (
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	rbacService service.RBACService
}

func NewRoleHandler(rbacService service.RBACService) *RoleHandler {
	return &RoleHandler{rbacService: rbacService}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	roles := router.Group("/roles")
	{
		roles.GET("", h.ListRoles)
		roles.GET("/:id", h.GetRole)
		roles.POST("", h.CreateRole)
		roles.PUT("/:id", h.UpdateRole)
		roles.DELETE("/:id", h.DeleteRole)
		roles.PUT("/:id/permissions", h.UpdateRolePermissions)
	}

	perms := router.Group("/permissions")
	{
		perms.GET("", h.ListPermissions)
		perms.POST("", h.CreatePermission)
		perms.PUT("/:id", h.UpdatePermission)
		perms.DELETE("/:id", h.DeletePermission)
	}
}

func (h *RoleHandler) ListRoles(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	page, err := h.rbacService.ListRoles(c.Request.Context(), actor, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

// GetRole returns the role with its assigned permissions.
func (h *RoleHandler) GetRole(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	role, err := h.rbacService.GetRole(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, role)
}

func (h *RoleHandler) CreateRole(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.rbacService.CreateRole(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, role)
}

func (h *RoleHandler) UpdateRole(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.rbacService.UpdateRole(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, role)
}

// DeleteRole refuses system roles and roles still assigned to users.
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.rbacService.DeleteRole(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

// UpdateRolePermissions replaces the role's permission set.
func (h *RoleHandler) UpdateRolePermissions(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdateRolePermissionsRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.rbacService.SetRolePermissions(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, role)
}

func (h *RoleHandler) ListPermissions(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	page, err := h.rbacService.ListPermissions(c.Request.Context(), actor, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *RoleHandler) CreatePermission(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CreatePermissionRequest
	if !bindJSON(c, &req) {
		return
	}
	perm, err := h.rbacService.CreatePermission(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, perm)
}

func (h *RoleHandler) UpdatePermission(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdatePermissionRequest
	if !bindJSON(c, &req) {
		return
	}
	perm, err := h.rbacService.UpdatePermission(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, perm)
}

func (h *RoleHandler) DeletePermission(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.rbacService.DeletePermission(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}
