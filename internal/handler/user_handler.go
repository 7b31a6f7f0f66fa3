package handler

import (
	"context"
	"net/http"

	"restaurant-backend/internal/middleware"
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"
	"restaurant-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserHandler struct {
	userService service.UserService
	rbacService service.RBACService
	cookies     middleware.CookieOptions
}

// NewUserHandler sets up the routing dependencies for auth and User endpoints
func NewUserHandler(userService service.UserService, rbacService service.RBACService, cookies middleware.CookieOptions) *UserHandler {
	return &UserHandler{userService: userService, rbacService: rbacService, cookies: cookies}
}

// RegisterPublicRoutes binds the unauthenticated auth endpoints.
func (h *UserHandler) RegisterPublicRoutes(router *gin.RouterGroup) {
	router.POST("/auth/login", h.Login)
	router.POST("/auth/logout", h.Logout)
}

// RegisterRoutes binds the endpoints to an authenticated RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/me", h.GetMe)
	router.GET("/me/permissions", h.GetMyPermissions)

	users := router.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.GET("/:id", h.GetUserByID)
		users.POST("", h.CreateUser)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)

		users.GET("/:id/permissions", h.GetUserPermissions)
		users.POST("/:id/roles/:role_id", h.AssignRole)
		users.DELETE("/:id/roles/:role_id", h.RemoveRole)
		users.POST("/:id/permissions/:permission_id", h.GrantPermission)
		users.DELETE("/:id/permissions/:permission_id", h.RevokePermission)
	}
}

// Login handles POST /api/auth/login, returning the token and setting the cookie.
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginUserRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindUnauthorized {
			_ = c.Error(err)
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "invalid email or password"))
			return
		}
		respondError(c, err)
		return
	}

	middleware.SetTokenCookie(c, h.cookies, resp.Token, resp.ExpiresAt)
	ok(c, resp)
}

// Logout handles POST /api/auth/logout.
func (h *UserHandler) Logout(c *gin.Context) {
	middleware.ClearTokenCookie(c, h.cookies)
	ok(c, gin.H{"message": "Logged out"})
}

func (h *UserHandler) GetMe(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	me, err := h.userService.Me(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, me)
}

func (h *UserHandler) GetMyPermissions(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	access, err := h.rbacService.UserAccess(c.Request.Context(), actor, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, access)
}

// ListUsers handles GET /api/users, filtered by company_id, restaurant_id and search.
func (h *UserHandler) ListUsers(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	companyID, valid := queryUUID(c, "company_id")
	if !valid {
		return
	}
	restaurantID, valid := queryUUID(c, "restaurant_id")
	if !valid {
		return
	}

	q := service.UserQuery{CompanyID: companyID, RestaurantID: restaurantID, Search: c.Query("search")}
	page, err := h.userService.ListUsers(c.Request.Context(), actor, q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *UserHandler) GetUserByID(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	user, err := h.userService.GetUser(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, user)
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.CreateUser(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, user)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.UpdateUser(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, user)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.userService.DeleteUser(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

// GetUserPermissions handles GET /api/users/:id/permissions: roles, direct grants and the effective set.
func (h *UserHandler) GetUserPermissions(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	access, err := h.rbacService.UserAccess(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, access)
}

func (h *UserHandler) AssignRole(c *gin.Context) {
	h.userLink(c, "role_id", h.rbacService.AssignRole)
}

func (h *UserHandler) RemoveRole(c *gin.Context) {
	h.userLink(c, "role_id", h.rbacService.RemoveRole)
}

func (h *UserHandler) GrantPermission(c *gin.Context) {
	h.userLink(c, "permission_id", h.rbacService.GrantPermission)
}

func (h *UserHandler) RevokePermission(c *gin.Context) {
	h.userLink(c, "permission_id", h.rbacService.RevokePermission)
}

// userLink runs a user<->role or user<->permission change and answers with the new access.
func (h *UserHandler) userLink(c *gin.Context, param string, change func(ctx context.Context, actor service.Actor, userID, targetID uuid.UUID) error) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	userID, valid := pathID(c, "id")
	if !valid {
		return
	}
	targetID, valid := pathID(c, param)
	if !valid {
		return
	}
	if err := change(c.Request.Context(), actor, userID, targetID); err != nil {
		respondError(c, err)
		return
	}
	access, err := h.rbacService.UserAccess(c.Request.Context(), actor, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, access)
}
