package handler

import (
	"errors"
	"net/http"
	"time"

	"restaurant-backend/internal/middleware"
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var kindStatus = map[apperror.Kind]int{
	apperror.KindNotFound:             http.StatusNotFound,
	apperror.KindUnauthorized:         http.StatusForbidden,
	apperror.KindForbidden:            http.StatusForbidden,
	apperror.KindConflict:             http.StatusConflict,
	apperror.KindInvalidState:         http.StatusConflict,
	apperror.KindInsufficientStock:    http.StatusUnprocessableEntity,
	apperror.KindAmountExceedsBalance: http.StatusUnprocessableEntity,
	apperror.KindInvalidTransition:    http.StatusUnprocessableEntity,
	apperror.KindInvalid:              http.StatusBadRequest,
}

// StatusFor maps an error kind to its HTTP status; unclassified errors are 500.
func StatusFor(kind apperror.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes the error envelope. Internal errors keep their detail
// out of the body and are attached to the context for the request logger.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	kind := apperror.KindOf(err)
	status := StatusFor(kind)
	if kind == apperror.KindInternal {
		c.JSON(status, response.Fail(status, kind.String(), "internal server error", nil))
		return
	}

	var details interface{}
	if kind == apperror.KindConflict {
		if n := apperror.DependentsOf(err); n > 0 {
			details = gin.H{"dependents": n}
		}
	}
	var appErr *apperror.Error
	msg := err.Error()
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	c.JSON(status, response.Fail(status, kind.String(), msg, details))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Fail(http.StatusBadRequest, apperror.KindInvalid.String(), msg, nil))
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, data))
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, data))
}

func deleted(c *gin.Context, id uuid.UUID) {
	ok(c, gin.H{"id": id, "deleted": true})
}

// actorOf returns the authenticated caller or writes a 401.
func actorOf(c *gin.Context) (service.Actor, bool) {
	actor, found := middleware.ActorFrom(c)
	if !found {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return service.Actor{}, false
	}
	return actor, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryUUID parses an optional uuid query parameter; nil when absent.
func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &id, true
}

// queryTime accepts RFC3339 or a plain date.
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	badRequest(c, "invalid "+name)
	return nil, false
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}
