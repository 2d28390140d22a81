package handler

import (
	"errors"
	"net/http"
	"strconv"

	"ispmanager/internal/middleware"
	"ispmanager/internal/service"
	"ispmanager/internal/validation"
	"ispmanager/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondError maps service errors to HTTP statuses. Unclassified errors are
// attached to the context for the request logger and reported as 500.
func respondError(c *gin.Context, err error) {
	var ve *service.ValidationError
	var ce *service.ConflictError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, response.ErrorWithDetails(http.StatusBadRequest, "Validation failed", ve.Fields))
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid credentials"))
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid or expired token"))
	case errors.Is(err, service.ErrWrongCurrentPassword), errors.Is(err, service.ErrSelfDelete):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	case errors.Is(err, service.ErrSystemRole):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.As(err, &ce):
		details := gin.H{"reason": ce.Reason}
		if ce.Reason == service.ReasonInUse {
			details["count"] = ce.Count
		}
		c.JSON(http.StatusConflict, response.ErrorWithDetails(http.StatusConflict, ce.Error(), details))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
	}
}

// bindJSON decodes the body and reports binding failures with field messages
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if fields := validation.Messages(err); fields != nil {
			c.JSON(http.StatusBadRequest, response.ErrorWithDetails(http.StatusBadRequest, "Validation failed", fields))
		} else {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		}
		return false
	}
	return true
}

// paramID parses a positive integer path parameter
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid "+name))
		return 0, false
	}
	return uint(id), true
}

// actorID is the authenticated user performing the request, 0 if none
func actorID(c *gin.Context) uint {
	if p := middleware.GetPrincipal(c); p != nil {
		return p.UserID
	}
	return 0
}
