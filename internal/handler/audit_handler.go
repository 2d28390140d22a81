package handler

import (
	"net/http"
	"strconv"

	"ispmanager/internal/middleware"
	"ispmanager/internal/model"
	"ispmanager/internal/repository"
	"ispmanager/internal/service"
	"ispmanager/pkg/pagination"
	"ispmanager/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	authn        *middleware.Authenticator
}

func NewAuditHandler(auditService service.AuditService, authn *middleware.Authenticator) *AuditHandler {
	return &AuditHandler{auditService: auditService, authn: authn}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(h.authn.Authenticate(), h.authn.RequireRole(model.RoleAdmin)) // Protect history logs
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated access-control changes, newest first
// @Summary      Get audit logs
// @Description  Lists who changed which user, role or permission, and when
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Param        action       query     string  false  "e.g. DELETE_ROLE"
// @Param        entity_type  query     string  false  "user, role or permission"
// @Param        user_id      query     int     false  "Actor user ID"
// @Success      200          {object}  response.Response{data=object}
// @Failure      403          {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	params := pagination.Parse(c)
	f := repository.AuditFilter{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		Params:     params,
	}
	if v, err := strconv.ParseUint(c.Query("user_id"), 10, 64); err == nil {
		f.UserID = uint(v)
	}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"logs":       logs,
		"pagination": pagination.NewMeta(params, total),
	}))
}
