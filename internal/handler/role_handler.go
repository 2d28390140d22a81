package handler

import (
	"net/http"

	"ispmanager/internal/middleware"
	"ispmanager/internal/repository"
	"ispmanager/internal/service"
	"ispmanager/pkg/pagination"
	"ispmanager/pkg/response"

	"github.com/gin-gonic/gin"
)

var roleSortFields = []string{"name", "created_at", "updated_at"}

type RoleHandler struct {
	roleService service.RoleService
	authn       *middleware.Authenticator
}

func NewRoleHandler(roleService service.RoleService, authn *middleware.Authenticator) *RoleHandler {
	return &RoleHandler{roleService: roleService, authn: authn}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	roles := router.Group("/api/roles")
	roles.Use(h.authn.Authenticate())
	{
		roles.GET("", h.authn.RequirePermission("roles.view"), h.ListRoles)
		roles.GET("/stats", h.authn.RequirePermission("roles.view"), h.GetRoleStats)
		roles.GET("/:id", h.authn.RequirePermission("roles.view"), h.GetRole)
		roles.GET("/:id/permissions", h.authn.RequirePermission("roles.view"), h.GetRolePermissions)
		roles.POST("", h.authn.RequirePermission("roles.create"), h.CreateRole)
		roles.POST("/:id/assign-permissions", h.authn.RequirePermission("roles.create"), h.AssignPermissions)
		roles.PUT("/:id", h.authn.RequirePermission("roles.update"), h.UpdateRole)
		roles.DELETE("/:id", h.authn.RequirePermission("roles.delete"), h.DeleteRole)
		roles.DELETE("/:id/remove-permissions", h.authn.RequirePermission("roles.delete"), h.RemovePermissions)
	}
}

// ListRoles returns roles with their user and permission counts
// @Summary      List roles
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Param        search      query     string  false  "Matches name or description"
// @Param        sort_by     query     string  false  "name, created_at or updated_at"
// @Param        sort_order  query     string  false  "asc or desc"
// @Success      200         {object}  response.Response{data=object}
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	params := pagination.ParseSorted(c, roleSortFields, "name")
	roles, total, err := h.roleService.List(c.Request.Context(), repository.RoleFilter{
		Search: c.Query("search"),
		Params: params,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"roles":      roles,
		"pagination": pagination.NewMeta(params, total),
	}))
}

// GetRole returns a single role with its permissions ordered by name
// @Summary      Get role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	role, err := h.roleService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// CreateRole creates a new custom role
// @Summary      Create role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRoleRequest  true  "Role"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roleService.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, role))
}

// UpdateRole updates the fields present in the payload. A present
// permissions list replaces the role's permissions.
// @Summary      Update role
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                        true  "Role ID"
// @Param        payload  body      service.UpdateRoleRequest  true  "Role"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roleService.Update(c.Request.Context(), id, req, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// DeleteRole deletes a non-system role that no user holds
// @Summary      Delete role
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Role ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.roleService.Delete(c.Request.Context(), id, actorID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Role deleted successfully"}))
}

// AssignPermissions adds permissions to a role
// @Summary      Assign permissions
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                             true  "Role ID"
// @Param        payload  body      service.RolePermissionsRequest  true  "Permission IDs"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      404      {object}  response.Response
// @Router       /api/roles/{id}/assign-permissions [post]
func (h *RoleHandler) AssignPermissions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.RolePermissionsRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roleService.AssignPermissions(c.Request.Context(), id, req.PermissionIDs, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// RemovePermissions removes permissions from a role
// @Summary      Remove permissions
// @Tags         roles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                             true  "Role ID"
// @Param        payload  body      service.RolePermissionsRequest  true  "Permission IDs"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      404      {object}  response.Response
// @Router       /api/roles/{id}/remove-permissions [delete]
func (h *RoleHandler) RemovePermissions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.RolePermissionsRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roleService.RemovePermissions(c.Request.Context(), id, req.PermissionIDs, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// GetRolePermissions lists the permissions a role grants
// @Summary      Role permissions
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Role ID"
// @Success      200  {object}  response.Response{data=[]service.PermissionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/roles/{id}/permissions [get]
func (h *RoleHandler) GetRolePermissions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	perms, err := h.roleService.Permissions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// GetRoleStats summarizes role usage
// @Summary      Role statistics
// @Tags         roles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.RoleStatsResponse}
// @Router       /api/roles/stats [get]
func (h *RoleHandler) GetRoleStats(c *gin.Context) {
	stats, err := h.roleService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
