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

var permissionSortFields = []string{"name", "resource", "action", "created_at"}

type PermissionHandler struct {
	permissionService service.PermissionService
	authn             *middleware.Authenticator
}

func NewPermissionHandler(permissionService service.PermissionService, authn *middleware.Authenticator) *PermissionHandler {
	return &PermissionHandler{permissionService: permissionService, authn: authn}
}

func (h *PermissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	perms := router.Group("/api/permissions")
	perms.Use(h.authn.Authenticate())
	{
		perms.GET("", h.authn.RequirePermission("permissions.view"), h.ListPermissions)
		perms.GET("/resources", h.authn.RequirePermission("permissions.view"), h.ListResources)
		perms.GET("/actions", h.authn.RequirePermission("permissions.view"), h.ListActions)
		perms.GET("/stats", h.authn.RequirePermission("permissions.view"), h.GetPermissionStats)
		perms.GET("/by-resource/:resource", h.authn.RequirePermission("permissions.view"), h.ListByResource)
		perms.GET("/:id", h.authn.RequirePermission("permissions.view"), h.GetPermission)
		perms.POST("", h.authn.RequirePermission("permissions.create"), h.CreatePermission)
		perms.PUT("/:id", h.authn.RequirePermission("permissions.update"), h.UpdatePermission)
		perms.DELETE("/:id", h.authn.RequirePermission("permissions.delete"), h.DeletePermission)
	}
}

// ListPermissions returns the catalog with the number of roles granting each entry
// @Summary      List permissions
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Param        search      query     string  false  "Matches name or description"
// @Param        resource    query     string  false  "Exact resource"
// @Param        action      query     string  false  "create, read, update, delete, manage or view"
// @Param        sort_by     query     string  false  "name, resource, action or created_at"
// @Param        sort_order  query     string  false  "asc or desc"
// @Success      200         {object}  response.Response{data=object}
// @Failure      400         {object}  response.Response
// @Router       /api/permissions [get]
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	params := pagination.ParseSorted(c, permissionSortFields, "name")
	perms, total, err := h.permissionService.List(c.Request.Context(), repository.PermissionFilter{
		Search:   c.Query("search"),
		Resource: c.Query("resource"),
		Action:   c.Query("action"),
		Params:   params,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"permissions": perms,
		"pagination":  pagination.NewMeta(params, total),
	}))
}

// GetPermission returns one permission
// @Summary      Get permission
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Permission ID"
// @Success      200  {object}  response.Response{data=service.PermissionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/permissions/{id} [get]
func (h *PermissionHandler) GetPermission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	perm, err := h.permissionService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perm))
}

// CreatePermission adds a permission to the catalog
// @Summary      Create permission
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreatePermissionRequest  true  "Permission"
// @Success      201      {object}  response.Response{data=service.PermissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/permissions [post]
func (h *PermissionHandler) CreatePermission(c *gin.Context) {
	var req service.CreatePermissionRequest
	if !bindJSON(c, &req) {
		return
	}
	perm, err := h.permissionService.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, perm))
}

// UpdatePermission changes the fields present in the payload
// @Summary      Update permission
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                              true  "Permission ID"
// @Param        payload  body      service.UpdatePermissionRequest  true  "Permission"
// @Success      200      {object}  response.Response{data=service.PermissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/permissions/{id} [put]
func (h *PermissionHandler) UpdatePermission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.UpdatePermissionRequest
	if !bindJSON(c, &req) {
		return
	}
	perm, err := h.permissionService.Update(c.Request.Context(), id, req, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perm))
}

// DeletePermission removes a permission no role grants
// @Summary      Delete permission
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Permission ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/permissions/{id} [delete]
func (h *PermissionHandler) DeletePermission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.permissionService.Delete(c.Request.Context(), id, actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Permission deleted successfully"}))
}

// ListByResource returns a resource's permissions ordered by action, then name
// @Summary      Permissions by resource
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Param        resource  path      string  true  "Resource"
// @Success      200       {object}  response.Response{data=[]service.PermissionResponse}
// @Router       /api/permissions/by-resource/{resource} [get]
func (h *PermissionHandler) ListByResource(c *gin.Context) {
	perms, err := h.permissionService.ListByResource(c.Request.Context(), c.Param("resource"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// ListResources returns the distinct resources in the catalog
// @Summary      Permission resources
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]string}
// @Router       /api/permissions/resources [get]
func (h *PermissionHandler) ListResources(c *gin.Context) {
	resources, err := h.permissionService.Resources(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, resources))
}

// ListActions returns the allowed permission actions
// @Summary      Permission actions
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]string}
// @Router       /api/permissions/actions [get]
func (h *PermissionHandler) ListActions(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.permissionService.Actions()))
}

// GetPermissionStats summarizes the catalog
// @Summary      Permission statistics
// @Tags         permissions
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.PermissionStatsResponse}
// @Router       /api/permissions/stats [get]
func (h *PermissionHandler) GetPermissionStats(c *gin.Context) {
	stats, err := h.permissionService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
