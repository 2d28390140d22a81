package handler

import (
	"net/http"
	"strconv"

	"ispmanager/internal/middleware"
	"ispmanager/internal/repository"
	"ispmanager/internal/service"
	"ispmanager/pkg/pagination"
	"ispmanager/pkg/response"

	"github.com/gin-gonic/gin"
)

var userSortFields = []string{"created_at", "username", "email", "full_name"}

type UserHandler struct {
	userService service.UserService
	authn       *middleware.Authenticator
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService, authn *middleware.Authenticator) *UserHandler {
	return &UserHandler{userService: userService, authn: authn}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	users := router.Group("/api/users")
	users.Use(h.authn.Authenticate())
	{
		users.GET("", h.authn.RequirePermission("users.view"), h.ListUsers)
		users.GET("/:id", h.authn.RequirePermission("users.view"), h.GetUser)
		users.GET("/:id/roles", h.authn.RequirePermission("users.view"), h.GetUserRoles)
		users.GET("/:id/permissions", h.authn.RequirePermission("users.view"), h.GetUserPermissions)
		users.POST("", h.authn.RequirePermission("users.create"), h.CreateUser)
		users.PUT("/:id", h.authn.RequirePermission("users.update"), h.UpdateUser)
		users.POST("/:id/assign-role", h.authn.RequirePermission("users.update"), h.AssignRole)
		users.DELETE("/:id/remove-role", h.authn.RequirePermission("users.update"), h.RemoveRole)
		users.DELETE("/:id", h.authn.RequirePermission("users.delete"), h.DeleteUser)
	}
}

// CreateUser handles POST /api/users
// @Summary      Create a new user
// @Description  Creates a user, hashing the password and assigning the given roles
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "Create User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// ListUsers handles GET /api/users
// @Summary      List users
// @Description  Retrieves a paginated list of users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Param        search      query     string  false  "Matches username, email or full name"
// @Param        is_active   query     bool    false  "Filter by active flag"
// @Param        role_id     query     int     false  "Only users holding this role"
// @Param        sort_by     query     string  false  "created_at, username, email or full_name"
// @Param        sort_order  query     string  false  "asc or desc"
// @Success      200         {object}  response.Response{data=object}
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	params := pagination.ParseSorted(c, userSortFields, "created_at")
	f := repository.UserFilter{Search: c.Query("search"), Params: params}
	if v, err := strconv.ParseBool(c.Query("is_active")); err == nil {
		f.IsActive = &v
	}
	if v, err := strconv.ParseUint(c.Query("role_id"), 10, 64); err == nil {
		f.RoleID = uint(v)
	}

	users, total, err := h.userService.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"users":      users,
		"pagination": pagination.NewMeta(params, total),
	}))
}

// GetUser handles GET /api/users/:id
// @Summary      Get user by ID
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// UpdateUser handles PUT /api/users/:id
// @Summary      Update user
// @Description  Updates the fields present in the payload. Passwords are not changed here.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                        true  "User ID"
// @Param        payload  body      service.UpdateUserRequest  true  "Update User Payload"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Update(c.Request.Context(), id, req, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// DeleteUser handles DELETE /api/users/:id
// @Summary      Delete user
// @Description  Deletes a user and its role assignments. Deleting yourself is rejected.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.userService.Delete(c.Request.Context(), id, actorID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "User deleted successfully"))
}

// AssignRole handles POST /api/users/:id/assign-role
// @Summary      Assign role
// @Description  Grants a role to the user. Assigning a held role is a no-op.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                        true  "User ID"
// @Param        payload  body      service.AssignRoleRequest  true  "Role"
// @Success      200      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id}/assign-role [post]
func (h *UserHandler) AssignRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.AssignRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userService.AssignRole(c.Request.Context(), id, req.RoleID, actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Role assigned successfully"))
}

// RemoveRole handles DELETE /api/users/:id/remove-role
// @Summary      Remove role
// @Description  Revokes a role from the user. Removing an absent role is a no-op.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int                        true  "User ID"
// @Param        payload  body      service.AssignRoleRequest  true  "Role"
// @Success      200      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/users/{id}/remove-role [delete]
func (h *UserHandler) RemoveRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.AssignRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.userService.RemoveRole(c.Request.Context(), id, req.RoleID, actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Role removed successfully"))
}

// GetUserRoles handles GET /api/users/:id/roles
// @Summary      List user roles
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id}/roles [get]
func (h *UserHandler) GetUserRoles(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	roles, err := h.userService.Roles(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}

// GetUserPermissions handles GET /api/users/:id/permissions
// @Summary      Effective permissions
// @Description  Union of the permissions granted by every role the user holds
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserPermissionsResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id}/permissions [get]
func (h *UserHandler) GetUserPermissions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	perms, err := h.userService.Permissions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}
