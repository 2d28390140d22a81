package handler

import (
	"net/http"

	"ispmanager/internal/middleware"
	"ispmanager/internal/service"
	"ispmanager/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService service.AuthService
	tokens      service.TokenService
	authn       *middleware.Authenticator
}

func NewAuthHandler(authService service.AuthService, tokens service.TokenService, authn *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{authService: authService, tokens: tokens, authn: authn}
}

func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/api/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/register", h.Register)
		auth.GET("/me", h.authn.Authenticate(), h.Me)
		auth.POST("/change-password", h.authn.Authenticate(), h.ChangePassword)
		auth.POST("/logout", h.authn.Authenticate(), h.Logout)
	}
}

// Login handles POST /api/auth/login
// @Summary      Login
// @Description  Verifies email and password and returns the principal with a signed access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.LoginResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.authn.SetTokenCookie(c, res.Token, h.tokens.TTL())
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Register handles POST /api/auth/register
// @Summary      Register
// @Description  Creates a customer account and logs it in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterRequest  true  "Registration"
// @Success      201      {object}  response.Response{data=service.LoginResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.authn.SetTokenCookie(c, res.Token, h.tokens.TTL())
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// Me handles GET /api/auth/me
// @Summary      Current principal
// @Description  Returns the authenticated user with its roles and effective permissions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=authz.Principal}
// @Failure      401  {object}  response.Response
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, middleware.GetPrincipal(c)))
}

// ChangePassword handles POST /api/auth/change-password
// @Summary      Change password
// @Description  Replaces the caller's password after re-checking the current one
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ChangePasswordRequest  true  "Passwords"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /api/auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), actorID(c), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Password changed successfully"))
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so this only
// clears the cookie; the token stays valid until it expires.
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	h.authn.ClearTokenCookie(c)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Logged out"))
}
