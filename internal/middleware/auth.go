package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ispmanager/internal/authz"
	"ispmanager/internal/metrics"
	"ispmanager/internal/service"
	"ispmanager/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// PrincipalKey is the gin context key holding the *authz.Principal
	PrincipalKey = "principal"
	// TokenCookie is the cookie carrying the access token for browser clients
	TokenCookie = "access_token"
)

// Authenticator binds bearer tokens to principals and gates routes on them.
type Authenticator struct {
	auth    service.AuthService
	metrics *metrics.Metrics
	log     *zap.Logger
	timeout time.Duration
	secure  bool
}

// NewAuthenticator bounds every principal lookup by timeout. secure marks
// the token cookie Secure and SameSite=None for cross-origin deployments.
func NewAuthenticator(auth service.AuthService, m *metrics.Metrics, log *zap.Logger, timeout time.Duration, secure bool) *Authenticator {
	return &Authenticator{
		auth:    auth,
		metrics: m,
		log:     log,
		timeout: timeout,
		secure:  secure,
	}
}

// GetPrincipal returns the principal set by Authenticate, or nil.
func GetPrincipal(c *gin.Context) *authz.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*authz.Principal)
	return p
}

// Authenticate verifies the token from the access_token cookie or the
// Authorization header and stores the resolved principal on the context.
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), a.timeout)
		defer cancel()

		p, err := a.auth.Authenticate(ctx, tokenString)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				a.log.Info("request unauthenticated", zap.String("path", c.FullPath()), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid or expired token"))
				return
			}
			// store failure or timeout: never let the request through
			a.log.Error("failed to authenticate request", zap.String("path", c.FullPath()), zap.Error(err))
			d := authz.Failed()
			a.metrics.AuthzDecisionsTotal.WithLabelValues("authenticate", string(d.Reason)).Inc()
			a.enforce(c, d)
			return
		}

		c.Set(PrincipalKey, p)
		c.Next()
	}
}

// RequirePermission lets the request through when the principal holds ANY of perms.
// It must run after Authenticate.
func (a *Authenticator) RequirePermission(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := a.check(c, "permission", func(p *authz.Principal) authz.Decision {
			return authz.RequirePermission(p, perms...)
		})
		a.enforce(c, d)
	}
}

// RequireRole lets the request through when the principal holds ANY of roles.
// It must run after Authenticate.
func (a *Authenticator) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := a.check(c, "role", func(p *authz.Principal) authz.Decision {
			return authz.RequireRole(p, roles...)
		})
		a.enforce(c, d)
	}
}

// check decides on the principal Authenticate resolved for this request.
func (a *Authenticator) check(c *gin.Context, kind string, decide func(*authz.Principal) authz.Decision) authz.Decision {
	p := GetPrincipal(c)
	d := decide(p)
	a.metrics.AuthzDecisionsTotal.WithLabelValues(kind, string(d.Reason)).Inc()
	if !d.Allowed && p != nil {
		a.log.Info("access denied",
			zap.Uint("user_id", p.UserID),
			zap.String("path", c.FullPath()),
			zap.String("reason", string(d.Reason)),
			zap.Strings("required", d.Required))
	}
	return d
}

func (a *Authenticator) enforce(c *gin.Context, d authz.Decision) {
	if d.Allowed {
		c.Next()
		return
	}

	switch d.Reason {
	case authz.ReasonUnauthenticated:
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authentication required"))
	case authz.ReasonInsufficientRole:
		c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorWithDetails(http.StatusForbidden,
			"Access denied: insufficient role", gin.H{"required_roles": d.Required}))
	case authz.ReasonInsufficientPermissions:
		c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorWithDetails(http.StatusForbidden,
			"Access denied: insufficient permissions", gin.H{"required_permissions": d.Required}))
	default:
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "Failed to verify permissions"))
	}
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func (a *Authenticator) SetTokenCookie(c *gin.Context, token string, ttl time.Duration) {
	a.setCookie(c, token, int(ttl.Seconds()))
}

// ClearTokenCookie removes the access token cookie. The token itself stays
// valid until it expires.
func (a *Authenticator) ClearTokenCookie(c *gin.Context) {
	a.setCookie(c, "", -1)
}

func (a *Authenticator) setCookie(c *gin.Context, value string, maxAge int) {
	// Production (cross-origin): SameSiteNoneMode + Secure=true
	// Development (same-site):   SameSiteLaxMode  + Secure=false
	sameSite := http.SameSiteLaxMode
	if a.secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(TokenCookie, value, maxAge, "/", "", a.secure, true)
}

// extractToken tries the cookie first, then "Authorization: Bearer <token>".
func extractToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(TokenCookie); err == nil && token != "" {
		return token, true
	}

	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
