package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	actorKey     = "actor"
	TokenCookie  = "access_token"
	bearerPrefix = "Bearer"
)

// Authenticator resolves a raw access token into an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// CookieOptions controls how the access token cookie is written.
// Cross-origin deployments need SameSite=None with Secure.
type CookieOptions struct {
	Secure bool
}

func (o CookieOptions) sameSite() http.SameSite {
	if o.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// SetTokenCookie stores the access token as an HttpOnly cookie.
func SetTokenCookie(c *gin.Context, opts CookieOptions, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(opts.sameSite())
	c.SetCookie(TokenCookie, token, maxAge, "/", "", opts.Secure, true)
}

// ClearTokenCookie removes the access token cookie.
func ClearTokenCookie(c *gin.Context, opts CookieOptions) {
	c.SetSameSite(opts.sameSite())
	c.SetCookie(TokenCookie, "", -1, "/", "", opts.Secure, true)
}

// Authenticate validates the access token and stores the caller as a
// service.Actor on the context. Permission checks happen in the services.
func Authenticate(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid or expired token"))
			return
		}

		c.Set(actorKey, service.ActorFromUser(user))
		c.Next()
	}
}

// extractToken prefers the cookie and falls back to the Authorization header.
func extractToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(TokenCookie); err == nil && token != "" {
		return token, true
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != bearerPrefix {
		return "", false
	}
	return parts[1], true
}

// ActorFrom returns the caller stored by Authenticate.
func ActorFrom(c *gin.Context) (service.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return service.Actor{}, false
	}
	actor, ok := v.(service.Actor)
	return actor, ok
}
