package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MikeMC777/ordenes-checkout/internal/httpx"
)

const ginIdentityKey = "identity"

// Middleware attaches the identity when a bearer token is present. Requests
// without one continue anonymously; a bad token is rejected with 401.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.TrimSpace(header) == "" {
			c.Next()
			return
		}
		token, ok := bearer(header)
		if !ok {
			httpx.Abort(c, httpx.NewError("unauthenticated", "authorization header must use the Bearer scheme", http.StatusUnauthorized))
			return
		}
		identity, err := v.Verify(token)
		if err != nil {
			httpx.Log(c).Info("bearer token rejected", zap.Error(err))
			msg := "invalid token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "token expired"
			}
			httpx.Abort(c, httpx.NewError("unauthenticated", msg, http.StatusUnauthorized))
			return
		}
		c.Set(ginIdentityKey, identity)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := FromContext(c); !ok {
			httpx.Abort(c, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
			return
		}
		c.Next()
	}
}

func FromContext(c *gin.Context) (*Identity, bool) {
	if v, ok := c.Get(ginIdentityKey); ok {
		if id, ok := v.(*Identity); ok && id != nil {
			return id, true
		}
	}
	return nil, false
}

func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
