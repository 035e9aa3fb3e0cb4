package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/moduls/devapi"
)

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(authService *devapi.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		session, err := authService.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			c.Abort()
			respondError(c, err)
			return
		}

		c.Set(addressKey, session.Address)

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
