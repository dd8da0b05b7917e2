package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"blogsphere/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida el bearer token y guarda claims e identidad en el contexto.
func JWTAuthMiddleware(logger *zap.Logger, jwtSvc *service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, err := jwtSvc.Verify(c.Request.Context(), token)
		if err != nil {
			reason := tokenFailureReason(err)
			if reason == "error" {
				// Fallo del backend de revocación, no del token.
				logger.Error("token verification failed",
					zap.String("path", c.Request.URL.Path),
					zap.Error(err),
				)
			} else {
				logger.Info("token rejected",
					zap.String("reason", reason),
					zap.String("path", c.Request.URL.Path),
				)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(authClaimsKey, claims)
		c.Request = c.Request.WithContext(service.ContextWithIdentity(c.Request.Context(), claims.Identity()))
		c.Next()
	}
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return "expired"
	case errors.Is(err, service.ErrTokenSignature):
		return "invalid_signature"
	case errors.Is(err, service.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, service.ErrTokenMalformed):
		return "malformed"
	default:
		return "error"
	}
}
