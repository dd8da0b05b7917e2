package http

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"blogsphere/internal/service"
)

const requestIDHeader = "X-Request-ID"

// RouterOptions agrupa parámetros del router que no son handlers.
type RouterOptions struct {
	AllowedOrigins []string
	// TrustedProxies son los proxies cuyo X-Forwarded-For se acepta. Con nil
	// se usa RemoteAddr.
	TrustedProxies []string
	RateLimitRPM   int
	HealthCheck    func(ctx context.Context) error
}

// NewRouter configura el router de Gin con middlewares y rutas.
// githubH puede ser nil si el login con GitHub no está configurado.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	userH *UserHandler,
	githubH *GitHubHandler,
	opts RouterOptions,
) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), corsMiddleware(opts.AllowedOrigins))

	r.GET("/healthz", healthHandler(opts.HealthCheck))

	public := r.Group("/", IPRateLimitMiddleware(logger, opts.RateLimitRPM))
	public.POST("/signup", userH.SignUp)
	public.POST("/signin", userH.SignIn)
	if githubH != nil {
		public.GET("/github/login", githubH.Login)
		public.GET("/github/callback", githubH.Callback)
	}

	r.GET("/user/:id", userH.GetUser)

	protected := r.Group("/", JWTAuthMiddleware(logger, jwtSvc))
	protected.GET("/profile", userH.Profile)
	protected.POST("/logout", userH.Logout)
	protected.PUT("/user/:id", userH.UpdateUser)

	return r, nil
}

// zapLoggerMiddleware registra cada petición con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsMiddleware permite al SPA llamar a la API con el header Authorization.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := slices.Contains(allowedOrigins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(allowedOrigins, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+requestIDHeader)
			c.Header("Access-Control-Max-Age", "600")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
