package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/ProofStamp/internal/auth"
	"github.com/jmerrifield20/ProofStamp/internal/metrics"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// RouterConfig holds the HTTP-layer settings.
type RouterConfig struct {
	CORSOrigins  []string
	RateLimitRPS int
	// VerifyRateLimitRPS is an extra per-IP budget on /verify, on top of
	// the public one. Zero disables it.
	VerifyRateLimitRPS float64
	// Admin guards the admin routes. They are not mounted when nil.
	Admin *auth.Issuer
	// Readiness backs /readyz. The route always reports ready when nil.
	Readiness Readiness
}

// Readiness reports backend dependency state.
type Readiness interface {
	Ready() bool
	Status() map[string]string
}

// NewRouter builds the Gin engine: middleware, health and metrics endpoints,
// the public routes and, when configured, the admin routes. ctx bounds the
// rate limiter's background cleanup.
func NewRouter(ctx context.Context, cfg RouterConfig, h *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: !containsWildcard(cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	router.Use(requestLogger(logger))
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if cfg.Readiness == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		deps := cfg.Readiness.Status()
		if !cfg.Readiness.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "dependencies": deps})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "dependencies": deps})
	})
	router.GET("/metrics", metrics.Handler())

	public := router.Group("/")
	if cfg.RateLimitRPS > 0 {
		public.Use(RateLimiter(ctx, budgetFor("public", float64(cfg.RateLimitRPS))))
	}
	var verifyMW []gin.HandlerFunc
	if cfg.VerifyRateLimitRPS > 0 {
		verifyMW = append(verifyMW, RateLimiter(ctx, budgetFor("verify", cfg.VerifyRateLimitRPS)))
	}
	h.Register(public, verifyMW...)

	if cfg.Admin != nil {
		h.RegisterAdmin(router.Group("/admin", auth.RequireAdmin(cfg.Admin)))
	} else {
		logger.Info("admin routes disabled: no admin secret configured")
	}
	return router
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap and
// tags it with a request id, reusing an incoming X-Request-ID when present.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(requestIDHeader, reqID)

		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", reqID),
		)
	}
}
