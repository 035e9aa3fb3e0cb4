package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/moduls/devapi"
	"github.com/layer-3/moduls/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRouter sets up the Gin router. With a non-nil reg, request counters
// are registered on it and it is served at /metrics.
func SetupRouter(authService *devapi.AuthService, registry *devapi.Registry, reg *prometheus.Registry, log *logrus.Entry) *gin.Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	if reg != nil {
		router.Use(requestMetrics(metrics.NewServer(reg)))
	}

	auth := NewAuthHandlers(authService)
	agents := NewAgentHandlers(registry, log)
	requireAuth := AuthMiddleware(authService)

	authGroup := router.Group("/auth")
	{
		authGroup.GET("/nonce", auth.Nonce)
		authGroup.POST("/verify", auth.Verify)
		authGroup.POST("/logout", auth.Logout)
		authGroup.GET("/me", requireAuth, auth.Me)
	}

	router.GET("/agents", agents.List)
	router.GET("/agents/mine", requireAuth, agents.Mine)
	router.GET("/agents/:id", agents.Get)
	router.POST("/agents", requireAuth, agents.Create)
	router.GET("/search", agents.Search)
	router.GET("/trading/:token/metrics", agents.Metrics)
	router.GET("/tokens/:token/holders", agents.Holders)
	router.GET("/webhooks/status", agents.WebhookStatus)
	router.POST("/webhooks/trade", agents.Trade)

	if reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	return router
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"request_id": c.GetHeader("X-Request-ID"),
		}).Debug("request")
	}
}

func requestMetrics(m *metrics.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.Request(c.FullPath(), c.Request.Method, c.Writer.Status())
	}
}
