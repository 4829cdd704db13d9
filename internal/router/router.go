package router

import (
	"net/http"
	"strconv"

	"proof-host/internal/config"
	"proof-host/internal/handlers"
	"proof-host/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware CORS middleware. No configured origins means "*".
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin == "":
			// same-origin or direct access
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
		default:
			logger.WithFields(logrus.Fields{
				"request_origin":  origin,
				"allowed_origins": cfg.AllowedOrigins,
				"path":            c.Request.URL.Path,
				"method":          c.Request.Method,
				"remote_addr":     c.ClientIP(),
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Handlers groups everything the router mounts
type Handlers struct {
	Proof     *handlers.ProofHandler
	Admin     *handlers.AdminHandler
	WebSocket *handlers.WebSocketHandler
}

func SetupRouter(cfg *config.Config, h Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware(cfg.CORS, logger))

	if len(cfg.Admin.AllowedIPs) > 0 {
		logger.WithFields(logrus.Fields{
			"allowed_ips": cfg.Admin.AllowedIPs,
			"count":       len(cfg.Admin.AllowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)

	// ============ Health Check ============
	r.GET("/health", handlers.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ API v2 ============
	v2 := r.Group("/v2")
	{
		v2.POST("/proof", h.Proof.SubmitV2)
		v2.POST("/proof/status", h.Proof.StatusV2)
		v2.POST("/proof/cancel", h.Proof.CancelV2)
	}

	// ============ API v3 ============
	v3 := r.Group("/v3")
	{
		v3.POST("/proof", h.Proof.SubmitV3)
		v3.POST("/proof/status", h.Proof.StatusV3)
		v3.POST("/proof/cancel", h.Proof.CancelV3)
		v3.GET("/proof/ws", h.WebSocket.HandleWebSocket)
	}

	// ============ Admin (localhost / whitelist only) ============
	admin := r.Group("/admin", localhostOnly.Restrict())
	{
		admin.GET("/pause", h.Admin.GetPause)
		admin.POST("/pause", h.Admin.SetPause)
		admin.GET("/tasks", h.Admin.ListTasks)
		admin.POST("/tasks/history", h.Admin.TaskHistory)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"error":   "not_found",
			"message": "Endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}
