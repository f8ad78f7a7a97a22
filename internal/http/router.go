package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// NewRouter configura el router de Gin con middlewares y las rutas del webhook.
func NewRouter(logger *zap.Logger, webhookH *WebhookHandler) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: request id, logging y recovery.
	r.Use(requestIDMiddleware(), zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "messenger-llm is running")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/webhook", webhookH.Verify)
	r.POST("/webhook", webhookH.Receive)

	return r
}

// requestIDMiddleware reutiliza X-Request-ID si viene en la request o genera uno nuevo.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
