package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"messenger-llm/internal/domain"
)

const (
	hubModeSubscribe = "subscribe"
	eventReceived    = "EVENT_RECEIVED"
)

// Replier responde un mensaje de texto entrante.
type Replier interface {
	Reply(ctx context.Context, userID, text string) error
}

// WebhookHandler atiende el handshake y los eventos de Messenger.
type WebhookHandler struct {
	logger      *zap.Logger
	verifyToken string
	replier     Replier
	async       bool
	inflight    sync.WaitGroup
}

// NewWebhookHandler crea el handler; con async=true cada mensaje se responde en su propia goroutine.
func NewWebhookHandler(logger *zap.Logger, verifyToken string, replier Replier, async bool) *WebhookHandler {
	return &WebhookHandler{
		logger:      logger,
		verifyToken: verifyToken,
		replier:     replier,
		async:       async,
	}
}

// Verify maneja GET /webhook.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != hubModeSubscribe || h.verifyToken == "" || token != h.verifyToken {
		h.logger.Warn("webhook verification failed", zap.String("mode", mode))
		c.String(http.StatusForbidden, "verification token mismatch")
		return
	}

	h.logger.Info("webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive maneja POST /webhook. Todo payload JSON válido se confirma con 200; solo los de
// página se despachan.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload domain.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("invalid webhook payload", zap.Error(err))
		c.String(http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.Object != domain.ObjectPage {
		h.logger.Warn("ignoring webhook object", zap.String("object", payload.Object))
		c.String(http.StatusOK, eventReceived)
		return
	}

	requestID := c.GetString("request_id")
	for _, msg := range payload.TextMessages() {
		h.logger.Info("message received",
			zap.String("request_id", requestID),
			zap.String("user_id", msg.SenderID),
			zap.String("mid", msg.MID),
		)
		if h.async {
			h.inflight.Add(1)
			go func(msg domain.InboundText) {
				defer h.inflight.Done()
				h.dispatch(context.Background(), requestID, msg)
			}(msg)
			continue
		}
		h.dispatch(c.Request.Context(), requestID, msg)
	}

	c.String(http.StatusOK, eventReceived)
}

// Wait bloquea hasta que terminen las respuestas asíncronas en curso o venza ctx.
func (h *WebhookHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WebhookHandler) dispatch(ctx context.Context, requestID string, msg domain.InboundText) {
	if err := h.replier.Reply(ctx, msg.SenderID, msg.Text); err != nil {
		h.logger.Warn("reply failed",
			zap.String("request_id", requestID),
			zap.String("user_id", msg.SenderID),
			zap.Error(err),
		)
	}
}
