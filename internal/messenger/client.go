package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Acciones de remitente soportadas por el Send API.
const (
	ActionTypingOn  = "typing_on"
	ActionTypingOff = "typing_off"
	ActionMarkSeen  = "mark_seen"
)

var ErrMissingAccessToken = errors.New("page access token not configured")

// Client envía mensajes al Send API de Messenger.
type Client struct {
	baseURL     string
	accessToken string
	client      *http.Client
	logger      *zap.Logger
}

// NewClient construye un cliente para <baseURL>/me/messages.
func NewClient(baseURL, accessToken string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v18.0"
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		client:      httpClient,
		logger:      logger,
	}
}

type recipient struct {
	ID string `json:"id"`
}

type textMessage struct {
	Text string `json:"text"`
}

type sendRequest struct {
	Recipient    recipient    `json:"recipient"`
	Message      *textMessage `json:"message,omitempty"`
	SenderAction string       `json:"sender_action,omitempty"`
}

// SendText entrega un mensaje de texto al destinatario.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	return c.send(ctx, sendRequest{
		Recipient: recipient{ID: recipientID},
		Message:   &textMessage{Text: text},
	})
}

// SendAction envía una acción de remitente, por ejemplo typing_on.
func (c *Client) SendAction(ctx context.Context, recipientID, action string) error {
	return c.send(ctx, sendRequest{
		Recipient:    recipient{ID: recipientID},
		SenderAction: action,
	})
}

func (c *Client) send(ctx context.Context, payload sendRequest) error {
	if strings.TrimSpace(c.accessToken) == "" {
		c.logger.Error("page access token not set, skipping send", zap.String("recipient_id", payload.Recipient.ID))
		return ErrMissingAccessToken
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/me/messages?" + url.Values{"access_token": {c.accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := truncate(string(respBody), 400)
		c.logger.Warn("send api error",
			zap.String("recipient_id", payload.Recipient.ID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", body),
		)
		return fmt.Errorf("send api http error: status=%d body=%s", resp.StatusCode, body)
	}

	c.logger.Debug("message sent", zap.String("recipient_id", payload.Recipient.ID), zap.Int("status", resp.StatusCode))
	return nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
