package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var ErrEmptyCompletion = errors.New("llm empty response")

// Message es un turno del prompt enviado al proveedor.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient define la interfaz para generar respuestas con un LLM.
type ChatClient interface {
	// Complete devuelve el texto completo de la primera opción.
	Complete(ctx context.Context, messages []Message) (string, error)
	// Stream invoca onDelta por cada fragmento recibido y devuelve el texto acumulado.
	Stream(ctx context.Context, messages []Message, onDelta func(delta string) error) (string, error)
}

// StatusError indica que el proveedor respondió con un status distinto de 2xx.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm http error: status=%d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Options agrupa los parámetros de generación.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIClient implementa ChatClient usando una API compatible con OpenAI.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIClient construye un cliente apuntando a la API de chat completions.
func NewOpenAIClient(opts Options, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		logger:      logger,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(messages, false))
	if err != nil {
		return "", c.wrapError("chat completion", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, onDelta func(delta string) error) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(messages, true))
	if err != nil {
		return "", c.wrapError("chat completion stream", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), c.wrapError("stream recv", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), fmt.Errorf("delta handler: %w", err)
			}
		}
	}

	if full.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return full.String(), nil
}

func (c *OpenAIClient) request(messages []Message, stream bool) openai.ChatCompletionRequest {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	// Temperature lleva omitempty en el SDK: un 0 literal no se enviaría.
	temperature := c.temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    out,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
}

// wrapError traduce los errores de status del SDK a StatusError.
func (c *OpenAIClient) wrapError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		c.logger.Warn("llm error status", zap.String("op", op), zap.Int("status", apiErr.HTTPStatusCode), zap.String("message", apiErr.Message))
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		c.logger.Warn("llm error status", zap.String("op", op), zap.Int("status", reqErr.HTTPStatusCode))
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
