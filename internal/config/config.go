package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Modos de respuesta soportados por el relay.
const (
	ModeBatch  = "batch"
	ModeStream = "stream"
	ModeEcho   = "echo"
)

var ErrMissingLLMAPIKey = errors.New("LLM_API_KEY is required for batch and stream modes")

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort        string `env:"HTTP_PORT" envDefault:"10000"`
	VerifyToken     string `env:"VERIFY_TOKEN,required,notEmpty"`
	PageAccessToken string `env:"PAGE_ACCESS_TOKEN"`
	GraphAPIURL     string `env:"GRAPH_API_URL" envDefault:"https://graph.facebook.com/v18.0"`
	WebhookAsync    bool   `env:"WEBHOOK_ASYNC" envDefault:"true"`

	RelayMode       string        `env:"RELAY_MODE" envDefault:"batch"`
	SystemPrompt    string        `env:"SYSTEM_PROMPT" envDefault:"You are a helpful assistant replying to Messenger users. Keep answers short."`
	FallbackMessage string        `env:"FALLBACK_MESSAGE" envDefault:"Sorry, I couldn't come up with a reply right now. Please try again in a moment."`
	TypingIndicator bool          `env:"TYPING_INDICATOR" envDefault:"false"`
	LLMAPIKey       string        `env:"LLM_API_KEY"`
	LLMBaseURL      string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel        string        `env:"LLM_MODEL" envDefault:"gpt-3.5-turbo"`
	LLMTemperature  float32       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxTokens    int           `env:"LLM_MAX_TOKENS" envDefault:"300"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	StreamFlushEvery    int           `env:"STREAM_FLUSH_EVERY" envDefault:"1"`
	StreamFlushInterval time.Duration `env:"STREAM_FLUSH_INTERVAL" envDefault:"0s"`

	HistoryMaxTurns        int           `env:"HISTORY_MAX_TURNS" envDefault:"10"`
	HistoryInPrompt        bool          `env:"HISTORY_IN_PROMPT" envDefault:"true"`
	HistoryIdleTTL         time.Duration `env:"HISTORY_IDLE_TTL" envDefault:"30m"`
	HistoryMaxSessions     int           `env:"HISTORY_MAX_SESSIONS" envDefault:"10000"`
	HistoryCleanupInterval time.Duration `env:"HISTORY_CLEANUP_INTERVAL" envDefault:"1m"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.RelayMode = strings.ToLower(strings.TrimSpace(cfg.RelayMode))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa combinaciones que env.Parse no puede expresar.
func (c *Config) Validate() error {
	switch c.RelayMode {
	case ModeBatch, ModeStream:
		if strings.TrimSpace(c.LLMAPIKey) == "" {
			return ErrMissingLLMAPIKey
		}
	case ModeEcho:
	default:
		return fmt.Errorf("unknown RELAY_MODE %q", c.RelayMode)
	}
	if c.HistoryMaxTurns <= 0 {
		return fmt.Errorf("HISTORY_MAX_TURNS must be positive, got %d", c.HistoryMaxTurns)
	}
	return nil
}
