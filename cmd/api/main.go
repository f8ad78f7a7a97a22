package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"messenger-llm/internal/config"
	apihttp "messenger-llm/internal/http"
	"messenger-llm/internal/llm"
	"messenger-llm/internal/messenger"
	"messenger-llm/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.PageAccessToken == "" {
		logger.Warn("page access token not configured, replies will not be delivered")
	}

	var history service.HistoryStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory history", zap.Error(err))
		} else {
			history = service.NewRedisHistoryStore(redisClient, cfg.HistoryMaxTurns, cfg.HistoryIdleTTL)
			defer redisClient.Close()
		}
		cancel()
	}
	if history == nil {
		memStore := service.NewMemoryHistoryStore(service.MemoryHistoryOptions{
			MaxTurns:    cfg.HistoryMaxTurns,
			MaxSessions: cfg.HistoryMaxSessions,
			IdleTTL:     cfg.HistoryIdleTTL,
		})
		janitor := service.NewHistoryJanitor(memStore, cfg.HistoryCleanupInterval, logger)
		janitor.Start(ctx)
		defer janitor.Stop()
		history = memStore
	}

	var llmClient llm.ChatClient
	if cfg.RelayMode != config.ModeEcho {
		llmClient = llm.NewOpenAIClient(llm.Options{
			BaseURL:     cfg.LLMBaseURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			Timeout:     cfg.LLMTimeout,
		}, logger)
	}

	sender := messenger.NewClient(cfg.GraphAPIURL, cfg.PageAccessToken, nil, logger)
	prompts := service.PromptBuilder{
		SystemPrompt:   cfg.SystemPrompt,
		IncludeHistory: cfg.HistoryInPrompt,
	}
	relay := service.NewReplyRelay(llmClient, history, sender, prompts, service.RelayOptions{
		Mode:            cfg.RelayMode,
		FallbackMessage: cfg.FallbackMessage,
		TypingIndicator: cfg.TypingIndicator,
		FlushEvery:      cfg.StreamFlushEvery,
		FlushInterval:   cfg.StreamFlushInterval,
	}, logger)

	webhookHandler := apihttp.NewWebhookHandler(logger, cfg.VerifyToken, relay, cfg.WebhookAsync)
	router := apihttp.NewRouter(logger, webhookHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
		// Las respuestas asíncronas siguen vivas tras cerrar el listener.
		if err := webhookHandler.Wait(shutdownCtx); err != nil {
			logger.Warn("pending replies abandoned", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("mode", cfg.RelayMode),
		zap.String("model", cfg.LLMModel),
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
	<-shutdownDone
	logger.Info("server stopped")
}
