package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"messenger-llm/internal/domain"
	"messenger-llm/internal/llm"
)

// Modos de entrega del relay.
const (
	RelayModeBatch  = "batch"
	RelayModeStream = "stream"
	RelayModeEcho   = "echo"
)

const (
	DefaultFallbackMessage = "Sorry, I couldn't come up with a reply right now. Please try again in a moment."
	echoPrefix             = "You said: "
	typingOnAction         = "typing_on"
)

var (
	ErrRelayNotConfigured = errors.New("reply relay not configured")
	ErrRelayInvalidInput  = errors.New("reply relay invalid input")
)

// MessageSender entrega mensajes al canal de salida (Send API).
type MessageSender interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendAction(ctx context.Context, recipientID, action string) error
}

// RelayOptions configura el modo de entrega y el reenvío de parciales.
type RelayOptions struct {
	Mode            string
	FallbackMessage string
	TypingIndicator bool
	// FlushEvery reenvía el texto acumulado cada N fragmentos.
	FlushEvery int
	// FlushInterval es el tiempo mínimo entre reenvíos parciales.
	FlushInterval time.Duration
}

// ReplyRelay arma el prompt con el historial, consulta al LLM y entrega la respuesta.
type ReplyRelay struct {
	llmClient llm.ChatClient
	history   HistoryStore
	sender    MessageSender
	prompts   PromptBuilder
	opts      RelayOptions
	locks     *userLocks
	logger    *zap.Logger
	now       func() time.Time
}

func NewReplyRelay(
	llmClient llm.ChatClient,
	history HistoryStore,
	sender MessageSender,
	prompts PromptBuilder,
	opts RelayOptions,
	logger *zap.Logger,
) *ReplyRelay {
	if opts.Mode == "" {
		opts.Mode = RelayModeBatch
	}
	if strings.TrimSpace(opts.FallbackMessage) == "" {
		opts.FallbackMessage = DefaultFallbackMessage
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplyRelay{
		llmClient: llmClient,
		history:   history,
		sender:    sender,
		prompts:   prompts,
		opts:      opts,
		locks:     newUserLocks(),
		logger:    logger,
		now:       time.Now,
	}
}

// Reply responde a un mensaje entrante. Los fallos del LLM no se devuelven: se loguean y se
// entrega el mensaje de fallback sin tocar el historial. Solo se devuelven errores de entrada,
// de entrega o de escritura del historial.
func (r *ReplyRelay) Reply(ctx context.Context, userID, text string) error {
	if r == nil || r.sender == nil {
		return ErrRelayNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(text) == "" {
		return ErrRelayInvalidInput
	}

	if r.opts.Mode == RelayModeEcho {
		return r.deliver(ctx, userID, echoPrefix+text)
	}
	if r.llmClient == nil || r.history == nil {
		return ErrRelayNotConfigured
	}

	unlock := r.locks.Lock(userID)
	defer unlock()

	history, err := r.history.Read(ctx, userID)
	if err != nil {
		r.logger.Warn("read history failed, replying without context", zap.String("user_id", userID), zap.Error(err))
		history = nil
	}
	messages := r.prompts.BuildMessages(history, text)

	if r.opts.TypingIndicator {
		if err := r.sender.SendAction(ctx, userID, typingOnAction); err != nil {
			r.logger.Debug("typing indicator failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	var reply string
	var sendErr error
	switch r.opts.Mode {
	case RelayModeStream:
		var out streamOutcome
		out, err = r.streamReply(ctx, userID, messages)
		reply, sendErr = out.text, out.sendErr
	default:
		reply, err = r.batchReply(ctx, messages)
		if err == nil {
			sendErr = r.deliver(ctx, userID, reply)
		}
	}

	if err != nil {
		r.logger.Error("completion failed, sending fallback",
			zap.String("user_id", userID),
			zap.String("mode", r.opts.Mode),
			zap.Error(err),
		)
		return errors.Join(sendErr, r.deliver(ctx, userID, r.opts.FallbackMessage))
	}

	if err := r.history.Append(ctx, userID, domain.UserTurn(text), domain.AssistantTurn(reply)); err != nil {
		r.logger.Error("append history failed", zap.String("user_id", userID), zap.Error(err))
		return errors.Join(sendErr, fmt.Errorf("append history: %w", err))
	}

	r.logger.Info("reply delivered",
		zap.String("user_id", userID),
		zap.String("mode", r.opts.Mode),
		zap.Int("reply_chars", len(reply)),
	)
	return sendErr
}

func (r *ReplyRelay) batchReply(ctx context.Context, messages []llm.Message) (string, error) {
	raw, err := r.llmClient.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	reply := cleanReplyText(raw)
	if reply == "" {
		return "", llm.ErrEmptyCompletion
	}
	return reply, nil
}

// partialReply acumula los fragmentos del stream y decide cuándo reenviar.
type partialReply struct {
	buf       strings.Builder
	pending   int
	lastSent  string
	lastFlush time.Time
	sends     int
	sendErr   error
}

type streamOutcome struct {
	text    string
	sendErr error
}

// streamReply reenvía el texto acumulado mientras llegan fragmentos. El error devuelto es el
// del LLM; el primer error de entrega viaja en streamOutcome.
func (r *ReplyRelay) streamReply(ctx context.Context, userID string, messages []llm.Message) (streamOutcome, error) {
	p := &partialReply{}

	flush := func() {
		text := cleanReplyText(p.buf.String())
		if text == "" || text == p.lastSent {
			return
		}
		if err := r.deliver(ctx, userID, text); err != nil && p.sendErr == nil {
			p.sendErr = err
		}
		p.lastSent = text
		p.lastFlush = r.now()
		p.pending = 0
		p.sends++
	}

	_, err := r.llmClient.Stream(ctx, messages, func(delta string) error {
		p.buf.WriteString(delta)
		p.pending++
		if p.pending < r.opts.FlushEvery {
			return nil
		}
		if r.opts.FlushInterval > 0 && !p.lastFlush.IsZero() && r.now().Sub(p.lastFlush) < r.opts.FlushInterval {
			return nil
		}
		flush()
		return nil
	})
	if err != nil {
		return streamOutcome{sendErr: p.sendErr}, err
	}

	final := cleanReplyText(p.buf.String())
	if final == "" {
		return streamOutcome{sendErr: p.sendErr}, llm.ErrEmptyCompletion
	}
	// El último envío siempre lleva el texto completo, ya limpio.
	flush()

	r.logger.Debug("stream finished", zap.String("user_id", userID), zap.Int("sends", p.sends), zap.Int("chars", len(final)))
	return streamOutcome{text: final, sendErr: p.sendErr}, nil
}

func (r *ReplyRelay) deliver(ctx context.Context, userID, text string) error {
	if err := r.sender.SendText(ctx, userID, text); err != nil {
		r.logger.Warn("send message failed", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
