package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	Response string
	Deltas   []string
	Err      error
	// StreamErrAfter corta el stream con Err después de emitir ese número de deltas.
	StreamErrAfter int

	mu    sync.Mutex
	Calls [][]Message
}

func (m *MockClient) record(messages []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, append([]Message(nil), messages...))
}

// LastMessages devuelve el prompt de la última llamada.
func (m *MockClient) LastMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}

func (m *MockClient) Complete(_ context.Context, messages []Message) (string, error) {
	m.record(messages)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response == "" {
		return "", ErrEmptyCompletion
	}
	return m.Response, nil
}

func (m *MockClient) Stream(_ context.Context, messages []Message, onDelta func(delta string) error) (string, error) {
	m.record(messages)
	if m.Err != nil && m.StreamErrAfter <= 0 {
		return "", m.Err
	}
	var full strings.Builder
	for i, d := range m.Deltas {
		if m.Err != nil && i == m.StreamErrAfter {
			return full.String(), m.Err
		}
		full.WriteString(d)
		if err := onDelta(d); err != nil {
			return full.String(), err
		}
	}
	if m.Err != nil {
		return full.String(), m.Err
	}
	if full.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return full.String(), nil
}
