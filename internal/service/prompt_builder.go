package service

import (
	"strings"

	"messenger-llm/internal/domain"
	"messenger-llm/internal/llm"
)

const DefaultSystemPrompt = "You are a helpful assistant replying to Messenger users. Keep answers short."

// PromptBuilder arma la lista de mensajes que se envía al LLM.
type PromptBuilder struct {
	SystemPrompt   string
	IncludeHistory bool
}

// BuildMessages devuelve: preámbulo de sistema, historial en orden y el nuevo mensaje del usuario.
func (b PromptBuilder) BuildMessages(history []domain.Turn, userText string) []llm.Message {
	system := strings.TrimSpace(b.SystemPrompt)
	if system == "" {
		system = DefaultSystemPrompt
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: string(domain.RoleSystem), Content: system})

	if b.IncludeHistory {
		for _, t := range history {
			// Los turnos sin rol válido o vacíos no aportan contexto.
			if !t.Role.Valid() || t.Empty() {
				continue
			}
			messages = append(messages, llm.Message{Role: string(t.Role), Content: t.Content})
		}
	}

	messages = append(messages, llm.Message{Role: string(domain.RoleUser), Content: userText})
	return messages
}
