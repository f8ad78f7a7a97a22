package domain

import (
	"strings"
	"time"
)

// Role identifica quién habló en un turno o mensaje de prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid indica si el rol puede guardarse en el historial.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn es un mensaje intercambiado con el usuario; el rol se guarda explícito.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content, CreatedAt: time.Now().UTC()}
}

// Empty reporta si el turno no tiene texto útil.
func (t Turn) Empty() bool {
	return strings.TrimSpace(t.Content) == ""
}
