package service

import (
	"testing"

	"messenger-llm/internal/domain"
)

func TestPromptBuilder_OrderAndRoles(t *testing.T) {
	b := PromptBuilder{SystemPrompt: "be brief", IncludeHistory: true}
	history := []domain.Turn{
		domain.UserTurn("hola"),
		domain.AssistantTurn("buenas"),
		domain.UserTurn("todo bien?"),
		domain.AssistantTurn("si"),
	}

	msgs := b.BuildMessages(history, "genial")
	if len(msgs) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "be brief" {
		t.Fatalf("expected system preamble first, got %+v", msgs[0])
	}
	wantRoles := []string{"system", "user", "assistant", "user", "assistant", "user"}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Fatalf("message %d: expected role %s, got %s", i, wantRoles[i], m.Role)
		}
	}
	if msgs[5].Content != "genial" {
		t.Fatalf("expected newest user text last, got %q", msgs[5].Content)
	}
}

func TestPromptBuilder_ExplicitRolesSurviveBrokenAlternation(t *testing.T) {
	b := PromptBuilder{IncludeHistory: true}
	history := []domain.Turn{
		domain.UserTurn("primero"),
		domain.UserTurn("segundo"),
		domain.AssistantTurn("respuesta"),
	}

	msgs := b.BuildMessages(history, "tercero")
	if msgs[1].Role != "user" || msgs[2].Role != "user" || msgs[3].Role != "assistant" {
		t.Fatalf("expected stored roles kept, got %+v", msgs)
	}
}

func TestPromptBuilder_Defaults(t *testing.T) {
	t.Run("default system prompt", func(t *testing.T) {
		msgs := PromptBuilder{}.BuildMessages(nil, "hola")
		if len(msgs) != 2 || msgs[0].Content != DefaultSystemPrompt {
			t.Fatalf("expected default system prompt, got %+v", msgs)
		}
	})

	t.Run("history disabled", func(t *testing.T) {
		msgs := PromptBuilder{IncludeHistory: false}.BuildMessages([]domain.Turn{domain.UserTurn("viejo")}, "nuevo")
		if len(msgs) != 2 || msgs[1].Content != "nuevo" {
			t.Fatalf("expected only system and newest user text, got %+v", msgs)
		}
	})

	t.Run("skips empty and invalid turns", func(t *testing.T) {
		history := []domain.Turn{
			{Role: domain.RoleUser, Content: "  "},
			{Role: "narrator", Content: "x"},
			domain.AssistantTurn("ok"),
		}
		msgs := PromptBuilder{IncludeHistory: true}.BuildMessages(history, "hola")
		if len(msgs) != 3 || msgs[1].Content != "ok" {
			t.Fatalf("unexpected messages %+v", msgs)
		}
	})
}
