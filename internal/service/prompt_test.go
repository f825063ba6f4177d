package service

import (
	"strings"
	"testing"

	"app/internal/model"
)

func TestBuildPromptReply(t *testing.T) {
	turns := []model.Turn{
		{Source: "mic", Text: "hello"},
		{Source: "system", Text: "hi there"},
	}

	p := BuildPrompt(model.ModeReply, turns, "what should I say next", "")

	if !strings.Contains(p.User, "MIC: hello") {
		t.Errorf("user prompt missing mic turn: %q", p.User)
	}
	if !strings.Contains(p.User, "SYSTEM: hi there") {
		t.Errorf("user prompt missing system turn: %q", p.User)
	}
	if !strings.Contains(p.User, "Question: what should I say next") {
		t.Errorf("user prompt missing question: %q", p.User)
	}
	if p.System != defaultSystemPrompts[model.ModeReply] {
		t.Errorf("unexpected system prompt: %q", p.System)
	}
	if p.MaxOutputTokens != defaultOutputTokens {
		t.Errorf("MaxOutputTokens = %d, want %d", p.MaxOutputTokens, defaultOutputTokens)
	}
}

func TestBuildPromptCustomSystem(t *testing.T) {
	custom := "You are a pirate."

	p := BuildPrompt(model.ModeReply, nil, "hi", custom)
	if p.System != custom {
		t.Errorf("reply mode should honor custom system prompt, got %q", p.System)
	}

	p = BuildPrompt(model.ModeSummary, []model.Turn{{Source: "mic", Text: "a"}}, "", custom)
	if p.System != custom {
		t.Errorf("summary mode should honor custom system prompt, got %q", p.System)
	}

	p = BuildPrompt(model.ModeInsights, []model.Turn{{Source: "mic", Text: "a"}}, "", custom)
	if p.System != defaultSystemPrompts[model.ModeInsights] {
		t.Errorf("insights mode should ignore custom system prompt, got %q", p.System)
	}
}

func TestBuildPromptQuestionAppendedForNonReply(t *testing.T) {
	p := BuildPrompt(model.ModeSummary, []model.Turn{{Source: "mic", Text: "a"}}, "focus on pricing", "")

	if !strings.Contains(p.User, "Additional instruction from the user: focus on pricing") {
		t.Errorf("summary prompt missing appended question: %q", p.User)
	}
}

func TestBuildPromptBudgets(t *testing.T) {
	tests := []struct {
		mode model.Mode
		want int
	}{
		{model.ModeReply, defaultOutputTokens},
		{model.ModeSummary, defaultOutputTokens},
		{model.ModeInsights, insightsOutputTokens},
		{model.ModeQuestions, questionsOutputTokens},
	}
	for _, tt := range tests {
		p := BuildPrompt(tt.mode, nil, "q", "")
		if p.MaxOutputTokens != tt.want {
			t.Errorf("mode %s: MaxOutputTokens = %d, want %d", tt.mode, p.MaxOutputTokens, tt.want)
		}
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	turns := []model.Turn{{Source: "mic", Text: "hello"}}

	first := BuildPrompt(model.ModeInsights, turns, "q", "sys")
	for i := 0; i < 20; i++ {
		if got := BuildPrompt(model.ModeInsights, turns, "q", "sys"); got != first {
			t.Fatalf("BuildPrompt not deterministic: %+v vs %+v", first, got)
		}
	}
}
