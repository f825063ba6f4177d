package service

import (
	"fmt"
	"strings"

	"app/internal/model"
)

// Prompt is the rendered upstream request content for one generation.
type Prompt struct {
	System          string
	User            string
	MaxOutputTokens int
}

// Per-mode output token budgets.
const (
	defaultOutputTokens   = 400
	insightsOutputTokens  = 600
	questionsOutputTokens = 300
)

var defaultSystemPrompts = map[model.Mode]string{
	model.ModeReply: "You are a real-time conversation copilot. You see a live transcript " +
		"of an ongoing conversation and help the user respond well. Be accurate and concise.",
	model.ModeSummary: "You are a conversation summarizer. Produce a faithful, well-structured " +
		"summary of the transcript you are given. Do not invent content.",
	model.ModeInsights: "You are a conversation analyst. Extract the key insights, decisions, " +
		"and action items from the transcript you are given.",
	model.ModeQuestions: "You are a conversation assistant. Suggest sharp follow-up questions " +
		"the user could ask next, based on the transcript.",
}

const replyFormatting = "Formatting: keep the answer short and scannable. " +
	"Prefer bullet points over paragraphs and lead with the most useful point."

// BuildPrompt renders the system and user prompts for a generation. It is a
// pure function of its inputs: identical arguments always produce identical
// output. A caller-supplied system prompt is honored for reply and summary
// modes only.
func BuildPrompt(mode model.Mode, turns []model.Turn, question, systemPrompt string) Prompt {
	system := defaultSystemPrompts[mode]
	if systemPrompt != "" && (mode == model.ModeReply || mode == model.ModeSummary) {
		system = systemPrompt
	}

	transcript := renderTranscript(turns)
	var b strings.Builder

	switch mode {
	case model.ModeSummary:
		b.WriteString("Summarize the following conversation.\n\n")
		b.WriteString(transcript)
	case model.ModeInsights:
		b.WriteString("Identify the key insights, decisions, and action items in the following conversation.\n\n")
		b.WriteString(transcript)
	case model.ModeQuestions:
		b.WriteString("Suggest follow-up questions for the following conversation.\n\n")
		b.WriteString(transcript)
	default: // reply
		if transcript != "" {
			b.WriteString("Conversation so far:\n")
			b.WriteString(transcript)
			b.WriteString("\n\n")
		}
		if question != "" {
			b.WriteString("Question: ")
			b.WriteString(question)
		} else {
			b.WriteString("Help the user respond to the latest message in the conversation.")
		}
		b.WriteString("\n\n")
		b.WriteString(replyFormatting)
	}

	if mode != model.ModeReply && question != "" {
		b.WriteString("\n\nAdditional instruction from the user: ")
		b.WriteString(question)
	}

	return Prompt{
		System:          system,
		User:            b.String(),
		MaxOutputTokens: outputTokens(mode),
	}
}

func outputTokens(mode model.Mode) int {
	switch mode {
	case model.ModeInsights:
		return insightsOutputTokens
	case model.ModeQuestions:
		return questionsOutputTokens
	default:
		return defaultOutputTokens
	}
}

// renderTranscript renders turns as one "SOURCE: text" line each.
func renderTranscript(turns []model.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(t.Source), t.Text))
	}
	return strings.Join(lines, "\n")
}
