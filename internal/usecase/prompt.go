package usecase

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// PromptBuilder assembles the system and user turns sent to the model.
// Extracted texts are token-budgeted so a wall of OCR text cannot blow
// the provider's context window.
type PromptBuilder struct {
	maxPromptTokens int
}

func NewPromptBuilder(maxPromptTokens int) *PromptBuilder {
	if maxPromptTokens <= 0 {
		maxPromptTokens = 8000
	}
	return &PromptBuilder{maxPromptTokens: maxPromptTokens}
}

// SystemPrompt pins the reply structure the DelimiterParser depends on.
func (b *PromptBuilder) SystemPrompt(uiLanguage, targetLanguage string) string {
	lang := targetLanguage
	if lang == "" {
		lang = "the same language as the user's input"
	}
	var sb strings.Builder
	sb.WriteString("You are a senior engineer who solves problems captured in screenshots. ")
	sb.WriteString("Analyze the provided material, restate the problem and give a complete, working solution. ")
	sb.WriteString("Answer in ")
	sb.WriteString(lang)
	sb.WriteString(".\n")
	sb.WriteString("Structure your reply exactly as:\n")
	sb.WriteString(problemMarker + " <concise statement of the problem>\n")
	sb.WriteString(solutionMarker + " <the full solution>\n")
	if uiLanguage != "" && uiLanguage != "en" {
		sb.WriteString("The user's interface language is " + uiLanguage + ".\n")
	}
	return sb.String()
}

// UserPrompt combines numbered extracted texts, the user's own text and
// optional speech context into one turn.
func (b *PromptBuilder) UserPrompt(texts []string, userText, speechContext string) string {
	var sb strings.Builder
	if len(texts) > 0 {
		sb.WriteString("Text extracted from the screenshots:\n")
		for i, t := range texts {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			sb.WriteString(fmt.Sprintf("[Image %d]\n%s\n", i+1, b.truncate(t)))
		}
	}
	if speechContext = strings.TrimSpace(speechContext); speechContext != "" {
		sb.WriteString("\nSpoken context:\n")
		sb.WriteString(b.truncate(speechContext))
		sb.WriteString("\n")
	}
	if userText = strings.TrimSpace(userText); userText != "" {
		sb.WriteString("\nUser note:\n")
		sb.WriteString(userText)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		sb.WriteString("Analyze the attached screenshots and solve the problem they show.")
	}
	return sb.String()
}

// MultimodalPrompt is the textual part of a turn whose images ride along
// as raw payloads.
func (b *PromptBuilder) MultimodalPrompt(userText, speechContext string) string {
	return b.UserPrompt(nil, userText, speechContext)
}

// truncate cuts s to the builder's token budget using cl100k_base.
// Falls back to a character cut if the tokenizer is unavailable.
func (b *PromptBuilder) truncate(s string) string {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if len(s) > b.maxPromptTokens*4 {
			return s[:b.maxPromptTokens*4]
		}
		return s
	}
	ids := enc.Encode(s, nil, nil)
	if len(ids) <= b.maxPromptTokens {
		return s
	}
	return enc.Decode(ids[:b.maxPromptTokens])
}
