package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"google.golang.org/genai"

	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIProvider = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client *genai.Client
	maxOut int
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("gemini: no messages")
	}
	var system string
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if t.Role == "system" {
			system = t.Content
			continue
		}
		contents = append(contents, toGenAIContent(t))
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.maxOut),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return "", err
	}
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", errors.New("gemini: empty response")
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, toGenAIContent(t))
	}
	resp, err := g.client.Models.CountTokens(ctx, modelName, contents, nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func toGenAIContent(t model.Turn) *genai.Content {
	role := genai.RoleUser
	switch strings.ToLower(t.Role) {
	case "assistant", "model":
		role = genai.RoleModel
	}
	parts := make([]*genai.Part, 0, len(t.Images)+1)
	if t.Content != "" {
		parts = append(parts, &genai.Part{Text: t.Content})
	}
	for _, img := range t.Images {
		raw, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			continue
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: sniffMediaType(raw), Data: raw},
		})
	}
	return &genai.Content{Role: role, Parts: parts}
}
