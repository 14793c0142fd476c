package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIProvider = (*AnthropicAdapter)(nil)

// AnthropicAdapter implements adapter.AIProvider against the Messages API.
// System turns are lifted into the top-level system field; image turns are
// sent as base64 source blocks with a sniffed media type.
type AnthropicAdapter struct {
	apiKey string
	base   string // e.g., https://api.anthropic.com
	client *http.Client
	maxOut int
}

func NewAnthropicAdapter(apiKey, base string, maxOut int) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key empty")
	}
	if base == "" {
		base = "https://api.anthropic.com"
	}
	if maxOut <= 0 {
		maxOut = 4096
	}
	return &AnthropicAdapter{
		apiKey: apiKey,
		base:   base,
		client: &http.Client{Timeout: 120 * time.Second},
		maxOut: maxOut,
	}, nil
}

type anthContentBlock struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *anthImageBlock `json:"source,omitempty"`
}

type anthImageBlock struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthMessage struct {
	Role    string             `json:"role"`
	Content []anthContentBlock `json:"content"`
}

func (a *AnthropicAdapter) Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error) {
	system := ""
	msgs := make([]anthMessage, 0, len(turns))
	for _, t := range turns {
		if t.Role == "system" {
			system = t.Content
			continue
		}
		blocks := make([]anthContentBlock, 0, len(t.Images)+1)
		for _, img := range t.Images {
			mediaType := "image/jpeg"
			if raw, err := base64.StdEncoding.DecodeString(img); err == nil {
				mediaType = sniffMediaType(raw)
			}
			blocks = append(blocks, anthContentBlock{
				Type:   "image",
				Source: &anthImageBlock{Type: "base64", MediaType: mediaType, Data: img},
			})
		}
		if t.Content != "" {
			blocks = append(blocks, anthContentBlock{Type: "text", Text: t.Content})
		}
		msgs = append(msgs, anthMessage{Role: t.Role, Content: blocks})
	}

	reqBody := struct {
		Model     string        `json:"model"`
		MaxTokens int           `json:"max_tokens"`
		System    string        `json:"system,omitempty"`
		Messages  []anthMessage `json:"messages"`
	}{Model: modelName, MaxTokens: a.maxOut, System: system, Messages: msgs}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/v1/messages", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("anthropic http %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, c := range payload.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", errors.New("no text content")
}

// CountTokens approximates with cl100k_base; Anthropic has no public local
// tokenizer and an extra network round trip per prompt is not worth it here.
func (a *AnthropicAdapter) CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return 0, err
	}
	total := 0
	for _, t := range turns {
		total += len(enc.Encode(t.Content, nil, nil))
		total += 4
	}
	return total, nil
}
