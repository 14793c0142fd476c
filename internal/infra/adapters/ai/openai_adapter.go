package ai

import (
	"bytes"
	"context"
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

var _ adapter.AIProvider = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIProvider against the Chat Completions
// API. Image turns are sent as data-URL image_url parts.
type OpenAIAdapter struct {
	apiKey string
	base   string // e.g., https://api.openai.com/v1
	client *http.Client
	maxOut int
}

func NewOpenAIAdapter(apiKey, base string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAIAdapter{
		apiKey: apiKey,
		base:   base,
		client: &http.Client{Timeout: 120 * time.Second},
		maxOut: maxOut,
	}, nil
}

type oaContentPart struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *oaImageURL `json:"image_url,omitempty"`
}

type oaImageURL struct {
	URL string `json:"url"`
}

type oaMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []oaContentPart
}

func (o *OpenAIAdapter) Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error) {
	msgs := make([]oaMessage, 0, len(turns))
	for _, t := range turns {
		if len(t.Images) == 0 {
			msgs = append(msgs, oaMessage{Role: t.Role, Content: t.Content})
			continue
		}
		parts := make([]oaContentPart, 0, len(t.Images)+1)
		if t.Content != "" {
			parts = append(parts, oaContentPart{Type: "text", Text: t.Content})
		}
		for _, img := range t.Images {
			parts = append(parts, oaContentPart{
				Type:     "image_url",
				ImageURL: &oaImageURL{URL: "data:image/jpeg;base64," + img},
			})
		}
		msgs = append(msgs, oaMessage{Role: t.Role, Content: parts})
	}

	reqBody := struct {
		Model     string      `json:"model"`
		Messages  []oaMessage `json:"messages"`
		MaxTokens int         `json:"max_tokens,omitempty"`
	}{Model: modelName, Messages: msgs, MaxTokens: o.maxOut}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}

// CountTokens counts text tokens locally with tiktoken. Images are not
// counted; callers use the number only to guard prompt size.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error) {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, t := range turns {
		total += len(enc.Encode(t.Content, nil, nil))
		total += 4 // role/format overhead per message
	}
	return total, nil
}
