package ai

import (
	"context"
	"errors"
	"testing"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

type fakeProvider struct {
	reply string
	calls int
}

func (f *fakeProvider) Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error) {
	f.calls++
	return f.reply, nil
}

func (f *fakeProvider) CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error) {
	return 42, nil
}

func TestResolveProvider(t *testing.T) {
	cases := []struct {
		model string
		want  ProviderFamily
	}{
		{"gpt-4o", ProviderOpenAI},
		{"o3-mini", ProviderOpenAI},
		{"claude-sonnet-4-20250514", ProviderAnthropic},
		{"Gemini-2.0-flash", ProviderGemini},
	}
	for _, c := range cases {
		got, err := ResolveProvider(c.model)
		if err != nil {
			t.Fatalf("ResolveProvider(%q): %v", c.model, err)
		}
		if got != c.want {
			t.Errorf("ResolveProvider(%q) = %s, want %s", c.model, got, c.want)
		}
	}
}

func TestResolveProviderUnknown(t *testing.T) {
	_, err := ResolveProvider("llama-3-70b")
	if !errors.Is(err, domain.ErrUnknownModel) {
		t.Fatalf("want ErrUnknownModel, got %v", err)
	}
}

func TestMultiAdapterRoutes(t *testing.T) {
	oa := &fakeProvider{reply: "from openai"}
	an := &fakeProvider{reply: "from anthropic"}
	m := NewMultiAIAdapter(map[ProviderFamily]adapter.AIProvider{
		ProviderOpenAI:    oa,
		ProviderAnthropic: an,
	})

	out, err := m.Complete(context.Background(), "claude-opus-4", []model.Turn{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if out != "from anthropic" || an.calls != 1 || oa.calls != 0 {
		t.Fatalf("routed wrong: out=%q openai=%d anthropic=%d", out, oa.calls, an.calls)
	}
}

func TestMultiAdapterMissingProvider(t *testing.T) {
	m := NewMultiAIAdapter(map[ProviderFamily]adapter.AIProvider{})
	_, err := m.Complete(context.Background(), "gemini-2.0-flash", nil)
	if !errors.Is(err, domain.ErrUnknownModel) {
		t.Fatalf("want ErrUnknownModel, got %v", err)
	}
}

func TestSniffMediaType(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	if got := sniffMediaType(png); got != "image/png" {
		t.Errorf("png: got %s", got)
	}
	if got := sniffMediaType([]byte("GIF89a....")); got != "image/gif" {
		t.Errorf("gif: got %s", got)
	}
	if got := sniffMediaType([]byte("RIFF....WEBPVP8 ")); got != "image/webp" {
		t.Errorf("webp: got %s", got)
	}
	if got := sniffMediaType([]byte{0xff, 0xd8, 0xff}); got != "image/jpeg" {
		t.Errorf("jpeg default: got %s", got)
	}
}
