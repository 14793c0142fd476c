package ocr

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

	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.OCRProvider = (*VisionAdapter)(nil)

// VisionAdapter extracts text via the Google Vision images:annotate REST
// endpoint. All images of a request go in a single batch call.
type VisionAdapter struct {
	apiKey string
	base   string
	client *http.Client
}

func NewVisionAdapter(apiKey string) (*VisionAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("vision api key empty")
	}
	return &VisionAdapter{
		apiKey: apiKey,
		base:   "https://vision.googleapis.com/v1",
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type visionRequest struct {
	Image struct {
		Content string `json:"content"`
	} `json:"image"`
	Features []struct {
		Type string `json:"type"`
	} `json:"features"`
	ImageContext *struct {
		LanguageHints []string `json:"languageHints,omitempty"`
	} `json:"imageContext,omitempty"`
}

func (v *VisionAdapter) Extract(ctx context.Context, images []adapter.Image, uiLanguage string) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	reqs := make([]visionRequest, 0, len(images))
	for _, img := range images {
		var r visionRequest
		r.Image.Content = base64.StdEncoding.EncodeToString(img.Content)
		r.Features = []struct {
			Type string `json:"type"`
		}{{Type: "TEXT_DETECTION"}}
		if uiLanguage != "" {
			r.ImageContext = &struct {
				LanguageHints []string `json:"languageHints,omitempty"`
			}{LanguageHints: []string{uiLanguage}}
		}
		reqs = append(reqs, r)
	}
	body, _ := json.Marshal(map[string]any{"requests": reqs})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.base+"/images:annotate?key="+v.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("vision http %d: %s", resp.StatusCode, string(b))
	}

	var payload struct {
		Responses []struct {
			FullTextAnnotation *struct {
				Text string `json:"text"`
			} `json:"fullTextAnnotation"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"responses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Responses) != len(images) {
		return nil, fmt.Errorf("vision returned %d responses for %d images", len(payload.Responses), len(images))
	}

	out := make([]string, len(images))
	for i, r := range payload.Responses {
		if r.Error != nil {
			return nil, fmt.Errorf("vision: image %d: %s", i, r.Error.Message)
		}
		if r.FullTextAnnotation != nil {
			out[i] = r.FullTextAnnotation.Text
		}
	}
	return out, nil
}
