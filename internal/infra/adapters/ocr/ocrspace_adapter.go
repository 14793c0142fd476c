package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.OCRProvider = (*OCRSpaceAdapter)(nil)

// OCRSpaceAdapter extracts text via the OCR.space parse endpoint, one
// multipart upload per image.
type OCRSpaceAdapter struct {
	apiKey string
	base   string
	client *http.Client
}

func NewOCRSpaceAdapter(apiKey string) (*OCRSpaceAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("ocr.space api key empty")
	}
	return &OCRSpaceAdapter{
		apiKey: apiKey,
		base:   "https://api.ocr.space/parse/image",
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// langCode maps a UI language to OCR.space's 3-letter engine codes.
func langCode(uiLanguage string) string {
	switch strings.ToLower(uiLanguage) {
	case "zh", "zh-cn", "chinese":
		return "chs"
	case "ja", "japanese":
		return "jpn"
	case "ko", "korean":
		return "kor"
	default:
		return "eng"
	}
}

func (o *OCRSpaceAdapter) Extract(ctx context.Context, images []adapter.Image, uiLanguage string) ([]string, error) {
	out := make([]string, len(images))
	for i, img := range images {
		text, err := o.parseOne(ctx, img, langCode(uiLanguage))
		if err != nil {
			return nil, fmt.Errorf("ocr.space: image %d: %w", i, err)
		}
		out[i] = text
	}
	return out, nil
}

func (o *OCRSpaceAdapter) parseOne(ctx context.Context, img adapter.Image, lang string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("language", lang)
	_ = w.WriteField("OCREngine", "2")
	fw, err := w.CreateFormFile("file", img.FileName)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(img.Content); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("apikey", o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var payload struct {
		ParsedResults []struct {
			ParsedText string `json:"ParsedText"`
		} `json:"ParsedResults"`
		IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
		ErrorMessage          any  `json:"ErrorMessage"`
		OCRExitCode           int  `json:"OCRExitCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.IsErroredOnProcessing {
		return "", fmt.Errorf("processing error: %v", payload.ErrorMessage)
	}
	if len(payload.ParsedResults) == 0 {
		return "", nil
	}
	return payload.ParsedResults[0].ParsedText, nil
}
