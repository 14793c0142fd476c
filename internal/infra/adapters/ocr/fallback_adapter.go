package ocr

import (
	"context"

	"github.com/rs/zerolog"

	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.OCRProvider = (*FallbackAdapter)(nil)

// FallbackAdapter tries the primary provider and falls back to the
// secondary on any error. Both failing returns the fallback's error.
type FallbackAdapter struct {
	primary  adapter.OCRProvider
	fallback adapter.OCRProvider
	log      *zerolog.Logger
}

func NewFallbackAdapter(primary, fallback adapter.OCRProvider, log *zerolog.Logger) *FallbackAdapter {
	return &FallbackAdapter{primary: primary, fallback: fallback, log: log}
}

func (f *FallbackAdapter) Extract(ctx context.Context, images []adapter.Image, uiLanguage string) ([]string, error) {
	texts, err := f.primary.Extract(ctx, images, uiLanguage)
	if err == nil {
		return texts, nil
	}
	if f.fallback == nil {
		return nil, err
	}
	if f.log != nil {
		f.log.Warn().Err(err).Msg("primary OCR failed, trying fallback")
	}
	return f.fallback.Extract(ctx, images, uiLanguage)
}
