package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.ObjectStorage = (*SupabaseStorage)(nil)

// SupabaseStorage uploads objects to a Supabase storage bucket over its
// REST API and returns the public object URL.
type SupabaseStorage struct {
	base   string // project URL, e.g. https://xyz.supabase.co
	apiKey string
	bucket string
	client *http.Client
}

func NewSupabaseStorage(base, apiKey, bucket string) (*SupabaseStorage, error) {
	if base == "" || apiKey == "" || bucket == "" {
		return nil, errors.New("supabase storage: url, key and bucket are required")
	}
	return &SupabaseStorage{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		bucket: bucket,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (s *SupabaseStorage) Put(ctx context.Context, content []byte, name, contentType string) (string, error) {
	escaped := url.PathEscape(name)
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.base, s.bucket, escaped)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("supabase storage http %d: %s", resp.StatusCode, string(b))
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.base, s.bucket, escaped), nil
}
