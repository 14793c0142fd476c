package adapter

import "context"

// Image is one raw uploaded asset prior to storage.
type Image struct {
	Content     []byte
	FileName    string
	ContentType string
}

// OCRProvider extracts text from raw image bytes, one result per image.
// An empty string marks an image the provider found no text in.
type OCRProvider interface {
	Extract(ctx context.Context, images []Image, uiLanguage string) ([]string, error)
}
