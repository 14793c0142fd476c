package adapter

import "context"

// ObjectStorage persists uploaded assets and returns a public reference.
type ObjectStorage interface {
	Put(ctx context.Context, content []byte, name, contentType string) (url string, err error)
}
