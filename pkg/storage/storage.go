// Package storage defines where product images are written.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for uploads that are not images.
var ErrUnsupportedType = errors.New("unsupported content type")

// ObjectStore persists uploaded blobs and returns their public URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageKey builds a collision-free object key under prefix for an image of contentType.
func ImageKey(prefix, contentType string) (string, error) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedType
	}
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+ext), nil
}

// KeyFromURL recovers the object key from a URL produced under baseURL.
func KeyFromURL(baseURL, url string) (string, bool) {
	base := strings.TrimRight(baseURL, "/") + "/"
	if !strings.HasPrefix(url, base) {
		return "", false
	}
	return strings.TrimPrefix(url, base), true
}
