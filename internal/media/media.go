// Package media stores uploaded video bytes and hands out URLs for them.
package media

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty or would escape the store.
var ErrInvalidKey = errors.New("invalid media key")

// Store is where uploaded files live. Keys are flat filenames.
type Store interface {
	// Write stores r under key. size is -1 when unknown.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// URL returns the address clients use to fetch key.
	URL(ctx context.Context, key string) (string, error)
}

// ValidKey reports whether key is a plain filename.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "\x00")
}
