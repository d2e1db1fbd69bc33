package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalConfig configures disk storage.
type LocalConfig struct {
	BasePath  string `mapstructure:"dir"`
	URLPrefix string `mapstructure:"url_prefix"`
}

// Local keeps files in a directory that the HTTP server exposes under URLPrefix.
type Local struct {
	basePath  string
	urlPrefix string
}

// NewLocal creates the base directory if needed.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.BasePath == "" {
		cfg.BasePath = "uploads"
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	prefix := strings.TrimRight(cfg.URLPrefix, "/")
	if prefix == "" {
		prefix = "/uploads"
	}
	return &Local{basePath: abs, urlPrefix: prefix}, nil
}

// Dir returns the absolute base directory.
func (s *Local) Dir() string {
	return s.basePath
}

func (s *Local) path(key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.basePath, key), nil
}

// Write copies r into a temp file and renames it into place.
func (s *Local) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

func (s *Local) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *Local) URL(ctx context.Context, key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	return s.urlPrefix + "/" + key, nil
}

// Exists reports whether key is on disk.
func (s *Local) Exists(key string) bool {
	path, err := s.path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
