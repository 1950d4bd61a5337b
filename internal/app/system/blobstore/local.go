package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Local writes objects under a directory. The directory is expected to be
// served at BaseURL (bootstrap mounts it at /files).
type Local struct {
	dir     string
	baseURL string
	log     *zap.Logger
}

// NewLocal creates the directory if needed.
func NewLocal(dir, baseURL string, logger *zap.Logger) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("local blob store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local blob store: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{dir: dir, baseURL: baseURL, log: logger}, nil
}

// Dir returns the root directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(l.dir, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("put %s: %w", k, err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("put %s: %w", k, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("put %s: %w", k, err)
	}
	l.log.Debug("blob stored", zap.String("key", k), zap.Int("bytes", len(data)))
	return joinURL(l.baseURL, k), nil
}
