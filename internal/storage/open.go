package storage

import (
	"context"
	"fmt"

	"github.com/field-notes/apiserver/config"
)

// Open builds the backend selected by cfg.Backend and wraps it.
func Open(ctx context.Context, cfg config.StoreConfig) (*Storage, error) {
	var backend Backend
	switch cfg.Backend {
	case config.StoreFile, "":
		fb, err := NewFileBackend(cfg.DataFile)
		if err != nil {
			return nil, err
		}
		backend = fb
	case config.StoreMemory:
		backend = NewMemoryBackend()
	case config.StoreRedis:
		rb, err := NewRedisBackend(cfg.Redis.URL, cfg.Redis.Key)
		if err != nil {
			return nil, err
		}
		backend = rb
	case config.StoreMinio:
		mb, err := NewMinioBackend(cfg.Minio, cfg.ObjectKey)
		if err != nil {
			return nil, err
		}
		if err := mb.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure minio bucket: %w", err)
		}
		backend = mb
	case config.StoreGCS:
		gb, err := NewGCSBackend(ctx, cfg.GCS, cfg.ObjectKey)
		if err != nil {
			return nil, err
		}
		if err := gb.EnsureBucket(ctx); err != nil {
			_ = gb.Close()
			return nil, fmt.Errorf("ensure gcs bucket: %w", err)
		}
		backend = gb
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return NewStorage(backend, cfg.Timeout), nil
}
