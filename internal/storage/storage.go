// Package storage keeps uploaded deal documents, on local disk or in an S3
// compatible bucket, optionally encrypted at rest.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/hugh/estateflow/pkg/config"
	"github.com/hugh/estateflow/pkg/crypto"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Store is a flat key/value blob store. Keys use forward slashes.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey normalizes a key and rejects anything that would escape the store root.
func CleanKey(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// New builds the configured store, wrapped with encryption when a key is set.
func New(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (Store, error) {
	var store Store
	switch cfg.Driver {
	case "s3":
		s, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = s
	case "", "local":
		s, err := NewLocalStore(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	if cfg.EncryptionKey == "" {
		logger.Warn("document encryption at rest disabled")
		return store, nil
	}

	sealer, err := crypto.NewSealer(cfg.EncryptionKey, cfg.RetiredEncryptionKeys...)
	if err != nil {
		return nil, fmt.Errorf("loading storage encryption keys: %w", err)
	}
	logger.Info("document encryption at rest enabled", "recipient", sealer.Recipient(), "retired_keys", len(cfg.RetiredEncryptionKeys))
	return NewEncryptedStore(store, sealer), nil
}
