package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/bp-reports-api/pkg/config"
)

// NewStore builds the artifact store for mode local|s3|auto and reports the mode in use.
// auto uses S3 when fully configured and falls back to the local store otherwise.
func NewStore(ctx context.Context, cfg config.BlobConfig, logger *zap.Logger) (Store, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = config.BlobModeLocal
	}

	switch mode {
	case config.BlobModeLocal:
		store, err := NewLocalBlobStore(cfg.LocalDir, cfg.LocalURL)
		if err != nil {
			return nil, "", err
		}
		logger.Info("blob store ready", zap.String("mode", config.BlobModeLocal))
		return store, config.BlobModeLocal, nil

	case config.BlobModeAuto:
		if !cfg.S3Ready() {
			logger.Info("blob store falling back to local", zap.Strings("missing", cfg.MissingS3Fields()))
			return NewStore(ctx, config.BlobConfig{Mode: config.BlobModeLocal, LocalDir: cfg.LocalDir, LocalURL: cfg.LocalURL}, logger)
		}
		store, err := NewS3Store(ctx, cfg.Endpoint, cfg.Region, cfg.Bucket, cfg.AccessKey, cfg.SecretKey)
		if err != nil {
			logger.Warn("s3 init failed, falling back to local", zap.Error(err))
			return NewStore(ctx, config.BlobConfig{Mode: config.BlobModeLocal, LocalDir: cfg.LocalDir, LocalURL: cfg.LocalURL}, logger)
		}
		logger.Info("blob store ready", zap.String("mode", config.BlobModeS3), zap.String("bucket", cfg.Bucket))
		return store, config.BlobModeS3, nil

	case config.BlobModeS3:
		if !cfg.S3Ready() {
			return nil, "", fmt.Errorf("BLOB_MODE=s3 requested but missing required config: %s", strings.Join(cfg.MissingS3Fields(), ", "))
		}
		store, err := NewS3Store(ctx, cfg.Endpoint, cfg.Region, cfg.Bucket, cfg.AccessKey, cfg.SecretKey)
		if err != nil {
			return nil, "", fmt.Errorf("BLOB_MODE=s3 init failed: %w", err)
		}
		logger.Info("blob store ready", zap.String("mode", config.BlobModeS3), zap.String("bucket", cfg.Bucket))
		return store, config.BlobModeS3, nil

	default:
		return nil, "", fmt.Errorf("unsupported blob mode: %s", mode)
	}
}
