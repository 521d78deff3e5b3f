package app

import (
	"github.com/moroshma/vizscout/internal/config"
	minioRepo "github.com/moroshma/vizscout/internal/repository/minio"
	s3Repo "github.com/moroshma/vizscout/internal/repository/s3"
	"github.com/moroshma/vizscout/internal/usecase"
	"github.com/moroshma/vizscout/pkg/logger"
)

// S3Config converts the s3 section, or returns nil when the section is absent
func S3Config(cfg config.S3Config) *s3Repo.Config {
	if !cfg.IsSet() {
		return nil
	}
	return &s3Repo.Config{
		Bucket:          cfg.Bucket,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		Prefix:          cfg.Prefix,
	}
}

// MinIOConfig converts the minio section, or returns nil when the section is absent
func MinIOConfig(cfg config.MinIOConfig) *minioRepo.Config {
	if !cfg.IsSet() {
		return nil
	}
	return &minioRepo.Config{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Bucket:          cfg.Bucket,
		Secure:          cfg.Secure,
		Prefix:          cfg.Prefix,
	}
}

// NewLoader builds a loader for cfg.Source. observer may be nil.
func NewLoader(cfg *config.Config, log *logger.Logger, observer usecase.Observer) *usecase.Loader {
	opts := []usecase.Option{
		usecase.WithConcurrency(cfg.Loader.Concurrency),
		usecase.WithRequestTimeout(cfg.Loader.RequestTimeout),
		usecase.WithStrictScheme(cfg.Loader.StrictScheme),
	}
	if observer != nil {
		opts = append(opts, usecase.WithObserver(observer))
	}

	return usecase.NewLoader(
		cfg.Source,
		MinIOConfig(cfg.MinIO),
		S3Config(cfg.S3),
		log.Named("loader"),
		opts...,
	)
}
