package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/moroshma/vizscout/internal/domain/entity"
	"github.com/moroshma/vizscout/pkg/logger"
)

// Config represents S3 origin configuration.
// Bucket, AccessKeyID, SecretAccessKey and Region are required.
type Config struct {
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string

	// Endpoint targets an S3-compatible service with path-style addressing (optional)
	Endpoint string
	// Prefix restricts the listing to keys under it (optional)
	Prefix string
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("%w: S3 configuration is required for loading from S3", entity.ErrConfiguration)
	}

	var missing []string
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.AccessKeyID == "" {
		missing = append(missing, "access_key")
	}
	if c.SecretAccessKey == "" {
		missing = append(missing, "secret_key")
	}
	if c.Region == "" {
		missing = append(missing, "region")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: S3 configuration missing %s", entity.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// objectAPI is the subset of *s3.Client the origin uses; tests swap in a fake
type objectAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Origin reads images from one S3 bucket.
// Listing is a single ListObjectsV2 call: only the first page of keys is ever seen.
type Origin struct {
	api        objectAPI
	downloader *manager.Downloader
	config     *Config
	logger     *logger.Logger
}

// NewOrigin validates cfg and builds an S3 client from its static credentials.
// No request is sent until List or Fetch.
func NewOrigin(_ context.Context, cfg *Config, log *logger.Logger) (*Origin, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Info("Initializing S3 client",
		logger.String("region", cfg.Region),
		logger.String("bucket", cfg.Bucket),
	)

	client := s3.NewFromConfig(awsConfig(cfg), func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newOrigin(client, cfg, log), nil
}

// awsConfig holds only what cfg supplies. AWS_PROFILE, shared config files and
// AWS_ENDPOINT_URL_* are never consulted.
func awsConfig(cfg *Config) aws.Config {
	return aws.Config{
		Region:      cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	}
}

func newOrigin(api objectAPI, cfg *Config, log *logger.Logger) *Origin {
	return &Origin{
		api: api,
		downloader: manager.NewDownloader(api, func(d *manager.Downloader) {
			d.Concurrency = 1
		}),
		config: cfg,
		logger: log,
	}
}

// Kind implements repository.ObjectOrigin
func (o *Origin) Kind() entity.OriginKind {
	return entity.OriginS3
}

// List returns the keys of the first listing page
func (o *Origin) List(ctx context.Context) ([]entity.ObjectInfo, error) {
	bucket := o.config.Bucket

	o.logger.Info("Listing objects in S3 bucket", logger.String("bucket", bucket))

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if o.config.Prefix != "" {
		input.Prefix = aws.String(o.config.Prefix)
	}

	out, err := o.api.ListObjectsV2(ctx, input)
	if err != nil {
		o.logger.Error("Failed to list S3 objects",
			logger.String("bucket", bucket),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: list bucket %s: %w", entity.ErrTransport, bucket, err)
	}

	if aws.ToBool(out.IsTruncated) {
		o.logger.Warn("S3 listing truncated, only the first page is loaded",
			logger.String("bucket", bucket),
			logger.Int("page_size", len(out.Contents)),
		)
	}

	objects := make([]entity.ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		objects = append(objects, entity.ObjectInfo{
			ID:   aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
		})
	}

	return objects, nil
}

// Fetch downloads the object stored under key into memory
func (o *Origin) Fetch(ctx context.Context, key string) ([]byte, error) {
	bucket := o.config.Bucket

	buf := manager.NewWriteAtBuffer(nil)
	n, err := o.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		o.logger.Error("Failed to download S3 object",
			logger.String("bucket", bucket),
			logger.String("key", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: get object %s/%s: %w", entity.ErrTransport, bucket, key, err)
	}

	o.logger.Debug("Object downloaded from S3",
		logger.String("key", key),
		logger.Int64("size", n),
	)

	return buf.Bytes(), nil
}
