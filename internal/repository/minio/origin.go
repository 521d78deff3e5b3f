package minio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/moroshma/vizscout/internal/domain/entity"
	"github.com/moroshma/vizscout/pkg/logger"
)

// Config represents MinIO origin configuration
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// Secure enables TLS; plaintext unless set
	Secure bool
	// Prefix restricts the listing to keys under it (optional)
	Prefix string
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("%w: MinIO configuration is required for loading from MinIO", entity.ErrConfiguration)
	}

	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.AccessKeyID == "" {
		missing = append(missing, "access_key")
	}
	if c.SecretAccessKey == "" {
		missing = append(missing, "secret_key")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: MinIO configuration missing %s", entity.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// bucketAPI is the subset of the MinIO client the origin uses
type bucketAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

// client adapts *minio.Client to bucketAPI
type client struct {
	*minio.Client
}

func (c client) GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.Client.GetObject(ctx, bucket, object, opts)
	if err != nil {
		return nil, err
	}
	// The object is fetched lazily; request errors surface on the first Read.
	return obj, nil
}

// Origin reads images from one MinIO bucket, walking every key prefix
type Origin struct {
	api    bucketAPI
	config *Config
	logger *logger.Logger
}

// NewOrigin validates cfg and creates the MinIO client. No request is sent until List or Fetch.
func NewOrigin(cfg *Config, log *logger.Logger) (*Origin, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Info("Initializing MinIO client",
		logger.String("endpoint", cfg.Endpoint),
		logger.Bool("secure", cfg.Secure),
	)

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create MinIO client: %w", entity.ErrConfiguration, err)
	}

	return newOrigin(client{minioClient}, cfg, log), nil
}

func newOrigin(api bucketAPI, cfg *Config, log *logger.Logger) *Origin {
	return &Origin{
		api:    api,
		config: cfg,
		logger: log,
	}
}

// Kind implements repository.ObjectOrigin
func (o *Origin) Kind() entity.OriginKind {
	return entity.OriginMinIO
}

// List walks the bucket recursively; the client follows pagination on its own
func (o *Origin) List(ctx context.Context) ([]entity.ObjectInfo, error) {
	bucket := o.config.Bucket

	o.logger.Info("Listing objects in MinIO bucket", logger.String("bucket", bucket))

	// Cancelling stops the client's listing goroutine if we bail out early.
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []entity.ObjectInfo
	for obj := range o.api.ListObjects(listCtx, bucket, minio.ListObjectsOptions{
		Prefix:    o.config.Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			o.logger.Error("Failed to list MinIO objects",
				logger.String("bucket", bucket),
				logger.Error(obj.Err),
			)
			return nil, fmt.Errorf("%w: list bucket %s: %w", entity.ErrTransport, bucket, obj.Err)
		}
		objects = append(objects, entity.ObjectInfo{ID: obj.Key, Size: obj.Size})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return objects, nil
}

// Fetch reads the object named key into memory
func (o *Origin) Fetch(ctx context.Context, key string) ([]byte, error) {
	bucket := o.config.Bucket

	obj, err := o.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		o.logger.Error("Failed to get MinIO object",
			logger.String("bucket", bucket),
			logger.String("object", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: get object %s/%s: %w", entity.ErrTransport, bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		o.logger.Error("Failed to read MinIO object data",
			logger.String("bucket", bucket),
			logger.String("object", key),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: read object %s/%s: %w", entity.ErrTransport, bucket, key, err)
	}

	o.logger.Debug("Object retrieved from MinIO",
		logger.String("object", key),
		logger.Int("size", len(data)),
	)

	return data, nil
}
