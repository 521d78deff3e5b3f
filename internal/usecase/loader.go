package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/moroshma/vizscout/internal/domain/entity"
	"github.com/moroshma/vizscout/internal/domain/repository"
	"github.com/moroshma/vizscout/internal/repository/local"
	minioRepo "github.com/moroshma/vizscout/internal/repository/minio"
	s3Repo "github.com/moroshma/vizscout/internal/repository/s3"
	"github.com/moroshma/vizscout/pkg/logger"
)

// OriginBuilder creates the origin a load reads from
type OriginBuilder func(ctx context.Context, log *logger.Logger) (repository.ObjectOrigin, error)

// Observer receives progress of a load. Implementations must be safe for concurrent use.
type Observer interface {
	ObjectLoaded(kind entity.OriginKind, size int)
	ObjectSkipped(kind entity.OriginKind)
	LoadFinished(kind entity.OriginKind, count int, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObjectLoaded(entity.OriginKind, int)                       {}
func (noopObserver) ObjectSkipped(entity.OriginKind)                           {}
func (noopObserver) LoadFinished(entity.OriginKind, int, time.Duration, error) {}

// Option configures a Loader
type Option func(*Loader)

// WithConcurrency bounds how many objects are fetched at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n < 1 {
			n = 1
		}
		l.concurrency = n
	}
}

// WithRequestTimeout bounds each list and fetch call. Zero disables the limit.
func WithRequestTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.requestTimeout = d
	}
}

// WithStrictScheme rejects sources like "gcs://bucket" instead of treating them as local paths
func WithStrictScheme(strict bool) Option {
	return func(l *Loader) {
		l.strictScheme = strict
	}
}

// WithObserver sets the progress observer
func WithObserver(o Observer) Option {
	return func(l *Loader) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithOriginBuilder replaces how the origin of the given kind is created
func WithOriginBuilder(kind entity.OriginKind, b OriginBuilder) Option {
	return func(l *Loader) {
		l.builders[kind] = b
	}
}

// Loader turns a source descriptor into an in-memory set of images.
// It keeps nothing between calls besides what it was constructed with.
type Loader struct {
	source      string
	minioConfig *minioRepo.Config
	s3Config    *s3Repo.Config
	logger      *logger.Logger
	observer    Observer
	builders    map[entity.OriginKind]OriginBuilder

	concurrency    int
	requestTimeout time.Duration
	strictScheme   bool
}

// NewLoader stores the source and backend configs. Nothing is validated here:
// a missing backend config is only an error once that backend is selected by LoadImages.
func NewLoader(
	source string,
	minioConfig *minioRepo.Config,
	s3Config *s3Repo.Config,
	log *logger.Logger,
	opts ...Option,
) *Loader {
	l := &Loader{
		source:      source,
		minioConfig: minioConfig,
		s3Config:    s3Config,
		logger:      log,
		observer:    noopObserver{},
		concurrency: 1,
	}
	l.builders = map[entity.OriginKind]OriginBuilder{
		entity.OriginLocal: l.buildLocal,
		entity.OriginS3:    l.buildS3,
		entity.OriginMinIO: l.buildMinIO,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Loader) buildLocal(_ context.Context, log *logger.Logger) (repository.ObjectOrigin, error) {
	return local.NewOrigin(l.source, log), nil
}

func (l *Loader) buildS3(ctx context.Context, log *logger.Logger) (repository.ObjectOrigin, error) {
	origin, err := s3Repo.NewOrigin(ctx, l.s3Config, log)
	if err != nil {
		return nil, err
	}
	return origin, nil
}

func (l *Loader) buildMinIO(_ context.Context, log *logger.Logger) (repository.ObjectOrigin, error) {
	origin, err := minioRepo.NewOrigin(l.minioConfig, log)
	if err != nil {
		return nil, err
	}
	return origin, nil
}

// Source returns the descriptor the loader was built with
func (l *Loader) Source() string {
	return l.source
}

// LoadImages fetches every image at the source into memory.
// Any failure aborts the whole load: no partial result is returned.
func (l *Loader) LoadImages(ctx context.Context) (entity.LoadResult, error) {
	start := time.Now()
	log := l.loadLogger()

	kind, origin, candidates, err := l.prepare(ctx, log)
	if err != nil {
		return nil, l.fail(kind, start, err, log)
	}

	records, err := l.fetchAll(ctx, origin, candidates)
	if err != nil {
		return nil, l.fail(kind, start, err, log)
	}

	result := make(entity.LoadResult, len(records))
	for _, rec := range records {
		result[rec.ID] = rec.Reader()
	}

	elapsed := time.Since(start)
	log.Info("Successfully loaded images",
		logger.String("origin", string(kind)),
		logger.Int("count", len(result)),
		logger.Int64("bytes", result.TotalBytes()),
		logger.Duration("elapsed", elapsed),
	)
	l.observer.LoadFinished(kind, len(result), elapsed, nil)

	return result, nil
}

// Walk streams images one at a time to fn instead of buffering the whole set.
// Objects are fetched sequentially; the first error from the origin or fn stops the walk.
func (l *Loader) Walk(ctx context.Context, fn func(entity.ObjectRecord) error) error {
	start := time.Now()
	log := l.loadLogger()

	kind, origin, candidates, err := l.prepare(ctx, log)
	if err != nil {
		return l.fail(kind, start, err, log)
	}

	count := 0
	for _, c := range candidates {
		data, err := l.fetch(ctx, origin, c.ID)
		if err != nil {
			return l.fail(kind, start, err, log)
		}
		l.observer.ObjectLoaded(kind, len(data))

		if err := fn(entity.ObjectRecord{ID: c.ID, Data: data}); err != nil {
			return l.fail(kind, start, err, log)
		}
		count++
	}

	elapsed := time.Since(start)
	log.Info("Finished walking images",
		logger.String("origin", string(kind)),
		logger.Int("count", count),
		logger.Duration("elapsed", elapsed),
	)
	l.observer.LoadFinished(kind, count, elapsed, nil)

	return nil
}

// Cleanup exists for callers that expect an explicit teardown.
// Every object is fully buffered, so no file or connection outlives a load.
func (l *Loader) Cleanup() error {
	l.logger.Info("No cleanup actions required", logger.String("source", l.source))
	return nil
}

// loadLogger tags every line of one load with a fresh load id and the source
func (l *Loader) loadLogger() *logger.Logger {
	return l.logger.WithFields(map[string]interface{}{
		"load_id": uuid.NewString(),
		"source":  l.source,
	})
}

// prepare selects and builds the origin, lists it and keeps only image objects
func (l *Loader) prepare(ctx context.Context, log *logger.Logger) (entity.OriginKind, repository.ObjectOrigin, []entity.ObjectInfo, error) {
	kind, err := l.resolveKind(log)
	if err != nil {
		return kind, nil, nil, err
	}

	build, ok := l.builders[kind]
	if !ok || build == nil {
		return kind, nil, nil, fmt.Errorf("%w: no origin registered for %s", entity.ErrConfiguration, kind)
	}

	originLog := log.Named(string(kind))
	origin, err := build(ctx, originLog)
	if err != nil {
		return kind, nil, nil, err
	}

	listCtx, cancel := l.requestContext(ctx)
	objects, err := origin.List(listCtx)
	cancel()
	if err != nil {
		return kind, nil, nil, err
	}

	candidates := make([]entity.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if !entity.IsImageKey(obj.ID) {
			l.observer.ObjectSkipped(kind)
			continue
		}
		candidates = append(candidates, obj)
	}

	log.Info("Found image candidates",
		logger.String("origin", string(kind)),
		logger.Int("listed", len(objects)),
		logger.Int("matched", len(candidates)),
	)

	return kind, origin, candidates, nil
}

func (l *Loader) resolveKind(log *logger.Logger) (entity.OriginKind, error) {
	if l.source == "" {
		return entity.OriginLocal, fmt.Errorf("%w: source is required", entity.ErrConfiguration)
	}

	kind := entity.ClassifySource(l.source)
	if kind == entity.OriginLocal && entity.HasScheme(l.source) {
		if l.strictScheme {
			return kind, fmt.Errorf("%w: %s", entity.ErrUnsupportedScheme, l.source)
		}
		log.Warn("Unrecognized source scheme, treating it as a local path",
			logger.String("source", l.source),
		)
	}
	return kind, nil
}

// fetchAll reads every candidate with at most l.concurrency fetches in flight
func (l *Loader) fetchAll(ctx context.Context, origin repository.ObjectOrigin, candidates []entity.ObjectInfo) ([]entity.ObjectRecord, error) {
	records := make([]entity.ObjectRecord, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for i, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			data, err := l.fetch(gctx, origin, c.ID)
			if err != nil {
				return err
			}
			records[i] = entity.ObjectRecord{ID: c.ID, Data: data}
			l.observer.ObjectLoaded(origin.Kind(), len(data))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func (l *Loader) fetch(ctx context.Context, origin repository.ObjectOrigin, id string) ([]byte, error) {
	reqCtx, cancel := l.requestContext(ctx)
	defer cancel()
	return origin.Fetch(reqCtx, id)
}

func (l *Loader) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.requestTimeout)
}

func (l *Loader) fail(kind entity.OriginKind, start time.Time, err error, log *logger.Logger) error {
	elapsed := time.Since(start)
	log.Error("Error loading images",
		logger.String("origin", string(kind)),
		logger.String("source", l.source),
		logger.String("error_class", entity.ErrorClass(err)),
		logger.Duration("elapsed", elapsed),
		logger.Error(err),
	)
	l.observer.LoadFinished(kind, 0, elapsed, err)
	return err
}
