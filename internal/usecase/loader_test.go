package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	zapobserver "go.uber.org/zap/zaptest/observer"

	"github.com/moroshma/vizscout/internal/domain/entity"
	"github.com/moroshma/vizscout/internal/domain/repository"
	"github.com/moroshma/vizscout/pkg/logger"
)

type mockOrigin struct {
	kind      entity.OriginKind
	objects   map[string][]byte
	order     []string
	listFunc  func(ctx context.Context) ([]entity.ObjectInfo, error)
	fetchFunc func(ctx context.Context, id string) ([]byte, error)
}

func newMockOrigin(kind entity.OriginKind, objects map[string][]byte, order ...string) *mockOrigin {
	return &mockOrigin{kind: kind, objects: objects, order: order}
}

func (m *mockOrigin) Kind() entity.OriginKind { return m.kind }

func (m *mockOrigin) List(ctx context.Context) ([]entity.ObjectInfo, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	out := make([]entity.ObjectInfo, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, entity.ObjectInfo{ID: id, Size: int64(len(m.objects[id]))})
	}
	return out, nil
}

func (m *mockOrigin) Fetch(ctx context.Context, id string) ([]byte, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, id)
	}
	data, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: no such object %s", entity.ErrTransport, id)
	}
	return data, nil
}

func builderFor(o repository.ObjectOrigin) OriginBuilder {
	return func(ctx context.Context, log *logger.Logger) (repository.ObjectOrigin, error) {
		return o, nil
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	loaded   int
	bytes    int
	skipped  int
	finished []error
	counts   []int
}

func (r *recordingObserver) ObjectLoaded(_ entity.OriginKind, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded++
	r.bytes += size
}

func (r *recordingObserver) ObjectSkipped(entity.OriginKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

func (r *recordingObserver) LoadFinished(_ entity.OriginKind, count int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, count)
	r.finished = append(r.finished, err)
}

func readAll(t *testing.T, result entity.LoadResult) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte, len(result))
	for id, rd := range result {
		data, err := io.ReadAll(rd)
		require.NoError(t, err)
		out[id] = data
	}
	return out
}

func TestNewLoader(t *testing.T) {
	log := logger.NewNop()

	l := NewLoader("/does/not/exist", nil, nil, log)
	require.NotNil(t, l)
	assert.Equal(t, "/does/not/exist", l.Source())
	assert.Equal(t, 1, l.concurrency)
	assert.Zero(t, l.requestTimeout)
	assert.False(t, l.strictScheme)
	assert.Len(t, l.builders, 3)

	l = NewLoader("s3://x", nil, nil, log,
		WithConcurrency(0),
		WithRequestTimeout(time.Second),
		WithStrictScheme(true),
		WithObserver(nil),
	)
	assert.Equal(t, 1, l.concurrency)
	assert.Equal(t, time.Second, l.requestTimeout)
	assert.True(t, l.strictScheme)
	assert.IsType(t, noopObserver{}, l.observer)
}

func TestLoader_LoadImages_Local(t *testing.T) {
	dir := t.TempDir()
	images := map[string][]byte{
		"a.png":  {0x89, 'P', 'N', 'G', 1, 2, 3},
		"b.JPG":  []byte("jpeg-bytes"),
		"c.jpeg": []byte("more-jpeg"),
		"d.BmP":  []byte("BM-bitmap"),
	}
	others := map[string][]byte{
		"notes.txt":  []byte("text"),
		"anim.gif":   []byte("GIF89a"),
		"x.png.json": []byte("{}"),
	}
	for name, data := range images {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	for name, data := range others {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.png"), []byte("n"), 0o644))

	observer := &recordingObserver{}
	l := NewLoader(dir, nil, nil, logger.NewNop(), WithObserver(observer))

	result, err := l.LoadImages(context.Background())
	require.NoError(t, err)
	require.Len(t, result, len(images))

	for name, data := range images {
		rd, ok := result[filepath.Join(dir, name)]
		require.True(t, ok, "missing %s", name)
		assert.Equal(t, rd.Size(), int64(rd.Len()), "stream for %s not at offset 0", name)
		got, err := io.ReadAll(rd)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	assert.Equal(t, len(images), observer.loaded)
	assert.Equal(t, len(others), observer.skipped)
	assert.Equal(t, []int{len(images)}, observer.counts)
	assert.Equal(t, []error{nil}, observer.finished)
}

func TestLoader_LoadImages_LocalKeysKeepSource(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("imgs", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("imgs", "a.png"), []byte("a"), 0o644))

	sep := string(os.PathSeparator)
	tests := []struct {
		source string
		want   string
	}{
		{source: "imgs", want: "imgs" + sep + "a.png"},
		{source: "imgs" + sep, want: "imgs" + sep + "a.png"},
		{source: "." + sep + "imgs", want: "." + sep + "imgs" + sep + "a.png"},
		{source: "." + sep + "imgs" + sep, want: "." + sep + "imgs" + sep + "a.png"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			result, err := NewLoader(tt.source, nil, nil, logger.NewNop()).LoadImages(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, result.Keys())
		})
	}
}

func TestLoader_LoadImages_MissingLocalPath(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "missing"), nil, nil, logger.NewNop())

	result, err := l.LoadImages(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrConfiguration)
	assert.Nil(t, result)
}

func TestLoader_LoadImages_MissingBackendConfig(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "s3 without config", source: "s3://bucket"},
		{name: "minio without config", source: "minio://bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &recordingObserver{}
			l := NewLoader(tt.source, nil, nil, logger.NewNop(), WithObserver(observer))

			result, err := l.LoadImages(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrConfiguration)
			assert.Nil(t, result)
			require.Len(t, observer.finished, 1)
			assert.ErrorIs(t, observer.finished[0], entity.ErrConfiguration)
		})
	}
}

func TestLoader_Dispatch(t *testing.T) {
	tests := []struct {
		source   string
		expected entity.OriginKind
	}{
		{"s3://bucket/any", entity.OriginS3},
		{"minio://bucket", entity.OriginMinIO},
		{"/srv/images", entity.OriginLocal},
		{"relative/images", entity.OriginLocal},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			var built []entity.OriginKind
			opts := make([]Option, 0, 3)
			for _, kind := range []entity.OriginKind{entity.OriginLocal, entity.OriginS3, entity.OriginMinIO} {
				origin := newMockOrigin(kind, map[string][]byte{"k.png": []byte("v")}, "k.png")
				opts = append(opts, WithOriginBuilder(kind, func(ctx context.Context, log *logger.Logger) (repository.ObjectOrigin, error) {
					built = append(built, origin.kind)
					return origin, nil
				}))
			}

			result, err := NewLoader(tt.source, nil, nil, logger.NewNop(), opts...).LoadImages(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []entity.OriginKind{tt.expected}, built)
			assert.Len(t, result, 1)
		})
	}
}

func TestLoader_LoadImages_ExtensionFilter(t *testing.T) {
	objects := map[string][]byte{
		"a.png":            []byte("1"),
		"b.PNG":            []byte("2"),
		"dir/c.Jpg":        []byte("3"),
		"dir/sub/d.JPEG":   []byte("4"),
		"e.bmp":            []byte("5"),
		"f.gif":            []byte("6"),
		"g.txt":            []byte("7"),
		"h.png.bak":        []byte("8"),
		"folder/":          nil,
		"labels/train.csv": []byte("9"),
	}
	order := []string{"a.png", "b.PNG", "dir/c.Jpg", "dir/sub/d.JPEG", "e.bmp", "f.gif", "g.txt", "h.png.bak", "folder/", "labels/train.csv"}
	origin := newMockOrigin(entity.OriginMinIO, objects, order...)

	l := NewLoader("minio://datasets", nil, nil, logger.NewNop(), WithOriginBuilder(entity.OriginMinIO, builderFor(origin)))
	result, err := l.LoadImages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.png", "b.PNG", "dir/c.Jpg", "dir/sub/d.JPEG", "e.bmp"}, result.Keys())
	got := readAll(t, result)
	assert.Equal(t, []byte("4"), got["dir/sub/d.JPEG"])
}

func TestLoader_LoadImages_AllOrNothing(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			var fetched atomic.Int32
			origin := newMockOrigin(entity.OriginS3, nil, "1.png", "2.png", "3.png", "4.png", "5.png")
			origin.fetchFunc = func(ctx context.Context, id string) ([]byte, error) {
				fetched.Add(1)
				if id == "3.png" {
					return nil, fmt.Errorf("%w: connection reset", entity.ErrTransport)
				}
				return []byte(id), nil
			}

			l := NewLoader("s3://b", nil, nil, logger.NewNop(),
				WithConcurrency(concurrency),
				WithOriginBuilder(entity.OriginS3, builderFor(origin)),
			)

			result, err := l.LoadImages(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrTransport)
			assert.Nil(t, result)
			assert.GreaterOrEqual(t, fetched.Load(), int32(3))
		})
	}
}

func TestLoader_LoadImages_ListError(t *testing.T) {
	origin := newMockOrigin(entity.OriginMinIO, nil)
	origin.listFunc = func(ctx context.Context) ([]entity.ObjectInfo, error) {
		return nil, fmt.Errorf("%w: bucket not found", entity.ErrTransport)
	}

	result, err := NewLoader("minio://b", nil, nil, logger.NewNop(),
		WithOriginBuilder(entity.OriginMinIO, builderFor(origin)),
	).LoadImages(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrTransport)
	assert.Nil(t, result)
}

func TestLoader_LoadImages_BuilderError(t *testing.T) {
	buildErr := fmt.Errorf("%w: bad endpoint", entity.ErrConfiguration)
	l := NewLoader("minio://b", nil, nil, logger.NewNop(),
		WithOriginBuilder(entity.OriginMinIO, func(ctx context.Context, log *logger.Logger) (repository.ObjectOrigin, error) {
			return nil, buildErr
		}),
	)

	_, err := l.LoadImages(context.Background())
	assert.ErrorIs(t, err, buildErr)
}

func TestLoader_LoadImages_Deterministic(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, fmt.Sprintf("img_%d.png", i))
		require.NoError(t, os.WriteFile(name, []byte(fmt.Sprintf("payload-%d", i)), 0o644))
	}
	l := NewLoader(dir, nil, nil, logger.NewNop(), WithConcurrency(3))

	first, err := l.LoadImages(context.Background())
	require.NoError(t, err)
	second, err := l.LoadImages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Keys(), second.Keys())
	assert.Equal(t, readAll(t, first), readAll(t, second))
	for id := range first {
		assert.NotSame(t, first[id], second[id], "loads must not share streams")
	}
}

func TestLoader_LoadImages_UnrecognizedScheme(t *testing.T) {
	t.Run("lenient falls back to local", func(t *testing.T) {
		_, err := NewLoader("gcs://bucket/images", nil, nil, logger.NewNop()).LoadImages(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, entity.ErrConfiguration)
		assert.NotErrorIs(t, err, entity.ErrUnsupportedScheme)
	})

	t.Run("strict rejects", func(t *testing.T) {
		called := false
		l := NewLoader("gcs://bucket/images", nil, nil, logger.NewNop(),
			WithStrictScheme(true),
			WithOriginBuilder(entity.OriginLocal, func(ctx context.Context, log *logger.Logger) (repository.ObjectOrigin, error) {
				called = true
				return newMockOrigin(entity.OriginLocal, nil), nil
			}),
		)
		_, err := l.LoadImages(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, entity.ErrUnsupportedScheme)
		assert.ErrorIs(t, err, entity.ErrConfiguration)
		assert.False(t, called)
	})
}

func TestLoader_LoadImages_EmptySource(t *testing.T) {
	_, err := NewLoader("", nil, nil, logger.NewNop()).LoadImages(context.Background())
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestLoader_LoadImages_ConcurrencyLimit(t *testing.T) {
	const limit = 3
	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		ids = append(ids, fmt.Sprintf("%02d.jpg", i))
	}

	var inFlight, peak atomic.Int32
	origin := newMockOrigin(entity.OriginS3, nil, ids...)
	origin.fetchFunc = func(ctx context.Context, id string) ([]byte, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return []byte(id), nil
	}

	result, err := NewLoader("s3://b", nil, nil, logger.NewNop(),
		WithConcurrency(limit),
		WithOriginBuilder(entity.OriginS3, builderFor(origin)),
	).LoadImages(context.Background())
	require.NoError(t, err)
	assert.Len(t, result, len(ids))
	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestLoader_LoadImages_RequestTimeout(t *testing.T) {
	origin := newMockOrigin(entity.OriginMinIO, nil, "slow.png")
	origin.fetchFunc = func(ctx context.Context, id string) ([]byte, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", entity.ErrTransport, ctx.Err())
	}

	result, err := NewLoader("minio://b", nil, nil, logger.NewNop(),
		WithRequestTimeout(20*time.Millisecond),
		WithOriginBuilder(entity.OriginMinIO, builderFor(origin)),
	).LoadImages(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, result)
}

func TestLoader_LoadImages_CancelledContext(t *testing.T) {
	origin := newMockOrigin(entity.OriginS3, map[string][]byte{"a.png": []byte("a")}, "a.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewLoader("s3://b", nil, nil, logger.NewNop(),
		WithOriginBuilder(entity.OriginS3, builderFor(origin)),
	).LoadImages(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestLoader_Walk(t *testing.T) {
	objects := map[string][]byte{"a.png": []byte("A"), "b.txt": []byte("B"), "c.bmp": []byte("C")}
	origin := newMockOrigin(entity.OriginMinIO, objects, "a.png", "b.txt", "c.bmp")
	observer := &recordingObserver{}
	l := NewLoader("minio://b", nil, nil, logger.NewNop(),
		WithObserver(observer),
		WithOriginBuilder(entity.OriginMinIO, builderFor(origin)),
	)

	var seen []string
	err := l.Walk(context.Background(), func(rec entity.ObjectRecord) error {
		seen = append(seen, rec.ID)
		data, err := io.ReadAll(rec.Reader())
		require.NoError(t, err)
		assert.Equal(t, objects[rec.ID], data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "c.bmp"}, seen)
	assert.Equal(t, 1, observer.skipped)
	assert.Equal(t, []int{2}, observer.counts)
}

func TestLoader_Walk_StopsOnCallbackError(t *testing.T) {
	origin := newMockOrigin(entity.OriginLocal, map[string][]byte{"a.png": nil, "b.png": nil}, "a.png", "b.png")
	stop := errors.New("enough")

	calls := 0
	err := NewLoader("/data", nil, nil, logger.NewNop(),
		WithOriginBuilder(entity.OriginLocal, builderFor(origin)),
	).Walk(context.Background(), func(rec entity.ObjectRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestLoader_Cleanup(t *testing.T) {
	l := NewLoader("/data", nil, nil, logger.NewNop())
	assert.NoError(t, l.Cleanup())
	assert.NoError(t, l.Cleanup())
}

func TestLoader_LoadImages_LogsCarryLoadFields(t *testing.T) {
	core, logs := zapobserver.New(zapcore.InfoLevel)
	origin := newMockOrigin(entity.OriginS3, map[string][]byte{"a.png": []byte("a")}, "a.png")
	l := NewLoader("s3://images", nil, nil, &logger.Logger{Logger: zap.New(core)},
		WithOriginBuilder(entity.OriginS3, builderFor(origin)),
	)

	_, err := l.LoadImages(context.Background())
	require.NoError(t, err)
	_, err = l.LoadImages(context.Background())
	require.NoError(t, err)

	entries := logs.All()
	require.NotEmpty(t, entries)
	loadIDs := map[string]bool{}
	for _, e := range entries {
		fields := e.ContextMap()
		assert.Equal(t, "s3://images", fields["source"], "entry %q", e.Message)
		id, ok := fields["load_id"].(string)
		require.True(t, ok, "entry %q has no load_id", e.Message)
		loadIDs[id] = true
	}
	assert.Len(t, loadIDs, 2)
}
