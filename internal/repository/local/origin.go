package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/moroshma/vizscout/internal/domain/entity"
	"github.com/moroshma/vizscout/pkg/logger"
)

// Origin reads images from a single local directory, without recursion
type Origin struct {
	root   string
	logger *logger.Logger
}

// NewOrigin creates an origin rooted at dir. The directory is not touched until List.
func NewOrigin(dir string, log *logger.Logger) *Origin {
	return &Origin{
		root:   dir,
		logger: log,
	}
}

// Kind implements repository.ObjectOrigin
func (o *Origin) Kind() entity.OriginKind {
	return entity.OriginLocal
}

// List returns the regular files directly inside the root directory
func (o *Origin) List(ctx context.Context) ([]entity.ObjectInfo, error) {
	if _, err := os.Stat(o.root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: local path does not exist: %s", entity.ErrConfiguration, o.root)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", entity.ErrFilesystem, o.root, err)
	}

	o.logger.Info("Loading images from local directory", logger.String("path", o.root))

	entries, err := os.ReadDir(o.root)
	if err != nil {
		o.logger.Error("Failed to read local directory",
			logger.String("path", o.root),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: read dir %s: %w", entity.ErrFilesystem, o.root, err)
	}

	objects := make([]entity.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		objects = append(objects, entity.ObjectInfo{
			ID:   joinID(o.root, entry.Name()),
			Size: size,
		})
	}

	return objects, nil
}

// joinID appends name to dir as given, without cleaning it, so "./imgs" yields "./imgs/a.png"
func joinID(dir, name string) string {
	if dir == "" || os.IsPathSeparator(dir[len(dir)-1]) {
		return dir + name
	}
	return dir + string(os.PathSeparator) + name
}

// Fetch reads the file at id, which is a path returned by List
func (o *Origin) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(id)
	if err != nil {
		o.logger.Error("Failed to read local file",
			logger.String("path", id),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: read %s: %w", entity.ErrFilesystem, id, err)
	}

	return data, nil
}
