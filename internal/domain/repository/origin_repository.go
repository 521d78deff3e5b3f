package repository

import (
	"context"

	"github.com/moroshma/vizscout/internal/domain/entity"
)

// ObjectOrigin defines the read operations every storage backend provides to the loader
type ObjectOrigin interface {
	// Kind reports which backend this origin reads from
	Kind() entity.OriginKind

	// List returns every candidate object at the origin, unfiltered
	List(ctx context.Context) ([]entity.ObjectInfo, error)

	// Fetch reads the whole object identified by id into memory
	Fetch(ctx context.Context, id string) ([]byte, error)
}
