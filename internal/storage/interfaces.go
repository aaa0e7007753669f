package storage

import (
	"context"
)

// CatalogueReader is the read-only query surface used by the conversation layer.
type CatalogueReader interface {
	// ListSpecialties returns distinct specialty names in ascending order.
	ListSpecialties(ctx context.Context) ([]string, error)
	CountSpecialties(ctx context.Context) (int, error)
	CountUniversities(ctx context.Context) (int, error)
	// UniversitiesFor returns at most limit universities for specialty,
	// local city first, then by passing score descending.
	UniversitiesFor(ctx context.Context, specialty string, limit int) ([]University, error)
}

// CatalogueWriter replaces catalogue contents. Only the import CLI uses it.
type CatalogueWriter interface {
	ReplaceUniversities(ctx context.Context, universities []University) error
}

// Compile-time interface satisfaction checks.
var (
	_ CatalogueReader = (*DB)(nil)
	_ CatalogueWriter = (*DB)(nil)
	_ CatalogueReader = (*HotSwapDB)(nil)
)
