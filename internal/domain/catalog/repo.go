package catalog

import "context"

// Repository is the read-only access layer for the vaccine catalog.
// Catalog content management lives elsewhere; this service only consumes
// published versions.
type Repository interface {
	ListByVersion(ctx context.Context, version string) ([]*VaccineDefinition, error)
	GetByCode(ctx context.Context, version, code string) (*VaccineDefinition, error)
	ListVersions(ctx context.Context) ([]string, error)
}
