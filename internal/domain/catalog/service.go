package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a vaccine definition or catalog version is
// unknown.
var ErrNotFound = errors.New("vaccine definition not found")

type Service struct {
	repo Repository

	// activeVersion is the schedule version new child schedules pin to.
	activeVersion string
}

func NewService(repo Repository, activeVersion string) *Service {
	return &Service{repo: repo, activeVersion: activeVersion}
}

// ActiveVersion returns the schedule version used for new schedules.
func (s *Service) ActiveVersion() string { return s.activeVersion }

// ListActive returns all definitions of the active catalog version. An
// unpublished version yields an empty list, not an error; callers decide
// whether an empty catalog is fatal.
func (s *Service) ListActive(ctx context.Context) ([]*VaccineDefinition, error) {
	return s.repo.ListByVersion(ctx, s.activeVersion)
}

// ListByVersion returns all definitions of a given catalog version.
func (s *Service) ListByVersion(ctx context.Context, version string) ([]*VaccineDefinition, error) {
	defs, err := s.repo.ListByVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, ErrNotFound
	}
	return defs, nil
}

// GetByCode returns one definition of the active version.
func (s *Service) GetByCode(ctx context.Context, code string) (*VaccineDefinition, error) {
	d, err := s.repo.GetByCode(ctx, s.activeVersion, code)
	if err != nil {
		return nil, ErrNotFound
	}
	return d, nil
}

// ListVersions returns all known schedule versions, newest first.
func (s *Service) ListVersions(ctx context.Context) ([]string, error) {
	return s.repo.ListVersions(ctx)
}
