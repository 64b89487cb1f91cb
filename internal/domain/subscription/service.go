package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaxtrack/vaxtrack/internal/platform/notification"
)

// Service manages reminder subscriptions.
type Service struct {
	repo  Repository
	nowFn func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, nowFn: time.Now}
}

func (s *Service) Subscribe(ctx context.Context, userID string, channel notification.Channel, address string, digest bool) (*Subscription, error) {
	sub := &Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		Channel:   channel,
		Address:   address,
		Digest:    digest,
		CreatedAt: s.nowFn(),
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Unsubscribe removes one subscription; only the owner may remove it.
func (s *Service) Unsubscribe(ctx context.Context, userID string, id uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.UserID != userID {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// ListDigestEnabled feeds the weekly digest pass.
func (s *Service) ListDigestEnabled(ctx context.Context) ([]*Subscription, error) {
	return s.repo.ListDigestEnabled(ctx)
}

// Cleanup deletes subscriptions older than maxAgeDays, counted back from
// today.
func (s *Service) Cleanup(ctx context.Context, today time.Time, maxAgeDays int) (int, error) {
	cutoff := today.AddDate(0, 0, -maxAgeDays)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int("deleted", n).Time("cutoff", cutoff).Msg("stale subscriptions removed")
	}
	return n, nil
}
