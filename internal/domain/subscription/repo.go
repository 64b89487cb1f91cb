package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for subscriptions.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)

	// ListDigestEnabled returns every digest-enabled subscription; the
	// weekly digest pass iterates these.
	ListDigestEnabled(ctx context.Context) ([]*Subscription, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteOlderThan removes subscriptions created before cutoff and
	// returns how many rows went.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
