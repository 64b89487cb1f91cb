package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaxtrack/vaxtrack/internal/platform/notification"
)

var (
	ErrNotFound       = errors.New("subscription not found")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrEmptyAddress   = errors.New("address is required")
)

// Subscription is one contact point a user registered for reminder
// delivery. Digest-enabled rows additionally receive the weekly summary.
type Subscription struct {
	ID        uuid.UUID            `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"user_id"`
	Channel   notification.Channel `db:"channel" json:"channel"`
	Address   string               `db:"address" json:"address"`
	Digest    bool                 `db:"digest" json:"digest"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// Validate checks the subscription before storing it.
func (s *Subscription) Validate() error {
	switch s.Channel {
	case notification.ChannelEmail, notification.ChannelSMS, notification.ChannelPush:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidChannel, s.Channel)
	}
	if s.Address == "" {
		return ErrEmptyAddress
	}
	return nil
}
