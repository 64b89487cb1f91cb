package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vaxtrack/vaxtrack/internal/platform/notification"
)

type mockRepo struct {
	subs map[uuid.UUID]*Subscription
}

func newMockRepo() *mockRepo {
	return &mockRepo{subs: make(map[uuid.UUID]*Subscription)}
}

func (m *mockRepo) Create(_ context.Context, sub *Subscription) error {
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID string) ([]*Subscription, error) {
	var out []*Subscription
	for _, sub := range m.subs {
		if sub.UserID == userID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) ListDigestEnabled(_ context.Context) ([]*Subscription, error) {
	var out []*Subscription
	for _, sub := range m.subs {
		if sub.Digest {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *mockRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	for id, sub := range m.subs {
		if sub.CreatedAt.Before(cutoff) {
			delete(m.subs, id)
			n++
		}
	}
	return n, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSubscribe(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, "user-1", notification.ChannelEmail, "parent@example.com", true)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.UserID != "user-1" || !sub.Digest {
		t.Errorf("subscription = %+v", sub)
	}

	if _, err := svc.Subscribe(ctx, "user-1", "carrier-pigeon", "roof", false); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("bad channel: got %v", err)
	}
	if _, err := svc.Subscribe(ctx, "user-1", notification.ChannelSMS, "", false); !errors.Is(err, ErrEmptyAddress) {
		t.Errorf("empty address: got %v", err)
	}
}

func TestUnsubscribe_OwnerOnly(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, "user-1", notification.ChannelPush, "token-1", false)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := svc.Unsubscribe(ctx, "user-2", sub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign unsubscribe: got %v", err)
	}
	if err := svc.Unsubscribe(ctx, "user-1", sub.ID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := svc.Unsubscribe(ctx, "user-1", sub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double unsubscribe: got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	old := &Subscription{ID: uuid.New(), UserID: "user-1", Channel: notification.ChannelEmail,
		Address: "old@example.com", CreatedAt: date(2024, 1, 1)}
	fresh := &Subscription{ID: uuid.New(), UserID: "user-1", Channel: notification.ChannelEmail,
		Address: "fresh@example.com", CreatedAt: date(2024, 5, 20)}
	repo.subs[old.ID] = old
	repo.subs[fresh.ID] = fresh

	n, err := svc.Cleanup(ctx, date(2024, 6, 15), 90)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if _, ok := repo.subs[fresh.ID]; !ok {
		t.Error("fresh subscription was deleted")
	}
	if _, ok := repo.subs[old.ID]; ok {
		t.Error("stale subscription survived")
	}
}

func TestListDigestEnabled(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, "user-1", notification.ChannelEmail, "a@example.com", true); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := svc.Subscribe(ctx, "user-2", notification.ChannelEmail, "b@example.com", false); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	subs, err := svc.ListDigestEnabled(ctx)
	if err != nil {
		t.Fatalf("ListDigestEnabled: %v", err)
	}
	if len(subs) != 1 || subs[0].UserID != "user-1" {
		t.Errorf("digest subs = %+v", subs)
	}
}
