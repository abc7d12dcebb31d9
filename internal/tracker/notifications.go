package tracker

import (
	"context"
	"sync"
	"time"

	"dashfeed/internal/domain"
)

// Backend is the slice of the platform API the notification tracker needs.
type Backend interface {
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// Notifications holds the session's view of the notification list and its
// unread count. Local mutations are optimistic: the list is updated first,
// then the backend is asked to confirm. A failed confirmation is returned to
// the caller and the optimistic state is kept (last write wins, no
// rollback); the server remains the source of truth on the next Load.
type Notifications struct {
	backend Backend

	mu     sync.Mutex
	items  []domain.Notification
	unread int
}

func NewNotifications(backend Backend) *Notifications {
	return &Notifications{backend: backend}
}

// Load replaces local state wholesale from the backend. On failure the
// previous state is kept untouched.
func (t *Notifications) Load(ctx context.Context) error {
	items, err := t.backend.ListNotifications(ctx)
	if err != nil {
		return err
	}
	count, err := t.backend.UnreadCount(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.items = items
	t.unread = count
	t.mu.Unlock()
	return nil
}

// MarkAsRead flips the local read flag and decrements the unread counter
// before confirming with the backend. Marking an already-read notification
// is a no-op locally, so the counter never double-decrements.
func (t *Notifications) MarkAsRead(ctx context.Context, id string) error {
	t.mu.Lock()
	for i := range t.items {
		if t.items[i].ID != id {
			continue
		}
		if !t.items[i].IsRead {
			t.items[i].IsRead = true
			now := time.Now().UTC()
			t.items[i].ReadAt = &now
			if t.unread > 0 {
				t.unread--
			}
		}
		break
	}
	t.mu.Unlock()

	return t.backend.MarkRead(ctx, id)
}

// MarkAllAsRead flips every local flag and zeroes the counter, then
// confirms with the backend.
func (t *Notifications) MarkAllAsRead(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now().UTC()
	for i := range t.items {
		if !t.items[i].IsRead {
			t.items[i].IsRead = true
			readAt := now
			t.items[i].ReadAt = &readAt
		}
	}
	t.unread = 0
	t.mu.Unlock()

	return t.backend.MarkAllRead(ctx)
}

// Delete removes the notification on the backend, then reloads the whole
// list to resynchronize. No optimistic local removal.
func (t *Notifications) Delete(ctx context.Context, id string) error {
	if err := t.backend.DeleteNotification(ctx, id); err != nil {
		return err
	}
	return t.Load(ctx)
}

// ApplyPush prepends a push-delivered notification (most recent first) and
// bumps the unread counter when it arrives unread.
func (t *Notifications) ApplyPush(n domain.Notification) {
	t.mu.Lock()
	t.items = append([]domain.Notification{n}, t.items...)
	if !n.IsRead {
		t.unread++
	}
	t.mu.Unlock()
}

// SetUnread replaces the counter outright with the server's value,
// regardless of what the local list implies.
func (t *Notifications) SetUnread(count int) {
	if count < 0 {
		count = 0
	}
	t.mu.Lock()
	t.unread = count
	t.mu.Unlock()
}

func (t *Notifications) Unread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread
}

// Snapshot returns a copy of the current list, most recent first.
func (t *Notifications) Snapshot() []domain.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Notification, len(t.items))
	copy(out, t.items)
	return out
}
