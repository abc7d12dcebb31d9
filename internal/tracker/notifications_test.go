package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"dashfeed/internal/domain"
)

type fakeBackend struct {
	notifications []domain.Notification
	unread        int

	listErr    error
	countErr   error
	markErr    error
	markAllErr error
	deleteErr  error

	markedRead []string
	markedAll  int
	deleted    []string
	listCalls  int
}

func (f *fakeBackend) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Notification, len(f.notifications))
	copy(out, f.notifications)
	return out, nil
}

func (f *fakeBackend) UnreadCount(ctx context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.unread, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, id string) error {
	f.markedRead = append(f.markedRead, id)
	return f.markErr
}

func (f *fakeBackend) MarkAllRead(ctx context.Context) error {
	f.markedAll++
	return f.markAllErr
}

func (f *fakeBackend) DeleteNotification(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			f.notifications = append(f.notifications[:i], f.notifications[i+1:]...)
			break
		}
	}
	return nil
}

func notif(id string, read bool) domain.Notification {
	return domain.Notification{
		ID:        id,
		IsRead:    read,
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestLoadReplacesState(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false), notif("n2", true)},
		unread:        1,
	}
	tr := NewNotifications(backend)

	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(tr.Snapshot()); got != 2 {
		t.Fatalf("expected 2 notifications, got %d", got)
	}
	if tr.Unread() != 1 {
		t.Fatalf("expected unread 1, got %d", tr.Unread())
	}
}

func TestLoadFailureKeepsPriorState(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false)},
		unread:        1,
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	backend.listErr = errors.New("backend down")
	if err := tr.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if got := len(tr.Snapshot()); got != 1 {
		t.Fatalf("state cleared on failed load, got %d items", got)
	}
	if tr.Unread() != 1 {
		t.Fatalf("unread changed on failed load: %d", tr.Unread())
	}
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false), notif("n2", false)},
		unread:        2,
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := tr.MarkAsRead(context.Background(), "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := tr.MarkAsRead(context.Background(), "n1"); err != nil {
		t.Fatalf("mark read again: %v", err)
	}

	if tr.Unread() != 1 {
		t.Fatalf("expected unread 1 after double mark, got %d", tr.Unread())
	}
	for _, n := range tr.Snapshot() {
		if n.ID == "n1" && !n.IsRead {
			t.Fatalf("n1 should be read")
		}
	}
	if len(backend.markedRead) != 2 {
		t.Fatalf("expected 2 backend confirms, got %d", len(backend.markedRead))
	}
}

func TestUnreadNeverNegative(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false)},
		unread:        0, // server says zero even though list has an unread item
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := tr.MarkAsRead(context.Background(), "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if tr.Unread() != 0 {
		t.Fatalf("unread went negative: %d", tr.Unread())
	}
}

func TestMarkAsReadKeepsOptimisticStateOnBackendFailure(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false)},
		unread:        1,
		markErr:       errors.New("confirm failed"),
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := tr.MarkAsRead(context.Background(), "n1"); err == nil {
		t.Fatalf("expected backend error surfaced")
	}
	// no rollback: local state keeps the optimistic edit
	if tr.Unread() != 0 {
		t.Fatalf("expected optimistic unread 0, got %d", tr.Unread())
	}
	if n := tr.Snapshot()[0]; !n.IsRead {
		t.Fatalf("optimistic read flag rolled back")
	}
}

func TestMarkAllAsRead(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false), notif("n2", false), notif("n3", true)},
		unread:        2,
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := tr.MarkAllAsRead(context.Background()); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if tr.Unread() != 0 {
		t.Fatalf("expected unread 0, got %d", tr.Unread())
	}
	for _, n := range tr.Snapshot() {
		if !n.IsRead {
			t.Fatalf("%s still unread after mark all", n.ID)
		}
	}
	if backend.markedAll != 1 {
		t.Fatalf("expected one backend confirm, got %d", backend.markedAll)
	}
}

func TestDeleteReloadsFromBackend(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false), notif("n2", false)},
		unread:        2,
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	backend.unread = 1

	listCallsBefore := backend.listCalls
	if err := tr.Delete(context.Background(), "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if backend.listCalls != listCallsBefore+1 {
		t.Fatalf("delete did not trigger a reload")
	}
	items := tr.Snapshot()
	if len(items) != 1 || items[0].ID != "n2" {
		t.Fatalf("unexpected list after delete: %+v", items)
	}
	if tr.Unread() != 1 {
		t.Fatalf("expected unread 1 after resync, got %d", tr.Unread())
	}
}

func TestDeleteFailureSkipsReload(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false)},
		unread:        1,
		deleteErr:     errors.New("backend down"),
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	listCallsBefore := backend.listCalls
	if err := tr.Delete(context.Background(), "n1"); err == nil {
		t.Fatalf("expected delete error")
	}
	if backend.listCalls != listCallsBefore {
		t.Fatalf("failed delete should not reload")
	}
	if len(tr.Snapshot()) != 1 {
		t.Fatalf("local state mutated by failed delete")
	}
}

func TestApplyPushPrependsAndCounts(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false), notif("n2", true)},
		unread:        2,
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	tr.ApplyPush(notif("n3", false))

	items := tr.Snapshot()
	if items[0].ID != "n3" {
		t.Fatalf("pushed notification not first: %+v", items)
	}
	if tr.Unread() != 3 {
		t.Fatalf("expected unread 3, got %d", tr.Unread())
	}

	// read push arrivals do not bump the counter
	tr.ApplyPush(notif("n4", true))
	if tr.Unread() != 3 {
		t.Fatalf("read push changed unread: %d", tr.Unread())
	}
	if tr.Snapshot()[0].ID != "n4" {
		t.Fatalf("push ordering broken")
	}
}

func TestSetUnreadOverridesLocalValue(t *testing.T) {
	backend := &fakeBackend{
		notifications: []domain.Notification{notif("n1", false), notif("n2", false)},
		unread:        2,
	}
	tr := NewNotifications(backend)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	tr.SetUnread(7)
	if tr.Unread() != 7 {
		t.Fatalf("expected absolute override to 7, got %d", tr.Unread())
	}

	tr.SetUnread(-3)
	if tr.Unread() != 0 {
		t.Fatalf("negative count should floor at 0, got %d", tr.Unread())
	}
}
