package notifyserver

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// MemoryStorage keeps notifications in memory, per user.
type MemoryStorage struct {
	mu    sync.RWMutex
	users map[string][]notifications.Notification
}

// NewMemoryStorage creates an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{users: make(map[string][]notifications.Notification)}
}

func (s *MemoryStorage) Create(_ context.Context, n notifications.Notification) error {
	if n.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidNotification)
	}
	if n.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidNotification)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.users[n.UserID] = append(s.users[n.UserID], n)
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, userID, id string) (notifications.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.users[userID] {
		if n.ID == id {
			return clone(n), nil
		}
	}
	return notifications.Notification{}, ErrNotificationNotFound
}

func (s *MemoryStorage) List(_ context.Context, userID string, opts ListOptions) ([]notifications.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]notifications.Notification, 0, len(s.users[userID]))
	for _, n := range s.users[userID] {
		if opts.OnlyUnread && n.IsRead {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, n.Type) {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, clone(n))
	}

	// Stored in insertion order; newest first with ties kept newest-inserted first.
	slices.Reverse(filtered)
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start := min(opts.Offset, len(filtered))
	end := len(filtered)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, end)
	}
	return filtered[start:end], nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, userID string, at time.Time, ids ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	list := s.users[userID]
	changed := make([]string, 0, len(ids))
	for i := range list {
		if _, ok := want[list[i].ID]; !ok || list[i].IsRead {
			continue
		}
		list[i].MarkAsRead(at)
		changed = append(changed, list[i].ID)
	}
	return changed, nil
}

func (s *MemoryStorage) MarkAllRead(_ context.Context, userID string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.users[userID]
	var changed []string
	for i := range list {
		if list[i].IsRead {
			continue
		}
		list[i].MarkAsRead(at)
		changed = append(changed, list[i].ID)
	}
	return changed, nil
}

func (s *MemoryStorage) Delete(_ context.Context, userID string, ids ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	list := s.users[userID]
	kept := list[:0]
	var deleted []string
	for _, n := range list {
		if _, ok := want[n.ID]; ok {
			deleted = append(deleted, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	clear(list[len(kept):])
	if len(kept) == 0 {
		delete(s.users, userID)
	} else {
		s.users[userID] = kept
	}
	return deleted, nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return notifications.CountUnread(s.users[userID]), nil
}

func clone(n notifications.Notification) notifications.Notification {
	if n.ReadAt != nil {
		at := *n.ReadAt
		n.ReadAt = &at
	}
	return n
}
