package presenter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

// MaxBadge is the largest count shown verbatim on the badge.
const MaxBadge = 99

// ViewModel is everything a bell and its dropdown render.
type ViewModel struct {
	// Badge is empty when nothing is unread.
	Badge  string
	Unread int
	// Items holds the latest notifications, newest first.
	Items []Item
	// Total is the number of cached notifications, including those not in Items.
	Total        int
	Loading      bool
	State        realtime.State
	Connected    bool
	Reconnecting bool
}

// Empty reports whether there is nothing to list.
func (v ViewModel) Empty() bool { return v.Total == 0 }

// Item is one dropdown row.
type Item struct {
	ID        string
	Title     string
	Message   string
	Type      notifications.Type
	Category  notifications.Category
	Priority  notifications.Priority
	Read      bool
	CreatedAt time.Time
	// Age is CreatedAt relative to the time the view was built.
	Age string
}

// BadgeText formats an unread count: "" for zero, the number up to
// MaxBadge, "99+" above.
func BadgeText(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > MaxBadge:
		return strconv.Itoa(MaxBadge) + "+"
	default:
		return strconv.Itoa(unread)
	}
}

// Age renders t relative to now in a compact form.
func Age(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	case t.Year() == now.Year():
		return t.Format("Jan 2")
	default:
		return t.Format("Jan 2, 2006")
	}
}

type state struct {
	list    []notifications.Notification
	unread  int
	loading bool
	conn    realtime.State
}

func build(s state, limit int, now time.Time) ViewModel {
	v := ViewModel{
		Badge:        BadgeText(s.unread),
		Unread:       s.unread,
		Total:        len(s.list),
		Loading:      s.loading,
		State:        s.conn,
		Connected:    s.conn == realtime.StateConnected,
		Reconnecting: s.conn == realtime.StateReconnecting,
	}
	n := len(s.list)
	if limit > 0 {
		n = min(n, limit)
	}
	v.Items = make([]Item, 0, n)
	for _, src := range s.list[:n] {
		v.Items = append(v.Items, Item{
			ID:        src.ID,
			Title:     src.Title,
			Message:   src.Message,
			Type:      src.Type,
			Category:  src.Type.Category(),
			Priority:  src.Priority,
			Read:      src.IsRead,
			CreatedAt: src.CreatedAt,
			Age:       Age(now, src.CreatedAt),
		})
	}
	return v
}
