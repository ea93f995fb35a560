package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Snapshot is a consistent read of the store.
type Snapshot struct {
	Notifications []Notification
	UnreadCount   int
	Loading       bool
	// Incomplete is true while a resync window is open.
	Incomplete bool
}

type entry struct {
	n Notification
	// pushedAt is the revision at which the entry was prepended, 0 for
	// entries that came from a bulk fetch.
	pushedAt uint64
}

// Store is the client's authoritative, observable notification cache.
//
// The unread count is recomputed from the cached sequence on every
// mutation; it is never adjusted incrementally. All methods are safe for
// concurrent use and apply in arrival order.
type Store struct {
	mu       sync.Mutex
	items    []entry
	loading  bool
	revision uint64

	resyncing    bool
	serverUnread int
	haveServer   bool
	// settled holds the server count after the window closed, until the
	// next mutation.
	settled bool

	notifications *broadcast.Subject[[]Notification]
	unread        *broadcast.Subject[int]
	loadingSubj   *broadcast.Subject[bool]

	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger for the Store.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for local read timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store. Call Close when the session ends.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		notifications: broadcast.NewBehaviorSubject([]Notification{}),
		unread:        broadcast.NewBehaviorSubject(0),
		loadingSubj:   broadcast.NewBehaviorSubject(false),
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReplaceAll discards the cached sequence and installs list in the given order.
// Repeated ids keep their first occurrence.
func (s *Store) ReplaceAll(list []Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = appendUnique(make([]entry, 0, len(list)), list)
	s.endResyncLocked()
	s.publishLocked()
}

// ReplaceAllAt installs list like ReplaceAll but keeps entries pushed after
// revision rev that list does not contain, in front of it. Use it with
// the Revision taken when the bulk fetch was issued, so a late response
// cannot erase pushes that overtook it.
func (s *Store) ReplaceAllAt(rev uint64, list []Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fetched := make(map[string]struct{}, len(list))
	for _, n := range list {
		if n.ID != "" {
			fetched[n.ID] = struct{}{}
		}
	}

	items := make([]entry, 0, len(list))
	for _, e := range s.items {
		if e.pushedAt <= rev {
			continue
		}
		if _, ok := fetched[e.n.ID]; ok && e.n.ID != "" {
			continue
		}
		items = append(items, e)
	}
	s.items = appendUnique(items, list)
	s.endResyncLocked()
	s.publishLocked()
}

// Prepend inserts n at the front. An entry with the same id is replaced in
// place instead, so redelivered pushes never duplicate.
func (s *Store) Prepend(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	if i := s.indexLocked(n.ID); i >= 0 {
		s.items[i] = entry{n: n, pushedAt: s.revision}
	} else {
		s.items = append(s.items, entry{})
		copy(s.items[1:], s.items)
		s.items[0] = entry{n: n, pushedAt: s.revision}
	}
	s.publishLocked()
}

// Patch merges p into the entry with the given id. Unknown ids are logged
// and ignored.
func (s *Store) Patch(id string, p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	i := s.indexLocked(id)
	if i < 0 {
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "patch for unknown notification ignored",
			logger.NotificationID(id),
		)
		return
	}
	p.apply(&s.items[i].n)
	s.publishLocked()
}

// PatchMany applies p to every listed id that is cached.
func (s *Store) PatchMany(ids []string, p Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	var missing []string
	for _, id := range ids {
		i := s.indexLocked(id)
		if i < 0 {
			missing = append(missing, id)
			continue
		}
		p.apply(&s.items[i].n)
	}
	if len(missing) > 0 {
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "batch patch skipped unknown notifications",
			slog.Any("notification_ids", missing),
		)
	}
	s.publishLocked()
}

// MarkAllLocalRead marks every cached entry read. Entries already read keep
// their read time. During a resync window an adopted server count drops to
// zero as well.
func (s *Store) MarkAllLocalRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	now := s.now()
	for i := range s.items {
		if !s.items[i].n.IsRead {
			s.items[i].n.MarkAsRead(now)
		}
	}
	if s.haveServer {
		s.serverUnread = 0
	}
	s.publishLocked()
}

// Remove deletes the entry with the given id, if present.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	i := s.indexLocked(id)
	if i < 0 {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "remove for unknown notification ignored",
			logger.NotificationID(id),
		)
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.publishLocked()
}

// Clear empties the store. Called on logout before the realtime channel stops.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revision++
	s.items = nil
	s.endResyncLocked()
	s.publishLocked()
}

// SetLoading records whether a bulk fetch is outstanding.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = loading
	s.loadingSubj.Publish(loading)
}

// Revision returns a counter advanced by every push-driven or local mutation.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// BeginResync opens a resync window: the cache is known to be incomplete
// until the next ReplaceAll, ReplaceAllAt, Clear or EndResync.
func (s *Store) BeginResync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resyncing = true
	s.haveServer = false
	s.settled = false
}

// AdoptServerCount publishes the server's unread count while a resync window
// is open. Outside a window the derived count stays authoritative and the
// value is ignored.
func (s *Store) AdoptServerCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.resyncing {
		return
	}
	s.serverUnread = max(n, 0)
	s.haveServer = true
	s.unread.Publish(s.unreadLocked())
}

// SettleCount closes an open resync window without replacing the cache and
// publishes n as the unread count. The next mutation publishes the derived
// count again. Outside a window n is ignored.
func (s *Store) SettleCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.resyncing {
		return
	}
	s.endResyncLocked()
	s.serverUnread = max(n, 0)
	s.haveServer = true
	s.settled = true
	s.unread.Publish(s.unreadLocked())
}

// EndResync closes the resync window without replacing the cache.
func (s *Store) EndResync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.resyncing {
		return
	}
	s.endResyncLocked()
	s.unread.Publish(s.unreadLocked())
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Notifications: s.listLocked(),
		UnreadCount:   s.unreadLocked(),
		Loading:       s.loading,
		Incomplete:    s.resyncing,
	}
}

// Notifications subscribes to the cached sequence. The current value is
// delivered first, then one value per mutation.
func (s *Store) Notifications(ctx context.Context) broadcast.Subscriber[[]Notification] {
	return s.notifications.Subscribe(ctx)
}

// UnreadCount subscribes to the unread count.
func (s *Store) UnreadCount(ctx context.Context) broadcast.Subscriber[int] {
	return s.unread.Subscribe(ctx)
}

// Loading subscribes to the bulk-fetch flag.
func (s *Store) Loading(ctx context.Context) broadcast.Subscriber[bool] {
	return s.loadingSubj.Subscribe(ctx)
}

// Close disposes the store's observables. Subscribers drain and see their
// channels closed. Mutations after Close only change in-memory state.
func (s *Store) Close() error {
	_ = s.notifications.Close()
	_ = s.unread.Close()
	_ = s.loadingSubj.Close()
	return nil
}

// appendUnique appends list to items, skipping entries whose non-empty id
// was already seen in list.
func appendUnique(items []entry, list []Notification) []entry {
	seen := make(map[string]struct{}, len(list))
	for _, n := range list {
		if n.ID != "" {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
		}
		items = append(items, entry{n: n})
	}
	return items
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.items {
		if s.items[i].n.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) listLocked() []Notification {
	list := make([]Notification, len(s.items))
	for i, e := range s.items {
		list[i] = e.n
		if e.n.ReadAt != nil {
			at := *e.n.ReadAt
			list[i].ReadAt = &at
		}
	}
	return list
}

func (s *Store) unreadLocked() int {
	if (s.resyncing || s.settled) && s.haveServer {
		return s.serverUnread
	}
	count := 0
	for _, e := range s.items {
		if !e.n.IsRead {
			count++
		}
	}
	return count
}

func (s *Store) endResyncLocked() {
	s.resyncing = false
	s.haveServer = false
	s.serverUnread = 0
	s.settled = false
}

// publishLocked emits the sequence and the recomputed count. Emission happens
// under the store lock so every subscriber sees mutations in apply order.
func (s *Store) publishLocked() {
	if s.settled {
		s.endResyncLocked()
	}
	s.notifications.Publish(s.listLocked())
	s.unread.Publish(s.unreadLocked())
}
