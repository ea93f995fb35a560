package presenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

var (
	// ErrAlreadyRunning is returned when Run is called while another Run is active.
	ErrAlreadyRunning = errors.New("presenter: already running")
	// ErrNoActions is returned by action methods when no Actions were configured.
	ErrNoActions = errors.New("presenter: no actions configured")
)

// DefaultLimit is the number of dropdown items when WithLimit is not set.
const DefaultLimit = 10

// Source is the read side of the notification store.
// *notifications.Store implements it.
type Source interface {
	Notifications(ctx context.Context) broadcast.Subscriber[[]notifications.Notification]
	UnreadCount(ctx context.Context) broadcast.Subscriber[int]
	Loading(ctx context.Context) broadcast.Subscriber[bool]
}

// Signals is the observable side of the push channel.
// *realtime.Channel implements it.
type Signals interface {
	States(ctx context.Context) broadcast.Subscriber[realtime.State]
	Events(ctx context.Context) broadcast.Subscriber[realtime.Event]
}

// Actions are the user interactions the presenter forwards.
// *session.Session implements it.
type Actions interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	Refresh(ctx context.Context) error
}

var (
	_ Source  = (*notifications.Store)(nil)
	_ Signals = (*realtime.Channel)(nil)
)

// Presenter turns store and channel observables into a ViewModel.
// It never writes to the store; user actions go through Actions.
type Presenter struct {
	source   Source
	signals  Signals
	actions  Actions
	alerters []Alerter
	limit    int
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	state   state
	running bool
	updates *broadcast.Subject[ViewModel]
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithLimit sets how many items the dropdown shows. Zero or less shows all.
func WithLimit(n int) Option {
	return func(p *Presenter) {
		p.limit = n
	}
}

// WithAlerter adds alerters fed by the channel's events.
func WithAlerter(a ...Alerter) Option {
	return func(p *Presenter) {
		p.alerters = append(p.alerters, a...)
	}
}

// WithActions sets the handler for user actions.
func WithActions(a Actions) Option {
	return func(p *Presenter) {
		p.actions = a
	}
}

// WithClock overrides the time source used for item ages.
func WithClock(now func() time.Time) Option {
	return func(p *Presenter) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Presenter) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a presenter. signals may be nil when there is no push channel.
func New(source Source, signals Signals, opts ...Option) *Presenter {
	p := &Presenter{
		source:  source,
		signals: signals,
		limit:   DefaultLimit,
		now:     time.Now,
		logger:  slog.Default(),
		state:   state{conn: realtime.StateDisconnected},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("presenter"))
	p.updates = broadcast.NewBehaviorSubject(build(p.state, p.limit, p.now()))
	return p
}

// View builds the current view model. Ages are computed against the
// current time, so calling View periodically keeps them fresh.
func (p *Presenter) View() ViewModel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return build(p.state, p.limit, p.now())
}

// Updates subscribes to view models, one per observed change.
func (p *Presenter) Updates(ctx context.Context) broadcast.Subscriber[ViewModel] {
	return p.updates.Subscribe(ctx)
}

// Run consumes the observables until ctx is done or every source has
// completed. Updates is completed when Run returns.
func (p *Presenter) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()
	defer p.updates.Close()

	listSub := p.source.Notifications(ctx)
	defer listSub.Close()
	unreadSub := p.source.UnreadCount(ctx)
	defer unreadSub.Close()
	loadingSub := p.source.Loading(ctx)
	defer loadingSub.Close()

	list := listSub.Receive(ctx)
	unread := unreadSub.Receive(ctx)
	loading := loadingSub.Receive(ctx)

	var states <-chan broadcast.Message[realtime.State]
	var events <-chan broadcast.Message[realtime.Event]
	if p.signals != nil {
		stateSub := p.signals.States(ctx)
		defer stateSub.Close()
		eventSub := p.signals.Events(ctx)
		defer eventSub.Close()
		states = stateSub.Receive(ctx)
		events = eventSub.Receive(ctx)
	}

	for list != nil || unread != nil || loading != nil || states != nil || events != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-list:
			if !ok {
				list = nil
				continue
			}
			p.update(func(s *state) { s.list = msg.Data })
		case msg, ok := <-unread:
			if !ok {
				unread = nil
				continue
			}
			p.update(func(s *state) { s.unread = msg.Data })
		case msg, ok := <-loading:
			if !ok {
				loading = nil
				continue
			}
			p.update(func(s *state) { s.loading = msg.Data })
		case msg, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			p.update(func(s *state) { s.conn = msg.Data })
		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			p.alert(ctx, msg.Data)
		}
	}
	return nil
}

func (p *Presenter) update(fn func(*state)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
	p.updates.Publish(build(p.state, p.limit, p.now()))
}

func (p *Presenter) alert(ctx context.Context, ev realtime.Event) {
	for _, a := range p.alerters {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.LogAttrs(ctx, slog.LevelError, "alerter panicked",
						logger.EventType(ev.Name),
						slog.Any("panic", r),
					)
				}
			}()
			a.Alert(ctx, ev)
		}()
	}
}

// Open is called when the dropdown opens; it refreshes the list.
func (p *Presenter) Open(ctx context.Context) error {
	if p.actions == nil {
		return ErrNoActions
	}
	return p.actions.Refresh(ctx)
}

// MarkRead marks the item read.
func (p *Presenter) MarkRead(ctx context.Context, id string) error {
	if p.actions == nil {
		return ErrNoActions
	}
	return p.actions.MarkRead(ctx, id)
}

// MarkAllRead marks every item read.
func (p *Presenter) MarkAllRead(ctx context.Context) error {
	if p.actions == nil {
		return ErrNoActions
	}
	return p.actions.MarkAllRead(ctx)
}

// Delete removes the item.
func (p *Presenter) Delete(ctx context.Context, id string) error {
	if p.actions == nil {
		return ErrNoActions
	}
	return p.actions.Delete(ctx, id)
}

// Item returns the dropdown item at index i of the current view.
func (p *Presenter) Item(i int) (Item, error) {
	v := p.View()
	if i < 0 || i >= len(v.Items) {
		return Item{}, fmt.Errorf("presenter: item index %d out of range", i)
	}
	return v.Items[i], nil
}
