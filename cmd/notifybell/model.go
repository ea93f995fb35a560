package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/presenter"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
	"github.com/dmitrymomot/notifykit/pkg/session"
)

// bell is what the model needs from the presenter.
type bell interface {
	View() presenter.ViewModel
	Open(ctx context.Context) error
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

type (
	viewMsg       presenter.ViewModel
	tickMsg       time.Time
	startedMsg    struct{ err error }
	authFailedMsg struct{ err error }
	actionMsg     struct {
		op  string
		err error
	}
)

const ageRefresh = 30 * time.Second

type model struct {
	ctx          context.Context
	bell         bell
	start        func(ctx context.Context) error
	updates      <-chan broadcast.Message[presenter.ViewModel]
	authFailures <-chan broadcast.Message[error]

	view    presenter.ViewModel
	cursor  int
	keys    keyMap
	help    help.Model
	spinner spinner.Model
	width   int
	status  string
	err     error
	fatal   error
}

func newModel(
	ctx context.Context,
	b bell,
	start func(ctx context.Context) error,
	updates <-chan broadcast.Message[presenter.ViewModel],
	authFailures <-chan broadcast.Message[error],
) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorBlue)
	return model{
		ctx:          ctx,
		bell:         b,
		start:        start,
		updates:      updates,
		authFailures: authFailures,
		view:         b.View(),
		keys:         defaultKeyMap(),
		help:         help.New(),
		spinner:      sp,
		status:       "connecting",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.startCmd(),
		waitFor(m.updates, func(v presenter.ViewModel) tea.Msg { return viewMsg(v) }),
		waitFor(m.authFailures, func(err error) tea.Msg { return authFailedMsg{err: err} }),
		tickCmd(),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case viewMsg:
		m.view = presenter.ViewModel(msg)
		m.clampCursor()
		return m, waitFor(m.updates, func(v presenter.ViewModel) tea.Msg { return viewMsg(v) })

	case tickMsg:
		m.view = m.bell.View()
		m.clampCursor()
		return m, tickCmd()

	case startedMsg:
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, session.ErrUnauthenticated):
			m.fatal = msg.err
			return m, tea.Quit
		default:
			m.err = msg.err
			m.status = "live updates unavailable"
		}
		return m, nil

	case authFailedMsg:
		m.fatal = fmt.Errorf("session expired: %w", msg.err)
		return m, tea.Quit

	case actionMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.op
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.view.Items)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.MarkRead):
		if item, ok := m.selected(); ok && !item.Read {
			return m, m.action("marked as read", func(ctx context.Context) error {
				return m.bell.MarkRead(ctx, item.ID)
			})
		}
	case key.Matches(msg, m.keys.MarkAllRead):
		if m.view.Unread > 0 {
			return m, m.action("all marked as read", m.bell.MarkAllRead)
		}
	case key.Matches(msg, m.keys.Delete):
		if item, ok := m.selected(); ok {
			return m, m.action("deleted", func(ctx context.Context) error {
				return m.bell.Delete(ctx, item.ID)
			})
		}
	case key.Matches(msg, m.keys.Refresh):
		return m, m.action("refreshed", m.bell.Open)
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	header := titleStyle.Render("Notifications")
	if m.view.Badge != "" {
		header = lipgloss.JoinHorizontal(lipgloss.Center, header, " ", badgeStyle.Render(m.view.Badge))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, header, "  ", m.connection()))
	b.WriteString("\n")

	b.WriteString(panelStyle.Width(m.panelWidth()).Render(m.list()))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) list() string {
	if m.view.Loading && m.view.Empty() {
		return m.spinner.View() + " loading"
	}
	if m.view.Empty() {
		return statusStyle.Render("No notifications")
	}

	rows := make([]string, 0, len(m.view.Items)+1)
	for i, item := range m.view.Items {
		icon := categoryStyle(item.Category).Render(categoryIcon(item.Category))
		title := item.Title
		if item.Read {
			title = readStyle.Render(title)
		}
		line := fmt.Sprintf("%s %s  %s", icon, title, ageStyle.Render(item.Age))

		style := itemStyle
		if i == m.cursor {
			style = selectedStyle
		}
		row := style.Render(line)
		if i == m.cursor && item.Message != "" {
			row = lipgloss.JoinVertical(lipgloss.Left, row, messageStyle.Render(item.Message))
		}
		rows = append(rows, row)
	}
	if more := m.view.Total - len(m.view.Items); more > 0 {
		rows = append(rows, statusStyle.Render(fmt.Sprintf("  … %d more", more)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m model) connection() string {
	switch {
	case m.view.Connected:
		return lipgloss.NewStyle().Foreground(colorGreen).Render("● live")
	case m.view.Reconnecting:
		return warnStyle.Render(m.spinner.View() + " reconnecting")
	case m.view.State == realtime.StateConnecting:
		return warnStyle.Render(m.spinner.View() + " connecting")
	default:
		return statusStyle.Render("○ offline")
	}
}

func (m model) panelWidth() int {
	if m.width <= 4 {
		return 60
	}
	return m.width - 4
}

func (m model) selected() (presenter.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.view.Items) {
		return presenter.Item{}, false
	}
	return m.view.Items[m.cursor], true
}

func (m *model) clampCursor() {
	m.cursor = max(0, min(m.cursor, len(m.view.Items)-1))
}

func (m model) startCmd() tea.Cmd {
	if m.start == nil {
		return nil
	}
	return func() tea.Msg {
		return startedMsg{err: m.start(m.ctx)}
	}
}

func (m model) action(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{op: op, err: fn(m.ctx)}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(ageRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitFor turns the next message of ch into a tea.Msg. A closed channel
// ends the loop.
func waitFor[T any](ch <-chan broadcast.Message[T], wrap func(T) tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return wrap(msg.Data)
	}
}
