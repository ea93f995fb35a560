package notifyserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/realtime"
)

// ErrUnknownMethod is returned in a completion for an unregistered hub method.
var ErrUnknownMethod = errors.New("notifyserver: unknown hub method")

const (
	writeWait             = 10 * time.Second
	defaultSendBuffer     = 64
	defaultKeepAlive      = 15 * time.Second
	defaultClientTimeout  = 30 * time.Second
	defaultHandshakeLimit = 15 * time.Second
)

var pingRecord, _ = realtime.Encode(realtime.Frame{Type: realtime.MessagePing})

// HubMethod handles a client invocation on behalf of userID. A non-nil
// result is sent back in the completion.
type HubMethod func(ctx context.Context, userID string, args []json.RawMessage) (any, error)

// Recorder observes hub activity. metrics.Server satisfies it.
type Recorder interface {
	ClientConnected()
	ClientDisconnected()
	Delivered(event string)
	Dropped(reason string)
}

type nopRecorder struct{}

func (nopRecorder) ClientConnected()    {}
func (nopRecorder) ClientDisconnected() {}
func (nopRecorder) Delivered(string)    {}
func (nopRecorder) Dropped(string)      {}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger for the Hub.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) HubOption {
	return func(h *Hub) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithSendBuffer sets the per-client outbound queue length. A client whose
// queue is full is disconnected.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubKeepAlive sets the interval of server ping records.
func WithHubKeepAlive(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// WithClientTimeout sets how long a client may stay silent before it is
// dropped.
func WithClientTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.clientTimeout = d
		}
	}
}

// WithHandshakeTimeout bounds the wait for the client's handshake record.
func WithHandshakeTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.handshakeTimeout = d
		}
	}
}

// Hub serves the push endpoint: it authenticates and upgrades connections,
// speaks the record-separated JSON hub protocol and fans events out to every
// connection of a user.
type Hub struct {
	auth     *Authenticator
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*hubClient]struct{}
	methods map[string]HubMethod
	closed  bool
	pumps   sync.WaitGroup

	logger           *slog.Logger
	recorder         Recorder
	buffer           int
	keepAlive        time.Duration
	clientTimeout    time.Duration
	handshakeTimeout time.Duration
}

// NewHub creates a hub that authenticates connections with auth.
func NewHub(auth *Authenticator, opts ...HubOption) *Hub {
	h := &Hub{
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:          make(map[string]map[*hubClient]struct{}),
		methods:          make(map[string]HubMethod),
		logger:           slog.Default(),
		recorder:         nopRecorder{},
		buffer:           defaultSendBuffer,
		keepAlive:        defaultKeepAlive,
		clientTimeout:    defaultClientTimeout,
		handshakeTimeout: defaultHandshakeLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle registers fn for invocations of target. Targets match
// case-insensitively.
func (h *Hub) Handle(target string, fn HubMethod) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[strings.ToLower(target)] = fn
}

// ServeHTTP upgrades an authenticated request and serves it until either
// side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	p, err := h.auth.Verify(TokenFromRequest(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.LogAttrs(r.Context(), slog.LevelDebug, "websocket upgrade failed", logger.Error(err))
		return
	}

	log := h.logger.With(logger.UserID(p.UserID))
	leftover, err := h.handshake(ws)
	if err != nil {
		log.LogAttrs(r.Context(), slog.LevelDebug, "hub handshake failed", logger.Error(err))
		if errors.Is(err, errUnsupportedProtocol) {
			h.writeRaw(ws, mustEncode(realtime.HandshakeResponse{Error: err.Error()}))
		}
		_ = ws.Close()
		return
	}

	c := &hubClient{
		userID: p.UserID,
		ws:     ws,
		send:   make(chan []byte, h.buffer+1),
		done:   make(chan struct{}),
	}
	// Registered before the handshake response is queued, so events sent
	// right after the client sees the response reach it.
	c.send <- mustEncode(realtime.HandshakeResponse{})
	if !h.register(c) {
		h.writeRaw(ws, mustEncode(realtime.HandshakeResponse{Error: "server is shutting down"}))
		_ = ws.Close()
		return
	}
	log.LogAttrs(r.Context(), slog.LevelDebug, "hub client connected")
	go h.writePump(c)

	ctx := context.WithoutCancel(r.Context())
	for _, rec := range leftover {
		if !h.process(ctx, c, rec) {
			h.drop(c, nil)
			return
		}
	}
	h.readPump(ctx, c)
	log.LogAttrs(ctx, slog.LevelDebug, "hub client disconnected")
}

// Deliver queues events for every connection of userID. Clients whose queue
// is full are disconnected and left to resync on reconnect.
func (h *Hub) Deliver(ctx context.Context, userID string, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	var msg []byte
	for _, ev := range events {
		frame, err := realtime.Invocation("", ev.Target, ev.Args...)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ev.Target, err)
		}
		rec, err := realtime.Encode(frame)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ev.Target, err)
		}
		msg = append(msg, rec...)
	}

	h.mu.RLock()
	targets := make([]*hubClient, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
			for _, ev := range events {
				h.recorder.Delivered(ev.Target)
			}
		default:
			h.logger.LogAttrs(ctx, slog.LevelWarn, "dropping slow hub client", logger.UserID(userID))
			h.recorder.Dropped("slow_consumer")
			h.drop(c, closeRecord("send queue full", true))
		}
	}
	return nil
}

// Disconnect closes every connection of userID with a close record.
func (h *Hub) Disconnect(userID, reason string, allowReconnect bool) int {
	h.mu.RLock()
	targets := make([]*hubClient, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.drop(c, closeRecord(reason, allowReconnect))
	}
	return len(targets)
}

// Clients returns the number of live connections of userID.
func (h *Hub) Clients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client, allowing them to reconnect elsewhere,
// and rejects new connections. It waits for pending writes to finish.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var all []*hubClient
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.drop(c, closeRecord("server shutting down", true))
	}
	h.pumps.Wait()
	return nil
}

var errUnsupportedProtocol = errors.New("unsupported protocol")

func (h *Hub) handshake(ws *websocket.Conn) ([][]byte, error) {
	if err := ws.SetReadDeadline(time.Now().Add(h.handshakeTimeout)); err != nil {
		return nil, err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	recs := realtime.SplitRecords(data)
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: empty handshake", realtime.ErrHandshake)
	}
	var req realtime.HandshakeRequest
	if err := json.Unmarshal(recs[0], &req); err != nil {
		return nil, fmt.Errorf("%w: %w", realtime.ErrHandshake, err)
	}
	if !strings.EqualFold(req.Protocol, "json") {
		return nil, fmt.Errorf("%w %q", errUnsupportedProtocol, req.Protocol)
	}
	return recs[1:], nil
}

func (h *Hub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.pumps.Add(1)
	h.recorder.ClientConnected()
	return true
}

// drop unregisters c and stops its write pump, sending record first when
// it is not nil.
func (h *Hub) drop(c *hubClient, record []byte) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.userID)
			}
			h.recorder.ClientDisconnected()
		}
	}
	h.mu.Unlock()
	c.close(record)
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Hub) readPump(ctx context.Context, c *hubClient) {
	defer h.drop(c, nil)
	for {
		if err := c.ws.SetReadDeadline(time.Now().Add(h.clientTimeout)); err != nil {
			return
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		for _, rec := range realtime.SplitRecords(data) {
			if !h.process(ctx, c, rec) {
				return
			}
		}
	}
}

// process handles one client record and reports whether to keep reading.
func (h *Hub) process(ctx context.Context, c *hubClient, rec []byte) bool {
	frame, err := realtime.DecodeFrame(rec)
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "malformed client record", logger.UserID(c.userID), logger.Error(err))
		return true
	}
	switch frame.Type {
	case realtime.MessagePing:
	case realtime.MessageClose:
		return false
	case realtime.MessageInvocation:
		h.invoke(ctx, c, frame)
	default:
		h.logger.LogAttrs(ctx, slog.LevelDebug, "unsupported client record",
			logger.UserID(c.userID),
			slog.Int("type", int(frame.Type)),
		)
	}
	return true
}

func (h *Hub) invoke(ctx context.Context, c *hubClient, frame realtime.Frame) {
	h.mu.RLock()
	fn, ok := h.methods[strings.ToLower(frame.Target)]
	h.mu.RUnlock()

	var (
		result any
		err    error
	)
	if ok {
		result, err = fn(ctx, c.userID, frame.Arguments)
	} else {
		err = fmt.Errorf("%w %q", ErrUnknownMethod, frame.Target)
	}
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "hub invocation failed",
			logger.UserID(c.userID),
			slog.String("target", frame.Target),
			logger.Error(err),
		)
	}
	if frame.InvocationID == "" {
		return
	}

	completion := realtime.Frame{Type: realtime.MessageCompletion, InvocationID: frame.InvocationID}
	if err != nil {
		completion.Error = err.Error()
	} else if result != nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			completion.Error = merr.Error()
		} else {
			completion.Result = raw
		}
	}
	select {
	case c.send <- mustEncode(completion):
	default:
		h.recorder.Dropped("slow_consumer")
		h.drop(c, closeRecord("send queue full", true))
	}
}

func (h *Hub) writePump(c *hubClient) {
	defer h.pumps.Done()
	defer c.ws.Close()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := h.write(c.ws, msg); err != nil {
				h.drop(c, nil)
				return
			}
		case <-ticker.C:
			if err := h.write(c.ws, pingRecord); err != nil {
				h.drop(c, nil)
				return
			}
		case <-c.done:
			if c.record != nil {
				_ = h.write(c.ws, c.record)
			}
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (h *Hub) write(ws *websocket.Conn, data []byte) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

// writeRaw is only used before a write pump exists.
func (h *Hub) writeRaw(ws *websocket.Conn, data []byte) {
	_ = h.write(ws, data)
}

type hubClient struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte

	once   sync.Once
	done   chan struct{}
	record []byte
}

func (c *hubClient) close(record []byte) {
	c.once.Do(func() {
		c.record = record
		close(c.done)
	})
}

func closeRecord(reason string, allowReconnect bool) []byte {
	return mustEncode(realtime.Frame{Type: realtime.MessageClose, Error: reason, AllowReconnect: allowReconnect})
}

func mustEncode(v any) []byte {
	b, err := realtime.Encode(v)
	if err != nil {
		panic(fmt.Sprintf("notifyserver: encode %T: %v", v, err))
	}
	return b
}

// markAsRead is the MarkAsRead hub method: ("id").
func markAsRead(m *Manager) HubMethod {
	return func(ctx context.Context, userID string, args []json.RawMessage) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: notification id is required", ErrInvalidNotification)
		}
		id, ok := notifications.RawString(args[0])
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: invalid notification id", ErrInvalidNotification)
		}
		return nil, m.MarkRead(ctx, userID, id)
	}
}

// markAllAsRead is the MarkAllAsRead hub method.
func markAllAsRead(m *Manager) HubMethod {
	return func(ctx context.Context, userID string, _ []json.RawMessage) (any, error) {
		return nil, m.MarkAllRead(ctx, userID)
	}
}
