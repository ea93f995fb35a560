package notifyserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const maxBodySize = 64 << 10

// envelope is the response body of every API route.
type envelope struct {
	Success bool   `json:"Success"`
	Message string `json:"Message,omitempty"`
	Data    any    `json:"Data,omitempty"`
}

type api struct {
	manager *Manager
	logger  *slog.Logger
}

// routes mounts the notification API on r. Every route requires a valid
// token; creation routes require the admin role.
func (a *api) routes(r chi.Router) {
	r.Get("/", a.list)
	r.Get("/unread", a.listUnread)
	r.Get("/unread-count", a.unreadCount)
	r.Put("/mark-all-read", a.markAllRead)
	r.Put("/{id}/read", a.markRead)
	r.Delete("/{id}", a.delete)

	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Post("/users/{userId}", a.sendToUser)
		r.Post("/admins", a.sendToAdmins)
	})
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.respondList(w, r, opts)
}

func (a *api) listUnread(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	opts.OnlyUnread = true
	a.respondList(w, r, opts)
}

func (a *api) respondList(w http.ResponseWriter, r *http.Request, opts ListOptions) {
	p, _ := PrincipalFrom(r.Context())
	list, err := a.manager.List(r.Context(), p.UserID, opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: ToRecords(list)})
}

func (a *api) unreadCount(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	n, err := a.manager.CountUnread(r.Context(), p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: countBody{Count: n}})
}

func (a *api) markAllRead(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := a.manager.MarkAllRead(r.Context(), p.UserID); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "all notifications marked as read"})
}

func (a *api) markRead(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := a.manager.MarkRead(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "notification marked as read"})
}

func (a *api) delete(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := a.manager.Delete(r.Context(), p.UserID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "notification deleted"})
}

func (a *api) sendToUser(w http.ResponseWriter, r *http.Request) {
	n, err := decodeNotification(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	n.UserID = chi.URLParam(r, "userId")
	sent, err := a.manager.Send(r.Context(), n)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: ToRecord(sent)})
}

func (a *api) sendToAdmins(w http.ResponseWriter, r *http.Request) {
	n, err := decodeNotification(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sent, err := a.manager.SendToAdmins(r.Context(), n)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: ToRecords(sent)})
}

// fail maps domain errors to status codes; anything else is a 500.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		writeError(w, r, http.StatusNotFound, "notification not found")
	case errors.Is(err, ErrInvalidNotification):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoAdmins):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		a.logger.LogAttrs(r.Context(), slog.LevelError, "notification request failed",
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeNotification(r *http.Request) (notifications.Notification, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return notifications.Notification{}, err
	}
	fields, err := notifications.DecodeFields(body)
	if err != nil {
		return notifications.Notification{}, err
	}
	n := fields.Notification()
	// Server-assigned fields are never taken from the request.
	n.ID, n.IsRead, n.ReadAt, n.CreatedAt = "", false, nil, time.Time{}
	return n, nil
}

func listOptions(r *http.Request) (ListOptions, error) {
	q := r.URL.Query()
	var opts ListOptions
	for key, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return ListOptions{}, errors.New("invalid " + key)
		}
		*dst = n
	}
	for _, t := range q["type"] {
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				opts.Types = append(opts.Types, notifications.Type(part))
			}
		}
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListOptions{}, errors.New("invalid since")
		}
		opts.Since = &since
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// requestLogger logs one line per request after it completes.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
