package notifyserver

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Record is the wire form of a notification. Field names are PascalCase
// and the priority is sent by name.
type Record struct {
	ID                string     `json:"Id"`
	UserID            string     `json:"UserId"`
	Title             string     `json:"Title"`
	Message           string     `json:"Message"`
	Type              string     `json:"Type"`
	Priority          string     `json:"Priority"`
	RelatedEntityType string     `json:"RelatedEntityType,omitempty"`
	RelatedEntityID   string     `json:"RelatedEntityId,omitempty"`
	IsRead            bool       `json:"IsRead"`
	ReadAt            *time.Time `json:"ReadAt,omitempty"`
	CreatedAt         time.Time  `json:"CreatedAt"`
}

// ToRecord converts a notification to its wire form.
func ToRecord(n notifications.Notification) Record {
	return Record{
		ID:                n.ID,
		UserID:            n.UserID,
		Title:             n.Title,
		Message:           n.Message,
		Type:              string(n.Type),
		Priority:          n.Priority.String(),
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		IsRead:            n.IsRead,
		ReadAt:            n.ReadAt,
		CreatedAt:         n.CreatedAt,
	}
}

// ToRecords converts a list.
func ToRecords(list []notifications.Notification) []Record {
	out := make([]Record, len(list))
	for i, n := range list {
		out[i] = ToRecord(n)
	}
	return out
}

type readEvent struct {
	NotificationID string    `json:"NotificationId"`
	ReadAt         time.Time `json:"ReadAt"`
}

type batchReadEvent struct {
	NotificationIDs []string  `json:"NotificationIds"`
	ReadAt          time.Time `json:"ReadAt"`
}

type countBody struct {
	Count int `json:"Count"`
}
