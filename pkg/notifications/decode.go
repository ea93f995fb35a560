package notifications

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRecord is returned when a payload cannot be read as a notification.
var ErrMalformedRecord = errors.New("notifications: malformed record")

// field aliases keyed by canonical name; lookups compare folded keys
// (lower case, no underscores or dashes), so "createdAt", "CreatedAt" and
// "created_at" all resolve to the same entry.
var fieldAliases = map[string][]string{
	"id":                {"id", "notificationid"},
	"userId":            {"userid", "recipientid"},
	"title":             {"title", "subject"},
	"message":           {"message", "body", "content"},
	"type":              {"type", "notificationtype", "kind"},
	"priority":          {"priority"},
	"relatedEntityType": {"relatedentitytype", "entitytype"},
	"relatedEntityId":   {"relatedentityid", "entityid"},
	"isRead":            {"isread", "read"},
	"readAt":            {"readat"},
	"createdAt":         {"createdat", "timestamp", "sentat"},
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// FoldKey canonicalises a JSON field name so camelCase, PascalCase and
// snake_case spellings compare equal.
func FoldKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "").Replace(k)
}

// Fields is a decoded JSON object indexed by folded key.
type Fields map[string]json.RawMessage

// DecodeFields reads a JSON object into Fields.
func DecodeFields(raw []byte) (Fields, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: null object", ErrMalformedRecord)
	}
	f := make(Fields, len(obj))
	for k, v := range obj {
		f[FoldKey(k)] = v
	}
	return f, nil
}

// Lookup returns the first present, non-null value among the folded names.
func (f Fields) Lookup(names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		if v, ok := f[FoldKey(name)]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

// String reads a string field, accepting numbers as well.
func (f Fields) String(names ...string) string {
	v, ok := f.Lookup(names...)
	if !ok {
		return ""
	}
	s, _ := RawString(v)
	return s
}

// Bool reads a boolean field, accepting "true"/"false" strings and 0/1.
func (f Fields) Bool(names ...string) bool {
	v, ok := f.Lookup(names...)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	s, _ := RawString(v)
	b, _ = strconv.ParseBool(s)
	return b
}

// Time reads a timestamp field.
func (f Fields) Time(names ...string) (time.Time, bool) {
	v, ok := f.Lookup(names...)
	if !ok {
		return time.Time{}, false
	}
	return RawTime(v)
}

// RawString reads a JSON string or number as text.
func RawString(v json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), true
	}
	return "", false
}

// RawTime reads an RFC 3339 style timestamp (zone optional, UTC assumed) or
// a unix time in milliseconds.
func RawTime(v json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	var ms int64
	if err := json.Unmarshal(v, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// Decode normalises one loosely-typed record into a Notification.
// Only a payload that is not a JSON object is rejected; missing or unknown
// field values fall back to zero values.
func Decode(raw []byte) (Notification, error) {
	f, err := DecodeFields(raw)
	if err != nil {
		return Notification{}, err
	}
	return f.Notification(), nil
}

// Notification builds the canonical notification from decoded fields.
func (f Fields) Notification() Notification {
	n := Notification{
		ID:                f.String(fieldAliases["id"]...),
		UserID:            f.String(fieldAliases["userId"]...),
		Title:             f.String(fieldAliases["title"]...),
		Message:           f.String(fieldAliases["message"]...),
		RelatedEntityType: f.String(fieldAliases["relatedEntityType"]...),
		RelatedEntityID:   f.String(fieldAliases["relatedEntityId"]...),
		IsRead:            f.Bool(fieldAliases["isRead"]...),
		Priority:          PriorityNormal,
	}

	if v, ok := f.Lookup(fieldAliases["type"]...); ok {
		n.Type = decodeType(v)
	}
	if v, ok := f.Lookup(fieldAliases["priority"]...); ok {
		_ = n.Priority.UnmarshalJSON(v)
	}
	if t, ok := f.Time(fieldAliases["createdAt"]...); ok {
		n.CreatedAt = t
	}
	// An explicit isRead wins over readAt; without it a read time implies read.
	_, explicit := f.Lookup(fieldAliases["isRead"]...)
	if t, ok := f.Time(fieldAliases["readAt"]...); ok && (n.IsRead || !explicit) {
		n.ReadAt = &t
		n.IsRead = true
	}

	return n
}

func decodeType(v json.RawMessage) Type {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return normalizeType(s)
	}
	var n int64
	if err := json.Unmarshal(v, &n); err == nil {
		return typeFromOrdinal(n)
	}
	return ""
}

// DecodeList normalises a JSON array of records.
func DecodeList(raw []byte) ([]Notification, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: expected array: %w", ErrMalformedRecord, err)
	}

	list := make([]Notification, 0, len(items))
	for i, item := range items {
		n, err := Decode(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		list = append(list, n)
	}
	return list, nil
}

// DecodeIDs reads a JSON array of ids given as strings or numbers.
func DecodeIDs(raw []byte) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: expected id array: %w", ErrMalformedRecord, err)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, ok := RawString(item)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: invalid id %s", ErrMalformedRecord, item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
