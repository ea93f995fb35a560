package notifications

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Type identifies what happened. The set is open: values the client does not
// know are kept as-is and fall into CategoryDefault.
type Type string

const (
	TypeRequestCreated     Type = "RequestCreated"
	TypeDriverAssigned     Type = "DriverAssigned"
	TypeDriverEnRoute      Type = "DriverEnRoute"
	TypePickupCompleted    Type = "PickupCompleted"
	TypePaymentApproved    Type = "PaymentApproved"
	TypePaymentPaid        Type = "PaymentPaid"
	TypeNewReview          Type = "NewReview"
	TypeNewAssignment      Type = "NewAssignment"
	TypeSystemAnnouncement Type = "SystemAnnouncement"
	TypeWelcome            Type = "Welcome"
)

// knownTypes is ordered by the server's enum ordinal.
var knownTypes = []Type{
	TypeRequestCreated,
	TypeDriverAssigned,
	TypeDriverEnRoute,
	TypePickupCompleted,
	TypePaymentApproved,
	TypePaymentPaid,
	TypeNewReview,
	TypeNewAssignment,
	TypeSystemAnnouncement,
	TypeWelcome,
}

// Known reports whether t is one of the declared types.
func (t Type) Known() bool {
	_, ok := typeCategories[t]
	return ok
}

// Category groups types for display purposes.
type Category string

const (
	CategoryRequest Category = "request"
	CategoryDriver  Category = "driver"
	CategoryPickup  Category = "pickup"
	CategoryPayment Category = "payment"
	CategoryReview  Category = "review"
	CategorySystem  Category = "system"
	CategoryDefault Category = "default"
)

var typeCategories = map[Type]Category{
	TypeRequestCreated:     CategoryRequest,
	TypeDriverAssigned:     CategoryDriver,
	TypeDriverEnRoute:      CategoryDriver,
	TypeNewAssignment:      CategoryDriver,
	TypePickupCompleted:    CategoryPickup,
	TypePaymentApproved:    CategoryPayment,
	TypePaymentPaid:        CategoryPayment,
	TypeNewReview:          CategoryReview,
	TypeSystemAnnouncement: CategorySystem,
	TypeWelcome:            CategorySystem,
}

// Category returns the display group of t, CategoryDefault for unknown types.
func (t Type) Category() Category {
	if c, ok := typeCategories[t]; ok {
		return c
	}
	return CategoryDefault
}

// typeFromOrdinal maps a numeric enum value to its name.
// Unknown ordinals are kept as their decimal text.
func typeFromOrdinal(n int64) Type {
	if n >= 0 && n < int64(len(knownTypes)) {
		return knownTypes[n]
	}
	return Type(strconv.FormatInt(n, 10))
}

// normalizeType matches known names case-insensitively.
func normalizeType(s string) Type {
	s = strings.TrimSpace(s)
	for _, t := range knownTypes {
		if strings.EqualFold(string(t), s) {
			return t
		}
	}
	return Type(s)
}

// Priority is informational only; it never changes how a notification is stored.
// The zero value is PriorityNormal.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
	PriorityUrgent
)

var priorityNames = [...]string{"Normal", "Low", "High", "Urgent"}

// wirePriorities maps the server's numeric priority (Low=0 .. Urgent=3).
var wirePriorities = [...]Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

func (p Priority) String() string {
	if p >= PriorityNormal && p <= PriorityUrgent {
		return priorityNames[p]
	}
	return "Normal"
}

// ParsePriority parses a priority name case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	for i, name := range priorityNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Priority(i), true
		}
	}
	return PriorityNormal, false
}

// MarshalJSON encodes the priority by name.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either a name or a server ordinal. Unrecognised
// values decode as PriorityNormal.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*p, _ = ParsePriority(name)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil && n >= 0 && n < len(wirePriorities) {
		*p = wirePriorities[n]
		return nil
	}
	*p = PriorityNormal
	return nil
}

// Notification is the canonical client-side shape of a server notification.
type Notification struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	Type              Type       `json:"type"`
	Priority          Priority   `json:"priority"`
	RelatedEntityType string     `json:"relatedEntityType,omitempty"`
	RelatedEntityID   string     `json:"relatedEntityId,omitempty"`
	IsRead            bool       `json:"isRead"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// MarkAsRead flags the notification read at the given time.
// A notification that is already read keeps its original ReadAt.
func (n *Notification) MarkAsRead(at time.Time) {
	if n.IsRead && n.ReadAt != nil {
		return
	}
	n.IsRead = true
	n.ReadAt = &at
}

// CountUnread returns the number of unread entries in list.
func CountUnread(list []Notification) int {
	count := 0
	for _, n := range list {
		if !n.IsRead {
			count++
		}
	}
	return count
}
