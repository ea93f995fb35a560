package notifications

import "time"

// Patch is a partial update merged into a cached notification.
// Nil fields are left untouched.
type Patch struct {
	IsRead   *bool
	ReadAt   *time.Time
	Title    *string
	Message  *string
	Type     *Type
	Priority *Priority
}

// ReadPatch marks an entry read at the given time.
func ReadPatch(at time.Time) Patch {
	read := true
	return Patch{IsRead: &read, ReadAt: &at}
}

// UnreadPatch flips an entry back to unread and clears its read time.
func UnreadPatch() Patch {
	read := false
	return Patch{IsRead: &read}
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.IsRead == nil && p.ReadAt == nil && p.Title == nil &&
		p.Message == nil && p.Type == nil && p.Priority == nil
}

func (p Patch) apply(n *Notification) {
	if p.IsRead != nil {
		n.IsRead = *p.IsRead
		if !n.IsRead {
			n.ReadAt = nil
		}
	}
	if p.ReadAt != nil {
		at := *p.ReadAt
		n.ReadAt = &at
	}
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Message != nil {
		n.Message = *p.Message
	}
	if p.Type != nil {
		n.Type = *p.Type
	}
	if p.Priority != nil {
		n.Priority = *p.Priority
	}
}
