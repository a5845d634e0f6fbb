package models

import (
	"fmt"
	"strings"
	"time"
)

type TargetType string

const (
	TargetDocument     TargetType = "document"
	TargetAnnouncement TargetType = "announcement"
	TargetTicket       TargetType = "ticket"
)

// targetNotificationTypes lists the notification types that point at a target of
// the given kind. Viewing the target marks all of them read.
var targetNotificationTypes = map[TargetType][]NotificationType{
	TargetDocument:     {NotificationDocumentUploaded},
	TargetAnnouncement: {NotificationAnnouncementPosted},
	TargetTicket:       {NotificationTicketCreated, NotificationTicketCommented, NotificationTicketStatusUpdated},
}

func ParseTargetType(raw string) (TargetType, error) {
	t := TargetType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := targetNotificationTypes[t]; !ok {
		return "", fmt.Errorf("unknown target type %q", raw)
	}
	return t, nil
}

func (t TargetType) NotificationTypes() []NotificationType {
	return append([]NotificationType(nil), targetNotificationTypes[t]...)
}

// View records that a user has looked at a target. At most one per
// (user, target type, target id).
type View struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id"`
	ViewedAt   time.Time  `json:"viewed_at"`
}

type Viewer struct {
	View
	User UserSummary `json:"user"`
}
