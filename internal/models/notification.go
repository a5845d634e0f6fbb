package models

import (
	"fmt"
	"strings"
	"time"
)

type NotificationType string

const (
	NotificationDocumentUploaded    NotificationType = "document_uploaded"
	NotificationAnnouncementPosted  NotificationType = "announcement_posted"
	NotificationRestaurantJoined    NotificationType = "restaurant_joined"
	NotificationTicketCreated       NotificationType = "ticket_created"
	NotificationTicketCommented     NotificationType = "ticket_commented"
	NotificationTicketStatusUpdated NotificationType = "ticket_status_updated"
)

// NotificationCategory is the bucket a client shows an unread badge for.
type NotificationCategory string

const (
	CategoryDocuments     NotificationCategory = "documents"
	CategoryAnnouncements NotificationCategory = "announcements"
	CategoryTickets       NotificationCategory = "tickets"
)

// notificationCategories maps every notification type onto its badge category.
// Adding a type is a one-line edit here.
var notificationCategories = map[NotificationType]NotificationCategory{
	NotificationDocumentUploaded:    CategoryDocuments,
	NotificationAnnouncementPosted:  CategoryAnnouncements,
	NotificationRestaurantJoined:    CategoryAnnouncements,
	NotificationTicketCreated:       CategoryTickets,
	NotificationTicketCommented:     CategoryTickets,
	NotificationTicketStatusUpdated: CategoryTickets,
}

// orderedTypes keeps type expansion deterministic for queries and tests.
var orderedTypes = []NotificationType{
	NotificationDocumentUploaded,
	NotificationAnnouncementPosted,
	NotificationRestaurantJoined,
	NotificationTicketCreated,
	NotificationTicketCommented,
	NotificationTicketStatusUpdated,
}

func IsValidNotificationType(t NotificationType) bool {
	_, ok := notificationCategories[t]
	return ok
}

func (t NotificationType) Category() (NotificationCategory, bool) {
	c, ok := notificationCategories[t]
	return c, ok
}

func IsValidCategory(c NotificationCategory) bool {
	switch c {
	case CategoryDocuments, CategoryAnnouncements, CategoryTickets:
		return true
	}
	return false
}

// TypesForCategory expands a category into its underlying notification types.
func TypesForCategory(c NotificationCategory) []NotificationType {
	var types []NotificationType
	for _, t := range orderedTypes {
		if notificationCategories[t] == c {
			types = append(types, t)
		}
	}
	return types
}

// ParseNotificationType accepts both the stored form and the upper-case enum form
// (DOCUMENT_UPLOADED) older clients send.
func ParseNotificationType(raw string) (NotificationType, error) {
	t := NotificationType(strings.ToLower(strings.TrimSpace(raw)))
	if !IsValidNotificationType(t) {
		return "", fmt.Errorf("unknown notification type %q", raw)
	}
	return t, nil
}

type Notification struct {
	ID              string           `json:"id"`
	RecipientUserID string           `json:"recipient_user_id"`
	TenantID        string           `json:"tenant_id"`
	Type            NotificationType `json:"type"`
	TargetID        string           `json:"target_id"`
	Message         string           `json:"message"`
	IsRead          bool             `json:"is_read"`
	CreatedAt       time.Time        `json:"created_at"`
}

// UnreadCounts is the per-category badge payload.
type UnreadCounts struct {
	Documents     int `json:"documents"`
	Announcements int `json:"announcements"`
	Tickets       int `json:"tickets"`
}

func (c *UnreadCounts) Add(category NotificationCategory, n int) {
	switch category {
	case CategoryDocuments:
		c.Documents += n
	case CategoryAnnouncements:
		c.Announcements += n
	case CategoryTickets:
		c.Tickets += n
	}
}

// Audience selects which users of a tenant a fan-out reaches.
type Audience string

const (
	AudienceAllInTenant  Audience = "ALL_IN_TENANT"
	AudienceManagersOnly Audience = "MANAGERS_ONLY"
	AudienceViewersOnly  Audience = "VIEWERS_ONLY"
)

func IsValidAudience(a Audience) bool {
	switch a {
	case AudienceAllInTenant, AudienceManagersOnly, AudienceViewersOnly:
		return true
	}
	return false
}

// Matches reports whether a user with the given roles belongs to the audience.
func (a Audience) Matches(roles []UserRole) bool {
	switch a {
	case AudienceAllInTenant:
		return true
	case AudienceManagersOnly:
		return HasAtLeast(roles, RoleManager)
	case AudienceViewersOnly:
		return !HasAtLeast(roles, RoleManager)
	}
	return false
}
