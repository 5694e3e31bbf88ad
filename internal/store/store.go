package store

import (
	"context"
	"time"

	"github.com/nhle/portal-notify/internal/model"
)

// MaxNotifications is how many records the local mirror keeps.
const MaxNotifications = 100

// Meta keys.
const (
	MetaLastRealtimeEvent = "last_realtime_event"
	MetaUnreadCount       = "unread_count"
)

// Store defines the local mirror of the notification list.
type Store interface {
	// === Notifications ===

	// SaveNotifications replaces the mirrored list, keeping list order and
	// at most MaxNotifications entries.
	SaveNotifications(ctx context.Context, list []model.Notification) error
	LoadNotifications(ctx context.Context) ([]model.Notification, error)
	ClearNotifications(ctx context.Context) error

	// === Meta ===

	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetLastRealtimeEvent(ctx context.Context, at time.Time) error
	LastRealtimeEvent(ctx context.Context) (time.Time, bool, error)

	Close() error
}
