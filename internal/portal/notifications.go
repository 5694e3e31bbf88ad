package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nhle/portal-notify/internal/model"
)

const notificationsPath = "/service/notifications"

// ID is a backend identifier that may arrive as a JSON number or string.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// NotificationDTO is one history item. Title carries the event type and
// Type the domain category (SYSTEM, CONTRACT, ...).
type NotificationDTO struct {
	ID            ID              `json:"id"`
	Title         string          `json:"title"`
	Type          string          `json:"type"`
	Message       string          `json:"message"`
	ReferenceID   ID              `json:"referenceId"`
	ReferenceType string          `json:"referenceType"`
	Read          bool            `json:"read"`
	CreatedAt     json.RawMessage `json:"createdAt"`
}

// ToNotification converts a history item into a store record. visible
// controls whether the record pops up when inserted.
func (d NotificationDTO) ToNotification(visible bool) model.Notification {
	eventType := d.Title
	if eventType == "" {
		eventType = d.Type
	}

	n := model.Notification{
		ID:            string(d.ID),
		Type:          model.NormalizeType(eventType),
		Title:         d.Title,
		Message:       d.Message,
		ContractID:    string(d.ReferenceID),
		ReferenceType: d.ReferenceType,
		Status:        model.StatusFor(d.Read, visible),
		Source:        model.SourceHistory,
		Synced:        true,
	}

	if len(d.CreatedAt) > 0 {
		var raw any
		if json.Unmarshal(d.CreatedAt, &raw) == nil {
			if ts, ok := model.ParseTimestamp(raw); ok {
				n.Timestamp = ts
			}
		}
	}
	return n
}

// Page is a Spring-style page of history items.
type Page struct {
	Content       []NotificationDTO `json:"content"`
	TotalElements int               `json:"totalElements"`
	TotalPages    int               `json:"totalPages"`
	Number        int               `json:"number"`
	Size          int               `json:"size"`
}

// PageRequest selects a page of history.
type PageRequest struct {
	Page int
	Size int
	Sort string
}

// SaveRequest is the body of POST /service/notifications/save.
type SaveRequest struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	ContractID string `json:"contractId,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// NewSaveRequest builds the save body for a locally observed record.
func NewSaveRequest(n model.Notification) SaveRequest {
	return SaveRequest{
		Type:       n.Type,
		Message:    n.Message,
		ContractID: n.ContractID,
		Timestamp:  n.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Health is the body of GET /service/notifications/health.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ListNotifications fetches one page of the user's notification history.
func (c *Client) ListNotifications(ctx context.Context, req PageRequest) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("size", strconv.Itoa(req.Size))
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}

	var page Page
	if err := c.get(ctx, notificationsPath, q, &page); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return &page, nil
}

// UnreadCount returns the backend's authoritative unread count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var count int
	if err := c.get(ctx, notificationsPath+"/unread-count", nil, &count); err != nil {
		return 0, fmt.Errorf("fetching unread count: %w", err)
	}
	return count, nil
}

// MarkRead marks one server-side notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if err := c.patch(ctx, notificationsPath+"/"+url.PathEscape(id)+"/read"); err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every notification of the user as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.patch(ctx, notificationsPath+"/mark-all-read"); err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// SaveNotification persists a client-observed notification.
func (c *Client) SaveNotification(ctx context.Context, req SaveRequest) error {
	if err := c.post(ctx, notificationsPath+"/save", req, nil); err != nil {
		return fmt.Errorf("saving notification: %w", err)
	}
	return nil
}

// Health checks the notification service.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, notificationsPath+"/health", nil, &h); err != nil {
		return nil, fmt.Errorf("checking notification health: %w", err)
	}
	return &h, nil
}
