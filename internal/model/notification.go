package model

import (
	"strings"
	"time"
)

// LocalIDPrefix marks notification ids minted on this machine. Any other id
// was issued by the portal backend.
const LocalIDPrefix = "notif_"

// Source records where a notification record came from.
type Source string

const (
	// SourceRealtime is a record pushed over the STOMP connection.
	SourceRealtime Source = "realtime"
	// SourceHistory is a record loaded from the backend history endpoint.
	SourceHistory Source = "history"
	// SourceLocal is a record synthesized locally and not yet confirmed.
	SourceLocal Source = "local"
	// SourceServer is a record added locally that already carries a server id.
	SourceServer Source = "server"
)

// IsPlaceholder reports whether records of this source may be replaced by
// a confirmed history record for the same event.
func (s Source) IsPlaceholder() bool {
	return s == SourceLocal || s == SourceRealtime
}

// Notification is a single entry in the staff notification list.
type Notification struct {
	// ID is the backend id, or a LocalIDPrefix id for unconfirmed records.
	ID string `json:"id" db:"id"`

	// Type is the canonical event type (see NormalizeType).
	Type string `json:"type" db:"type"`

	// Title is the server-provided heading, if any.
	Title string `json:"title,omitempty" db:"title"`

	// Message is the human-readable notification text.
	Message string `json:"message" db:"message"`

	// ContractID references the subject entity (contract, invoice, ticket).
	ContractID string `json:"contractId,omitempty" db:"contract_id"`

	// ReferenceType is the kind of entity ContractID points at.
	ReferenceType string `json:"referenceType,omitempty" db:"reference_type"`

	// Timestamp is when the event happened, or when it was received.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Status is the read/visibility state of the record.
	Status Status `json:"status" db:"status"`

	// Source is the provenance of the record.
	Source Source `json:"source" db:"source"`

	// Synced is true once the backend is known to hold the record.
	Synced bool `json:"synced" db:"synced"`
}

// IsServerID reports whether id was issued by the backend.
func IsServerID(id string) bool {
	return id != "" && !strings.HasPrefix(id, LocalIDPrefix)
}

// HasServerID reports whether the record carries a backend id.
func (n Notification) HasServerID() bool {
	return IsServerID(n.ID)
}

// IsUnread reports whether the record still counts towards the unread badge.
func (n Notification) IsUnread() bool {
	return n.Status.IsUnread()
}

// SameEvent reports whether n and other describe the same (type, reference)
// pair.
func (n Notification) SameEvent(other Notification) bool {
	return n.Type == other.Type && n.ContractID == other.ContractID
}
