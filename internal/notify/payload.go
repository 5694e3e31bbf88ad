package notify

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/portal-notify/internal/model"
)

// Field paths, in priority order. Dotted paths descend into nested objects.
var (
	actorFields = []string{
		"actorAccountId",
		"actorId",
		"actor_id",
		"actorUserId",
		"performedById",
		"performedBy",
		"senderId",
		"sender_id",
		"createdBy",
		"triggeredBy",
		"extras.actorAccountId",
		"extras.actorId",
		"metadata.actorAccountId",
		"actor.id",
		"sender.id",
		"performedBy.id",
	}

	referenceFields = []string{
		"contractId",
		"referenceId",
		"contract_id",
		"reference_id",
		"requestId",
		"invoiceId",
		"ticketId",
		"contract.id",
		"data.contractId",
		"data.referenceId",
		"extras.contractId",
		"reference.id",
	}

	typeFields      = []string{"type", "eventType", "title"}
	messageFields   = []string{"message", "content", "body"}
	timestampFields = []string{"timestamp", "createdAt", "sentAt"}
)

// Payload is a realtime message with its loosely named fields resolved.
// Optional fields are exposed through accessors that report presence.
type Payload struct {
	Type          string
	Title         string
	Message       string
	ReferenceType string

	id        string
	actor     string
	reference string
	timestamp time.Time
	hasTime   bool
}

// ParsePayload resolves the fields of a decoded message. Missing fields
// stay absent; numeric ids are rendered without a fraction.
func ParsePayload(raw map[string]any) Payload {
	p := Payload{
		Type:          model.NormalizeType(firstString(raw, typeFields)),
		Message:       firstString(raw, messageFields),
		ReferenceType: firstString(raw, []string{"referenceType"}),
	}
	if t, ok := lookupScalar(raw, "title"); ok {
		p.Title = t
	}
	p.id, _ = lookupScalar(raw, "id")
	p.actor = firstString(raw, actorFields)
	p.reference = firstString(raw, referenceFields)

	for _, f := range timestampFields {
		v, ok := lookup(raw, f)
		if !ok {
			continue
		}
		if ts, ok := model.ParseTimestamp(v); ok {
			p.timestamp, p.hasTime = ts, true
			break
		}
	}
	return p
}

// ID returns the server id carried by the message.
func (p Payload) ID() (string, bool) { return p.id, p.id != "" }

// Actor returns the account that caused the event.
func (p Payload) Actor() (string, bool) { return p.actor, p.actor != "" }

// Reference returns the id of the entity the event is about.
func (p Payload) Reference() (string, bool) { return p.reference, p.reference != "" }

// Timestamp returns the event time carried by the message.
func (p Payload) Timestamp() (time.Time, bool) { return p.timestamp, p.hasTime }

// Notification builds the record stored for a genuine message received at
// now. Messages without a server id get a local one derived from the event
// time, falling back to now.
func (p Payload) Notification(now time.Time) model.Notification {
	ts := now
	if t, ok := p.Timestamp(); ok {
		ts = t
	}

	id, ok := p.ID()
	if !ok {
		id = model.LocalIDPrefix + p.Type + "_" + p.reference + "_" + strconv.FormatInt(ts.UnixMilli(), 10)
	}

	return model.Notification{
		ID:            id,
		Type:          p.Type,
		Title:         p.Title,
		Message:       p.Message,
		ContractID:    p.reference,
		ReferenceType: p.ReferenceType,
		Timestamp:     ts,
		Status:        model.StatusUnseen,
		Source:        model.SourceRealtime,
		Synced:        true,
	}
}

func firstString(raw map[string]any, paths []string) string {
	for _, path := range paths {
		if v, ok := lookupScalar(raw, path); ok {
			return v
		}
	}
	return ""
}

func lookupScalar(raw map[string]any, path string) (string, bool) {
	v, ok := lookup(raw, path)
	if !ok {
		return "", false
	}
	return scalar(v)
}

func lookup(raw map[string]any, path string) (any, bool) {
	var cur any = raw
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case json.Number:
		return x.String(), true
	}
	return "", false
}
