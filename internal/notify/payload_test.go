package notify

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/portal-notify/internal/model"
)

func TestParsePayloadFields(t *testing.T) {
	p := ParsePayload(map[string]any{
		"id":            float64(301),
		"type":          "Sent To Installation",
		"title":         "SENT_TO_INSTALLATION",
		"message":       "Contract sent",
		"referenceId":   float64(42),
		"referenceType": "CONTRACT",
		"createdAt":     "2025-11-10T09:00:00Z",
	})

	assert.Equal(t, model.TypeSentToInstallation, p.Type)
	assert.Equal(t, "Contract sent", p.Message)
	assert.Equal(t, "CONTRACT", p.ReferenceType)

	id, ok := p.ID()
	assert.True(t, ok)
	assert.Equal(t, "301", id)

	ref, ok := p.Reference()
	assert.True(t, ok)
	assert.Equal(t, "42", ref)

	ts, ok := p.Timestamp()
	assert.True(t, ok)
	assert.True(t, t0.Equal(ts))

	_, ok = p.Actor()
	assert.False(t, ok)
}

func TestParsePayloadFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		raw   map[string]any
		actor string
		ref   string
		typ   string
	}{
		{
			name:  "snake case",
			raw:   map[string]any{"eventType": "payment_received", "actor_id": "u1", "contract_id": "c9"},
			actor: "u1", ref: "c9", typ: model.TypePaymentReceived,
		},
		{
			name:  "nested",
			raw:   map[string]any{"title": "customer-signed", "sender": map[string]any{"id": float64(4)}, "data": map[string]any{"contractId": float64(8)}},
			actor: "4", ref: "8", typ: model.TypeCustomerSignedContract,
		},
		{
			name:  "invoice",
			raw:   map[string]any{"type": "WATER_BILL_ISSUED", "invoiceId": float64(17), "performedBy": map[string]any{"id": "acc"}},
			actor: "acc", ref: "17", typ: model.TypeWaterBillIssued,
		},
		{
			name: "empty",
			raw:  map[string]any{"contractId": "  "},
			typ:  model.TypeUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePayload(tt.raw)
			actor, _ := p.Actor()
			ref, _ := p.Reference()
			assert.Equal(t, tt.actor, actor)
			assert.Equal(t, tt.ref, ref)
			assert.Equal(t, tt.typ, p.Type)
		})
	}
}

func TestPayloadNotificationSynthesizesID(t *testing.T) {
	p := ParsePayload(map[string]any{"type": "SURVEY_APPROVED", "referenceId": float64(5)})
	n := p.Notification(t0)

	assert.True(t, strings.HasPrefix(n.ID, model.LocalIDPrefix+"SURVEY_APPROVED_5_"))
	assert.False(t, n.HasServerID())
	assert.Equal(t, t0, n.Timestamp)
	assert.Equal(t, model.SourceRealtime, n.Source)
	assert.Equal(t, model.StatusUnseen, n.Status)
	assert.True(t, n.Synced)

	stamped := ParsePayload(map[string]any{
		"type":        "SURVEY_APPROVED",
		"referenceId": float64(5),
		"createdAt":   "2025-11-10T08:59:00Z",
	}).Notification(t0)
	assert.Equal(t, model.LocalIDPrefix+"SURVEY_APPROVED_5_"+fmt.Sprint(t0.Add(-time.Minute).UnixMilli()), stamped.ID)
	assert.True(t, t0.Add(-time.Minute).Equal(stamped.Timestamp))

	withID := ParsePayload(map[string]any{"id": "88", "type": "SURVEY_APPROVED"}).Notification(t0)
	assert.Equal(t, "88", withID.ID)
}

func TestClassify(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	actions := NewLocalActions(clock)
	defer actions.Stop()

	self := ParsePayload(map[string]any{"type": "SURVEY_APPROVED", "actorAccountId": float64(7)})
	other := ParsePayload(map[string]any{"type": "SURVEY_APPROVED", "actorAccountId": float64(8)})
	anon := ParsePayload(map[string]any{"type": "SURVEY_APPROVED", "referenceId": "5"})

	assert.Equal(t, VerdictSelfEcho, Classify(self, "7", actions))
	assert.Equal(t, VerdictGenuine, Classify(self, "", actions))
	assert.Equal(t, VerdictGenuine, Classify(other, "7", actions))
	assert.Equal(t, VerdictGenuine, Classify(anon, "7", actions))
	assert.Equal(t, VerdictGenuine, Classify(anon, "7", nil))

	actions.Record("SURVEY_APPROVED", "5")
	assert.Equal(t, VerdictLocalEcho, Classify(anon, "7", actions))
	assert.Equal(t, 0, actions.Len())
}

func TestLocalActionsExpire(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	actions := NewLocalActions(clock)
	defer actions.Stop()

	actions.Record("SURVEY_APPROVED", "5")
	actions.Record("SURVEY_APPROVED", "5")
	require.Equal(t, 1, actions.Len())

	clock.Advance(actionExpiry)
	assert.Eventually(t, func() bool { return actions.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestToastsCapAndExpire(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	changes := make(chan struct{}, 64)
	ts := NewToasts(clock, func() { changes <- struct{}{} })
	defer ts.Stop()

	for i := 0; i < MaxToasts+2; i++ {
		assert.True(t, ts.Push(Toast{Type: model.TypePaymentReceived, Reference: string(rune('a' + i))}))
	}
	list := ts.List()
	require.Len(t, list, MaxToasts)
	assert.Equal(t, "c", list[0].Reference)

	assert.False(t, ts.Push(Toast{Type: model.TypePaymentReceived, Reference: "g"}))
	assert.False(t, ts.Push(Toast{ID: list[1].ID, Type: "OTHER"}))

	ts.Dismiss(list[0].ID)
	assert.Len(t, ts.List(), MaxToasts-1)

	clock.Advance(ToastLifetime)
	assert.Eventually(t, func() bool { return len(ts.List()) == 0 }, time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, changes)
}
