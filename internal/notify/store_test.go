package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/portal"
	"github.com/nhle/portal-notify/internal/store"
	"github.com/nhle/portal-notify/tests/testutil"
)

var t0 = time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu sync.Mutex

	page      *portal.Page
	listErr   error
	unread    int
	unreadErr error
	markErr   error
	saveErr   error

	listCalls   []portal.PageRequest
	markRead    []string
	markAll     int
	saves       []portal.SaveRequest
	unreadCalls int
}

func (b *fakeBackend) ListNotifications(_ context.Context, req portal.PageRequest) (*portal.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls = append(b.listCalls, req)
	if b.listErr != nil {
		return nil, b.listErr
	}
	if b.page == nil {
		return &portal.Page{}, nil
	}
	return b.page, nil
}

func (b *fakeBackend) UnreadCount(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unreadCalls++
	return b.unread, b.unreadErr
}

func (b *fakeBackend) MarkRead(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markRead = append(b.markRead, id)
	return b.markErr
}

func (b *fakeBackend) MarkAllRead(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markAll++
	return b.markErr
}

func (b *fakeBackend) SaveNotification(_ context.Context, req portal.SaveRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves = append(b.saves, req)
	return b.saveErr
}

func (b *fakeBackend) setPage(items ...portal.NotificationDTO) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.page = &portal.Page{Content: items, TotalElements: len(items)}
}

func (b *fakeBackend) counts() (list, unread, saves int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listCalls), b.unreadCalls, len(b.saves)
}

type fakeSession struct {
	token  string
	userID string
	roles  []string
}

func (s fakeSession) Token() string   { return s.token }
func (s fakeSession) UserID() string  { return s.userID }
func (s fakeSession) Roles() []string { return s.roles }

var staff = fakeSession{token: "tok", userID: "7", roles: []string{"SERVICE_STAFF"}}

func newTestStore(t *testing.T, b *fakeBackend, sess fakeSession, mirror store.Store) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	s := New(Options{
		Backend: b,
		Session: sess,
		Mirror:  mirror,
		Clock:   clock,
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(s.Close)
	return s, clock
}

func historyItem(id, eventType, ref string, read bool, at time.Time) portal.NotificationDTO {
	return portal.NotificationDTO{
		ID:          portal.ID(id),
		Title:       eventType,
		Type:        "CONTRACT",
		Message:     "from history",
		ReferenceID: portal.ID(ref),
		Read:        read,
		CreatedAt:   json.RawMessage(`"` + at.Format(time.RFC3339) + `"`),
	}
}

func signed(ref float64) map[string]any {
	return map[string]any{
		"type":       "CUSTOMER_SIGNED_CONTRACT",
		"message":    "Customer signed",
		"contractId": ref,
	}
}

func TestDuplicateRealtimeWithinWindowStoredOnce(t *testing.T) {
	s, clock := newTestStore(t, &fakeBackend{}, staff, nil)

	assert.Equal(t, VerdictGenuine, s.HandleRealtime(signed(42)))
	clock.Advance(200 * time.Millisecond)
	s.HandleRealtime(signed(42))

	list := s.Snapshot()
	require.Len(t, list, 1)
	assert.Equal(t, "42", list[0].ContractID)
	assert.Equal(t, model.SourceRealtime, list[0].Source)
	assert.Equal(t, model.StatusVisibleUnread, list[0].Status)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestSameEventOutsideWindowIsStored(t *testing.T) {
	s, clock := newTestStore(t, &fakeBackend{}, staff, nil)

	s.HandleRealtime(signed(42))
	clock.Advance(DedupWindow)
	s.HandleRealtime(signed(42))

	assert.Len(t, s.Snapshot(), 2)
	assert.Equal(t, 2, s.UnreadCount())
}

func TestSelfEchoOnlyToasts(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"top level", map[string]any{"type": "SURVEY_APPROVED", "referenceId": float64(5), "actorAccountId": float64(7)}},
		{"extras", map[string]any{"type": "SURVEY_APPROVED", "referenceId": float64(5), "extras": map[string]any{"actorAccountId": "7"}}},
		{"actor object", map[string]any{"type": "SURVEY_APPROVED", "referenceId": float64(5), "actor": map[string]any{"id": float64(7)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t, &fakeBackend{}, staff, nil)

			assert.Equal(t, VerdictSelfEcho, s.HandleRealtime(tt.payload))
			assert.Empty(t, s.Snapshot())
			assert.Equal(t, 0, s.UnreadCount())
			require.Len(t, s.Toasts(), 1)
			assert.Equal(t, model.TypeSurveyApproved, s.Toasts()[0].Type)
		})
	}
}

func TestOtherActorIsGenuineDespiteLocalAction(t *testing.T) {
	s, _ := newTestStore(t, &fakeBackend{}, staff, nil)
	s.RecordLocalAction("SURVEY_APPROVED", "5")

	v := s.HandleRealtime(map[string]any{"type": "SURVEY_APPROVED", "referenceId": float64(5), "actorAccountId": float64(9)})

	assert.Equal(t, VerdictGenuine, v)
	assert.Len(t, s.Snapshot(), 1)
	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, 1, s.actions.Len())
}

func TestLocalEchoWithoutActorIsConsumedOnce(t *testing.T) {
	s, clock := newTestStore(t, &fakeBackend{}, staff, nil)
	s.RecordLocalAction("survey approved", "5")
	payload := map[string]any{"type": "SURVEY_APPROVED", "referenceId": float64(5)}

	clock.Advance(2 * time.Second)
	assert.Equal(t, VerdictLocalEcho, s.HandleRealtime(payload))
	assert.Empty(t, s.Snapshot())
	assert.Len(t, s.Toasts(), 1)

	assert.Equal(t, VerdictGenuine, s.HandleRealtime(payload))
	assert.Len(t, s.Snapshot(), 1)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestLocalEchoWindowElapsed(t *testing.T) {
	s, clock := newTestStore(t, &fakeBackend{}, staff, nil)
	s.RecordLocalAction(model.TypeSurveyApproved, "5")

	clock.Advance(EchoWindow + time.Second)
	v := s.HandleRealtime(map[string]any{"type": "SURVEY_APPROVED", "referenceId": float64(5)})

	assert.Equal(t, VerdictGenuine, v)
	assert.Len(t, s.Snapshot(), 1)
}

func TestHistoryReplacesLocalPlaceholder(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)

	require.True(t, s.Add(model.Notification{Type: model.TypeSurveyApproved, ContractID: "5", Message: "local"}))
	require.Equal(t, 1, s.UnreadCount())

	b.setPage(historyItem("900", model.TypeSurveyApproved, "5", false, t0.Add(time.Second)))
	assert.Equal(t, 1, s.LoadHistory(context.Background(), 0, 100))

	list := s.Snapshot()
	require.Len(t, list, 1)
	assert.Equal(t, "900", list[0].ID)
	assert.Equal(t, model.SourceHistory, list[0].Source)
	assert.Equal(t, model.StatusHiddenUnread, list[0].Status)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestHistoryReadReplacesUnreadPlaceholder(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)

	s.HandleRealtime(map[string]any{"type": "SURVEY_APPROVED", "referenceId": float64(5)})
	require.Equal(t, 1, s.UnreadCount())

	b.setPage(historyItem("900", model.TypeSurveyApproved, "5", true, t0))
	s.LoadHistory(context.Background(), 0, 100)

	list := s.Snapshot()
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusRead, list[0].Status)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestHistoryKeepsHeldIDs(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)

	require.True(t, s.Add(model.Notification{ID: "900", Type: model.TypeSurveyApproved, ContractID: "5", Message: "mine", Timestamp: t0}))
	b.setPage(historyItem("900", model.TypeSurveyApproved, "5", true, t0.Add(time.Hour)))

	assert.Equal(t, 0, s.LoadHistory(context.Background(), 0, 100))
	list := s.Snapshot()
	require.Len(t, list, 1)
	assert.Equal(t, "mine", list[0].Message)
	assert.Equal(t, model.SourceServer, list[0].Source)
}

func TestMarkReadCountsOnce(t *testing.T) {
	b := &fakeBackend{unread: 0}
	s, _ := newTestStore(t, b, staff, nil)

	require.True(t, s.Add(model.Notification{ID: "11", Type: model.TypePaymentReceived, ContractID: "1"}))
	require.Equal(t, 1, s.UnreadCount())

	s.MarkRead("11")
	s.MarkRead("11")
	s.Wait()

	assert.Equal(t, 0, s.UnreadCount())
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"11"}, b.markRead)
	assert.Equal(t, 1, b.unreadCalls)
}

func TestMarkReadLocalRecordSkipsBackend(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)

	require.True(t, s.Add(model.Notification{Type: model.TypePaymentReceived, ContractID: "1"}))
	id := s.Snapshot()[0].ID
	assert.True(t, len(id) > len(model.LocalIDPrefix))

	s.MarkRead(id)
	s.Wait()

	assert.Equal(t, 0, s.UnreadCount())
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.markRead)
}

func TestMarkReadUnauthorizedRaisesToast(t *testing.T) {
	b := &fakeBackend{markErr: &portal.AuthError{Method: "PATCH", Path: "/service/notifications/11/read"}}
	s, _ := newTestStore(t, b, staff, nil)

	require.True(t, s.Add(model.Notification{ID: "11", Type: model.TypePaymentReceived, ContractID: "1"}))
	s.MarkRead("11")
	s.Wait()

	n, ok := s.Get("11")
	require.True(t, ok)
	assert.Equal(t, model.StatusRead, n.Status)

	var errs []Toast
	for _, toast := range s.Toasts() {
		if toast.Kind == ToastError {
			errs = append(errs, toast)
		}
	}
	require.Len(t, errs, 1)
	assert.Equal(t, SessionExpiredMessage, errs[0].Message)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Len(t, b.markRead, 1)
	assert.Equal(t, 0, b.unreadCalls)
}

func TestMarkAllRead(t *testing.T) {
	b := &fakeBackend{}
	s, clock := newTestStore(t, b, staff, nil)

	for i := 0; i < 3; i++ {
		s.HandleRealtime(signed(float64(i)))
		clock.Advance(time.Millisecond)
	}
	require.Equal(t, 3, s.UnreadCount())

	s.MarkAllRead()
	s.Wait()

	assert.Equal(t, 0, s.UnreadCount())
	for _, n := range s.Snapshot() {
		assert.Equal(t, model.StatusRead, n.Status)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, 1, b.markAll)
}

func TestMarkReadManyOnlyTouchesGivenRecords(t *testing.T) {
	b := &fakeBackend{unread: 1}
	s, _ := newTestStore(t, b, staff, nil)

	s.Add(model.Notification{ID: "1", Type: model.TypePaymentReceived, ContractID: "a"})
	s.Add(model.Notification{ID: "2", Type: model.TypeWaterBillIssued, ContractID: "b"})
	s.Add(model.Notification{ID: "3", Type: model.TypeSurveyApproved, ContractID: "c"})

	s.MarkReadMany(CashierBell.Unread(s.Snapshot()))
	s.Wait()

	n, _ := s.Get("3")
	assert.True(t, n.IsUnread())
	assert.Equal(t, 1, s.UnreadCount())
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.ElementsMatch(t, []string{"1", "2"}, b.markRead)
	assert.Equal(t, 1, b.unreadCalls)
}

func TestUnreadMatchesRecordsAfterLocalOps(t *testing.T) {
	s, clock := newTestStore(t, &fakeBackend{}, staff, nil)

	count := func() int {
		n := 0
		for _, r := range s.Snapshot() {
			if r.IsUnread() {
				n++
			}
		}
		return n
	}

	for i := 0; i < 6; i++ {
		s.Add(model.Notification{Type: model.TypeTechSurveyCompleted, ContractID: fmt.Sprint(i)})
		clock.Advance(time.Second)
	}
	s.Add(model.Notification{Type: model.TypeTechSurveyCompleted, ContractID: "5"})
	require.Len(t, s.Snapshot(), 6)
	assert.Equal(t, count(), s.UnreadCount())

	list := s.Snapshot()
	s.MarkRead(list[0].ID)
	s.Hide(list[1].ID)
	s.Remove(list[2].ID)
	s.Remove(list[0].ID)
	s.MarkRead(list[0].ID)
	assert.Equal(t, count(), s.UnreadCount())
	assert.Equal(t, 4, s.UnreadCount())
	assert.Len(t, s.Snapshot(), 4)

	s.Clear()
	assert.Empty(t, s.Snapshot())
	assert.Equal(t, 0, s.UnreadCount())
}

func TestListCappedNewestFirst(t *testing.T) {
	s, clock := newTestStore(t, &fakeBackend{}, staff, nil)

	for i := 0; i < store.MaxNotifications+5; i++ {
		s.Add(model.Notification{Type: model.TypePaymentReceived, ContractID: fmt.Sprint(i)})
		clock.Advance(time.Millisecond)
	}

	list := s.Snapshot()
	require.Len(t, list, store.MaxNotifications)
	assert.Equal(t, fmt.Sprint(store.MaxNotifications+4), list[0].ContractID)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].Timestamp.After(list[i-1].Timestamp))
	}
}

func TestOlderPageAgainstFullListKeepsBadgeExact(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)

	var newest []portal.NotificationDTO
	for i := 0; i < store.MaxNotifications; i++ {
		at := t0.Add(-time.Duration(i) * time.Minute)
		newest = append(newest, historyItem(fmt.Sprint(1000+i), model.TypePaymentReceived, fmt.Sprint(i), true, at))
	}
	b.setPage(newest...)
	require.Equal(t, store.MaxNotifications, s.LoadHistory(context.Background(), 0, store.MaxNotifications))

	var older []portal.NotificationDTO
	for i := 0; i < 10; i++ {
		at := t0.Add(-24*time.Hour - time.Duration(i)*time.Minute)
		older = append(older, historyItem(fmt.Sprint(2000+i), model.TypeWaterBillIssued, fmt.Sprint(500+i), false, at))
	}
	b.setPage(older...)

	assert.Equal(t, 0, s.LoadHistory(context.Background(), 1, 10))
	assert.Len(t, s.Snapshot(), store.MaxNotifications)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestTrimmedUnreadLeavesBadge(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)

	var page []portal.NotificationDTO
	for i := 0; i < store.MaxNotifications; i++ {
		at := t0.Add(-time.Duration(i) * time.Minute)
		page = append(page, historyItem(fmt.Sprint(1000+i), model.TypePaymentReceived, fmt.Sprint(i), false, at))
	}
	b.setPage(page...)
	s.LoadHistory(context.Background(), 0, store.MaxNotifications)
	require.Equal(t, store.MaxNotifications, s.UnreadCount())

	b.setPage(historyItem("3000", model.TypeWaterBillIssued, "900", true, t0.Add(time.Minute)))
	assert.Equal(t, 1, s.LoadHistory(context.Background(), 0, 1))

	list := s.Snapshot()
	require.Len(t, list, store.MaxNotifications)
	assert.Equal(t, "3000", list[0].ID)
	assert.Equal(t, store.MaxNotifications-1, s.UnreadCount())
}

func TestNewRecordAutoHides(t *testing.T) {
	s, clock := newTestStore(t, &fakeBackend{}, staff, nil)

	s.HandleRealtime(signed(1))
	id := s.Snapshot()[0].ID

	clock.Advance(AutoHide - time.Millisecond)
	n, _ := s.Get(id)
	assert.Equal(t, model.StatusVisibleUnread, n.Status)

	clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool {
		n, _ := s.Get(id)
		return n.Status == model.StatusHiddenUnread
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestLocalRecordsSavedAfterDebounce(t *testing.T) {
	b := &fakeBackend{}
	s, clock := newTestStore(t, b, staff, nil)

	s.Add(model.Notification{Type: model.TypeSupportTicketCreated, ContractID: "1", Message: "one"})
	s.Add(model.Notification{Type: model.TypeSupportTicketCreated, ContractID: "2", Message: "two"})
	s.Add(model.Notification{ID: "77", Type: model.TypeSupportTicketCreated, ContractID: "3"})

	clock.Advance(SaveDebounce - time.Millisecond)
	_, _, saves := b.counts()
	assert.Equal(t, 0, saves)

	clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool {
		for _, n := range s.Snapshot() {
			if !n.Synced {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.saves, 2)
	assert.ElementsMatch(t, []string{"one", "two"}, []string{b.saves[0].Message, b.saves[1].Message})
	assert.Equal(t, model.TypeSupportTicketCreated, b.saves[0].Type)
}

func TestFailedSaveIsNotRetried(t *testing.T) {
	b := &fakeBackend{saveErr: errors.New("boom")}
	s, clock := newTestStore(t, b, staff, nil)

	s.Add(model.Notification{Type: model.TypeSupportTicketCreated, ContractID: "1"})
	clock.Advance(SaveDebounce)
	assert.Eventually(t, func() bool {
		_, _, saves := b.counts()
		return saves == 1
	}, time.Second, 5*time.Millisecond)
	s.Wait()

	clock.Advance(10 * SaveDebounce)
	s.Wait()
	_, _, saves := b.counts()
	assert.Equal(t, 1, saves)
	assert.False(t, s.Snapshot()[0].Synced)
}

func TestPostThenEchoThenHistory(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)

	id, ok := s.Post("survey approved", "42", "Đã duyệt khảo sát")
	require.True(t, ok)

	n, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.SourceLocal, n.Source)
	assert.Equal(t, model.TypeSurveyApproved, n.Type)
	assert.False(t, n.Synced)
	assert.Equal(t, 1, s.UnreadCount())

	verdict := s.HandleRealtime(map[string]any{"type": "SURVEY_APPROVED", "referenceId": "42"})
	assert.Equal(t, VerdictLocalEcho, verdict)
	assert.Len(t, s.Snapshot(), 1)
	assert.Len(t, s.Toasts(), 1)
	assert.Equal(t, 1, s.UnreadCount())

	s.FlushSaves()
	b.mu.Lock()
	require.Len(t, b.saves, 1)
	assert.Equal(t, "42", b.saves[0].ContractID)
	assert.Equal(t, model.TypeSurveyApproved, b.saves[0].Type)
	b.mu.Unlock()
	n, _ = s.Get(id)
	assert.True(t, n.Synced)

	b.setPage(historyItem("501", model.TypeSurveyApproved, "42", false, t0))
	assert.Equal(t, 1, s.LoadHistory(context.Background(), 0, 20))
	list := s.Snapshot()
	require.Len(t, list, 1)
	assert.Equal(t, "501", list[0].ID)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestInitialLoadGatedByRole(t *testing.T) {
	b := &fakeBackend{}
	b.setPage(historyItem("1", model.TypePaymentReceived, "9", false, t0))

	customer := fakeSession{token: "tok", userID: "3", roles: []string{"CUSTOMER"}}
	s, _ := newTestStore(t, b, customer, nil)
	assert.False(t, s.InitialLoad(context.Background()))
	list, _, _ := b.counts()
	assert.Equal(t, 0, list)

	s, _ = newTestStore(t, b, staff, nil)
	assert.True(t, s.InitialLoad(context.Background()))
	b.mu.Lock()
	require.Len(t, b.listCalls, 1)
	assert.Equal(t, portal.PageRequest{Page: 0, Size: InitialPageSize, Sort: "createdAt,desc"}, b.listCalls[0])
	b.mu.Unlock()
	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, model.StatusHiddenUnread, s.Snapshot()[0].Status)
}

func TestInitialLoadRecomputesUnread(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)

	s.Add(model.Notification{ID: "local-read", Type: model.TypeSurveyApproved, ContractID: "1", Status: model.StatusRead})
	b.setPage(
		historyItem("1", model.TypePaymentReceived, "9", false, t0.Add(-time.Minute)),
		historyItem("2", model.TypePaymentReceived, "8", true, t0.Add(-2*time.Minute)),
		historyItem("3", model.TypeWaterBillIssued, "7", false, t0.Add(-3*time.Minute)),
	)

	s.InitialLoad(context.Background())
	assert.Len(t, s.Snapshot(), 4)
	assert.Equal(t, 2, s.UnreadCount())
}

func TestInitialLoadFailureKeepsBadge(t *testing.T) {
	b := &fakeBackend{listErr: errors.New("down")}
	s, _ := newTestStore(t, b, staff, nil)
	s.HandleRealtime(signed(1))

	assert.True(t, s.InitialLoad(context.Background()))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestNoTokenSkipsBackend(t *testing.T) {
	b := &fakeBackend{unread: 9}
	s, _ := newTestStore(t, b, fakeSession{roles: []string{"SERVICE_STAFF"}}, nil)

	s.SyncUnreadCount(context.Background())
	assert.False(t, s.InitialLoad(context.Background()))
	assert.False(t, s.PollFallback(context.Background()))
	s.MarkAllRead()
	s.Wait()

	list, unread, _ := b.counts()
	assert.Equal(t, 0, list)
	assert.Equal(t, 0, unread)
	assert.Equal(t, 0, s.UnreadCount())
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, 0, b.markAll)
}

func TestSyncUnreadCountReplacesBadge(t *testing.T) {
	b := &fakeBackend{unread: 12}
	s, _ := newTestStore(t, b, staff, nil)

	s.SyncUnreadCount(context.Background())
	assert.Equal(t, 12, s.UnreadCount())

	b.mu.Lock()
	b.unreadErr = errors.New("down")
	b.mu.Unlock()
	s.SyncUnreadCount(context.Background())
	assert.Equal(t, 12, s.UnreadCount())
}

func TestPollFallbackSkippedWhileRealtimeFresh(t *testing.T) {
	b := &fakeBackend{}
	s, clock := newTestStore(t, b, staff, nil)

	assert.True(t, s.PollFallback(context.Background()))

	s.HandleRealtime(signed(1))
	clock.Advance(29 * time.Second)
	assert.False(t, s.PollFallback(context.Background()))

	clock.Advance(time.Second)
	b.setPage(historyItem("5", model.TypeInstallationCompleted, "3", false, clock.Now()))
	assert.True(t, s.PollFallback(context.Background()))

	b.mu.Lock()
	require.Len(t, b.listCalls, 2)
	assert.Equal(t, FallbackPageSize, b.listCalls[1].Size)
	b.mu.Unlock()

	n, ok := s.Get("5")
	require.True(t, ok)
	assert.Equal(t, model.StatusVisibleUnread, n.Status)
}

func TestRefreshInsertsUnseenIDs(t *testing.T) {
	b := &fakeBackend{}
	s, _ := newTestStore(t, b, staff, nil)
	b.setPage(
		historyItem("1", model.TypePaymentReceived, "9", false, t0),
		historyItem("2", model.TypePaymentReceived, "8", true, t0.Add(-time.Hour)),
	)

	assert.Equal(t, 2, s.Refresh(context.Background()))
	assert.Equal(t, 0, s.Refresh(context.Background()))

	b.mu.Lock()
	assert.Equal(t, RefreshPageSize, b.listCalls[0].Size)
	b.mu.Unlock()
	assert.Len(t, s.Snapshot(), 2)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestBackendUnauthorizedOnHistory(t *testing.T) {
	b := &fakeBackend{listErr: &portal.AuthError{Method: "GET", Path: "/service/notifications"}}
	s, _ := newTestStore(t, b, staff, nil)

	assert.Equal(t, 0, s.Refresh(context.Background()))
	assert.Equal(t, 0, s.Refresh(context.Background()))

	toasts := s.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, ToastError, toasts[0].Kind)
}

func TestMirrorRestore(t *testing.T) {
	mirror := testutil.NewTestStore(t)
	b := &fakeBackend{}

	s, clock := newTestStore(t, b, staff, mirror)
	s.HandleRealtime(signed(1))
	clock.Advance(time.Second)
	s.HandleRealtime(signed(2))
	s.MarkRead(s.Snapshot()[0].ID)
	s.Close()

	restored, _ := newTestStore(t, b, staff, mirror)
	require.NoError(t, restored.Restore(context.Background()))

	list := restored.Snapshot()
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ContractID)
	assert.Equal(t, model.StatusRead, list[0].Status)
	assert.Equal(t, model.StatusHiddenUnread, list[1].Status)
	assert.Equal(t, 1, restored.UnreadCount())
	assert.True(t, t0.Add(time.Second).Equal(restored.LastRealtimeEvent()))
}

func TestChangesSignalled(t *testing.T) {
	s, _ := newTestStore(t, &fakeBackend{}, staff, nil)

	s.HandleRealtime(signed(1))
	select {
	case <-s.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
}
