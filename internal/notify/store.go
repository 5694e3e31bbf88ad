// Package notify owns the in-memory notification list: it classifies
// realtime messages, merges backend history, keeps the unread badge and
// mirrors everything to the local store.
package notify

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/nhle/portal-notify/internal/metrics"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/portal"
	"github.com/nhle/portal-notify/internal/session"
	"github.com/nhle/portal-notify/internal/store"
)

const (
	// DedupWindow treats two records for the same type and reference this
	// close in time as one event.
	DedupWindow = 5 * time.Second

	// AutoHide is how long a new record stays popped up.
	AutoHide = 5 * time.Second

	// SaveDebounce batches backend saves of locally added records.
	SaveDebounce = time.Second

	// Page sizes used against the history endpoint.
	InitialPageSize  = 100
	RefreshPageSize  = 30
	FallbackPageSize = 20

	historySort = "createdAt,desc"

	defaultCallTimeout = 30 * time.Second
	mirrorTimeout      = 5 * time.Second

	// SessionExpiredMessage is shown when the backend rejects the token.
	SessionExpiredMessage = "Session expired, please log in again"
)

// Backend is the part of the portal API the store talks to.
type Backend interface {
	ListNotifications(ctx context.Context, req portal.PageRequest) (*portal.Page, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	SaveNotification(ctx context.Context, req portal.SaveRequest) error
}

// Session exposes the logged-in user to the store.
type Session interface {
	Token() string
	UserID() string
	Roles() []string
}

// Options configure a Store. Backend and Session are required.
type Options struct {
	Backend Backend
	Session Session

	// Mirror persists the list between runs. Optional.
	Mirror store.Store

	Clock  clockwork.Clock
	Logger zerolog.Logger

	// AllowedRoles gate the initial history load.
	AllowedRoles []string

	// RealtimeFreshWindow skips fallback polls after a recent realtime event.
	RealtimeFreshWindow time.Duration

	MaxRecords  int
	CallTimeout time.Duration
}

// Store is the notification list shared by the realtime listener, the
// pollers and the UI. All methods are safe for concurrent use and none of
// them return backend errors; failures are logged and auth failures raise
// an error toast.
type Store struct {
	backend      Backend
	sess         Session
	mirror       store.Store
	clock        clockwork.Clock
	log          zerolog.Logger
	allowedRoles []string
	freshWindow  time.Duration
	maxRecords   int
	callTimeout  time.Duration

	actions *LocalActions
	toasts  *Toasts
	changes chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	list         []model.Notification
	unread       int
	lastRealtime time.Time
	hideTimers   map[string]clockwork.Timer
	pendingSave  map[string]bool
	saveTimer    clockwork.Timer
	closed       bool
}

// New builds an empty store. Call Restore to load the local mirror.
func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = store.MaxNotifications
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.RealtimeFreshWindow <= 0 {
		opts.RealtimeFreshWindow = 30 * time.Second
	}
	if opts.AllowedRoles == nil {
		opts.AllowedRoles = model.DefaultAllowedRoles
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:      opts.Backend,
		sess:         opts.Session,
		mirror:       opts.Mirror,
		clock:        opts.Clock,
		log:          opts.Logger.With().Str("component", "notify").Logger(),
		allowedRoles: opts.AllowedRoles,
		freshWindow:  opts.RealtimeFreshWindow,
		maxRecords:   opts.MaxRecords,
		callTimeout:  opts.CallTimeout,
		actions:      NewLocalActions(opts.Clock),
		changes:      make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		hideTimers:   make(map[string]clockwork.Timer),
		pendingSave:  make(map[string]bool),
	}
	s.toasts = NewToasts(opts.Clock, s.notify)
	return s
}

// Restore loads the mirrored list, unread count and last realtime event.
// Popups do not survive a restart, so visible records come back hidden.
func (s *Store) Restore(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}

	list, err := s.mirror.LoadNotifications(ctx)
	if err != nil {
		return err
	}
	unreadRaw, hasUnread, err := s.mirror.GetMeta(ctx, store.MetaUnreadCount)
	if err != nil {
		return err
	}
	last, hasLast, err := s.mirror.LastRealtimeEvent(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.list = s.list[:0]
	for _, n := range list {
		if n.Status == model.StatusRemoved {
			continue
		}
		if n.IsUnread() {
			n.Status = model.StatusHiddenUnread
		}
		s.list = append(s.list, n)
		if !n.Synced && n.Source == model.SourceLocal {
			s.pendingSave[n.ID] = true
		}
	}
	s.sortLocked()

	s.unread = s.countUnreadLocked()
	if hasUnread {
		if v, err := strconv.Atoi(unreadRaw); err == nil && v >= 0 {
			s.unread = v
		}
	}
	if hasLast {
		s.lastRealtime = last
	}
	if len(s.pendingSave) > 0 {
		s.scheduleSaveLocked()
	}

	metrics.UnreadCount.Set(float64(s.unread))
	s.notify()
	return nil
}

// Changes signals after every change to the list, the unread count or the
// toasts. Signals are coalesced.
func (s *Store) Changes() <-chan struct{} { return s.changes }

// Snapshot returns a copy of the list, newest first.
func (s *Store) Snapshot() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.list))
	copy(out, s.list)
	return out
}

// Get returns the record with id.
func (s *Store) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.list[i], true
	}
	return model.Notification{}, false
}

// UnreadCount returns the unread badge value.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Toasts returns the toasts currently on screen.
func (s *Store) Toasts() []Toast { return s.toasts.List() }

// DismissToast removes a toast early.
func (s *Store) DismissToast(id string) { s.toasts.Dismiss(id) }

// LastRealtimeEvent returns when the last realtime message arrived.
func (s *Store) LastRealtimeEvent() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRealtime
}

// RecordLocalAction remembers that the user just performed eventType on
// reference, so the broadcast it causes is not counted as new.
func (s *Store) RecordLocalAction(eventType, reference string) {
	s.actions.Record(eventType, reference)
}

// Post adds a notification for an action the user just performed and
// remembers the action so the broadcast it triggers only shows a toast.
// The record is saved to the backend after SaveDebounce. It returns the
// local id and whether the record was inserted.
func (s *Store) Post(eventType, reference, message string) (string, bool) {
	eventType = model.NormalizeType(eventType)
	s.RecordLocalAction(eventType, reference)

	id := NewLocalID()
	ok := s.Add(model.Notification{
		ID:         id,
		Type:       eventType,
		Message:    message,
		ContractID: reference,
		Source:     model.SourceLocal,
	})
	return id, ok
}

// HandleRealtime processes one decoded realtime message.
func (s *Store) HandleRealtime(raw map[string]any) Verdict {
	p := ParsePayload(raw)
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return VerdictGenuine
	}
	s.lastRealtime = now
	s.mu.Unlock()
	s.saveLastRealtime(now)

	verdict := Classify(p, s.sess.UserID(), s.actions)
	ref, _ := p.Reference()
	id, _ := p.ID()

	switch verdict {
	case VerdictSelfEcho, VerdictLocalEcho:
		s.toasts.Push(Toast{ID: id, Kind: ToastInfo, Type: p.Type, Message: p.Message, Reference: ref})
		metrics.InboundMessages.WithLabelValues(verdict.String()).Inc()
		s.log.Debug().Str("type", p.Type).Str("reference", ref).Stringer("verdict", verdict).Msg("echo suppressed")
		return verdict
	}

	if s.Add(p.Notification(now)) {
		metrics.InboundMessages.WithLabelValues(metrics.VerdictStored).Inc()
	} else {
		metrics.InboundMessages.WithLabelValues(metrics.VerdictDuplicate).Inc()
	}
	return VerdictGenuine
}

// Add inserts a record. Records without a server id get a local id and
// are saved to the backend after SaveDebounce. It reports whether the
// record was inserted.
func (s *Store) Add(n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	if n.ID == "" {
		n.ID = NewLocalID()
	}
	n.Type = model.NormalizeType(n.Type)
	if n.Source == "" {
		if n.HasServerID() {
			n.Source = model.SourceServer
		} else {
			n.Source = model.SourceLocal
		}
	}
	if n.Source != model.SourceLocal {
		n.Synced = true
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.clock.Now()
	}

	if !s.insertLocked(n) {
		return false
	}
	if !n.Synced {
		s.pendingSave[n.ID] = true
		s.scheduleSaveLocked()
	}
	s.changedLocked()
	return true
}

// NewLocalID mints an id for a record the backend has not confirmed.
func NewLocalID() string {
	return model.LocalIDPrefix + uuid.NewString()
}

// insertLocked applies the insert rules. A history record replaces
// placeholders for the same event before duplicates are considered, so a
// confirmed record always supersedes its local or realtime stand-in.
func (s *Store) insertLocked(n model.Notification) bool {
	if s.indexLocked(n.ID) >= 0 {
		return false
	}

	var replaced []int
	if n.Source == model.SourceHistory {
		for i, r := range s.list {
			if r.Source.IsPlaceholder() && r.SameEvent(n) {
				replaced = append(replaced, i)
			}
		}
	}

	if len(replaced) == 0 {
		for _, r := range s.list {
			if r.SameEvent(n) && absDuration(r.Timestamp.Sub(n.Timestamp)) < DedupWindow {
				return false
			}
		}
	}

	delta := 0
	for j := len(replaced) - 1; j >= 0; j-- {
		r := s.list[replaced[j]]
		if r.IsUnread() {
			delta--
		}
		s.dropLocked(replaced[j])
	}

	if n.Status == model.StatusUnseen {
		n.Status = n.Status.Show()
		s.scheduleHideLocked(n.ID)
	}
	if n.IsUnread() {
		delta++
	}
	s.unread = max(0, s.unread+delta)

	s.list = append(s.list, n)
	s.sortLocked()

	// Trimmed records leave the badge with them; the new record may be
	// the one trimmed when it is older than a full list.
	kept := true
	for len(s.list) > s.maxRecords {
		last := s.list[len(s.list)-1]
		if last.ID == n.ID {
			kept = false
		}
		if last.IsUnread() {
			s.unread = max(0, s.unread-1)
		}
		s.dropLocked(len(s.list) - 1)
	}
	return kept
}

// dropLocked removes the record at i without touching the unread count.
func (s *Store) dropLocked(i int) {
	id := s.list[i].ID
	s.cancelHideLocked(id)
	delete(s.pendingSave, id)
	s.list = append(s.list[:i], s.list[i+1:]...)
}

// MarkRead marks one record read and, for server records, tells the backend
// and then reconciles the unread count.
func (s *Store) MarkRead(id string) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || !s.list[i].IsUnread() {
		s.mu.Unlock()
		return
	}
	s.markReadLocked(i)
	server := s.list[i].HasServerID()
	s.changedLocked()
	s.mu.Unlock()

	if !server {
		return
	}
	s.goBackend("mark_read", func(ctx context.Context) error {
		if err := s.backend.MarkRead(ctx, id); err != nil {
			return err
		}
		return s.syncUnread(ctx)
	})
}

// MarkReadMany marks the given records read, as one bell's "mark all"
// does, then reconciles the unread count once.
func (s *Store) MarkReadMany(ids []string) {
	s.mu.Lock()
	var server []string
	for _, id := range ids {
		i := s.indexLocked(id)
		if i < 0 || !s.list[i].IsUnread() {
			continue
		}
		s.markReadLocked(i)
		if s.list[i].HasServerID() {
			server = append(server, id)
		}
	}
	s.changedLocked()
	s.mu.Unlock()

	if len(server) == 0 {
		return
	}
	s.goBackend("mark_read", func(ctx context.Context) error {
		for _, id := range server {
			if err := s.backend.MarkRead(ctx, id); err != nil {
				return err
			}
		}
		return s.syncUnread(ctx)
	})
}

// MarkAllRead marks every record read, zeroes the badge and tells the
// backend.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	for i := range s.list {
		if s.list[i].IsUnread() {
			s.list[i].Status = s.list[i].Status.MarkRead()
			s.cancelHideLocked(s.list[i].ID)
		}
	}
	s.unread = 0
	s.changedLocked()
	s.mu.Unlock()

	s.goBackend("mark_all_read", func(ctx context.Context) error {
		if err := s.backend.MarkAllRead(ctx); err != nil {
			return err
		}
		return s.syncUnread(ctx)
	})
}

func (s *Store) markReadLocked(i int) {
	s.list[i].Status = s.list[i].Status.MarkRead()
	s.cancelHideLocked(s.list[i].ID)
	s.unread = max(0, s.unread-1)
}

// Hide dismisses the popup of a record. It stays unread.
func (s *Store) Hide(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelHideLocked(id)
	i := s.indexLocked(id)
	if i < 0 {
		return
	}
	next := s.list[i].Status.Hide()
	if next == s.list[i].Status {
		return
	}
	s.list[i].Status = next
	s.changedLocked()
}

// Remove deletes a record from the list.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return
	}
	if s.list[i].IsUnread() {
		s.unread = max(0, s.unread-1)
	}
	s.dropLocked(i)
	s.changedLocked()
}

// Clear empties the list and the badge.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.hideTimers {
		s.cancelHideLocked(id)
	}
	s.list = nil
	s.unread = 0
	clear(s.pendingSave)
	s.changedLocked()
}

// LoadHistory merges one page of history as hidden records and returns
// how many were inserted.
func (s *Store) LoadHistory(ctx context.Context, page, size int) int {
	added, _ := s.fetch(ctx, "load_history", portal.PageRequest{Page: page, Size: size, Sort: historySort}, false)
	return added
}

// Refresh pulls the newest history page and pops up anything new.
func (s *Store) Refresh(ctx context.Context) int {
	added, _ := s.fetch(ctx, "refresh", portal.PageRequest{Page: 0, Size: RefreshPageSize, Sort: historySort}, true)
	return added
}

// PollFallback pulls recent history unless a realtime message arrived
// within the fresh window. It reports whether a poll was made.
func (s *Store) PollFallback(ctx context.Context) bool {
	s.mu.Lock()
	fresh := !s.lastRealtime.IsZero() && s.clock.Since(s.lastRealtime) < s.freshWindow
	s.mu.Unlock()
	if fresh || s.sess.Token() == "" {
		return false
	}
	s.fetch(ctx, "fallback_poll", portal.PageRequest{Page: 0, Size: FallbackPageSize, Sort: historySort}, true)
	return true
}

// InitialLoad loads the first history page for users in an allowed role
// and recomputes the badge from the merged list. It reports whether the
// backend was asked.
func (s *Store) InitialLoad(ctx context.Context) bool {
	if s.sess.Token() == "" {
		return false
	}
	if !session.Allowed(s.sess.Roles(), s.allowedRoles) {
		s.log.Debug().Strs("roles", s.sess.Roles()).Msg("skipping history load for role")
		return false
	}

	if _, ok := s.fetch(ctx, "initial_load", portal.PageRequest{Page: 0, Size: InitialPageSize, Sort: historySort}, false); !ok {
		return true
	}

	s.mu.Lock()
	s.unread = s.countUnreadLocked()
	s.changedLocked()
	s.mu.Unlock()
	return true
}

// SyncUnreadCount replaces the badge with the backend's count.
func (s *Store) SyncUnreadCount(ctx context.Context) {
	if s.sess.Token() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.syncUnread(ctx); err != nil {
		s.report("unread_count", err)
	}
}

func (s *Store) syncUnread(ctx context.Context) error {
	n, err := s.backend.UnreadCount(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n == s.unread {
		return nil
	}
	s.unread = n
	s.changedLocked()
	return nil
}

// fetch merges one history page. ok is false when the page could not be
// fetched.
func (s *Store) fetch(ctx context.Context, op string, req portal.PageRequest, visible bool) (added int, ok bool) {
	if s.sess.Token() == "" {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	page, err := s.backend.ListNotifications(ctx, req)
	if err != nil {
		s.report(op, err)
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}

	now := s.clock.Now()
	for _, dto := range page.Content {
		n := dto.ToNotification(visible)
		if n.ID == "" {
			continue
		}
		if n.Timestamp.IsZero() {
			n.Timestamp = now
		}
		if s.insertLocked(n) {
			added++
		}
	}
	if added > 0 {
		s.changedLocked()
	}
	s.log.Debug().Str("op", op).Int("received", len(page.Content)).Int("added", added).Msg("history merged")
	return added, true
}

// Close stops all timers and waits for in-flight backend calls.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id := range s.hideTimers {
		s.cancelHideLocked(id)
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.mu.Unlock()

	s.cancel()
	s.toasts.Stop()
	s.actions.Stop()
	s.wg.Wait()
}

// FlushSaves sends pending local records without waiting for the debounce
// and blocks until the calls finish.
func (s *Store) FlushSaves() {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()

	s.flushSaves()
	s.wg.Wait()
}

// Wait blocks until in-flight backend calls have finished.
func (s *Store) Wait() { s.wg.Wait() }

// goBackend runs fn in the background with a call timeout.
func (s *Store) goBackend(op string, fn func(ctx context.Context) error) {
	if s.sess.Token() == "" {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.report(op, err)
		}
	}()
}

// report logs a backend failure. An auth failure raises a session
// expired toast instead of being retried.
func (s *Store) report(op string, err error) {
	if errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
		return
	}
	if portal.IsAuthError(err) {
		metrics.BackendErrors.WithLabelValues(op, "auth").Inc()
		s.log.Warn().Err(err).Str("op", op).Msg("portal rejected session")
		s.toasts.Push(Toast{Kind: ToastError, Type: model.TypeError, Message: SessionExpiredMessage})
		return
	}
	metrics.BackendErrors.WithLabelValues(op, "other").Inc()
	s.log.Warn().Err(err).Str("op", op).Msg("portal call failed")
}

func (s *Store) scheduleSaveLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = s.clock.AfterFunc(SaveDebounce, s.flushSaves)
}

// flushSaves sends every pending local record to the backend. A record is
// marked synced once its save succeeds; failed saves are not retried.
func (s *Store) flushSaves() {
	s.mu.Lock()
	var batch []model.Notification
	for id := range s.pendingSave {
		if i := s.indexLocked(id); i >= 0 && !s.list[i].Synced {
			batch = append(batch, s.list[i])
		}
		delete(s.pendingSave, id)
	}
	s.mu.Unlock()

	for _, n := range batch {
		n := n
		s.goBackend("save", func(ctx context.Context) error {
			if err := s.backend.SaveNotification(ctx, portal.NewSaveRequest(n)); err != nil {
				return err
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			if i := s.indexLocked(n.ID); i >= 0 {
				s.list[i].Synced = true
				s.changedLocked()
			}
			return nil
		})
	}
}

func (s *Store) scheduleHideLocked(id string) {
	s.cancelHideLocked(id)
	s.hideTimers[id] = s.clock.AfterFunc(AutoHide, func() { s.Hide(id) })
}

func (s *Store) cancelHideLocked(id string) {
	if t, ok := s.hideTimers[id]; ok {
		t.Stop()
		delete(s.hideTimers, id)
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.list {
		if s.list[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) countUnreadLocked() int {
	n := 0
	for _, r := range s.list {
		if r.IsUnread() {
			n++
		}
	}
	return n
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.list, func(i, j int) bool {
		return s.list[i].Timestamp.After(s.list[j].Timestamp)
	})
}

// changedLocked mirrors the list and wakes listeners.
func (s *Store) changedLocked() {
	metrics.UnreadCount.Set(float64(s.unread))
	s.persistLocked()
	s.notify()
}

func (s *Store) persistLocked() {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.mirror.SaveNotifications(ctx, s.list); err != nil {
		s.log.Warn().Err(err).Msg("mirroring notifications")
	}
	if err := s.mirror.SetMeta(ctx, store.MetaUnreadCount, strconv.Itoa(s.unread)); err != nil {
		s.log.Warn().Err(err).Msg("mirroring unread count")
	}
}

func (s *Store) saveLastRealtime(at time.Time) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.mirror.SetLastRealtimeEvent(ctx, at); err != nil {
		s.log.Warn().Err(err).Msg("mirroring last realtime event")
	}
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
