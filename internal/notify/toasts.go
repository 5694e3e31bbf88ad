package notify

import (
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nhle/portal-notify/internal/metrics"
)

const (
	// ToastLifetime is how long a toast stays on screen.
	ToastLifetime = 5 * time.Second

	// MaxToasts caps the toasts on screen; the oldest is evicted first.
	MaxToasts = 5
)

// ToastKind styles a toast.
type ToastKind string

const (
	ToastInfo  ToastKind = "info"
	ToastError ToastKind = "error"
)

// Toast is a transient popup. It is never persisted.
type Toast struct {
	ID        string
	Kind      ToastKind
	Type      string
	Message   string
	Reference string
	CreatedAt time.Time
}

type toastEntry struct {
	Toast
	timer clockwork.Timer
}

// Toasts holds the toasts currently on screen.
type Toasts struct {
	clock    clockwork.Clock
	onChange func()

	mu    sync.Mutex
	items []*toastEntry
	seq   int64
}

// NewToasts returns an empty toast list. onChange, if set, is called after
// a toast appears or expires.
func NewToasts(clock clockwork.Clock, onChange func()) *Toasts {
	return &Toasts{clock: clock, onChange: onChange}
}

// Push shows t unless a toast with the same id, or the same type and
// reference within DedupWindow, is already on screen. It reports whether
// the toast was shown.
func (ts *Toasts) Push(t Toast) bool {
	ts.mu.Lock()

	now := ts.clock.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.Kind == "" {
		t.Kind = ToastInfo
	}

	for _, e := range ts.items {
		if t.ID != "" && e.ID == t.ID {
			ts.mu.Unlock()
			return false
		}
		if e.Type == t.Type && e.Reference == t.Reference && absDuration(t.CreatedAt.Sub(e.CreatedAt)) < DedupWindow {
			ts.mu.Unlock()
			return false
		}
	}

	if t.ID == "" {
		ts.seq++
		t.ID = "toast_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + strconv.FormatInt(ts.seq, 10)
	}

	entry := &toastEntry{Toast: t}
	entry.timer = ts.clock.AfterFunc(ToastLifetime, func() { ts.expire(entry) })
	ts.items = append(ts.items, entry)

	for len(ts.items) > MaxToasts {
		ts.items[0].timer.Stop()
		ts.items = ts.items[1:]
	}
	ts.mu.Unlock()

	metrics.Toasts.WithLabelValues(string(t.Kind)).Inc()
	ts.changed()
	return true
}

// List returns the toasts on screen, oldest first.
func (ts *Toasts) List() []Toast {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]Toast, len(ts.items))
	for i, e := range ts.items {
		out[i] = e.Toast
	}
	return out
}

// Dismiss removes a toast before it expires.
func (ts *Toasts) Dismiss(id string) {
	ts.mu.Lock()
	removed := false
	for i, e := range ts.items {
		if e.ID == id {
			e.timer.Stop()
			ts.items = append(ts.items[:i], ts.items[i+1:]...)
			removed = true
			break
		}
	}
	ts.mu.Unlock()
	if removed {
		ts.changed()
	}
}

// Stop cancels every expiry timer and clears the list.
func (ts *Toasts) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, e := range ts.items {
		e.timer.Stop()
	}
	ts.items = nil
}

func (ts *Toasts) expire(entry *toastEntry) {
	ts.mu.Lock()
	removed := false
	for i, e := range ts.items {
		if e == entry {
			ts.items = append(ts.items[:i], ts.items[i+1:]...)
			removed = true
			break
		}
	}
	ts.mu.Unlock()
	if removed {
		ts.changed()
	}
}

func (ts *Toasts) changed() {
	if ts.onChange != nil {
		ts.onChange()
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
