package notify

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nhle/portal-notify/internal/model"
)

const (
	// EchoWindow is how long after a local action a matching message
	// without an actor is treated as its echo.
	EchoWindow = 10 * time.Second

	// actionExpiry is when a recorded local action is forgotten.
	actionExpiry = 12 * time.Second
)

// Verdict is the classification of an inbound realtime message.
type Verdict int

const (
	// VerdictGenuine messages are stored and counted.
	VerdictGenuine Verdict = iota
	// VerdictSelfEcho messages were caused by the current user.
	VerdictSelfEcho
	// VerdictLocalEcho messages match a recent local action.
	VerdictLocalEcho
)

func (v Verdict) String() string {
	switch v {
	case VerdictSelfEcho:
		return "self_echo"
	case VerdictLocalEcho:
		return "local_echo"
	}
	return "genuine"
}

type actionKey struct {
	eventType string
	reference string
}

type action struct {
	at    time.Time
	timer clockwork.Timer
}

// LocalActions remembers actions the user just performed so their echoes
// can be recognized. Each entry expires on its own timer and is consumed
// by the first echo it matches.
type LocalActions struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[actionKey]*action
}

// NewLocalActions returns an empty registry.
func NewLocalActions(clock clockwork.Clock) *LocalActions {
	return &LocalActions{clock: clock, entries: make(map[actionKey]*action)}
}

// Record notes that the user performed eventType on reference just now.
func (a *LocalActions) Record(eventType, reference string) {
	key := actionKey{model.NormalizeType(eventType), reference}

	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.entries[key]; ok {
		old.timer.Stop()
	}
	entry := &action{at: a.clock.Now()}
	entry.timer = a.clock.AfterFunc(actionExpiry, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.entries[key] == entry {
			delete(a.entries, key)
		}
	})
	a.entries[key] = entry
}

// consume reports whether a recorded action matches and, if so, forgets it.
func (a *LocalActions) consume(eventType, reference string) bool {
	key := actionKey{eventType, reference}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[key]
	if !ok {
		return false
	}
	if a.clock.Since(entry.at) >= EchoWindow {
		return false
	}
	entry.timer.Stop()
	delete(a.entries, key)
	return true
}

// Len returns the number of remembered actions.
func (a *LocalActions) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Stop cancels all expiry timers and forgets every action.
func (a *LocalActions) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, entry := range a.entries {
		entry.timer.Stop()
		delete(a.entries, key)
	}
}

// Classify decides how a realtime message is handled. A message naming the
// current user as actor is a self echo. A message with no actor at all is a
// local echo when it matches a recorded action. A message naming some other
// actor is always genuine.
func Classify(p Payload, currentUserID string, actions *LocalActions) Verdict {
	actor, hasActor := p.Actor()
	if hasActor {
		if currentUserID != "" && actor == currentUserID {
			return VerdictSelfEcho
		}
		return VerdictGenuine
	}

	ref, _ := p.Reference()
	if actions != nil && actions.consume(p.Type, ref) {
		return VerdictLocalEcho
	}
	return VerdictGenuine
}
