// Package sync schedules the background reconciliation of the notification
// store with the portal: the delayed first history load, the periodic
// unread badge sync and the fallback history poll.
package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Target is the store operations the poller drives.
type Target interface {
	InitialLoad(ctx context.Context) bool
	SyncUnreadCount(ctx context.Context)
	PollFallback(ctx context.Context) bool
	Refresh(ctx context.Context) int
}

// Kind identifies a reconciliation job.
type Kind int

const (
	KindInitialLoad Kind = iota
	KindUnread
	KindFallback
	KindRefresh
)

func (k Kind) String() string {
	switch k {
	case KindInitialLoad:
		return "initial_load"
	case KindUnread:
		return "unread"
	case KindFallback:
		return "fallback"
	case KindRefresh:
		return "refresh"
	}
	return "unknown"
}

// SyncResultMsg is a tea.Msg sent after every job.
type SyncResultMsg struct {
	Kind Kind
	// Ran is false when the job was skipped (no role, fresh realtime feed).
	Ran   bool
	Added int
	At    time.Time
}

// jobTimeout bounds a single job.
const jobTimeout = 30 * time.Second

// Options hold the schedule. Zero values pick the defaults.
type Options struct {
	InitialDelay     time.Duration
	UnreadInterval   time.Duration
	FallbackInterval time.Duration
	Clock            clockwork.Clock
	Logger           zerolog.Logger
}

// Poller runs the reconciliation loops while started.
type Poller struct {
	target Target
	opts   Options
	clock  clockwork.Clock
	log    zerolog.Logger

	resultCh  chan SyncResultMsg
	triggerCh chan struct{}

	mu      gosync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      gosync.WaitGroup
}

// New creates a stopped Poller.
func New(target Target, opts Options) *Poller {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 500 * time.Millisecond
	}
	if opts.UnreadInterval <= 0 {
		opts.UnreadInterval = 30 * time.Second
	}
	if opts.FallbackInterval <= 0 {
		opts.FallbackInterval = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Poller{
		target:    target,
		opts:      opts,
		clock:     opts.Clock,
		log:       opts.Logger.With().Str("component", "sync").Logger(),
		resultCh:  make(chan SyncResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the loops and returns a command that delivers the first
// result to the Bubble Tea runtime. It is a no-op while running.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(3)
	p.mu.Unlock()

	go p.initialLoad(ctx)
	go p.unreadLoop(ctx)
	go p.fallbackLoop(ctx)

	return p.waitForResult()
}

// Stop halts the loops and waits for a running job to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// Running reports whether the loops are active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Refresh asks the fallback loop for an immediate refresh.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A refresh is already queued.
	}
	return nil
}

// Results exposes job results to callers without a Bubble Tea runtime.
func (p *Poller) Results() <-chan SyncResultMsg {
	return p.resultCh
}

// WaitForNextResult returns a tea.Cmd that waits for the next result.
// Call it after handling each SyncResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}

func (p *Poller) initialLoad(ctx context.Context) {
	defer p.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-p.clock.After(p.opts.InitialDelay):
	}

	p.run(ctx, KindInitialLoad, func(ctx context.Context) (bool, int) {
		return p.target.InitialLoad(ctx), 0
	})
}

func (p *Poller) unreadLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.opts.UnreadInterval)
	defer ticker.Stop()

	job := func(ctx context.Context) (bool, int) {
		p.target.SyncUnreadCount(ctx)
		return true, 0
	}

	p.run(ctx, KindUnread, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.run(ctx, KindUnread, job)
		}
	}
}

func (p *Poller) fallbackLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.opts.FallbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.run(ctx, KindFallback, func(ctx context.Context) (bool, int) {
				return p.target.PollFallback(ctx), 0
			})
		case <-p.triggerCh:
			p.run(ctx, KindRefresh, func(ctx context.Context) (bool, int) {
				return true, p.target.Refresh(ctx)
			})
		}
	}
}

func (p *Poller) run(ctx context.Context, kind Kind, job func(context.Context) (bool, int)) {
	if ctx.Err() != nil {
		return
	}
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	ran, added := job(jobCtx)
	p.log.Debug().Stringer("job", kind).Bool("ran", ran).Int("added", added).Msg("sync job finished")
	p.sendResult(SyncResultMsg{Kind: kind, Ran: ran, Added: added, At: p.clock.Now()})
}

// sendResult delivers a result without blocking the loops.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if nobody is listening.
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	ch := p.resultCh
	return func() tea.Msg {
		result, ok := <-ch
		if !ok {
			return nil
		}
		return result
	}
}
