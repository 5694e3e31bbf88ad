// Package realtime keeps one STOMP subscription to the portal's
// notification broker per session and hands every decoded message to a
// single handler.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/nhle/portal-notify/internal/metrics"
)

// DefaultReconnectDelay is the pause between a dropped connection and the
// next dial.
const DefaultReconnectDelay = 5 * time.Second

// Frame is one MESSAGE frame received on a subscription.
type Frame struct {
	Destination string
	Body        []byte
}

// Stream is an open connection with its subscriptions.
type Stream interface {
	// Frames yields inbound messages and is closed when the connection drops.
	Frames() <-chan Frame
	// Err reports why Frames was closed.
	Err() error
	Close() error
}

// Transport opens authenticated broker connections.
type Transport interface {
	Dial(ctx context.Context, token string, destinations []string) (Stream, error)
}

// Handler receives every message body that decodes to a JSON object.
type Handler func(payload map[string]any)

// Options tune a Listener. Zero values pick the defaults.
type Options struct {
	ReconnectDelay time.Duration
	Clock          clockwork.Clock
	Logger         zerolog.Logger
}

// Listener maintains the realtime connection while enabled.
type Listener struct {
	transport      Transport
	handler        Handler
	reconnectDelay time.Duration
	clock          clockwork.Clock
	log            zerolog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// NewListener builds a stopped listener.
func NewListener(t Transport, h Handler, opts Options) *Listener {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Listener{
		transport:      t,
		handler:        h,
		reconnectDelay: opts.ReconnectDelay,
		clock:          opts.Clock,
		log:            opts.Logger.With().Str("component", "realtime").Logger(),
	}
}

// Start connects with token and subscribes to destinations. It is a no-op
// while already running or when token is empty.
func (l *Listener) Start(token string, destinations []string) {
	if token == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, token, destinations, l.done)
}

// Stop cancels any pending reconnect, closes the connection and waits for
// the loop to exit. Safe to call when stopped.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the listener is enabled.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Connected reports whether a broker connection is currently open.
func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Listener) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
	if v {
		metrics.RealtimeConnected.Set(1)
	} else {
		metrics.RealtimeConnected.Set(0)
	}
}

func (l *Listener) run(ctx context.Context, token string, destinations []string, done chan struct{}) {
	defer close(done)

	for {
		stream, err := l.transport.Dial(ctx, token, destinations)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn().Err(err).Msg("realtime connect failed")
		} else {
			l.log.Info().Strs("destinations", destinations).Msg("realtime connected")
			l.setConnected(true)
			l.consume(ctx, stream)
			l.setConnected(false)
			_ = stream.Close()
			if ctx.Err() != nil {
				return
			}
			l.log.Warn().Err(stream.Err()).Dur("retry_in", l.reconnectDelay).Msg("realtime connection closed")
		}

		select {
		case <-ctx.Done():
			return
		case <-l.clock.After(l.reconnectDelay):
			metrics.RealtimeReconnects.Inc()
		}
	}
}

func (l *Listener) consume(ctx context.Context, stream Stream) {
	frames := stream.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			l.dispatch(f)
		}
	}
}

// dispatch decodes one frame. Bodies that are not JSON objects are dropped.
func (l *Listener) dispatch(f Frame) {
	var payload map[string]any
	if err := json.Unmarshal(f.Body, &payload); err != nil || payload == nil {
		metrics.InboundMessages.WithLabelValues(metrics.VerdictDropped).Inc()
		l.log.Debug().Err(err).Str("destination", f.Destination).Msg("dropping malformed message")
		return
	}
	l.handler(payload)
}
