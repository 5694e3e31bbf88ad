package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"nhooyr.io/websocket"
)

// disconnectTimeout bounds the wait for the broker's DISCONNECT receipt.
const disconnectTimeout = 2 * time.Second

// StompTransport speaks STOMP 1.2 over a websocket, the way the portal's
// Spring broker expects: the bearer token travels in the CONNECT frame.
type StompTransport struct {
	URL       string
	HeartBeat time.Duration
}

// NewStompTransport returns a transport for the broker at rawURL
// (e.g. ws://localhost:8080/ws-notifications).
func NewStompTransport(rawURL string, heartBeat time.Duration) *StompTransport {
	return &StompTransport{URL: rawURL, HeartBeat: heartBeat}
}

// Dial implements Transport.
func (t *StompTransport) Dial(ctx context.Context, token string, destinations []string) (Stream, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url: %w", err)
	}

	ws, _, err := websocket.Dial(ctx, t.URL, &websocket.DialOptions{
		Subprotocols: []string{"v12.stomp", "v11.stomp", "v10.stomp"},
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", t.URL, err)
	}

	// The net.Conn must outlive the dial context.
	connCtx, cancel := context.WithCancel(context.Background())
	netConn := websocket.NetConn(connCtx, ws, websocket.MessageText)

	// stomp.Connect has no deadline of its own; a broker that never sends
	// CONNECTED is cut off when ctx ends.
	abort := context.AfterFunc(ctx, func() {
		cancel()
		_ = ws.CloseNow()
	})

	conn, err := stomp.Connect(netConn,
		stomp.ConnOpt.Host(u.Hostname()),
		stomp.ConnOpt.Header("Authorization", "Bearer "+token),
		stomp.ConnOpt.HeartBeat(t.HeartBeat, t.HeartBeat),
	)
	if !abort() {
		// ctx ended during the handshake and the socket is already closed.
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	if err != nil {
		cancel()
		_ = ws.CloseNow()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}

	s := &stompStream{
		conn:   conn,
		cancel: cancel,
		frames: make(chan Frame, 32),
		closed: make(chan struct{}),
	}

	subs := make([]*stomp.Subscription, 0, len(destinations))
	for _, dest := range destinations {
		sub, err := conn.Subscribe(dest, stomp.AckAuto)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("subscribing to %s: %w", dest, err)
		}
		subs = append(subs, sub)
	}

	s.wg.Add(len(subs))
	for _, sub := range subs {
		go s.pump(sub)
	}
	go func() {
		s.wg.Wait()
		close(s.frames)
	}()

	return s, nil
}

type stompStream struct {
	conn   *stomp.Conn
	cancel context.CancelFunc
	frames chan Frame
	closed chan struct{}
	wg     sync.WaitGroup

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *stompStream) Frames() <-chan Frame { return s.frames }

func (s *stompStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stompStream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// pump forwards one subscription. The first error on any subscription
// tears the whole connection down so the listener reconnects.
func (s *stompStream) pump(sub *stomp.Subscription) {
	defer s.wg.Done()
	for {
		select {
		case <-s.closed:
			return
		case msg, ok := <-sub.C:
			if !ok {
				s.fail(errors.New("subscription closed"))
				s.shutdown()
				return
			}
			if msg.Err != nil {
				s.fail(msg.Err)
				s.shutdown()
				return
			}
			select {
			case s.frames <- Frame{Destination: msg.Destination, Body: msg.Body}:
			case <-s.closed:
				return
			}
		}
	}
}

func (s *stompStream) shutdown() {
	s.once.Do(func() {
		close(s.closed)
		go func() {
			defer s.cancel()
			done := make(chan struct{})
			go func() {
				_ = s.conn.Disconnect()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(disconnectTimeout):
			}
		}()
	})
}

func (s *stompStream) Close() error {
	s.shutdown()
	return nil
}
