package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ConnState is one state of the reconnect state machine.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateBackoff
	StateFailed
	StateClosed
)

// String returns the state name.
func (s ConnState) String() string {
	names := [...]string{"connecting", "open", "backoff", "failed", "closed"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Clock abstracts timer scheduling so the backoff sequence can be driven by a
// fake clock in tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Conn is the minimal surface the transport needs from a WebSocket
// connection. The stream is receive-only: the client never writes.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// DialFunc opens a WebSocket connection to the given URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

type gorillaConn struct {
	ws *websocket.Conn
}

func (c *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *gorillaConn) Close() error { return c.ws.Close() }

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaConn{ws: ws}, nil
}

const (
	// defaultMaxAttempts is the reconnection budget after the initial
	// connection. Exhausting it fires Hooks.OnClose exactly once.
	defaultMaxAttempts = 3

	// maxBackoff caps the exponential backoff delay.
	maxBackoff = 10 * time.Second
)

// backoffDelay returns the delay before reconnect attempt n (1-based):
// min(1s * 2^n, 10s).
func backoffDelay(attempt int) time.Duration {
	d := time.Second << attempt
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// Options configures a Transport.
type Options struct {
	// BaseURL is the WebSocket endpoint base, e.g. "ws://localhost:8000".
	BaseURL string

	// Dial overrides the WebSocket dialer (tests). Defaults to gorilla.
	Dial DialFunc

	// Clock overrides timer scheduling (tests). Defaults to the wall clock.
	Clock Clock

	// MaxAttempts overrides the reconnection budget. Defaults to 3.
	MaxAttempts int

	// Logger receives frame-level diagnostics. Defaults to the standard
	// logrus logger.
	Logger *logrus.Logger
}

// Transport manages one WebSocket connection per scan id and owns the
// reconnect-with-backoff lifecycle. It is safe to create multiple concurrent
// connections from one Transport.
type Transport struct {
	baseURL     string
	dial        DialFunc
	clock       Clock
	maxAttempts int
	log         *logrus.Logger
}

// NewTransport creates a Transport for the given options.
func NewTransport(opts Options) *Transport {
	t := &Transport{
		baseURL:     opts.BaseURL,
		dial:        opts.Dial,
		clock:       opts.Clock,
		maxAttempts: opts.MaxAttempts,
		log:         opts.Logger,
	}
	if t.dial == nil {
		t.dial = gorillaDial
	}
	if t.clock == nil {
		t.clock = realClock{}
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = defaultMaxAttempts
	}
	if t.log == nil {
		t.log = logrus.StandardLogger()
	}
	return t
}

// Hooks are the callbacks a connection reports into. OnEvent is required;
// OnState and OnClose are optional.
type Hooks struct {
	// OnEvent receives each successfully decoded frame, in receipt order.
	OnEvent func(Event)

	// OnState observes reconnect state machine transitions.
	OnState func(ConnState)

	// OnClose fires exactly once, and only when the reconnection budget is
	// exhausted. It never fires after an intentional disconnect.
	OnClose func()
}

// Connect opens a connection for scanID and starts delivering events through
// the hooks. The returned function tears the connection down intentionally:
// it suppresses any further reconnection and suppresses OnClose. Events lost
// while disconnected are not replayed; reconnection resumes the same logical
// session on a new physical connection.
func (t *Transport) Connect(scanID string, hooks Hooks) (disconnect func()) {
	connID := uuid.New().String()
	c := &streamConn{
		t:     t,
		url:   fmt.Sprintf("%s/ws/scan/%s", t.baseURL, scanID),
		hooks: hooks,
		done:  make(chan struct{}),
		log: t.log.WithFields(logrus.Fields{
			"scan_id": scanID,
			"conn_id": connID,
		}),
	}
	go c.run()
	return c.disconnect
}

// streamConn is one logical connection: a sequence of physical WebSocket
// connections joined by the backoff state machine.
type streamConn struct {
	t     *Transport
	url   string
	hooks Hooks
	log   *logrus.Entry

	mu          sync.Mutex
	ws          Conn
	intentional bool
	done        chan struct{}
	closeOnce   sync.Once
}

// disconnect marks the connection as intentionally closed and tears down the
// current physical socket, if any.
func (c *streamConn) disconnect() {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	c.intentional = true
	ws := c.ws
	close(c.done)
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
}

func (c *streamConn) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentional
}

func (c *streamConn) setConn(ws Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

func (c *streamConn) setState(s ConnState) {
	if c.hooks.OnState != nil {
		c.hooks.OnState(s)
	}
}

// run drives the {connecting, open, backoff, failed} state machine. The
// attempt counter spans the whole logical connection: it is not reset by a
// successful reconnect, so the total reconnection budget is MaxAttempts.
func (c *streamConn) run() {
	attempt := 0
	for {
		c.setState(StateConnecting)
		ws, err := c.t.dial(context.Background(), c.url)
		if c.closed() {
			if ws != nil {
				ws.Close()
			}
			c.setState(StateClosed)
			return
		}

		if err == nil {
			c.setConn(ws)
			c.setState(StateOpen)
			c.readLoop(ws)
			c.setConn(nil)
			if c.closed() {
				c.setState(StateClosed)
				return
			}
		} else {
			c.log.WithError(err).Debug("websocket dial failed")
		}

		attempt++
		if attempt > c.t.maxAttempts {
			c.setState(StateFailed)
			if c.hooks.OnClose != nil {
				c.closeOnce.Do(c.hooks.OnClose)
			}
			return
		}

		c.setState(StateBackoff)
		select {
		case <-c.t.clock.After(backoffDelay(attempt)):
		case <-c.done:
			c.setState(StateClosed)
			return
		}
	}
}

// readLoop reads frames until the socket fails. Each frame is decoded
// independently: a malformed or unrecognized frame is logged and dropped
// without tearing down the connection.
func (c *streamConn) readLoop(ws Conn) {
	for {
		data, err := ws.ReadMessage()
		if err != nil {
			if !c.closed() {
				c.log.WithError(err).Debug("websocket read failed")
			}
			return
		}

		ev, err := Decode(data)
		if err != nil {
			c.log.WithError(err).WithField("frame", truncate(data, 200)).
				Warn("dropping undecodable frame")
			continue
		}
		if c.hooks.OnEvent != nil {
			c.hooks.OnEvent(ev)
		}
	}
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
