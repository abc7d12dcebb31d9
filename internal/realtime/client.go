package realtime

import (
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dashfeed/internal/domain"
	"dashfeed/internal/observability"
	"dashfeed/internal/token"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var (
	ErrNoCredential       = errors.New("no credential available for push connection")
	ErrReconnectExhausted = errors.New("push connection lost, reconnect attempts exhausted")
	ErrAlreadyRunning     = errors.New("push client already running")
)

const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultMaxAttempts    = 5

	// WildcardKey subscribes to status updates for every campaign.
	WildcardKey = "*"
)

type CampaignFunc func(domain.CampaignStatusUpdate)

// Handlers receive decoded push payloads. Nil funcs are skipped.
type Handlers struct {
	OnNotification func(domain.Notification)
	OnUnreadCount  func(int)

	// OnMessage taps every decoded frame, regardless of type. Used by the
	// push-event exporter.
	OnMessage func(domain.Message)
}

type Options struct {
	// URL of the push endpoint (ws:// or wss://). The bearer credential is
	// appended as a token query parameter at dial time.
	URL    string
	Tokens token.Source

	Handlers Handlers

	ReconnectDelay time.Duration // 0 means DefaultReconnectDelay
	MaxAttempts    int           // 0 means DefaultMaxAttempts

	Dialer        *websocket.Dialer // nil means websocket.DefaultDialer
	OnStateChange func(State)       // optional observer, called outside the client lock
}

// Client owns one push connection and fans decoded messages out to
// registered subscribers. It is an explicitly owned handle: callers create
// it, Connect it, and Close it when done. Two clients never share state.
type Client struct {
	opts Options

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
	conn     *websocket.Conn
	running  bool
	closed   bool
	subs     map[string]CampaignFunc
}

func New(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:  opts,
		state: StateDisconnected,
		subs:  make(map[string]CampaignFunc),
	}
}

// Subscribe registers fn for status updates of one campaign. Registering
// under an id that already has a subscriber replaces it (last write wins).
func (c *Client) Subscribe(campaignID string, fn CampaignFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[campaignID] = fn
}

// SubscribeAll registers fn for every campaign status update. A wildcard
// subscriber fires in addition to any per-id subscriber for the same update.
func (c *Client) SubscribeAll(fn CampaignFunc) {
	c.Subscribe(WildcardKey, fn)
}

func (c *Client) Unsubscribe(campaignID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, campaignID)
}

func (c *Client) UnsubscribeAll() {
	c.Unsubscribe(WildcardKey)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect checks the credential and starts the connection loop. A missing
// credential fails fast: no loop is started and the client stays
// disconnected with the error recorded. Any later reconnect is driven by
// the loop itself, bounded by MaxAttempts.
func (c *Client) Connect() error {
	tok, err := c.opts.Tokens.Token()
	if err != nil || tok == "" {
		if err == nil {
			err = ErrNoCredential
		} else {
			err = errors.Join(ErrNoCredential, err)
		}
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.closed = false
	c.attempts = 0
	c.mu.Unlock()

	go c.run()
	return nil
}

// Reconnect resets the attempt counter and starts the loop again after a
// manual close or an exhausted retry budget. It is a no-op while running.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.mu.Unlock()
	return c.Connect()
}

// Close tears the connection down with a normal closure so the loop never
// attempts to reconnect. Safe to call in any state and more than once.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	c.setState(StateDisconnected)
}

func (c *Client) run() {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	for {
		if c.isClosed() {
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			slog.Warn("push dial failed", "err", err, "attempts", c.Attempts())
			if !c.backoff(err) {
				return
			}
			continue
		}

		if !c.adopt(conn) {
			return
		}
		c.setState(StateConnected)
		observability.Reconnects.WithLabelValues("connected").Inc()
		slog.Info("push connection established", "url", c.opts.URL)

		err = c.readLoop(conn)
		_ = conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if c.isClosed() || isNormalClosure(err) {
			c.setState(StateDisconnected)
			slog.Info("push connection closed")
			return
		}

		slog.Warn("push connection lost", "err", err)
		if !c.backoff(err) {
			return
		}
	}
}

// adopt installs a freshly dialed connection. Close may land between the
// dial and this point; the closed flag is re-checked under the same lock
// that publishes conn so a racing Close can never leave the new connection
// live and invisible.
func (c *Client) adopt(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		c.setState(StateDisconnected)
		return false
	}
	c.conn = conn
	c.attempts = 0
	c.lastErr = nil
	c.mu.Unlock()
	return true
}

func (c *Client) dial() (*websocket.Conn, error) {
	tok, err := c.opts.Tokens.Token()
	if err != nil || tok == "" {
		if err == nil {
			err = ErrNoCredential
		}
		return nil, err
	}

	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", tok)
	u.RawQuery = q.Encode()

	conn, resp, err := c.opts.Dialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// backoff records one unexpected disconnect. It returns false once the
// retry budget is spent, leaving the client disconnected with a persistent
// failure the owner is expected to surface (reload prompt).
func (c *Client) backoff(cause error) bool {
	c.mu.Lock()
	if c.attempts >= c.opts.MaxAttempts {
		c.lastErr = errors.Join(ErrReconnectExhausted, cause)
		c.mu.Unlock()
		c.setState(StateDisconnected)
		observability.Reconnects.WithLabelValues("exhausted").Inc()
		slog.Error("push reconnect attempts exhausted", "max", c.opts.MaxAttempts, "err", cause)
		return false
	}
	c.attempts++
	c.lastErr = cause
	attempt := c.attempts
	c.mu.Unlock()

	c.setState(StateReconnecting)
	observability.Reconnects.WithLabelValues("retry").Inc()
	slog.Info("push reconnect scheduled", "attempt", attempt, "delay", c.opts.ReconnectDelay)
	time.Sleep(c.opts.ReconnectDelay)
	return !c.isClosed()
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := domain.DecodeMessage(raw)
		if err != nil {
			observability.PushMalformed.Inc()
			slog.Debug("dropping malformed push frame", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg domain.Message) {
	observability.PushMessages.WithLabelValues(string(msg.Type)).Inc()

	if fn := c.opts.Handlers.OnMessage; fn != nil {
		fn(msg)
	}

	switch msg.Type {
	case domain.MessageTypeNotification:
		if fn := c.opts.Handlers.OnNotification; fn != nil {
			fn(*msg.Notification)
		}
	case domain.MessageTypeUnreadCount:
		if fn := c.opts.Handlers.OnUnreadCount; fn != nil {
			fn(msg.UnreadCount)
		}
	case domain.MessageTypeCampaignStatus:
		upd := *msg.CampaignStatus
		c.mu.Lock()
		byID := c.subs[upd.ID]
		wildcard := c.subs[WildcardKey]
		c.mu.Unlock()
		// both may fire for the same update
		if byID != nil {
			byID(upd)
		}
		if wildcard != nil {
			wildcard(upd)
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if !changed {
		return
	}
	observability.ConnectionState.Set(stateGaugeValue(s))
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func isNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure)
}

func stateGaugeValue(s State) float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateReconnecting:
		return 3
	default:
		return 0
	}
}
