package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/buildflow/site-client/internal/config"
	"github.com/buildflow/site-client/internal/domain"
	"github.com/buildflow/site-client/internal/observability"
	util "github.com/buildflow/site-client/pkg/util"
)

// backoffSchedule paces reconnection attempts after an established
// connection drops; the last entry repeats.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Subscription is a cancellable handle for event or state callbacks.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel detaches the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

type subscriber struct {
	event string // empty matches every event
	fn    func(Event)
}

// Channel owns the single realtime connection for the authenticated user.
// All connection lifecycle calls funnel through it; there is never more than
// one live connection, and a connection for a new user is only opened after
// the previous one is closed.
type Channel struct {
	cfg     config.RealtimeConfig
	tokenFn func() string
	logger  *zap.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	state     domain.ChannelState
	userID    string
	conn      *websocket.Conn
	gen       uint64
	done      chan struct{}
	nextSubID int
	subs      map[int]subscriber
	stateSubs map[int]func(domain.ChannelState)
}

// NewChannel builds a channel. tokenFn supplies the current access token for
// the handshake; it is consulted again on every reconnect attempt so a
// refreshed token is picked up automatically.
func NewChannel(cfg config.RealtimeConfig, tokenFn func() string, logger *zap.Logger, metrics *observability.Metrics) *Channel {
	return &Channel{
		cfg:       cfg,
		tokenFn:   tokenFn,
		logger:    logger,
		metrics:   metrics,
		state:     domain.ChannelDisconnected,
		subs:      make(map[int]subscriber),
		stateSubs: make(map[int]func(domain.ChannelState)),
	}
}

// State returns the current connection state.
func (c *Channel) State() domain.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a callback for the named inbound event; an empty name
// subscribes to every event. Cancel the handle to detach deterministically.
func (c *Channel) Subscribe(event string, fn func(Event)) *Subscription {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = subscriber{event: event, fn: fn}
	c.mu.Unlock()

	return &Subscription{cancel: func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}}
}

// SubscribeState registers a callback for connection-state changes.
func (c *Channel) SubscribeState(fn func(domain.ChannelState)) *Subscription {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.stateSubs[id] = fn
	c.mu.Unlock()

	return &Subscription{cancel: func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}}
}

// Connect opens the connection and joins the user's group. Calling Connect
// while already connected (or connecting) for the same user is a no-op; for
// a different user the old connection is closed first. A failed handshake
// returns ChannelError{ConnectFailed} and is not retried here; retry policy
// for the initial connect belongs to the caller.
func (c *Channel) Connect(ctx context.Context, userID string) error {
	c.mu.Lock()
	if c.state != domain.ChannelDisconnected && c.userID == userID {
		c.mu.Unlock()
		return nil
	}
	if c.conn != nil {
		c.teardownLocked()
	}
	c.gen++
	gen := c.gen
	c.userID = userID
	c.done = make(chan struct{})
	c.setStateLocked(domain.ChannelConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx, userID)
	if err != nil {
		c.settleFailed(gen)
		return util.NewConnectFailed(err)
	}

	c.mu.Lock()
	if c.gen != gen {
		// Disconnect raced the handshake; the later call wins.
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.setStateLocked(domain.ChannelConnected)
	c.mu.Unlock()

	c.metrics.RecordChannel("connect")
	c.logger.Info("realtime channel connected", zap.String("user_id", userID))
	go c.readLoop(conn, gen)
	return nil
}

// Disconnect tears the connection down. Safe to call when not connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	was := c.state
	c.teardownLocked()
	if was != domain.ChannelDisconnected {
		c.setStateLocked(domain.ChannelDisconnected)
	}
	c.mu.Unlock()

	if was != domain.ChannelDisconnected {
		c.metrics.RecordChannel("disconnect")
		c.logger.Info("realtime channel disconnected")
	}
}

// Invoke sends a named invocation to the server on the live connection.
func (c *Channel) Invoke(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return util.NewSendFailed(net.ErrClosed)
	}
	if err := sendFrame(conn, event, payload); err != nil {
		return util.NewSendFailed(err)
	}
	return nil
}

func (c *Channel) dial(ctx context.Context, userID string) (*websocket.Conn, error) {
	wsCfg, err := websocket.NewConfig(c.cfg.URL, c.cfg.Origin)
	if err != nil {
		return nil, err
	}
	wsCfg.Header = make(http.Header)
	if c.tokenFn != nil {
		if token := c.tokenFn(); token != "" {
			wsCfg.Header.Set("Authorization", "Bearer "+token)
		}
	}
	dialer := &net.Dialer{Timeout: c.cfg.HandshakeTimeout()}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	wsCfg.Dialer = dialer

	conn, err := websocket.DialConfig(wsCfg)
	if err != nil {
		return nil, err
	}
	if err := sendFrame(conn, InvokeJoinUserGroup, JoinUserGroupPayload{UserID: userID}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Channel) readLoop(conn *websocket.Conn, gen uint64) {
	decoder := json.NewDecoder(conn)
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			break
		}
		c.dispatch(Event{Name: frame.Event, Payload: frame.Payload})
	}

	c.mu.Lock()
	stale := c.gen != gen
	done := c.done
	c.mu.Unlock()
	if stale {
		return
	}
	c.reconnectLoop(gen, done)
}

// reconnectLoop runs after an established connection drops. Transparent to
// subscribers apart from the state transitions; per-attempt errors are not
// surfaced. After exhausting the attempt budget the channel settles on
// Disconnected so the UI can show a soft "live updates unavailable" state.
func (c *Channel) reconnectLoop(gen uint64, done chan struct{}) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.setStateLocked(domain.ChannelReconnecting)
	userID := c.userID
	c.mu.Unlock()
	c.logger.Warn("realtime connection lost, reconnecting", zap.String("user_id", userID))

	attempts := c.cfg.MaxReconnectAttempts
	if attempts <= 0 {
		attempts = 20
	}
	for attempt := 0; attempt < attempts; attempt++ {
		delay := backoffSchedule[min(attempt, len(backoffSchedule)-1)]
		select {
		case <-done:
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, err := c.dial(context.Background(), userID)
		if err != nil {
			c.logger.Debug("reconnect attempt failed",
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.setStateLocked(domain.ChannelConnected)
		c.mu.Unlock()

		c.metrics.RecordChannel("reconnect")
		c.logger.Info("realtime channel reconnected", zap.Int("attempts", attempt+1))
		go c.readLoop(conn, gen)
		return
	}

	c.mu.Lock()
	if c.gen == gen {
		c.setStateLocked(domain.ChannelDisconnected)
	}
	c.mu.Unlock()
	c.metrics.RecordChannel("give_up")
	c.logger.Error("realtime reconnection attempts exhausted", zap.String("user_id", userID))
}

func (c *Channel) dispatch(event Event) {
	c.metrics.RecordInbound(event.Name)

	c.mu.Lock()
	subs := make([]subscriber, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.event == "" || sub.event == event.Name {
			subs = append(subs, sub)
		}
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(event)
	}
}

// teardownLocked invalidates the current connection generation and closes
// the socket. Callers hold c.mu.
func (c *Channel) teardownLocked() {
	c.gen++
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) settleFailed(gen uint64) {
	c.mu.Lock()
	if c.gen == gen {
		c.setStateLocked(domain.ChannelDisconnected)
	}
	c.mu.Unlock()
	c.metrics.RecordChannel("connect_failed")
}

// setStateLocked updates state and schedules notifications. Callers hold
// c.mu; subscriber callbacks run outside the lock.
func (c *Channel) setStateLocked(state domain.ChannelState) {
	if c.state == state {
		return
	}
	c.state = state
	subs := make([]func(domain.ChannelState), 0, len(c.stateSubs))
	for _, fn := range c.stateSubs {
		subs = append(subs, fn)
	}
	go func() {
		for _, fn := range subs {
			fn(state)
		}
	}()
}

func sendFrame(conn *websocket.Conn, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.NewEncoder(conn).Encode(Frame{Event: event, Payload: raw})
}
