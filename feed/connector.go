package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tokenflow/config"
	"tokenflow/logger"
)

// MessageHandler consumes each raw feed message before it is relayed. The
// automation engine implements this; it runs synchronously on the read path
// so trade intent is never skipped in favour of faster relaying.
type MessageHandler interface {
	HandleMessage(ctx context.Context, raw []byte)
}

// Relay receives connection-status transitions and raw feed messages for
// fan-out to local subscribers.
type Relay interface {
	BroadcastStatus(connected bool)
	BroadcastRaw(raw []byte)
}

// Connector owns the single upstream feed connection for the process. It
// dials the configured endpoint, reads messages in a loop and hands each one
// to the handler and then the relay. A level-triggered monitor re-dials on a
// fixed interval whenever the connection is down; errors never terminate the
// connector, only an explicit Stop does.
type Connector struct {
	cfg     config.FeedConfig
	handler MessageHandler
	relay   Relay
	dialer  *websocket.Dialer
	log     *logger.Log

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	connected atomic.Bool
	dialing   atomic.Bool
}

// NewConnector builds the process's feed connector. Construct exactly one;
// the single owning handle is passed by reference to collaborators.
func NewConnector(cfg config.FeedConfig, handler MessageHandler, relay Relay, log *logger.Log) *Connector {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Connector{
		cfg:     cfg,
		handler: handler,
		relay:   relay,
		dialer:  &websocket.Dialer{HandshakeTimeout: dialTimeout},
		log:     log,
	}
}

// Start launches the reconnection monitor and the first connection attempt.
// Calling Start on a running connector is a no-op, so only one monitor loop
// ever exists per connector.
func (c *Connector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.log.WithComponent("feed_connector").Debug("connector already running")
		return
	}
	c.running = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	log := c.log.WithComponent("feed_connector")
	log.WithFields(logger.Fields{
		"url":      c.cfg.URL,
		"interval": c.cfg.ReconnectInterval.String(),
	}).Info("starting feed connector")

	c.wg.Add(1)
	go c.monitor(ctx)
}

// Stop terminates the monitor, closes the active connection and waits for
// the read loop to exit. In-flight message handling is allowed to finish.
func (c *Connector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.log.WithComponent("feed_connector").Info("stopping feed connector")
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.log.WithComponent("feed_connector").Info("feed connector stopped")
}

// IsConnected reports the current upstream connection state.
func (c *Connector) IsConnected() bool {
	return c.connected.Load()
}

// monitor is a level-triggered poll: every interval it checks the connection
// state and dials when disconnected. The dialing flag keeps overlapping
// attempts from racing an in-flight connect.
func (c *Connector) monitor(ctx context.Context) {
	defer c.wg.Done()

	log := c.log.WithComponent("feed_connector").WithFields(logger.Fields{"worker": "reconnect_monitor"})

	interval := c.cfg.ReconnectInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	// Open the first connection immediately rather than waiting one tick.
	c.tryConnect(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("reconnect monitor stopped")
			return
		case <-ticker.C:
			c.tryConnect(ctx)
		}
	}
}

func (c *Connector) tryConnect(ctx context.Context) {
	if c.connected.Load() {
		return
	}
	if !c.dialing.CompareAndSwap(false, true) {
		return
	}
	defer c.dialing.Store(false)

	log := c.log.WithComponent("feed_connector")

	// Drop any stale handle from a previous session before dialing anew.
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	log.WithFields(logger.Fields{"url": c.cfg.URL}).Info("connecting to feed")

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		log.WithError(err).Warn("failed to connect to feed")
		return
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if c.connected.CompareAndSwap(false, true) {
		c.relay.BroadcastStatus(true)
		c.log.LogMetric("feed_connector", "feed_connects", 1, "counter", nil)
	}
	log.Info("connected to feed")

	c.wg.Add(1)
	go c.readLoop(ctx, conn)
}

// readLoop processes messages from one connection session until it fails or
// the connector stops. On failure it only flips the state; the monitor owns
// re-dialing, so an immediately failing endpoint cannot cause unbounded
// inline retries.
func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()

	log := c.log.WithComponent("feed_connector").WithFields(logger.Fields{"worker": "read_loop"})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("feed connection lost")
			}
			c.markDisconnected(conn)
			return
		}

		logger.RecordFlow("feed_messages", len(raw))

		// Automation first, then relay: trade intent precedes emission.
		c.handler.HandleMessage(ctx, raw)
		c.relay.BroadcastRaw(raw)
	}
}

func (c *Connector) markDisconnected(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	if c.connected.CompareAndSwap(true, false) {
		c.relay.BroadcastStatus(false)
		c.log.LogMetric("feed_connector", "feed_disconnects", 1, "counter", nil)
	}
}
