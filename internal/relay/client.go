package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaymint/tokend/internal/nostr"
)

const (
	writeTimeout  = 10 * time.Second
	readTimeout   = 60 * time.Second
	pingInterval  = 54 * time.Second
	maxMessage    = 512 * 1024
	minBackoff    = time.Second
	maxBackoff    = 30 * time.Second
	sendQueueSize = 256
)

// client maintains one relay connection: it dials, re-establishes the
// subscription after every reconnect, pumps frames both ways and backs off
// exponentially on failure.
type client struct {
	url  string
	pool *Pool
	log  *zap.Logger

	send chan []byte

	mu        sync.RWMutex
	connected bool
}

func newClient(url string, pool *Pool, log *zap.Logger) *client {
	return &client{
		url:  url,
		pool: pool,
		log:  log.With(zap.String("relay", url)),
		send: make(chan []byte, sendQueueSize),
	}
}

// run dials the relay and keeps the connection alive until ctx is cancelled.
func (c *client) run(ctx context.Context) {
	backoff := minBackoff

	for {
		if err := c.session(ctx); err != nil {
			c.log.Warn("relay session ended", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// session runs one dial-to-disconnect cycle.
func (c *client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: writeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.setConnected(true)
	defer c.setConnected(false)
	c.log.Info("connected to relay")

	if err := c.subscribe(conn); err != nil {
		return err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- c.writePump(sessionCtx, conn) }()
	go func() { errc <- c.readPump(sessionCtx, conn) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// subscribe replays the pool's subscription on a fresh connection.
func (c *client) subscribe(conn *websocket.Conn) error {
	subID, filters := c.pool.subscription()
	if len(filters) == 0 {
		return nil
	}

	frame, err := nostr.ReqFrame(subID, filters...)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *client) writePump(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *client) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessage)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		msg, err := nostr.ParseRelayMessage(data)
		if err != nil {
			c.log.Debug("skipping malformed relay frame", zap.Error(err))
			continue
		}

		switch msg.Label {
		case "EVENT":
			c.pool.dispatch(ctx, msg.Event)
		case "OK":
			if !msg.Accepted {
				c.log.Warn("relay refused event",
					zap.String("event_id", msg.EventID),
					zap.String("reason", msg.Reason))
			}
		case "NOTICE":
			c.log.Info("relay notice", zap.String("text", msg.SubID))
		case "CLOSED":
			c.log.Warn("relay closed subscription", zap.String("sub_id", msg.SubID))
		}
	}
}

// enqueue queues one frame for transmission, dropping it when the queue is
// full so a stalled relay cannot back-pressure the engine.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.log.Warn("send queue full, dropping frame")
	}
}

func (c *client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *client) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
