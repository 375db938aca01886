// Package gateway manages individual WebSocket clients: read/write pumps,
// frame decoding, rate limiting, and lifecycle control per connection.
package gateway

import (
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relayhub/chatrelay/internal/metrics"
	"github.com/relayhub/chatrelay/internal/relay"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Client is one WebSocket connection. It decodes inbound frames into relay
// events, dispatches them to the router in arrival order, and writes outbound
// events queued on its buffered send channel.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	gw      *Gateway
	addr    string
	closed  bool // guarded by gw.mu
	limiter *rateLimiter
	session *relay.Session
	log     zerolog.Logger
}

func newClient(conn *websocket.Conn, gw *Gateway, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(gw.cfg.MaxMessageSize)
	}

	c := &Client{
		conn:    conn,
		send:    make(chan []byte, gw.cfg.SendBufferSize),
		gw:      gw,
		addr:    addr,
		limiter: newRateLimiter(gw.cfg.RateLimitBurst, gw.cfg.RateLimitRefill),
		log:     gw.log.With().Str("addr", addr).Logger(),
	}
	c.session = gw.router.NewSession(c)
	return c
}

// TrySend implements relay.Conn. It never blocks: an event that cannot be
// queued is dropped and the client is scheduled for removal, so one slow
// connection cannot stall fan-out to the others.
func (c *Client) TrySend(ev relay.Outbound) bool {
	payload, err := ev.Encode()
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode outbound event")
		return false
	}
	if c.gw.trySend(c, payload) {
		return true
	}
	c.gw.requestRemoval(c)
	return false
}

// Close implements relay.Conn. It asks the gateway to unregister the client;
// the write pump then drains buffered events, sends a close frame, and shuts
// the socket, so events queued before Close still reach the peer.
func (c *Client) Close() {
	c.gw.requestRemoval(c)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the error appropriately and reports whether the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.gw.cfg.MaxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
	return true
}

// processFrame decodes one raw frame and hands the event to the router.
// Undecodable frames are reported back to this connection only.
func (c *Client) processFrame(raw []byte) {
	ev, err := relay.DecodeInbound(raw)
	if err != nil {
		if errors.Is(err, relay.ErrUnknownCommand) {
			metrics.ProtocolErrors.WithLabelValues("unknown_command").Inc()
			c.TrySend(relay.EventError(relay.ErrUnknownCommand))
			return
		}
		metrics.ProtocolErrors.WithLabelValues("malformed").Inc()
		c.log.Debug().Err(err).Msg("malformed frame")
		c.TrySend(relay.EventError(relay.ErrUnknownCommand))
		return
	}

	c.gw.router.Dispatch(c.session, ev)
}

func (c *Client) readPump() {
	defer func() {
		c.gw.router.Disconnect(c.session)
		c.gw.requestRemoval(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in read pump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if !c.limiter.allow() {
			c.log.Debug().Msg("rate limit exceeded, discarding frame")
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in write pump")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn().Err(err).Msg("error setting write deadline")
				return
			}
			if !ok {
				// Gateway closed the channel: say goodbye properly.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("error writing close frame")
				}
				return
			}
			// One frame per event keeps the wire format trivially parseable.
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn().Err(err).Msg("error writing frame")
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn().Err(err).Msg("error setting write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Debug().Err(err).Msg("error writing ping")
				}
				return
			}
		}
	}
}
