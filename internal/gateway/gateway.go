// Package gateway coordinates client registration, outbound delivery, and
// connection cleanup via the Gateway type.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relayhub/chatrelay/internal/config"
	"github.com/relayhub/chatrelay/internal/relay"
)

// Gateway tracks all live WebSocket connections and bridges them to the relay
// router. Registration and unregistration are funneled through channels into
// the Run loop; delivery goes the other way through per-client buffered send
// channels.
type Gateway struct {
	router *relay.Router
	cfg    *config.Config
	log    zerolog.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	upgrader websocket.Upgrader
	origins  *originPolicy
}

// New creates a gateway bound to the given router and configuration. Call Run
// in its own goroutine before serving the /ws endpoint.
func New(router *relay.Router, cfg *config.Config, log zerolog.Logger) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &Gateway{
		router:     router,
		cfg:        cfg,
		log:        log.With().Str("component", "gateway").Logger(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		origins:    newOriginPolicy(cfg.AllowedOrigins, log),
	}
	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     gw.origins.check,
	}
	return gw
}

// Run is the gateway's main loop, handling client registration and
// unregistration until Shutdown. It should run in a dedicated goroutine.
func (gw *Gateway) Run() {
	defer close(gw.done)

	for {
		select {
		case <-gw.ctx.Done():
			gw.closeAllClients()
			return

		case client := <-gw.register:
			gw.mu.Lock()
			gw.clients[client] = true
			count := len(gw.clients)
			gw.mu.Unlock()
			gw.log.Debug().Str("addr", client.addr).Int("connections", count).Msg("connection registered")

			gw.wg.Add(2)
			go func() {
				defer gw.wg.Done()
				client.writePump()
			}()
			go func() {
				defer gw.wg.Done()
				client.readPump()
			}()

		case client := <-gw.unregister:
			gw.mu.Lock()
			if _, ok := gw.clients[client]; ok {
				delete(gw.clients, client)
				client.closed = true
				count := len(gw.clients)
				gw.mu.Unlock()
				// Closing the send channel lets the write pump drain any
				// buffered events, send a close frame, and exit.
				close(client.send)
				gw.log.Debug().Str("addr", client.addr).Int("connections", count).Msg("connection unregistered")
			} else {
				gw.mu.Unlock()
			}
		}
	}
}

// trySend queues raw bytes for one client without blocking. It reports false
// when the client is gone or its buffer is full; the lock spans the whole
// check-and-send so unregistration cannot close the channel in between.
func (gw *Gateway) trySend(client *Client, payload []byte) bool {
	gw.mu.RLock()
	defer gw.mu.RUnlock()

	if _, ok := gw.clients[client]; !ok || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// requestRemoval asks the Run loop to drop a client, without blocking the
// caller. Redundant requests for an already-removed client are ignored by the
// loop.
func (gw *Gateway) requestRemoval(client *Client) {
	go func() {
		select {
		case gw.unregister <- client:
		case <-gw.ctx.Done():
		}
	}()
}

// closeAllClients tears down every remaining connection during shutdown.
func (gw *Gateway) closeAllClients() {
	gw.mu.Lock()
	clients := make([]*Client, 0, len(gw.clients))
	for client := range gw.clients {
		clients = append(clients, client)
	}
	gw.mu.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				gw.log.Warn().Err(err).Str("addr", client.addr).Msg("error closing client connection")
			}
		}
	}

	gw.log.Info().Int("connections", len(clients)).Msg("closed all client connections")
}

// Shutdown stops the Run loop, closes every connection, and waits for all
// pump goroutines to finish or the timeout to pass.
func (gw *Gateway) Shutdown(timeout time.Duration) error {
	gw.log.Info().Msg("shutting down gateway")
	gw.cancel()
	<-gw.done

	finished := make(chan struct{})
	go func() {
		gw.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		gw.log.Info().Msg("gateway shutdown complete")
		return nil
	case <-time.After(timeout):
		gw.log.Warn().Msg("gateway shutdown timed out")
		return context.DeadlineExceeded
	}
}

// HandleWebSocket upgrades an HTTP request to a WebSocket connection and
// registers the resulting client.
func (gw *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn, gw, r.RemoteAddr)
	gw.register <- client
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
