// Package eventbus implements EventBus: an in-process channel of engine
// events fanned out to WebSocket subscribers over an HTTP server (spec
// §4.16).
//
// Grounded on internal/dashboard/risk_dashboard.go's WebSocket broadcast
// mechanism (gorilla/mux route + gorilla/websocket upgrade + client
// registry), narrowed to a generic JSON event envelope and stripped of
// its HTML dashboard template, which is out of scope here.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event is one engine occurrence pushed to subscribers: a leg opened or
// closed, a guard rejection, a stop-loss breach, a flip, a reconciliation
// divergence.
type Event struct {
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// Bus holds the in-process publish channel and the WebSocket fan-out
// server.
type Bus struct {
	publish  chan Event
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool

	server *http.Server

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Bus listening on addr, with a buffered publish channel
// of the given size.
func New(addr string, bufferSize int) *Bus {
	b := &Bus{
		publish:  make(chan Event, bufferSize),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]bool),
		stop:     make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", b.handleWebSocket).Methods("GET")
	r.HandleFunc("/healthz", b.handleHealth).Methods("GET")

	b.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return b
}

// Start begins the broadcast loop and the HTTP server.
func (b *Bus) Start() {
	b.wg.Add(1)
	go b.broadcastLoop()

	go func() {
		log.Info().Str("address", b.server.Addr).Msg("eventbus: starting websocket server")
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("eventbus: server failed")
		}
	}()
}

// Publish enqueues an event for broadcast, dropping it if the buffer is
// full rather than blocking the caller (engine correctness never waits
// on a dashboard subscriber).
func (b *Bus) Publish(eventType string, data interface{}) {
	select {
	case b.publish <- Event{Type: eventType, At: time.Now(), Data: data}:
	default:
		log.Warn().Str("event_type", eventType).Msg("eventbus: publish buffer full, dropping event")
	}
}

func (b *Bus) broadcastLoop() {
	defer b.wg.Done()
	for {
		select {
		case evt := <-b.publish:
			b.broadcastToClients(evt)
		case <-b.stop:
			return
		}
	}
}

func (b *Bus) broadcastToClients(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Msg("eventbus: failed to marshal event")
		return
	}

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	for client := range b.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(b.clients, client)
		}
	}
}

func (b *Bus) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("eventbus: failed to upgrade websocket connection")
		return
	}

	b.clientsMu.Lock()
	b.clients[conn] = true
	b.clientsMu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.clientsMu.Lock()
	delete(b.clients, conn)
	b.clientsMu.Unlock()
	conn.Close()
}

func (b *Bus) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// Stop shuts down the HTTP server and closes all client connections.
func (b *Bus) Stop(ctx context.Context) error {
	close(b.stop)
	b.wg.Wait()

	b.clientsMu.Lock()
	for client := range b.clients {
		client.Close()
	}
	b.clients = make(map[*websocket.Conn]bool)
	b.clientsMu.Unlock()

	return b.server.Shutdown(ctx)
}
