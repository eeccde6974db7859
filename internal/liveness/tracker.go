// Package liveness runs the control-channel server that receives periodic
// pings from connected clients and refreshes page recency state, plus the
// port-discovery middleware clients use to find it.
package liveness

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	oerrors "git.home.luguber.info/inful/ondemand/internal/errors"
	"git.home.luguber.info/inful/ondemand/internal/logfields"
	"git.home.luguber.info/inful/ondemand/internal/metrics"
	"git.home.luguber.info/inful/ondemand/internal/registry"
)

// PingMessage is the client -> server wire format.
type PingMessage struct {
	Page string `json:"page"`
}

// invalidResponse is sent for pings referencing a page the server no longer
// tracks (typically after eviction or a server restart).
type invalidResponse struct {
	Invalid bool `json:"invalid"`
}

// Tracker is the persistent control-channel server. Each connected client
// sends JSON pings naming the page it currently has open; only confirmed,
// fully built pages refresh the recency state.
type Tracker struct {
	log      *slog.Logger
	reg      *registry.Registry
	rec      metrics.Recorder
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	srv    *http.Server
	port   int
	closed bool
}

func NewTracker(log *slog.Logger, reg *registry.Registry, rec metrics.Recorder) *Tracker {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Tracker{
		log: log,
		reg: reg,
		rec: rec,
		upgrader: websocket.Upgrader{
			// The dev server answers pings from whatever origin the
			// application is served on.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Start binds the control-channel server on an ephemeral loopback port.
func (t *Tracker) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return oerrors.ServerLifecycleError(err, "control channel failed to bind")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", t.handleConn)

	t.mu.Lock()
	t.port = ln.Addr().(*net.TCPAddr).Port
	t.srv = &http.Server{Handler: mux}
	srv := t.srv
	t.mu.Unlock()

	t.log.Info("control channel listening", logfields.Port(t.Port()))

	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			t.log.Error("control channel server stopped", logfields.Error(serveErr))
		}
	}()
	return nil
}

// Port returns the bound control-channel port, 0 before Start.
func (t *Tracker) Port() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// Close shuts the server down and resolves only after the close completes.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	srv := t.srv
	conns := make([]*websocket.Conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[*websocket.Conn]struct{})
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	if srv == nil {
		return nil
	}
	if err := srv.Close(); err != nil {
		return oerrors.ServerLifecycleError(err, "control channel failed to close")
	}
	return nil
}

func (t *Tracker) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Debug("control channel upgrade failed", logfields.Error(err))
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conns[conn] = struct{}{}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, payload, readErr := conn.ReadMessage()
		if readErr != nil {
			return
		}
		t.handlePing(conn, payload)
	}
}

// handlePing processes one inbound control-channel message. A malformed
// message fails that message only, never the connection.
func (t *Tracker) handlePing(conn *websocket.Conn, payload []byte) {
	var ping PingMessage
	if err := json.Unmarshal(payload, &ping); err != nil {
		perr := oerrors.ProtocolError(err, "malformed ping message")
		t.log.Warn("control channel message dropped", logfields.Error(perr))
		return
	}
	if ping.Page == "" {
		t.log.Warn("control channel message dropped", logfields.Error(oerrors.ProtocolError(nil, "ping missing page field")))
		return
	}

	page := registry.NormalizePageID(ping.Page)
	switch t.reg.Touch(page, time.Now()) {
	case registry.TouchUnknown:
		t.rec.IncInvalidPings()
		if err := conn.WriteJSON(invalidResponse{Invalid: true}); err != nil {
			t.log.Debug("invalid-ping response write failed", logfields.Error(err))
		}
	case registry.TouchIgnored:
		// Mid-build pages are tracked by the build cycle itself.
	case registry.TouchRecorded:
		t.rec.IncPings()
		t.log.Debug("liveness ping recorded", logfields.Page(page))
	}
}
