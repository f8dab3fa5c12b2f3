package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/atelierhq/atelier/internal/hub"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsSendBuffer      = 64
	wsPongWait        = 45 * time.Second
	wsPingInterval    = 15 * time.Second
	wsWriteWait       = 10 * time.Second
)

var errSendBufferFull = errors.New("gateway: send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// wsConn adapts a gorilla websocket to hub.Conn. A single writer goroutine
// drains the buffered send channel, which keeps per-connection delivery FIFO
// and keeps Send free of network waits.
type wsConn struct {
	id   string
	sock *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSConn(sock *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Send(env hub.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return hub.ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return hub.ErrConnClosed
	default:
		return errSendBufferFull
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.sock.Close() //nolint:errcheck
	})
	return nil
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// handleWebSocket runs the per-connection session lifecycle: register and
// snapshot, relay inbound frames to the other members, deregister on
// disconnect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	canvasID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if canvasID == "" || strings.Contains(canvasID, "/") {
		http.NotFound(w, r)
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(sock)
	go conn.writeLoop()

	logger := s.logger.With("canvas_id", canvasID, "conn_id", conn.ID())
	logger.Debug("session connecting")

	// Joined: the snapshot is unicast to this connection only, then the
	// other members learn about the arrival.
	if snapshot := s.manager.Join(canvasID, conn); snapshot != nil {
		if env, err := hub.NewEnvelope(hub.EventCanvasState, canvasID, snapshot); err == nil {
			if err := conn.Send(env); err != nil {
				logger.Warn("send snapshot", "error", err)
			}
		}
	}
	s.manager.Relay(canvasID, mustNotice(hub.EventUserJoined, canvasID, "A user joined the canvas"), conn)

	s.relayLoop(canvasID, conn, logger)

	// Closed: terminal. The handle is never reused.
	s.manager.Leave(canvasID, conn)
	_ = conn.Close()
	s.manager.PublishEvent(canvasID, hub.EventUserLeft, map[string]string{"message": "A user left the canvas"})
	logger.Debug("session closed")
}

// relayLoop forwards each inbound envelope to the other members of the
// canvas without interpreting its payload. It returns when the transport
// closes or errors.
func (s *Server) relayLoop(canvasID string, conn *wsConn, logger *slog.Logger) {
	conn.sock.SetReadLimit(wsMaxPayloadBytes)
	_ = conn.sock.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	conn.sock.SetPongHandler(func(string) error {
		return conn.sock.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read message", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env hub.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		s.manager.Relay(canvasID, env, conn)
	}
}

// mustNotice builds a presence notice envelope. The payload is a fixed map,
// so marshalling cannot fail.
func mustNotice(eventType, canvasID, message string) hub.Envelope {
	env, _ := hub.NewEnvelope(eventType, canvasID, map[string]string{"message": message})
	return env
}
