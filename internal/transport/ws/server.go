// Package ws serves the chat stream over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
	"github.com/xiaot623/gogo/ragrouter/internal/service"
)

// Options tune the connection lifecycle.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

func (o *Options) setDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 65536
	}
}

// Server handles WebSocket connections. Each text frame a client sends is a
// chat request; every event of the answer goes back as one text frame.
type Server struct {
	service  *service.Service
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a new WebSocket server.
func NewServer(svc *service.Service, opts Options) *Server {
	opts.setDefaults()
	return &Server{
		service: svc,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS and key-auth middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: slog.Default().With("component", "ws"),
	}
}

// inbound is one decoded client frame. A frame that failed to decode carries
// err and is answered with a single error event in its turn.
type inbound struct {
	req domain.ChatRequest
	err error
}

// connection is one client socket. readPump owns requests, processLoop owns
// send, writePump owns the socket writes.
type connection struct {
	ws       *websocket.Conn
	send     chan []byte
	requests chan inbound
	ctx      context.Context
	cancel   context.CancelFunc
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
// GET /v1/chat/ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return nil
	}
	ws.SetReadLimit(s.opts.MaxMessageSize)

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	conn := &connection{
		ws:       ws,
		send:     make(chan []byte, 256),
		requests: make(chan inbound, 8),
		ctx:      ctx,
		cancel:   cancel,
	}

	go s.writePump(conn)
	go s.processLoop(conn)
	s.readPump(conn)
	return nil
}

// readPump reads requests from the connection until it fails or closes.
func (s *Server) readPump(conn *connection) {
	defer func() {
		conn.cancel()
		close(conn.requests)
	}()

	conn.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		conn.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		req, err := decodeRequest(data)
		select {
		case conn.requests <- inbound{req: req, err: err}:
		case <-conn.ctx.Done():
			return
		}
	}
}

// processLoop answers frames one at a time, in arrival order, so the events
// of one turn never interleave with another's.
func (s *Server) processLoop(conn *connection) {
	defer close(conn.send)

	for in := range conn.requests {
		if in.err != nil {
			if err := s.enqueue(conn, domain.ErrorEvent(in.err.Error())); err != nil {
				return
			}
			continue
		}
		emit := func(e domain.StreamEvent) error {
			return s.enqueue(conn, e)
		}
		if _, err := s.service.ProcessMessage(conn.ctx, in.req, emit); err != nil {
			s.logger.Debug("websocket chat turn failed", "error", err)
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (s *Server) writePump(conn *connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", "error", err)
				conn.cancel()
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.cancel()
				return
			}
		}
	}
}

// enqueue hands one event frame to the writer. It fails once the connection
// is gone, which stops the running turn.
func (s *Server) enqueue(conn *connection, e domain.StreamEvent) error {
	data, err := e.MarshalJSON()
	if err != nil {
		return err
	}
	select {
	case conn.send <- data:
		return nil
	case <-conn.ctx.Done():
		return conn.ctx.Err()
	}
}

func decodeRequest(data []byte) (domain.ChatRequest, error) {
	var req domain.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, domain.NewValidationError("invalid JSON message", err)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}
