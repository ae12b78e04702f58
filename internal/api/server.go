/*
WebSocket JSON-RPC 2.0 server for the stream control surface.

Provides a single WebSocket endpoint speaking JSON-RPC 2.0 for
request/response method calls, plus JSON-RPC notifications pushed to
subscribed clients as stream lifecycle events occur.

Requirements Coverage:
- REQ-API-001: WebSocket JSON-RPC 2.0 API endpoint
- REQ-API-002: JSON-RPC 2.0 protocol implementation
- REQ-API-003: Request/response message handling
- REQ-API-007: Event subscription and delivery
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamvault/streamvault-go/internal/app"
	"github.com/streamvault/streamvault-go/internal/common"
	"github.com/streamvault/streamvault-go/internal/config"
	"github.com/streamvault/streamvault-go/internal/constants"
	"github.com/streamvault/streamvault-go/internal/logging"
	"github.com/streamvault/streamvault-go/internal/stream"
)

// Server is the WebSocket JSON-RPC control surface in front of one
// app.Service.
type Server struct {
	cfg     *config.APIConfig
	service *app.Service
	logger  *logging.Logger
	auth    *JWTHandler

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	running  int32

	clientsMu sync.RWMutex
	clients   map[string]*Client

	methodsMu sync.RWMutex
	methods   map[string]MethodHandler

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer constructs a Server bound to service. auth may be nil when
// cfg.AuthEnabled is false.
func NewServer(cfg *config.APIConfig, service *app.Service, auth *JWTHandler, logger *logging.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		auth:    auth,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.WebSocketReadBufferSize,
			WriteBufferSize: constants.WebSocketWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*Client),
		methods:  make(map[string]MethodHandler),
		stopChan: make(chan struct{}),
	}
	s.registerMethods()
	return s
}

func (s *Server) registerMethod(name string, handler MethodHandler) {
	s.methodsMu.Lock()
	defer s.methodsMu.Unlock()
	s.methods[name] = handler
}

// Start brings the HTTP/WebSocket listener and event broadcast loop up.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return fmt.Errorf("api server is already running")
	}

	mux := http.NewServeMux()
	path := s.cfg.WebSocketPath
	if path == "" {
		path = constants.WebSocketDefaultPath
	}
	mux.HandleFunc(path, s.handleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("api server failed")
		}
	}()

	s.wg.Add(1)
	go s.broadcastLoop(ctx)

	s.logger.WithField("addr", addr).Info("api server started")
	return nil
}

// Stop implements common.Stoppable.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return fmt.Errorf("api server is not running")
	}

	s.stopOnce.Do(func() { close(s.stopChan) })

	s.clientsMu.Lock()
	for _, c := range s.clients {
		close(c.send)
	}
	s.clients = make(map[string]*Client)
	s.clientsMu.Unlock()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Error("error shutting down api http server")
		}
	}
	s.wg.Wait()
	s.logger.Info("api server stopped")
	return nil
}

var _ common.Stoppable = (*Server)(nil)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:            uuid.NewString(),
		Role:          "viewer",
		ConnectedAt:   time.Now(),
		Subscriptions: make(map[string]bool),
		send:          make(chan []byte, 256),
		conn:          conn,
	}

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.logger.WithField("client_id", client.ID).Info("client connected")

	s.wg.Add(2)
	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer s.wg.Done()
	defer s.disconnect(client)

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(client, raw)
	}
}

func (s *Server) writePump(client *Client) {
	defer s.wg.Done()
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketClientCleanupWindow))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) disconnect(client *Client) {
	s.clientsMu.Lock()
	if _, ok := s.clients[client.ID]; ok {
		delete(s.clients, client.ID)
		close(client.send)
	}
	s.clientsMu.Unlock()
	client.conn.Close()
	s.logger.WithField("client_id", client.ID).Info("client disconnected")
}

func (s *Server) handleMessage(client *Client, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.send(client, &Response{JSONRPC: "2.0", Error: NewError(ErrInvalidParams, "malformed request", err.Error())})
		return
	}

	if s.auth != nil {
		if err := s.auth.CheckRateLimit(client.ID); err != nil {
			s.send(client, &Response{JSONRPC: "2.0", ID: req.ID, Error: NewError(ErrRateLimitExceeded, "", nil)})
			return
		}
	}

	if s.cfg.AuthEnabled && req.Method != "authenticate" && req.Method != "ping" && !client.Authenticated {
		s.send(client, &Response{JSONRPC: "2.0", ID: req.ID, Error: NewError(ErrAuthenticationRequired, "", nil)})
		return
	}

	if s.cfg.AuthEnabled && client.Authenticated && !hasPermission(client.Role, req.Method) {
		s.send(client, &Response{JSONRPC: "2.0", ID: req.ID, Error: NewError(ErrInsufficientPermissions, "", nil)})
		return
	}

	s.methodsMu.RLock()
	handler, ok := s.methods[req.Method]
	s.methodsMu.RUnlock()
	if !ok {
		s.send(client, &Response{JSONRPC: "2.0", ID: req.ID, Error: NewError(ErrMethodNotFound, "", req.Method)})
		return
	}

	result, err := handler(client, req.Params)
	if err != nil {
		s.send(client, &Response{JSONRPC: "2.0", ID: req.ID, Error: s.errorToRPC(err)})
		return
	}
	if req.ID != nil {
		s.send(client, &Response{JSONRPC: "2.0", ID: req.ID, Result: result})
	}
}

func (s *Server) send(client *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
		s.logger.WithField("client_id", client.ID).Warn("client send buffer full, dropping message")
	}
}

// broadcastLoop relays stream manager lifecycle events to every
// subscribed client as JSON-RPC notifications.
func (s *Server) broadcastLoop(ctx context.Context) {
	defer s.wg.Done()
	events := s.service.Streams.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.broadcastEvent(ev)
		}
	}
}

func (s *Server) broadcastEvent(ev stream.Event) {
	note := Notification{
		JSONRPC: "2.0",
		Method:  "event." + string(ev.Kind),
		Params: map[string]interface{}{
			"stream_id": ev.StreamID,
			"data":      ev.Data,
			"time":      time.Now().Format(time.RFC3339),
		},
	}
	data, err := json.Marshal(note)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		if !c.Subscriptions[string(ev.Kind)] && !c.Subscriptions["*"] {
			continue
		}
		select {
		case c.send <- data:
		default:
			s.logger.WithField("client_id", c.ID).Warn("event dropped: client send buffer full")
		}
	}
}

func (s *Server) errorToRPC(err error) *RPCError {
	if apiErr, ok := asRPCError(err); ok {
		return apiErr
	}
	return NewError(ErrInternalError, err.Error(), nil)
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
