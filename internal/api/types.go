/*
WebSocket JSON-RPC 2.0 types and structures.

Provides JSON-RPC 2.0 request, response, and notification structures
for the stream control surface.

Requirements Coverage:
- REQ-API-001: WebSocket JSON-RPC 2.0 API endpoint
- REQ-API-002: JSON-RPC 2.0 protocol implementation
- REQ-API-003: Request/response message handling
*/
package api

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamvault/streamvault-go/internal/constants"
)

// JSON-RPC 2.0 error codes, re-exported from internal/constants so
// this package and its tests share one source of truth with any other
// component that needs to recognize these codes.
const (
	ErrAuthenticationRequired  = constants.JSONRPCAuthenticationRequired
	ErrRateLimitExceeded       = constants.JSONRPCRateLimitExceeded
	ErrInsufficientPermissions = constants.JSONRPCInsufficientPermissions
	ErrStreamNotFound          = constants.JSONRPCStreamNotFound
	ErrRecordingInProgress     = constants.JSONRPCRecordingInProgress
	ErrStorageUnavailable      = constants.JSONRPCStorageUnavailable
	ErrMethodNotFound          = constants.JSONRPCMethodNotFound
	ErrInvalidParams           = constants.JSONRPCInvalidParams
	ErrInternalError           = constants.JSONRPCInternalError
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	ID      interface{}            `json:"id,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewError builds an RPCError, defaulting Message from
// constants.GetAPIErrorMessage when msg is empty.
func NewError(code int, msg string, data interface{}) *RPCError {
	if msg == "" {
		msg = constants.GetAPIErrorMessage(code)
	}
	return &RPCError{Code: code, Message: msg, Data: data}
}

// Notification is a JSON-RPC 2.0 notification (no ID, no response
// expected) used to push stream events to subscribed clients.
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Client is a connected WebSocket client.
type Client struct {
	ID            string
	Authenticated bool
	UserID        string
	Role          string
	ConnectedAt   time.Time
	Subscriptions map[string]bool
	send          chan []byte
	conn          *websocket.Conn
}

// MethodHandler is the signature every registered JSON-RPC method
// implements.
type MethodHandler func(client *Client, params map[string]interface{}) (interface{}, error)
