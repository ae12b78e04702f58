// Package constants provides shared constants for the stream control
// surface and its tests.
//
// This package centralizes JSON-RPC error codes, WebSocket server
// defaults, and status string values so implementation and test code
// never hand-maintain two copies of the same magic numbers.
//
// Usage Pattern:
//   - Import constants: import "github.com/streamvault/streamvault-go/internal/constants"
//   - Use error codes: constants.JSONRPCStreamNotFound
//   - Use timeouts: constants.WebSocketPingInterval
//
// Requirements Coverage:
//   - REQ-API-001: JSON-RPC 2.0 protocol constants
//   - REQ-API-002: Standardized error codes
//   - REQ-TEST-001: Shared test constants
package constants
