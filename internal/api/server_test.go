package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/streamvault-go/internal/logging"
	"github.com/streamvault/streamvault-go/internal/stream"
)

func recvResponse(t *testing.T, client *Client) Response {
	t.Helper()
	select {
	case raw := <-client.send:
		var resp Response
		require.NoError(t, json.Unmarshal(raw, &resp))
		return resp
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
		return Response{}
	}
}

func TestHandleMessageUnknownMethod(t *testing.T) {
	s := testServer(t)
	client := newClient()

	s.handleMessage(client, []byte(`{"jsonrpc":"2.0","id":1,"method":"does_not_exist"}`))

	resp := recvResponse(t, client)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrMethodNotFound, resp.Error.Code)
}

func TestHandleMessageMalformedRequest(t *testing.T) {
	s := testServer(t)
	client := newClient()

	s.handleMessage(client, []byte(`not json`))

	resp := recvResponse(t, client)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidParams, resp.Error.Code)
}

func TestHandleMessageDispatchesPing(t *testing.T) {
	s := testServer(t)
	client := newClient()

	s.handleMessage(client, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))

	resp := recvResponse(t, client)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "pong", resp.Result)
}

func TestHandleMessageRequiresAuthenticationWhenEnabled(t *testing.T) {
	s := testServer(t)
	s.cfg.AuthEnabled = true
	auth, err := NewJWTHandler("test-secret", logging.NewLogger("test"))
	require.NoError(t, err)
	s.auth = auth

	client := newClient()
	client.Authenticated = false

	s.handleMessage(client, []byte(`{"jsonrpc":"2.0","id":1,"method":"list_streams"}`))

	resp := recvResponse(t, client)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrAuthenticationRequired, resp.Error.Code)
}

func TestHandleMessageAuthenticateSucceeds(t *testing.T) {
	s := testServer(t)
	s.cfg.AuthEnabled = true
	auth, err := NewJWTHandler("test-secret", logging.NewLogger("test"))
	require.NoError(t, err)
	s.auth = auth

	token, err := auth.GenerateToken("alice", "operator", time.Hour)
	require.NoError(t, err)

	client := newClient()
	client.Authenticated = false
	client.Role = ""

	s.handleMessage(client, []byte(`{"jsonrpc":"2.0","id":1,"method":"authenticate","params":{"token":"`+token+`"}}`))

	resp := recvResponse(t, client)
	assert.Nil(t, resp.Error)
	assert.True(t, client.Authenticated)
	assert.Equal(t, "operator", client.Role)
}

func TestHandleMessageEnforcesPermissions(t *testing.T) {
	s := testServer(t)
	s.cfg.AuthEnabled = true
	client := newClient()
	client.Authenticated = true
	client.Role = "viewer"

	s.handleMessage(client, []byte(`{"jsonrpc":"2.0","id":1,"method":"add_stream","params":{"stream_id":"cam1","uri":"rtsp://x"}}`))

	resp := recvResponse(t, client)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInsufficientPermissions, resp.Error.Code)
}

func TestBroadcastEventRespectsSubscriptions(t *testing.T) {
	s := testServer(t)
	subscribed := newClient()
	subscribed.Subscriptions["stream_added"] = true
	unsubscribed := newClient()
	unsubscribed.ID = "client-2"

	s.clientsMu.Lock()
	s.clients[subscribed.ID] = subscribed
	s.clients[unsubscribed.ID] = unsubscribed
	s.clientsMu.Unlock()

	s.broadcastEvent(stream.Event{Kind: stream.EventStreamAdded, StreamID: "cam1"})

	select {
	case <-subscribed.send:
	case <-time.After(time.Second):
		t.Fatal("subscribed client did not receive event")
	}

	select {
	case <-unsubscribed.send:
		t.Fatal("unsubscribed client should not receive event")
	case <-time.After(50 * time.Millisecond):
	}
}
