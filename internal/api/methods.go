/*
JSON-RPC method registration and implementations for the control
surface: authentication plus stream lifecycle and recording control.

Requirements Coverage:
- REQ-API-004: Core method implementations
- REQ-API-006: Role-based method authorization
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/streamvault/streamvault-go/internal/apperrors"
	"github.com/streamvault/streamvault-go/internal/stream"
)

func (s *Server) registerMethods() {
	s.registerMethod("ping", s.methodPing)
	s.registerMethod("authenticate", s.methodAuthenticate)
	s.registerMethod("add_stream", s.methodAddStream)
	s.registerMethod("remove_stream", s.methodRemoveStream)
	s.registerMethod("list_streams", s.methodListStreams)
	s.registerMethod("get_stream_info", s.methodGetStreamInfo)
	s.registerMethod("start_recording", s.methodStartRecording)
	s.registerMethod("stop_recording", s.methodStopRecording)
	s.registerMethod("subscribe_events", s.methodSubscribeEvents)
	s.registerMethod("unsubscribe_events", s.methodUnsubscribeEvents)
	s.registerMethod("trigger_rotation", s.methodTriggerRotation)
}

func (s *Server) methodPing(client *Client, params map[string]interface{}) (interface{}, error) {
	return "pong", nil
}

func (s *Server) methodAuthenticate(client *Client, params map[string]interface{}) (interface{}, error) {
	token, _ := params["token"].(string)
	if token == "" {
		return nil, fmt.Errorf("token parameter is required")
	}
	if s.auth == nil {
		return nil, fmt.Errorf("authentication is not configured")
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	client.Authenticated = true
	client.UserID = claims.UserID
	client.Role = claims.Role
	return map[string]interface{}{
		"authenticated": true,
		"user_id":       claims.UserID,
		"role":          claims.Role,
	}, nil
}

func streamIDParam(params map[string]interface{}) (string, error) {
	id, _ := params["stream_id"].(string)
	if id == "" {
		return "", fmt.Errorf("stream_id parameter is required")
	}
	return id, nil
}

func (s *Server) methodAddStream(client *Client, params map[string]interface{}) (interface{}, error) {
	id, err := streamIDParam(params)
	if err != nil {
		return nil, err
	}
	uri, _ := params["uri"].(string)
	if uri == "" {
		return nil, fmt.Errorf("uri parameter is required")
	}
	recordingEnabled, _ := params["recording_enabled"].(bool)

	cfg := stream.Config{
		ID:               id,
		URI:              uri,
		Enabled:          true,
		RecordingEnabled: recordingEnabled,
	}
	if err := s.service.AddStream(context.Background(), cfg); err != nil {
		return nil, err
	}
	return map[string]interface{}{"stream_id": id, "status": "added"}, nil
}

func (s *Server) methodRemoveStream(client *Client, params map[string]interface{}) (interface{}, error) {
	id, err := streamIDParam(params)
	if err != nil {
		return nil, err
	}
	if err := s.service.RemoveStream(id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"stream_id": id, "status": "removed"}, nil
}

func (s *Server) methodListStreams(client *Client, params map[string]interface{}) (interface{}, error) {
	return s.service.Streams.List(), nil
}

func (s *Server) methodGetStreamInfo(client *Client, params map[string]interface{}) (interface{}, error) {
	id, err := streamIDParam(params)
	if err != nil {
		return nil, err
	}
	info, err := s.service.Streams.GetInfo(id)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Server) methodStartRecording(client *Client, params map[string]interface{}) (interface{}, error) {
	id, err := streamIDParam(params)
	if err != nil {
		return nil, err
	}
	if err := s.service.Streams.StartRecording(id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"stream_id": id, "recording": true}, nil
}

func (s *Server) methodStopRecording(client *Client, params map[string]interface{}) (interface{}, error) {
	id, err := streamIDParam(params)
	if err != nil {
		return nil, err
	}
	if err := s.service.Streams.StopRecording(id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"stream_id": id, "recording": false}, nil
}

func (s *Server) methodSubscribeEvents(client *Client, params map[string]interface{}) (interface{}, error) {
	topics, _ := params["topics"].([]interface{})
	if len(topics) == 0 {
		client.Subscriptions["*"] = true
		return map[string]interface{}{"subscribed": []string{"*"}}, nil
	}
	subscribed := make([]string, 0, len(topics))
	for _, t := range topics {
		topic, ok := t.(string)
		if !ok {
			continue
		}
		client.Subscriptions[topic] = true
		subscribed = append(subscribed, topic)
	}
	return map[string]interface{}{"subscribed": subscribed}, nil
}

func (s *Server) methodUnsubscribeEvents(client *Client, params map[string]interface{}) (interface{}, error) {
	topics, _ := params["topics"].([]interface{})
	if len(topics) == 0 {
		client.Subscriptions = make(map[string]bool)
		return map[string]interface{}{"unsubscribed": "*"}, nil
	}
	for _, t := range topics {
		if topic, ok := t.(string); ok {
			delete(client.Subscriptions, topic)
		}
	}
	return map[string]interface{}{"unsubscribed": topics}, nil
}

func (s *Server) methodTriggerRotation(client *Client, params map[string]interface{}) (interface{}, error) {
	to, _ := params["target_disk"].(string)
	if to == "" {
		return nil, fmt.Errorf("target_disk parameter is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.service.Rotation.Trigger(ctx, to); err != nil {
		return nil, err
	}
	return map[string]interface{}{"target_disk": to, "status": "triggered"}, nil
}

// asRPCError translates an apperrors.Error's Kind into a JSON-RPC error
// code; any other error becomes a plain internal error at the call site.
func asRPCError(err error) (*RPCError, bool) {
	appErr, ok := err.(*apperrors.Error)
	if !ok {
		return nil, false
	}
	code := ErrInternalError
	switch appErr.Kind {
	case apperrors.KindStreamNotFound:
		code = ErrStreamNotFound
	case apperrors.KindConflict, apperrors.KindRecordingError:
		code = ErrRecordingInProgress
	case apperrors.KindStorageError, apperrors.KindRotationError:
		code = ErrStorageUnavailable
	case apperrors.KindConfigError:
		code = ErrInvalidParams
	}
	return NewError(code, appErr.Message, nil), true
}
