// Package protocol defines the JSON frames exchanged over a realtime
// connection and the change message published to topics.
package protocol

import (
	"encoding/json"
	"fmt"
)

// FrameType identifies a frame on the wire.
type FrameType string

// Client to server.
const (
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FramePing        FrameType = "ping"
)

// Server to client.
const (
	FramePong         FrameType = "pong"
	FrameConnected    FrameType = "connected"
	FrameSubscribed   FrameType = "subscribed"
	FrameUnsubscribed FrameType = "unsubscribed"
	FrameError        FrameType = "error"
	FrameChange       FrameType = "change"
)

// Frame is the envelope for every message on a realtime connection.
type Frame struct {
	Type    FrameType       `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ChangeMessage is the payload published to a topic for one mutation.
type ChangeMessage struct {
	Event   Operation     `json:"event"`
	Table   string        `json:"table"`
	Payload ChangePayload `json:"payload"`
}

// ChangePayload carries the normalized entity. UPDATE carries New and Old,
// DELETE only Old, INSERT only New.
type ChangePayload struct {
	ID          string     `json:"id,omitempty"`
	EntityType  EntityType `json:"entityType"`
	ParentID    string     `json:"parentId,omitempty"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
	New         Record     `json:"new,omitempty"`
	Old         Record     `json:"old,omitempty"`
}

// Record returns the row image a filter should be evaluated against: Old for
// deletes, New otherwise.
func (m ChangeMessage) Record() Record {
	if m.Event == OperationDelete {
		return m.Payload.Old
	}
	if m.Payload.New != nil {
		return m.Payload.New
	}
	return m.Payload.Old
}

// EntityKey identifies the changed entity across messages, e.g. "cards:42".
func (m ChangeMessage) EntityKey() string {
	id := m.Payload.ID
	if id == "" {
		id = m.Record().String("id")
	}
	return SnakeCase(m.Table) + ":" + id
}

// Subscribe builds a subscribe request.
func Subscribe(channel string) Frame {
	return Frame{Type: FrameSubscribe, Channel: channel}
}

// Unsubscribe builds an unsubscribe request.
func Unsubscribe(channel string) Frame {
	return Frame{Type: FrameUnsubscribe, Channel: channel}
}

// Ping builds a heartbeat probe.
func Ping() Frame {
	return Frame{Type: FramePing}
}

// Error builds an error notification, optionally scoped to a channel.
func Error(channel, message string) Frame {
	return Frame{Type: FrameError, Channel: channel, Message: message}
}

// Change wraps an encoded ChangeMessage for delivery on channel.
func Change(channel string, data []byte) Frame {
	return Frame{Type: FrameChange, Channel: channel, Data: json.RawMessage(data)}
}

// DecodeChange extracts the ChangeMessage carried by a change frame.
func (f Frame) DecodeChange() (ChangeMessage, error) {
	var msg ChangeMessage
	if f.Type != FrameChange {
		return msg, fmt.Errorf("protocol.Frame.DecodeChange: frame type %q", f.Type)
	}
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		return msg, fmt.Errorf("protocol.Frame.DecodeChange: %w", err)
	}
	return msg, nil
}
