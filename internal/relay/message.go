// Package relay connects to the location relay over WebSocket. A sender
// publishes GPS fixes to the relay; a receiver consumes them and serves
// the latest one as a position source.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hintnav/go-hint/internal/geo"
	"github.com/hintnav/go-hint/internal/position"
)

// MessageType identifies the type of relay message
type MessageType string

const (
	TypeFix    MessageType = "fix"    // GPS fix update
	TypeStatus MessageType = "status" // Component status announcement
	TypePing   MessageType = "ping"
	TypePong   MessageType = "pong"
)

// Message is the base wrapper for all relay messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// FixData carries one GPS fix over the wire
type FixData struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	AccuracyMeters float64 `json:"accuracy_m,omitempty"`
	CapturedAtMs   int64   `json:"captured_at_ms"`
}

// NewFixMessage creates a fix message from a position fix
func NewFixMessage(fix position.Fix) (*Message, error) {
	return NewMessage(TypeFix, FixData{
		Lat:            fix.Coordinate.Lat,
		Lon:            fix.Coordinate.Lon,
		AccuracyMeters: fix.AccuracyMeters,
		CapturedAtMs:   fix.CapturedAt.UnixMilli(),
	})
}

// GetFix extracts a position fix from a message
func (m *Message) GetFix() (position.Fix, error) {
	var data FixData
	if err := m.ParseData(&data); err != nil {
		return position.Fix{}, err
	}

	fix := position.Fix{
		Coordinate:     geo.Coordinate{Lat: data.Lat, Lon: data.Lon},
		AccuracyMeters: data.AccuracyMeters,
	}
	if data.CapturedAtMs > 0 {
		fix.CapturedAt = time.UnixMilli(data.CapturedAtMs)
	}

	if !fix.Coordinate.Valid() {
		return position.Fix{}, fmt.Errorf("fix out of range: %s", fix.Coordinate)
	}
	return fix, nil
}

// StatusData announces a component state change to the relay
type StatusData struct {
	Component string            `json:"component"`
	State     string            `json:"state"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewStatusMessage creates a status message
func NewStatusMessage(component, state string, details map[string]string) (*Message, error) {
	return NewMessage(TypeStatus, StatusData{
		Component: component,
		State:     state,
		Details:   details,
	})
}

// GetStatus extracts status data from a message
func (m *Message) GetStatus() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
