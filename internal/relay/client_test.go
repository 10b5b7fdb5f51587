package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hintnav/go-hint/internal/geo"
	"github.com/hintnav/go-hint/internal/position"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ReconnectBackoff <= 0 {
		t.Error("ReconnectBackoff should be positive")
	}
	if cfg.MaxBackoff <= 0 {
		t.Error("MaxBackoff should be positive")
	}
	if cfg.PingInterval <= 0 {
		t.Error("PingInterval should be positive")
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(DefaultConfig(), nil)

	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.IsConnected() {
		t.Error("Client should not be connected initially")
	}
	if client.Name() != "relay" {
		t.Errorf("Name() = %q", client.Name())
	}
}

func TestGetFixBeforeAnyMessage(t *testing.T) {
	client := NewClient(DefaultConfig(), nil)

	_, err := client.GetFix(context.Background())
	if !errors.Is(err, position.ErrNoFix) {
		t.Errorf("expected ErrNoFix, got %v", err)
	}
}

func TestSendFixNotConnected(t *testing.T) {
	client := NewClient(DefaultConfig(), nil)

	err := client.SendFix(position.Fix{
		Coordinate: geo.Coordinate{Lat: 52.52, Lon: 13.4},
		CapturedAt: time.Now(),
	})
	if err == nil {
		t.Error("SendFix should return error when not connected")
	}
}

func TestFixMessageRoundTrip(t *testing.T) {
	now := time.Now()
	fix := position.Fix{
		Coordinate:     geo.Coordinate{Lat: 52.52, Lon: 13.405},
		CapturedAt:     now,
		AccuracyMeters: 8.5,
	}

	msg, err := NewFixMessage(fix)
	if err != nil {
		t.Fatalf("NewFixMessage failed: %v", err)
	}

	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if parsed.Type != TypeFix {
		t.Errorf("type = %q, want fix", parsed.Type)
	}

	got, err := parsed.GetFix()
	if err != nil {
		t.Fatalf("GetFix failed: %v", err)
	}
	if got.Coordinate != fix.Coordinate {
		t.Errorf("coordinate = %v, want %v", got.Coordinate, fix.Coordinate)
	}
	if got.AccuracyMeters != fix.AccuracyMeters {
		t.Errorf("accuracy = %v, want %v", got.AccuracyMeters, fix.AccuracyMeters)
	}
	if got.CapturedAt.UnixMilli() != now.UnixMilli() {
		t.Errorf("captured at = %v, want %v", got.CapturedAt, now)
	}
}

func TestFixMessageRejectsOutOfRange(t *testing.T) {
	msg, err := NewMessage(TypeFix, FixData{Lat: 91.0, Lon: 0, CapturedAtMs: time.Now().UnixMilli()})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if _, err := msg.GetFix(); err == nil {
		t.Error("expected error for latitude out of range")
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestConnectAndSend(t *testing.T) {
	var messagesReceived atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("Upgrade error: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			messagesReceived.Add(1)

			var parsed Message
			if err := json.Unmarshal(msg, &parsed); err != nil {
				t.Logf("Parse error: %v", err)
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	cfg := DefaultConfig()
	cfg.URL = wsURL
	cfg.ReconnectBackoff = 100 * time.Millisecond

	client := NewClient(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Wait for connection
	time.Sleep(200 * time.Millisecond)

	if !client.IsConnected() {
		t.Error("Client should be connected")
	}
	if !client.Healthy() {
		t.Error("Client should report healthy when connected")
	}

	err := client.SendFix(position.Fix{
		Coordinate: geo.Coordinate{Lat: 52.52, Lon: 13.4},
		CapturedAt: time.Now(),
	})
	if err != nil {
		t.Errorf("SendFix() error = %v", err)
	}

	err = client.SendStatus("navigator", "running", map[string]string{"session": "abc"})
	if err != nil {
		t.Errorf("SendStatus() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if messagesReceived.Load() < 2 {
		t.Errorf("Server should have received at least 2 messages, got %d", messagesReceived.Load())
	}

	stats := client.GetStats()
	if stats.MessagesSent < 2 {
		t.Errorf("MessagesSent should be at least 2, got %d", stats.MessagesSent)
	}

	client.Close()

	if client.IsConnected() {
		t.Error("Client should not be connected after Close()")
	}
}

func TestReceiveFix(t *testing.T) {
	var callbackFired atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		msg, _ := NewFixMessage(position.Fix{
			Coordinate: geo.Coordinate{Lat: 40.7128, Lon: -74.006},
			CapturedAt: time.Now(),
		})
		data, _ := msg.Bytes()
		conn.WriteMessage(websocket.TextMessage, data)

		// Keep connection alive
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	cfg := DefaultConfig()
	cfg.URL = wsURL

	client := NewClient(cfg, nil)
	client.OnFix(func(fix position.Fix) {
		if fix.Coordinate.Lat == 40.7128 {
			callbackFired.Store(true)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.Connect(ctx)

	time.Sleep(300 * time.Millisecond)

	if !callbackFired.Load() {
		t.Error("Fix callback should have been called")
	}

	// The same fix must now come back through the Source interface
	fix, err := client.GetFix(context.Background())
	if err != nil {
		t.Fatalf("GetFix failed: %v", err)
	}
	if fix.Coordinate.Lon != -74.006 {
		t.Errorf("unexpected fix %v", fix.Coordinate)
	}
	if client.GetStats().FixesReceived != 1 {
		t.Errorf("FixesReceived = %d, want 1", client.GetStats().FixesReceived)
	}

	client.Close()
}

func TestReconnect(t *testing.T) {
	var connectionCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connectionCount.Add(1)

		// Close after brief delay
		time.Sleep(50 * time.Millisecond)
		conn.Close()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	cfg := DefaultConfig()
	cfg.URL = wsURL
	cfg.ReconnectBackoff = 50 * time.Millisecond
	cfg.MaxBackoff = 100 * time.Millisecond

	client := NewClient(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	client.Connect(ctx)

	time.Sleep(400 * time.Millisecond)

	if connectionCount.Load() < 2 {
		t.Errorf("Should have reconnected at least once, got %d connections", connectionCount.Load())
	}

	client.Close()
}

func TestCallbacksNotSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		msg, _ := NewStatusMessage("sender", "started", nil)
		data, _ := msg.Bytes()
		conn.WriteMessage(websocket.TextMessage, data)

		// Keep alive
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	cfg := DefaultConfig()
	cfg.URL = wsURL

	client := NewClient(cfg, nil)
	// No callbacks set

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.Connect(ctx)
	time.Sleep(200 * time.Millisecond)

	// Should not panic when receiving messages with no callbacks
	stats := client.GetStats()
	if stats.MessagesReceived < 1 {
		t.Error("Should have received at least 1 message")
	}

	client.Close()
}
