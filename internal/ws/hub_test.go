package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dartcam/internal/board"
	"dartcam/internal/pipeline"
	"dartcam/internal/scoring"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/hits"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func TestHubForwardsBusEvents(t *testing.T) {
	hub := NewHub()
	bus := pipeline.NewEventBus()
	detach := hub.Attach(bus)
	defer detach()

	conn := dial(t, hub)

	bus.Publish(pipeline.Event{Type: pipeline.EventHit, Hit: &pipeline.HitEvent{
		Seq: 7, ID: "h7", Game: pipeline.GameTons,
		Hit:   scoring.Hit{Number: 20, Multiplier: 3, Confidence: 0.75},
		Label: "T20", Score: 60,
	}})
	cal := board.Circle(0.5, 0.45, 0.38)
	bus.Publish(pipeline.Event{Type: pipeline.EventStatus, Status: &pipeline.StatusEvent{
		Status: "Aligned", Acquiring: true, Calibration: &cal,
	}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hit HitMessage
	if err := conn.ReadJSON(&hit); err != nil {
		t.Fatalf("read hit: %v", err)
	}
	if hit.Type != TypeHit || hit.Seq != 7 || hit.Label != "T20" || hit.Score != 60 || hit.Game != "tons" {
		t.Errorf("hit = %+v", hit)
	}

	var status StatusMessage
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.Type != TypeStatus || status.Status != "Aligned" || !status.Acquiring {
		t.Errorf("status = %+v", status)
	}
	if status.Board == nil || status.Board.CY != 0.45 {
		t.Errorf("board = %+v", status.Board)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed client still registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewMessage(t *testing.T) {
	if NewMessage(pipeline.Event{Type: pipeline.EventHit}) != nil {
		t.Error("empty hit event produced a message")
	}

	msg := NewMessage(pipeline.Event{Type: pipeline.EventCalibration, Calibration: &pipeline.CalibrationEvent{
		ID: "c1", Calibration: board.Circle(0.5, 0.5, 0.4), Manual: true, Source: "hough",
	}})
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != TypeCalibration || decoded["manual"] != true {
		t.Errorf("decoded = %v", decoded)
	}
	b, ok := decoded["board"].(map[string]any)
	if !ok || b["rx"] != 0.4 {
		t.Errorf("board = %v", decoded["board"])
	}
}
