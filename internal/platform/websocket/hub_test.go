package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newClient(id string, topics ...string) *Client {
	return &Client{
		ID:     id,
		Topics: topics,
		Send:   make(chan []byte, 256),
	}
}

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Register(newClient("client-1", TopicExtractions))

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(TopicExtractions) != 1 {
		t.Fatalf("expected 1 client on extractions, got %d", hub.TopicCount(TopicExtractions))
	}
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("client-2", InstanceTopic("abc"))

	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.TopicCount(InstanceTopic("abc")) != 0 {
		t.Fatalf("expected 0 clients on instance topic, got %d", hub.TopicCount(InstanceTopic("abc")))
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed")
	}

	// A second unregister is a no-op.
	hub.Unregister(client)
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	subscribed := newClient("sub", TopicExtractions)
	other := newClient("other", InstanceTopic("zzz"))
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast(TopicExtractions, Event{
		Type:         "extraction.created",
		Topic:        TopicExtractions,
		ExtractionID: "e-1",
		InstanceID:   "i-1",
		Timestamp:    time.Now(),
	})

	select {
	case msg := <-subscribed.Send:
		var got Event
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if got.ExtractionID != "e-1" || got.InstanceID != "i-1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribed client did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("client on another topic should not receive event")
	default:
	}
}

func TestHub_BroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{TopicExtractions}, Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Broadcast(TopicExtractions, Event{Type: "a"})
	hub.Broadcast(TopicExtractions, Event{Type: "b"})

	if len(client.Send) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(client.Send))
	}
}

func TestHub_BroadcastToEmptyTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Broadcast("nobody", Event{Type: "x"})
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("dyn")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{TopicExtractions, InstanceTopic("1"), TopicExtractions}})
	if hub.TopicCount(TopicExtractions) != 1 || hub.TopicCount(InstanceTopic("1")) != 1 {
		t.Fatal("expected client on both topics")
	}
	if len(client.Topics) != 2 {
		t.Fatalf("expected duplicate subscribe to be ignored, topics=%v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{InstanceTopic("1")}})
	if hub.TopicCount(InstanceTopic("1")) != 0 {
		t.Fatal("expected client removed from instance topic")
	}
	if len(client.Topics) != 1 || client.Topics[0] != TopicExtractions {
		t.Fatalf("unexpected remaining topics %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "bogus", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Fatal("unknown action should be ignored")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient("c", TopicExtractions)
			hub.Register(c)
			hub.Broadcast(TopicExtractions, Event{Type: "x"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("pub", InstanceTopic("42"))
	hub.Register(client)

	var publisher EventPublisher = hub
	err := publisher.Publish(context.Background(), Event{Type: "extraction.created", Topic: InstanceTopic("42"), InstanceID: "42"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-client.Send:
	case <-time.After(time.Second):
		t.Fatal("did not receive published event")
	}
}

func TestInitialTopics(t *testing.T) {
	tests := []struct {
		param string
		want  []string
	}{
		{"", []string{TopicExtractions}},
		{" , ", []string{TopicExtractions}},
		{"instance/1", []string{"instance/1"}},
		{"extractions, instance/1,extractions", []string{"extractions", "instance/1"}},
	}
	for _, tt := range tests {
		got := initialTopics(tt.param)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("initialTopics(%q) = %v, want %v", tt.param, got, tt.want)
		}
	}
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	wildcard := originChecker([]string{"*"})
	if !wildcard(req("http://evil.example")) {
		t.Error("wildcard should accept any origin")
	}

	strict := originChecker([]string{"http://viewer.local"})
	if !strict(req("http://viewer.local")) {
		t.Error("expected listed origin to be accepted")
	}
	if strict(req("http://evil.example")) {
		t.Error("expected unlisted origin to be rejected")
	}
	if !strict(req("")) {
		t.Error("expected non-browser client without Origin to be accepted")
	}
}

func TestWebSocketHandler_RegisterRoutes(t *testing.T) {
	handler := NewWebSocketHandler(NewHub(zerolog.Nop()), nil)

	e := echo.New()
	handler.RegisterRoutes(e.Group("/api/v1"))

	found := false
	for _, r := range e.Routes() {
		if r.Path == "/api/v1/ws" && r.Method == http.MethodGet {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected GET /api/v1/ws route to be registered")
	}
}

func TestWebSocketHandler_HandleConnectRequiresWebSocket(t *testing.T) {
	handler := NewWebSocketHandler(NewHub(zerolog.Nop()), nil)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.HandleConnect(c)
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestWebSocketHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	handler := NewWebSocketHandler(hub, []string{"*"})

	e := echo.New()
	handler.RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(TopicExtractions) < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(TopicExtractions) != 1 {
		t.Fatal("expected connected client on the default topic")
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{InstanceTopic("ws-1")}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	for hub.TopicCount(InstanceTopic("ws-1")) < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(InstanceTopic("ws-1")) != 1 {
		t.Fatal("expected subscription to instance topic")
	}

	hub.Broadcast(InstanceTopic("ws-1"), Event{
		Type:       "extraction.created",
		Topic:      InstanceTopic("ws-1"),
		InstanceID: "ws-1",
		Timestamp:  time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "extraction.created" || received.InstanceID != "ws-1" {
		t.Fatalf("unexpected event %+v", received)
	}
}
