package events

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPublishReachesBoardSubscribersOnly(t *testing.T) {
	bus := NewBus()
	mine, cancelMine := bus.Subscribe(1)
	defer cancelMine()
	other, cancelOther := bus.Subscribe(2)
	defer cancelOther()

	bus.Publish(Event{Type: "card.created", Entity: "card", BoardID: 1, Payload: map[string]int{"id": 7}})

	select {
	case raw := <-mine:
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != "card.created" || ev.BoardID != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case raw := <-other:
		t.Fatalf("board 2 received %s", raw)
	default:
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	for i := 0; i < bus.buffer+10; i++ {
		bus.Publish(Event{Type: "list.updated", BoardID: 1})
	}
	if len(ch) != bus.buffer {
		t.Fatalf("buffered %d events, want %d", len(ch), bus.buffer)
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(3)
	if bus.Subscribers(3) != 1 {
		t.Fatalf("subscribers = %d", bus.Subscribers(3))
	}
	cancel()
	cancel()
	if bus.Subscribers(3) != 0 {
		t.Fatalf("subscribers after cancel = %d", bus.Subscribers(3))
	}
	bus.Publish(Event{Type: "board.deleted", BoardID: 3})
}

func TestCloseEndsStreams(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(4)
	bus.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed")
	}
	cancel()
	if bus.Subscribers(4) != 0 {
		t.Fatalf("subscribers after close = %d", bus.Subscribers(4))
	}
	bus.Publish(Event{Type: "updated", BoardID: 4})
}

func TestServeSSE(t *testing.T) {
	bus := NewBus()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bus.ServeSSE(w, r, 9)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers(9) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	bus.Publish(Event{Type: "card.moved", BoardID: 9})

	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	if !strings.Contains(line, `"type":"card.moved"`) {
		t.Fatalf("data line = %q", line)
	}
}
