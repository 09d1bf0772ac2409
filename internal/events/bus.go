// Package events fans board changes out to server-sent-event subscribers.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type Event struct {
	Type    string `json:"type"`
	Entity  string `json:"entity,omitempty"`
	BoardID int64  `json:"board_id"`
	ListID  *int64 `json:"list_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Bus delivers events to subscribers of the event's board. A subscriber
// that falls more than its buffer behind misses events.
type Bus struct {
	mu        sync.RWMutex
	subs      map[int64]map[chan []byte]struct{}
	buffer    int
	heartbeat time.Duration
}

func NewBus() *Bus {
	return &Bus{
		subs:      make(map[int64]map[chan []byte]struct{}),
		buffer:    16,
		heartbeat: 25 * time.Second,
	}
}

func (b *Bus) Subscribe(boardID int64) (<-chan []byte, func()) {
	ch := make(chan []byte, b.buffer)
	b.mu.Lock()
	if b.subs[boardID] == nil {
		b.subs[boardID] = make(map[chan []byte]struct{})
	}
	b.subs[boardID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[boardID]
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, boardID)
			}
			close(ch)
		})
	}
}

// Close ends every open stream. Subscriptions made afterwards still work.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for ch := range subs {
			close(ch)
		}
	}
	b.subs = make(map[int64]map[chan []byte]struct{})
}

func (b *Bus) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.BoardID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// Subscribers reports how many streams watch a board.
func (b *Bus) Subscribers(boardID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[boardID])
}

// ServeSSE streams a board's events until the client goes away.
func (b *Bus) ServeSSE(w http.ResponseWriter, r *http.Request, boardID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := b.Subscribe(boardID)
	defer cancel()

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// keeps proxies from closing an idle stream
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
