package server

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

const (
	eventsPath = "/__sitepack/events"
	clientPath = "/__sitepack/client.js"
)

// reloadClient reloads the page on every successful rebuild and logs failed
// ones to the console.
const reloadClient = `(function () {
  if (typeof EventSource === "undefined") return;
  var es = new EventSource("` + eventsPath + `");
  es.addEventListener("reload", function () { window.location.reload(); });
  es.addEventListener("build-error", function (e) { console.error("[sitepack] build failed\n" + e.data); });
})();
`

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// Hub fans events out to every connected browser. Slow subscribers miss
// events rather than block a rebuild.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener. The channel is closed by Unsubscribe
// or Close.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 4)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes ch.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Broadcast delivers ev to every subscriber that has room for it.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len is the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.closed = true
}

// RegisterEvents mounts the SSE stream and the reload client.
//
//	GET /__sitepack/events     text/event-stream
//	GET /__sitepack/client.js  live-reload client
func (s *Server) RegisterEvents(r *gin.Engine) {
	r.GET(clientPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte(reloadClient))
	})

	r.GET(eventsPath, func(c *gin.Context) {
		ch := s.hub.Subscribe()
		defer s.hub.Unsubscribe(ch)

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("hello", "sitepack")
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent(ev.Name, ev.Data)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	})
}
