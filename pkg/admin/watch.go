package admin

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mnohosten/laura-mtm/pkg/node"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clusterStateChange is one notification pushed to GET
// /v1/cluster/watch subscribers (§6.4): status, live-node count and
// config-change-counter, a subset of what get-cluster-state reports.
// It does not carry the disabled-mask itself.
type clusterStateChange struct {
	Status              string `json:"status"`
	LiveNodeCount       int    `json:"live_node_count"`
	ConfigChangeCounter uint64 `json:"config_change_counter"`
}

// watchHub polls the detector's config-change-counter and fans out a
// notification to every connected watcher whenever it bumps. The
// detector itself has no internal pub/sub to hook into (its state
// lock is never held across I/O, per the arbiter package's own
// convention), so polling the counter it already exposes is the
// simplest push-on-change mechanism that doesn't invent one.
type watchHub struct {
	nc     *node.Context
	stopCh chan struct{}

	mu   sync.Mutex
	subs map[chan clusterStateChange]struct{}
}

func newWatchHub(nc *node.Context) *watchHub {
	return &watchHub{
		nc:     nc,
		stopCh: make(chan struct{}),
		subs:   make(map[chan clusterStateChange]struct{}),
	}
}

func (h *watchHub) subscribe() chan clusterStateChange {
	ch := make(chan clusterStateChange, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *watchHub) unsubscribe(ch chan clusterStateChange) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *watchHub) snapshot() clusterStateChange {
	return clusterStateChange{
		Status:              h.nc.Detector.Status().String(),
		LiveNodeCount:       h.nc.Detector.LiveNodeCount(),
		ConfigChangeCounter: h.nc.Detector.ConfigChangeCounter(),
	}
}

func (h *watchHub) run() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastCounter uint64
	first := true

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			cur := h.snapshot()
			if first || cur.ConfigChangeCounter != lastCounter {
				first = false
				lastCounter = cur.ConfigChangeCounter
				h.broadcast(cur)
			}
		}
	}
}

func (h *watchHub) broadcast(change clusterStateChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- change:
		default:
			// Slow subscriber: drop rather than block the hub.
		}
	}
}

func (h *watchHub) stop() {
	close(h.stopCh)
}

// handleWatch upgrades to a websocket connection and streams
// clusterStateChange notifications as they occur.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("admin: watch upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := s.watchHub.subscribe()
	defer s.watchHub.unsubscribe(ch)

	if err := conn.WriteJSON(s.watchHub.snapshot()); err != nil {
		return
	}

	for change := range ch {
		if err := conn.WriteJSON(change); err != nil {
			return
		}
	}
}
