package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans capture events out to websocket listeners grouped by
// district. Redis pub/sub relays events between server instances so a
// listener sees captures no matter which node processed the run.
type Hub struct {
	redis     *redis.Client
	listeners map[string]map[*Listener]struct{}
	mu        sync.RWMutex
}

type Listener struct {
	District string
	Send     chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:     redisClient,
		listeners: map[string]map[*Listener]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(district string) *Listener {
	l := &Listener{
		District: district,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners[district] == nil {
		h.listeners[district] = map[*Listener]struct{}{}
	}
	h.listeners[district][l] = struct{}{}
	return l
}

func (h *Hub) Unregister(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if districtListeners, ok := h.listeners[l.District]; ok {
		delete(districtListeners, l)
		if len(districtListeners) == 0 {
			delete(h.listeners, l.District)
		}
	}
	close(l.Send)
}

// Broadcast delivers a payload to every listener of a district. With
// Redis configured the event goes through pub/sub so all nodes,
// including this one, deliver it exactly once.
func (h *Hub) Broadcast(district string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(district), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
		return
	}
	h.deliver(district, payload)
}

func (h *Hub) deliver(district string, payload []byte) {
	h.mu.RLock()
	listeners := h.listeners[district]
	h.mu.RUnlock()

	for l := range listeners {
		select {
		case l.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "captures:*:feed")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliver(districtFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func redisChannel(district string) string {
	return "captures:" + district + ":feed"
}

func districtFromChannel(ch string) string {
	// captures:{district}:feed
	const prefix = "captures:"
	const suffix = ":feed"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
