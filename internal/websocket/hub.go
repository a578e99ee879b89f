package chatws

import (
	"context"
	"errors"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"go.uber.org/zap"
)

var ErrHubStopped = errors.New("channel hub stopped")

// Hub keeps the set of open connections per conversation key and fans
// persisted messages out to them. All topic state is owned by Run.
type Hub struct {
	topics     map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.Message
	done       chan struct{}
	metrics    *Metrics
	log        *zap.Logger
}

func NewHub(metrics *Metrics, log *zap.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		topics:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.Message, 64),
		done:       make(chan struct{}),
		metrics:    metrics,
		log:        log,
	}
}

// Run serves the hub until ctx is cancelled, then tears down every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for key, set := range h.topics {
				for client := range set {
					client.shutdown()
				}
				delete(h.topics, key)
			}
			h.metrics.connections.Set(0)
			return
		case client := <-h.register:
			set, ok := h.topics[client.conversationKey]
			if !ok {
				set = make(map[*Client]struct{})
				h.topics[client.conversationKey] = set
			}
			set[client] = struct{}{}
			h.metrics.connections.Inc()
			h.log.Debug("channel subscribed",
				zap.String("conversation_key", client.conversationKey),
				zap.String("user_id", client.identity.UserID),
			)
		case client := <-h.unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		client.shutdown()
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues message for local delivery. It satisfies the service
// publisher contract when no relay is configured.
func (h *Hub) Publish(ctx context.Context, message models.Message) error {
	select {
	case h.broadcast <- message:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) remove(client *Client) {
	set, ok := h.topics[client.conversationKey]
	if !ok {
		return
	}
	if _, exists := set[client]; exists {
		delete(set, client)
		client.shutdown()
		h.metrics.connections.Dec()
	}
	if len(set) == 0 {
		delete(h.topics, client.conversationKey)
	}
}

func (h *Hub) deliver(message models.Message) {
	set, ok := h.topics[message.ConversationKey]
	if !ok {
		return
	}

	payload, err := encodeEvent(Event{
		Event:           EventMessage,
		ConversationKey: message.ConversationKey,
		Message:         &message,
	})
	if err != nil {
		h.log.Error("encode message event", zap.Error(err))
		return
	}

	for client := range set {
		if client.isClosed() {
			h.remove(client)
			continue
		}
		if client.enqueue(payload) {
			h.metrics.delivered.Inc()
			continue
		}
		h.log.Warn("dropping slow channel client",
			zap.String("conversation_key", client.conversationKey),
			zap.String("user_id", client.identity.UserID),
		)
		h.metrics.dropped.Inc()
		h.remove(client)
	}
}
