package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/services"
	websocket "github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const sendBuffer = 32

// Conn is the part of a websocket connection the channel needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type sender interface {
	Send(ctx context.Context, actor models.Identity, input services.SendInput) (*models.Message, error)
}

// Client is one Open channel connection bound to a single conversation.
type Client struct {
	hub             *Hub
	conn            Conn
	identity        models.Identity
	conversationKey string
	counterpartID   string
	limiter         *rate.Limiter
	log             *zap.Logger

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

type ClientOption func(*Client)

// WithLimiter throttles sends made over the channel.
func WithLimiter(limiter *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func NewClient(
	hub *Hub,
	conn Conn,
	identity models.Identity,
	conversationKey string,
	counterpartID string,
	opts ...ClientOption,
) *Client {
	client := &Client{
		hub:             hub,
		conn:            conn,
		identity:        identity,
		conversationKey: conversationKey,
		counterpartID:   counterpartID,
		log:             zap.NewNop(),
		send:            make(chan []byte, sendBuffer),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) ConversationKey() string {
	return c.conversationKey
}

// Open queues the connected event and subscribes the client. The event is
// queued first so it always precedes message events on the wire.
func (c *Client) Open() error {
	payload, err := encodeEvent(Event{
		Event:           EventConnected,
		ConversationKey: c.conversationKey,
		CounterpartID:   c.counterpartID,
	})
	if err != nil {
		return err
	}
	c.enqueue(payload)
	return c.hub.Register(c)
}

// Close tears the connection down. Events still queued are discarded.
func (c *Client) Close() {
	c.shutdown()
	c.hub.Unregister(c)
}

func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ReadPump reads client frames until the transport fails or the client is
// closed. Send frames are handed to service; anything else is answered with
// an error event.
func (c *Client) ReadPump(ctx context.Context, service sender) {
	defer func() {
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.isClosed() {
			return
		}

		var incoming inbound
		if err := json.Unmarshal(frame, &incoming); err != nil {
			c.writeError(services.ErrMalformed)
			continue
		}
		if incoming.Event != EventSend {
			c.writeError(errUnsupportedEvent)
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.writeError(errRateLimited)
			continue
		}

		stored, err := service.Send(ctx, c.identity, services.SendInput{
			ConversationKey: c.conversationKey,
			Kind:            incoming.Kind,
			Data:            incoming.Data,
			SentDate:        incoming.SentDate,
			SentTime:        incoming.SentTime,
		})
		if err != nil {
			c.log.Debug("channel send failed",
				zap.String("conversation_key", c.conversationKey),
				zap.Error(err),
			)
			c.writeError(err)
			continue
		}

		payload, err := encodeEvent(Event{
			Event:           EventAck,
			ConversationKey: c.conversationKey,
			Ack:             &models.Ack{ID: stored.ID, ConversationKey: stored.ConversationKey},
		})
		if err == nil {
			c.enqueue(payload)
		}
	}
}

// WritePump drains queued events to the connection until the client closes.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			select {
			case <-c.done:
				return
			default:
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		}
	}
}

var (
	errUnsupportedEvent = errors.New("unsupported event")
	errRateLimited      = errors.New("too many messages")
)

func (c *Client) writeError(err error) {
	code := models.ErrorCode(err)
	switch {
	case errors.Is(err, errRateLimited):
		code = "rate_limited"
	case errors.Is(err, errUnsupportedEvent):
		code = "unsupported_event"
	}

	message := err.Error()
	if errors.Is(err, services.ErrUnavailable) {
		message = services.ErrUnavailable.Error()
	}
	payload, encodeErr := encodeEvent(Event{
		Event:     EventError,
		Error:     message,
		Code:      code,
		Retryable: models.Retryable(err) || errors.Is(err, errRateLimited),
	})
	if encodeErr != nil {
		return
	}
	if !c.enqueue(payload) {
		c.Close()
	}
}
