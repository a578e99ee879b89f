package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ChannelEvent mirrors the frames the server writes on the realtime channel.
type ChannelEvent struct {
	Event           string          `json:"event"`
	ConversationKey string          `json:"conversationKey,omitempty"`
	CounterpartID   string          `json:"counterpartId,omitempty"`
	Message         *models.Message `json:"message,omitempty"`
	Ack             *models.Ack     `json:"ack,omitempty"`
	Error           string          `json:"error,omitempty"`
	Code            string          `json:"code,omitempty"`
	Retryable       bool            `json:"retryable,omitempty"`
}

// Channel is an Open realtime connection scoped to one counterpart. Messages
// yields message events until the connection ends; the channel is then closed.
type Channel struct {
	conn            *websocket.Conn
	conversationKey string
	messages        chan models.Message
	cancel          context.CancelFunc
	closeOnce       sync.Once
	done            chan struct{}
	err             error
}

// DialChannel connects and waits for the connected event.
func (c *Client) DialChannel(ctx context.Context, counterpartID string) (*Channel, error) {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + "/api/v1/ws"
	query := url.Values{}
	query.Set("token", c.token)
	query.Set("counterpartId", counterpartID)
	wsURL.RawQuery = query.Encode()

	// Dial refuses clients with a Timeout; the context bounds the handshake.
	httpClient := *c.http
	httpClient.Timeout = 0
	conn, resp, err := websocket.Dial(ctx, wsURL.String(), &websocket.DialOptions{HTTPClient: &httpClient})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, decodeAPIError(resp)
		}
		return nil, fmt.Errorf("%w: dial channel: %w", models.ErrUnavailable, err)
	}

	var first ChannelEvent
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "no handshake")
		return nil, fmt.Errorf("%w: read handshake: %w", models.ErrUnavailable, err)
	}
	if first.Event != "connected" {
		_ = conn.Close(websocket.StatusProtocolError, "unexpected handshake")
		return nil, fmt.Errorf("%w: expected connected event, got %q", models.ErrUnavailable, first.Event)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	channel := &Channel{
		conn:            conn,
		conversationKey: first.ConversationKey,
		messages:        make(chan models.Message, 64),
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	go channel.readLoop(readCtx)
	return channel, nil
}

func (ch *Channel) ConversationKey() string {
	return ch.conversationKey
}

func (ch *Channel) Messages() <-chan models.Message {
	return ch.messages
}

// Done is closed when the connection has ended.
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

// Err reports why the channel ended; nil after Close.
func (ch *Channel) Err() error {
	<-ch.done
	return ch.err
}

func (ch *Channel) Close() error {
	ch.closeOnce.Do(func() {
		ch.cancel()
		_ = ch.conn.Close(websocket.StatusNormalClosure, "view closed")
	})
	return nil
}

func (ch *Channel) readLoop(ctx context.Context) {
	defer func() {
		close(ch.messages)
		close(ch.done)
	}()
	for {
		var event ChannelEvent
		if err := wsjson.Read(ctx, ch.conn, &event); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				ch.err = err
			}
			return
		}
		if event.Event != "message" || event.Message == nil {
			continue
		}
		select {
		case ch.messages <- *event.Message:
		case <-ctx.Done():
			return
		}
	}
}
