package conversation

import (
	"context"

	"github.com/curasync-homepage/curasync-web-app/internal/client"
	"github.com/curasync-homepage/curasync-web-app/internal/models"
)

// Stream is an open realtime subscription for one conversation.
type Stream interface {
	Messages() <-chan models.Message
	Close() error
}

// Backend is what a View needs from the service.
type Backend interface {
	FetchHistory(ctx context.Context, counterpartID string) ([]models.Message, error)
	Send(ctx context.Context, req client.SendRequest) (*client.SendResult, error)
	DialChannel(ctx context.Context, counterpartID string) (Stream, error)
}

type clientBackend struct {
	*client.Client
}

// NewClientBackend adapts an API client to the Backend contract.
func NewClientBackend(c *client.Client) Backend {
	return clientBackend{Client: c}
}

func (b clientBackend) DialChannel(ctx context.Context, counterpartID string) (Stream, error) {
	channel, err := b.Client.DialChannel(ctx, counterpartID)
	if err != nil {
		return nil, err
	}
	return channel, nil
}
