package chatws

import (
	"encoding/json"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
)

const (
	EventConnected = "connected"
	EventMessage   = "message"
	EventAck       = "ack"
	EventError     = "error"
	EventSend      = "send"
)

// Event is the JSON frame written to and read from a channel connection.
type Event struct {
	Event           string          `json:"event"`
	ConversationKey string          `json:"conversationKey,omitempty"`
	CounterpartID   string          `json:"counterpartId,omitempty"`
	Message         *models.Message `json:"message,omitempty"`
	Ack             *models.Ack     `json:"ack,omitempty"`
	Error           string          `json:"error,omitempty"`
	Code            string          `json:"code,omitempty"`
	Retryable       bool            `json:"retryable,omitempty"`
}

// inbound is a client send frame. Sends may also go through the HTTP API;
// both paths end in the same persist-then-publish call.
type inbound struct {
	Event    string          `json:"event"`
	Kind     models.Kind     `json:"kind"`
	Data     json.RawMessage `json:"data"`
	SentDate string          `json:"sentDate"`
	SentTime string          `json:"sentTime"`
}

func encodeEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}
