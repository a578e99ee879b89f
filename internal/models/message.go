package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindMessage      Kind = "message"
	KindPrescription Kind = "prescription"
)

func (k Kind) Valid() bool {
	return k == KindMessage || k == KindPrescription
}

// PayloadVersion is written into every stored payload document.
const PayloadVersion = 1

var ErrMalformedPayload = errors.New("malformed payload")

// Message is immutable once stored. Data holds the self-describing payload document.
type Message struct {
	ID              string          `json:"id" db:"id"`
	ConversationKey string          `json:"conversationKey" db:"conversation_key"`
	SenderRole      Role            `json:"senderRole" db:"sender_role"`
	SenderID        string          `json:"senderId" db:"sender_id"`
	Kind            Kind            `json:"kind" db:"kind"`
	Data            json.RawMessage `json:"data" db:"payload"`
	SentDate        string          `json:"sentDate" db:"sent_date"`
	SentTime        string          `json:"sentTime" db:"sent_time"`
}

// Payload is the tagged variant carried by a message. Record is present for
// structured kinds; unknown fields written by newer senders are ignored.
type Payload struct {
	Version int        `json:"version"`
	Kind    Kind       `json:"kind"`
	Text    string     `json:"message"`
	Record  *RecordRef `json:"record,omitempty"`
}

type RecordRef struct {
	Type      string       `json:"type"`
	Reference string       `json:"reference"`
	Title     string       `json:"title,omitempty"`
	Items     []RecordItem `json:"items,omitempty"`
}

type RecordItem struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

func NewTextPayload(text string) Payload {
	return Payload{Version: PayloadVersion, Kind: KindMessage, Text: text}
}

func NewRecordPayload(text string, record RecordRef) Payload {
	return Payload{Version: PayloadVersion, Kind: KindPrescription, Text: text, Record: &record}
}

func (p Payload) Validate() error {
	if !p.Kind.Valid() {
		// Unknown kinds are accepted on read; only writes are restricted.
		return fmt.Errorf("%w: unsupported kind %q", ErrMalformedPayload, p.Kind)
	}
	if p.Kind == KindMessage && strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: empty message body", ErrMalformedPayload)
	}
	if p.Kind == KindMessage && p.Record != nil {
		return fmt.Errorf("%w: plain messages carry no record", ErrMalformedPayload)
	}
	if p.Kind == KindPrescription {
		if p.Record == nil || strings.TrimSpace(p.Record.Reference) == "" {
			return fmt.Errorf("%w: record reference required", ErrMalformedPayload)
		}
	}
	return nil
}

// Encode serializes the payload into its stored document form.
func (p Payload) Encode() (json.RawMessage, error) {
	if p.Version == 0 {
		p.Version = PayloadVersion
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return raw, nil
}

// DecodePayload parses a stored payload document. Some older writers stored the
// document as a JSON string, so one level of string quoting is unwrapped.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{}, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		trimmed = bytes.TrimSpace([]byte(inner))
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Payload{}, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}

	var payload Payload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if payload.Kind == "" {
		payload.Kind = KindMessage
	}
	if payload.Version == 0 {
		payload.Version = PayloadVersion
	}
	return payload, nil
}

func (m *Message) Payload() (Payload, error) {
	return DecodePayload(m.Data)
}

const conversationKeySeparator = ":"

// ConversationKey derives the order-independent thread key for two participants.
func ConversationKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + conversationKeySeparator + ids[1]
}

// ParseConversationKey splits a key back into its two participant ids.
func ParseConversationKey(key string) (string, string, error) {
	parts := strings.Split(key, conversationKeySeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid conversation key %q", key)
	}
	if ConversationKey(parts[0], parts[1]) != key {
		return "", "", fmt.Errorf("conversation key %q is not canonical", key)
	}
	return parts[0], parts[1], nil
}

// ValidParticipantID reports whether id can take part in a conversation key.
func ValidParticipantID(id string) bool {
	return strings.TrimSpace(id) == id && id != "" && !strings.Contains(id, conversationKeySeparator)
}

type Ack struct {
	ID              string `json:"id"`
	ConversationKey string `json:"conversationKey"`
}
