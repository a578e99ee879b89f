package conversation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
)

// Entry is one rendered message. Malformed entries carry an empty payload
// and render as a placeholder.
type Entry struct {
	Message   models.Message
	Payload   models.Payload
	Malformed bool
	// Pending marks a local echo that the service has not confirmed yet.
	Pending bool
}

func (e Entry) Text() string {
	if e.Malformed {
		return ""
	}
	return e.Payload.Text
}

// DateGroup is a run of entries sharing one sentDate.
type DateGroup struct {
	Date    string
	Entries []Entry
}

func newEntry(message models.Message) Entry {
	payload, err := models.DecodePayload(message.Data)
	if err != nil {
		return Entry{Message: message, Malformed: true}
	}
	return Entry{Message: message, Payload: payload}
}

// dedupKey identifies a logical message independently of its stored id, so a
// local echo, a history row and a live delivery of the same send collapse.
// The payload part is re-encoded because stores may reorder document keys.
func dedupKey(message models.Message) string {
	var b strings.Builder
	b.WriteString(message.ConversationKey)
	b.WriteByte(0)
	b.WriteString(message.SenderID)
	b.WriteByte(0)
	b.WriteString(message.SentDate)
	b.WriteByte(0)
	b.WriteString(message.SentTime)
	b.WriteByte(0)
	b.Write(canonicalPayload(message.Data))
	return b.String()
}

func canonicalPayload(raw json.RawMessage) []byte {
	if payload, err := models.DecodePayload(raw); err == nil {
		if encoded, err := payload.Encode(); err == nil {
			return encoded
		}
	}
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, raw); err == nil {
		return compacted.Bytes()
	}
	return bytes.TrimSpace(raw)
}

func civilLess(a, b models.Message) bool {
	return models.CivilLess(a.SentDate, a.SentTime, b.SentDate, b.SentTime)
}

func group(entries []Entry) []DateGroup {
	groups := make([]DateGroup, 0)
	for _, entry := range entries {
		last := len(groups) - 1
		if last >= 0 && groups[last].Date == entry.Message.SentDate {
			groups[last].Entries = append(groups[last].Entries, entry)
			continue
		}
		groups = append(groups, DateGroup{Date: entry.Message.SentDate, Entries: []Entry{entry}})
	}
	return groups
}
