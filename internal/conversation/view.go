// Package conversation merges history and live deliveries into one ordered,
// duplicate-free rendering of a single conversation.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/curasync-homepage/curasync-web-app/internal/client"
	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"go.uber.org/zap"
)

// ErrViewClosed is returned when the view was closed or reopened while a call
// was in flight; its result has been discarded.
var ErrViewClosed = errors.New("conversation view closed")

type Option func(*View)

func WithLocation(loc *time.Location) Option {
	return func(v *View) {
		if loc != nil {
			v.location = loc
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(v *View) {
		if log != nil {
			v.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
	}
}

// View is the session-local state for one conversation. Every state change
// is guarded by a generation token: results of calls started before the most
// recent Open or Close are dropped.
type View struct {
	backend         Backend
	self            models.Identity
	counterpartID   string
	conversationKey string
	location        *time.Location
	now             func() time.Time
	log             *zap.Logger

	mu         sync.Mutex
	generation uint64
	closes     uint64
	open       bool
	connected  bool
	stream     Stream
	entries    []Entry
	keys       map[string]struct{}
	// lastSeen is the latest (sentDate, sentTime) merged from the service.
	lastSeenDate string
	lastSeenTime string
	draft        string
	changes      chan struct{}
}

func NewView(backend Backend, self models.Identity, counterpartID string, opts ...Option) *View {
	v := &View{
		backend:         backend,
		self:            self,
		counterpartID:   counterpartID,
		conversationKey: models.ConversationKey(self.UserID, counterpartID),
		location:        time.UTC,
		now:             time.Now,
		log:             zap.NewNop(),
		keys:            make(map[string]struct{}),
		changes:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *View) ConversationKey() string {
	return v.conversationKey
}

// Changes signals after each state change. Signals coalesce.
func (v *View) Changes() <-chan struct{} {
	return v.changes
}

// Open subscribes to the live channel and then merges the stored history.
// Subscribing first leaves no window in which a send is neither in the
// history nor on the stream; overlap is removed by deduplication. Calling
// Open on a view that is already open re-synchronizes it and keeps the
// entries it already has.
//
// A channel failure still loads history; the failure is returned so the
// caller can retry Open later.
func (v *View) Open(ctx context.Context) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.open = true
	v.connected = false
	previous := v.stream
	v.stream = nil
	v.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	stream, dialErr := v.backend.DialChannel(ctx, v.counterpartID)
	if dialErr == nil {
		v.mu.Lock()
		if !v.current(gen) {
			v.mu.Unlock()
			_ = stream.Close()
			return ErrViewClosed
		}
		v.stream = stream
		v.connected = true
		v.mu.Unlock()
		go v.pump(gen, stream)
	} else {
		v.log.Warn("open conversation channel",
			zap.String("conversation_key", v.conversationKey),
			zap.Error(dialErr),
		)
	}

	history, err := v.backend.FetchHistory(ctx, v.counterpartID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("fetch history: %w", err)
	}

	v.mu.Lock()
	if !v.current(gen) {
		v.mu.Unlock()
		return ErrViewClosed
	}
	for _, message := range history {
		v.merge(message)
	}
	v.mu.Unlock()
	v.signal()

	if dialErr != nil {
		return fmt.Errorf("open channel: %w", dialErr)
	}
	return nil
}

// Close tears the channel down and forgets the rendered sequence. The draft
// survives so a reopened view can still send it.
func (v *View) Close() {
	v.mu.Lock()
	v.generation++
	v.closes++
	v.open = false
	v.connected = false
	stream := v.stream
	v.stream = nil
	v.entries = nil
	v.keys = make(map[string]struct{})
	v.lastSeenDate, v.lastSeenTime = "", ""
	v.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
	v.signal()
}

func (v *View) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

// Connected reports whether the live channel is up. Transport loss clears it
// without an error; the caller reopens to resync.
func (v *View) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// Entries returns the rendered sequence ordered by (sentDate, sentTime).
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Entry, len(v.entries))
	copy(out, v.entries)
	return out
}

// LastSeen returns the latest (sentDate, sentTime) received from the service,
// or empty strings before anything arrived. Pending echoes do not move it.
func (v *View) LastSeen() (string, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeenDate, v.lastSeenTime
}

func (v *View) Groups() []DateGroup {
	return group(v.Entries())
}

func (v *View) SetDraft(text string) {
	v.mu.Lock()
	v.draft = text
	v.mu.Unlock()
}

func (v *View) Draft() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// SendDraft sends the draft as a text message. The draft is cleared only when
// the service acknowledges the send.
func (v *View) SendDraft(ctx context.Context) error {
	draft := v.Draft()
	if strings.TrimSpace(draft) == "" {
		return fmt.Errorf("%w: empty message body", models.ErrMalformed)
	}
	if err := v.Send(ctx, models.NewTextPayload(draft)); err != nil {
		return err
	}

	v.mu.Lock()
	if v.draft == draft {
		v.draft = ""
	}
	v.mu.Unlock()
	return nil
}

// Send stamps payload with the local civil time, shows it as a pending echo
// and replaces the echo with the stored copy once acknowledged. On failure
// the echo is withdrawn and the error is returned unchanged.
func (v *View) Send(ctx context.Context, payload models.Payload) error {
	payload.Version = models.PayloadVersion
	if err := payload.Validate(); err != nil {
		return err
	}
	document, err := payload.Encode()
	if err != nil {
		return err
	}

	sentDate, sentTime := models.CivilStamp(v.now(), v.location)
	echo := models.Message{
		ConversationKey: v.conversationKey,
		SenderRole:      v.self.Role,
		SenderID:        v.self.UserID,
		Kind:            payload.Kind,
		Data:            document,
		SentDate:        sentDate,
		SentTime:        sentTime,
	}

	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return ErrViewClosed
	}
	closes := v.closes
	echoed := v.addPending(echo)
	v.mu.Unlock()
	v.signal()

	result, err := v.backend.Send(ctx, client.SendRequest{
		ConversationKey: v.conversationKey,
		CounterpartID:   v.counterpartID,
		Kind:            payload.Kind,
		Data:            document,
		SentDate:        sentDate,
		SentTime:        sentTime,
	})

	// A resync keeps entries, so the echo is settled unless the view was
	// closed in the meantime.
	v.mu.Lock()
	if !v.open || v.closes != closes {
		v.mu.Unlock()
		return err
	}
	if err != nil {
		if echoed {
			v.withdraw(echo)
		}
		v.mu.Unlock()
		v.signal()
		return err
	}
	v.merge(result.Message)
	v.mu.Unlock()
	v.signal()
	return nil
}

func (v *View) pump(gen uint64, stream Stream) {
	for message := range stream.Messages() {
		v.mu.Lock()
		if !v.current(gen) {
			v.mu.Unlock()
			return
		}
		if message.ConversationKey == v.conversationKey {
			v.merge(message)
		}
		v.mu.Unlock()
		v.signal()
	}

	v.mu.Lock()
	lost := v.current(gen) && v.stream == stream
	if lost {
		v.connected = false
		v.stream = nil
	}
	v.mu.Unlock()
	if lost {
		v.log.Debug("conversation channel ended", zap.String("conversation_key", v.conversationKey))
		v.signal()
	}
}

func (v *View) current(gen uint64) bool {
	return v.open && v.generation == gen
}

// merge inserts message after every entry that does not sort after it. A
// message already present is dropped, except that it replaces a pending echo.
func (v *View) merge(message models.Message) {
	if v.lastSeenDate == "" || models.CivilLess(v.lastSeenDate, v.lastSeenTime, message.SentDate, message.SentTime) {
		v.lastSeenDate, v.lastSeenTime = message.SentDate, message.SentTime
	}
	key := dedupKey(message)
	if _, seen := v.keys[key]; seen {
		for i := range v.entries {
			if v.entries[i].Pending && dedupKey(v.entries[i].Message) == key {
				v.entries[i] = newEntry(message)
				return
			}
		}
		return
	}
	v.keys[key] = struct{}{}
	v.insert(newEntry(message))
}

func (v *View) addPending(message models.Message) bool {
	key := dedupKey(message)
	if _, seen := v.keys[key]; seen {
		return false
	}
	v.keys[key] = struct{}{}
	entry := newEntry(message)
	entry.Pending = true
	v.insert(entry)
	return true
}

func (v *View) withdraw(message models.Message) {
	key := dedupKey(message)
	for i := range v.entries {
		if v.entries[i].Pending && dedupKey(v.entries[i].Message) == key {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			delete(v.keys, key)
			return
		}
	}
}

func (v *View) insert(entry Entry) {
	at := sort.Search(len(v.entries), func(i int) bool {
		return civilLess(entry.Message, v.entries[i].Message)
	})
	v.entries = append(v.entries, Entry{})
	copy(v.entries[at+1:], v.entries[at:])
	v.entries[at] = entry
}

func (v *View) signal() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}
