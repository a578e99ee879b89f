package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	"github.com/curasync-homepage/curasync-web-app/internal/services"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 8),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-c.inbound:
		return 1, frame, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) events(t *testing.T) []Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]Event, 0, len(c.written))
	for _, raw := range c.written {
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

var (
	patient = models.Identity{UserID: "patient-a", Role: models.RolePatient}
	lab     = models.Identity{UserID: "lab-b", Role: models.RoleLaboratory}
	key     = models.ConversationKey(patient.UserID, lab.UserID)
)

func openClient(t *testing.T, hub *Hub, identity models.Identity, conversationKey string) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	client := NewClient(hub, conn, identity, conversationKey, "other")
	if err := client.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	go client.WritePump()
	return client, conn
}

func TestHubDeliversToEverySubscriberOfConversation(t *testing.T) {
	hub := runHub(t)
	_, patientConn := openClient(t, hub, patient, key)
	_, labConn := openClient(t, hub, lab, key)
	_, otherConn := openClient(t, hub, patient, models.ConversationKey(patient.UserID, "doctor-d"))

	message := models.Message{ID: "m1", ConversationKey: key, SenderID: patient.UserID, Kind: models.KindMessage}
	if err := hub.Publish(context.Background(), message); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for name, conn := range map[string]*fakeConn{"sender": patientConn, "counterpart": labConn} {
		waitFor(t, name+" message event", func() bool { return len(conn.events(t)) == 2 })
		events := conn.events(t)
		if events[0].Event != EventConnected {
			t.Fatalf("%s: expected connected first, got %q", name, events[0].Event)
		}
		if events[1].Event != EventMessage || events[1].Message == nil || events[1].Message.ID != "m1" {
			t.Fatalf("%s: unexpected message event %+v", name, events[1])
		}
	}

	time.Sleep(20 * time.Millisecond)
	if got := len(otherConn.events(t)); got != 1 {
		t.Fatalf("other conversation must only see connected, got %d events", got)
	}
}

func TestClosedClientReceivesNothingFurther(t *testing.T) {
	hub := runHub(t)
	client, conn := openClient(t, hub, lab, key)
	waitFor(t, "connected event", func() bool { return len(conn.events(t)) == 1 })

	client.Close()
	if client.enqueue([]byte(`{}`)) {
		t.Fatal("enqueue must fail after close")
	}
	if err := hub.Publish(context.Background(), models.Message{ID: "late", ConversationKey: key}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if got := len(conn.events(t)); got != 1 {
		t.Fatalf("expected no events after close, got %d", got)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := runHub(t)
	conn := newFakeConn()
	client := NewClient(hub, conn, lab, key, patient.UserID)
	if err := client.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < sendBuffer+1; i++ {
		if err := hub.Publish(context.Background(), models.Message{ID: "m", ConversationKey: key}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	waitFor(t, "slow client drop", client.isClosed)
}

func TestRegisterAfterStopFails(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	client := NewClient(hub, newFakeConn(), lab, key, patient.UserID)
	if err := client.Open(); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	if err := hub.Publish(context.Background(), models.Message{}); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped from Publish, got %v", err)
	}
}

type stubSender struct {
	mu     sync.Mutex
	inputs []services.SendInput
	err    error
}

func (s *stubSender) Send(_ context.Context, actor models.Identity, input services.SendInput) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Message{ID: "stored-1", ConversationKey: input.ConversationKey, SenderID: actor.UserID}, nil
}

func TestReadPumpSendsThroughServiceAndAcks(t *testing.T) {
	hub := runHub(t)
	client, conn := openClient(t, hub, patient, key)
	sender := &stubSender{}
	done := make(chan struct{})
	go func() {
		client.ReadPump(context.Background(), sender)
		close(done)
	}()

	conn.inbound <- []byte(`{"event":"send","data":{"message":"Hello"},"sentDate":"2024-03-01","sentTime":"10:00"}`)
	conn.inbound <- []byte(`{"event":"typing"}`)

	waitFor(t, "ack and error events", func() bool { return len(conn.events(t)) == 3 })
	events := conn.events(t)
	if events[1].Event != EventAck || events[1].Ack == nil || events[1].Ack.ID != "stored-1" {
		t.Fatalf("unexpected ack %+v", events[1])
	}
	if events[2].Event != EventError || events[2].Code != "unsupported_event" {
		t.Fatalf("unexpected error event %+v", events[2])
	}

	sender.mu.Lock()
	input := sender.inputs[0]
	sender.mu.Unlock()
	if input.ConversationKey != key || input.SentTime != "10:00" {
		t.Fatalf("unexpected send input %+v", input)
	}

	_ = conn.Close()
	<-done
	if !client.isClosed() {
		t.Fatal("client must be closed after transport loss")
	}
}

func TestReadPumpReportsUnauthorized(t *testing.T) {
	hub := runHub(t)
	client, conn := openClient(t, hub, patient, key)
	go client.ReadPump(context.Background(), &stubSender{err: services.ErrUnauthorized})

	conn.inbound <- []byte(`{"event":"send","data":{"message":"Hello"},"sentDate":"2024-03-01","sentTime":"10:00"}`)
	waitFor(t, "error event", func() bool { return len(conn.events(t)) == 2 })
	if event := conn.events(t)[1]; event.Code != models.CodeUnauthorized || event.Retryable {
		t.Fatalf("unexpected error event %+v", event)
	}
	_ = conn.Close()
}
