package broker

import (
	"context"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

// fakeMessage satisfies MQTT.Message with just enough behavior for
// handleMessage to route it onto the work queue.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestSession(queue chan Message) *BrokerSession {
	return New(Config{Name: "test-broker", Address: "tcp://unused:1883"}, nil, queue)
}

func testStateStringsAndTransitions(t *testing.T) {
	s := newTestSession(make(chan Message, 1))
	if s.State() != Disconnected {
		t.Fatalf("initial state = %s, want %s", s.State(), Disconnected)
	}

	s.setState(Connecting)
	if s.State() != Connecting {
		t.Fatalf("state = %s, want %s", s.State(), Connecting)
	}

	s.setState(Subscribed)
	if s.State() != Subscribed {
		t.Fatalf("state = %s, want %s", s.State(), Subscribed)
	}

	s.setState(Disconnected)
	if s.State() != Disconnected {
		t.Fatalf("state = %s, want %s", s.State(), Disconnected)
	}

	names := map[State]string{Disconnected: "disconnected", Connecting: "connecting", Subscribed: "subscribed", State(99): "unknown"}
	for st, want := range names {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}

func testHandleMessageDeliversToQueue(t *testing.T) {
	queue := make(chan Message, 1)
	s := newTestSession(queue)

	msg := fakeMessage{topic: "msh/2/e/LongFast/!abcd", payload: []byte("hello")}
	s.handleMessage(nil, msg)

	select {
	case got := <-queue:
		if got.Broker != "test-broker" || got.Topic != msg.topic || string(got.Payload) != "hello" {
			t.Errorf("queued message = %+v, want broker/topic/payload matching %+v", got, msg)
		}
	default:
		t.Fatal("expected a message on the queue")
	}
}

func testHandleMessageReturnsOnStop(t *testing.T) {
	// An unbuffered, never-drained queue means the send in handleMessage
	// can only proceed if s.stop is already closed.
	queue := make(chan Message)
	s := newTestSession(queue)
	close(s.stop)

	done := make(chan struct{})
	go func() {
		s.handleMessage(nil, fakeMessage{topic: "msh/2/map/", payload: nil})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleMessage blocked instead of returning via the closed stop channel")
	}
}

func testCloseReturnsOnceDone(t *testing.T) {
	s := newTestSession(make(chan Message, 1))

	go func() {
		<-s.stop
		close(s.done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func testCloseTimesOutIfRunNeverExits(t *testing.T) {
	s := newTestSession(make(chan Message, 1))
	// s.done is never closed: Run is never started in this test, so the
	// session must respect ctx's deadline rather than hang forever.

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Close(ctx); err != ctx.Err() {
		t.Fatalf("Close error = %v, want %v", err, ctx.Err())
	}
}

func testHandleMessageDoesNotPanicAfterQueueClosedPostStop(t *testing.T) {
	// Mirrors the shutdown ordering a Supervisor must respect: once a
	// session's stop channel is closed, handleMessage must never touch
	// the (possibly since-closed) queue again, even if called again.
	queue := make(chan Message, 1)
	s := newTestSession(queue)
	close(s.stop)
	close(queue)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("handleMessage panicked after stop was closed: %v", r)
		}
	}()
	s.handleMessage(nil, fakeMessage{topic: "msh/2/map/", payload: nil})
}

func TestBrokerSession(t *testing.T) {
	tests := []struct {
		name string
		fct  func(t *testing.T)
	}{
		{"state-strings-and-transitions", testStateStringsAndTransitions},
		{"handle-message-delivers-to-queue", testHandleMessageDeliversToQueue},
		{"handle-message-returns-on-stop", testHandleMessageReturnsOnStop},
		{"close-returns-once-done", testCloseReturnsOnceDone},
		{"close-times-out-if-run-never-exits", testCloseTimesOutIfRunNeverExits},
		{"handle-message-no-panic-after-queue-closed-post-stop", testHandleMessageDoesNotPanicAfterQueueClosedPostStop},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) { test.fct(t) })
	}
}

var _ MQTT.Message = fakeMessage{}
