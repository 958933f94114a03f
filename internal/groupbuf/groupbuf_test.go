package groupbuf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pico-cs/mesh-ingest/internal/notifier"
	"github.com/pico-cs/mesh-ingest/internal/topicfilter"
)

type capturingNotifier struct {
	mu    sync.Mutex
	calls []notifier.Message
	done  chan struct{}
}

func newCapturingNotifier() *capturingNotifier {
	return &capturingNotifier{done: make(chan struct{}, 10)}
}

func (c *capturingNotifier) Notify(_ context.Context, msg notifier.Message) error {
	c.mu.Lock()
	c.calls = append(c.calls, msg)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func (c *capturingNotifier) waitForFlush(t *testing.T) notifier.Message {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

func testSingleGatewayFlush(t *testing.T) {
	n := newCapturingNotifier()
	gb := New(n, 30*time.Millisecond)

	gb.Observe(1, "hello", "Alice", topicfilter.ChannelMain, notifier.GatewayObservation{GatewayID: "!gwA"})
	msg := n.waitForFlush(t)

	if msg.Text != "hello" || len(msg.Gateways) != 1 {
		t.Errorf("msg = %+v", msg)
	}
}

func testRepeatedGatewayDoesNotDuplicate(t *testing.T) {
	n := newCapturingNotifier()
	gb := New(n, 40*time.Millisecond)

	gb.Observe(2, "hi", "", topicfilter.ChannelMain, notifier.GatewayObservation{GatewayID: "!gwA"})
	gb.Observe(2, "hi", "", topicfilter.ChannelMain, notifier.GatewayObservation{GatewayID: "!gwA"})
	msg := n.waitForFlush(t)

	if len(msg.Gateways) != 1 {
		t.Errorf("expected deduped membership, got %d entries", len(msg.Gateways))
	}
}

func testTwoGatewaysCollapseIntoOneFlush(t *testing.T) {
	n := newCapturingNotifier()
	gb := New(n, 50*time.Millisecond)

	gb.Observe(3, "relay test", "", topicfilter.ChannelMain, notifier.GatewayObservation{GatewayID: "!gwA"})
	time.Sleep(20 * time.Millisecond)
	gb.Observe(3, "relay test", "", topicfilter.ChannelMain, notifier.GatewayObservation{GatewayID: "!gwB"})

	msg := n.waitForFlush(t)
	if len(msg.Gateways) != 2 {
		t.Errorf("expected both gateways in one flush, got %d", len(msg.Gateways))
	}
}

func testAbandonDropsPendingGroups(t *testing.T) {
	n := newCapturingNotifier()
	gb := New(n, time.Hour)
	gb.Observe(4, "never flushed", "", topicfilter.ChannelMain, notifier.GatewayObservation{GatewayID: "!gwA"})

	if gb.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", gb.Pending())
	}
	gb.Abandon()
	if gb.Pending() != 0 {
		t.Errorf("Pending() after Abandon = %d, want 0", gb.Pending())
	}
}

func TestGroupBuffer(t *testing.T) {
	tests := []struct {
		name string
		fct  func(t *testing.T)
	}{
		{"single-gateway-flush", testSingleGatewayFlush},
		{"repeated-gateway-does-not-duplicate", testRepeatedGatewayDoesNotDuplicate},
		{"two-gateways-collapse-into-one-flush", testTwoGatewaysCollapseIntoOneFlush},
		{"abandon-drops-pending-groups", testAbandonDropsPendingGroups},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) { test.fct(t) })
	}
}
