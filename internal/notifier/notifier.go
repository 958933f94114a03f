// Package notifier formats and forwards a flushed MessageGroup to a
// chat channel. This package only defines and exercises the Notifier
// contract; the concrete sink is Slack, since the pipeline treats the
// Notifier as an external collaborator.
package notifier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pico-cs/mesh-ingest/internal/topicfilter"
)

// GatewayObservation is one gateway's report of a message, the unit
// a MessageGroup accumulates per member.
type GatewayObservation struct {
	GatewayID string
	HopLimit  uint32
	RxRssi    int32
	RxSnr     float32
	Broker    string
}

// Message is the fully assembled notification a flushed MessageGroup
// produces.
type Message struct {
	ID       uint32
	Text     string
	Sender   string // best-effort NodeInfo/Dot name, may be empty
	Channel  topicfilter.Channel
	Gateways []GatewayObservation
}

// Noop discards every message. Used when no chat sink is configured,
// so the GroupBuffer still has somewhere to flush to.
type Noop struct{}

// Notify implements Notifier by doing nothing.
func (Noop) Notify(context.Context, Message) error { return nil }

// Notifier forwards a flushed MessageGroup to its chat channel. It
// MUST NOT block the ingest path: implementations should hand off to
// their own goroutine/queue if the underlying transport can stall.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// renderHopLimit maps a raw hopLimit to its display label: 7 means the
// message arrived with a full hop budget (direct reception), anything
// below counts hops taken from the default budget of 7.
func renderHopLimit(hopLimit uint32) string {
	if hopLimit == 7 {
		return "Direct"
	}
	if hopLimit > 7 {
		return fmt.Sprintf("%d Hop", hopLimit)
	}
	return fmt.Sprintf("%d Hop", 7-hopLimit)
}

// renderGateway formats one gateway's delivery line. A gateway with
// both rxRssi and rxSnr at zero is a pure-MQTT relay (no RF reception
// of its own), rendered with a marker instead of numeric noise.
func renderGateway(g GatewayObservation) string {
	if g.RxRssi == 0 && g.RxSnr == 0 {
		return fmt.Sprintf("%s (MQTT, %s)", g.GatewayID, renderHopLimit(g.HopLimit))
	}
	return fmt.Sprintf("%s (rssi=%d snr=%.1f, %s)", g.GatewayID, g.RxRssi, g.RxSnr, renderHopLimit(g.HopLimit))
}

// Render builds the plain-text body sent to the chat channel: the
// text, the best-effort sender label, and one line per observing
// gateway sorted by id for stable output.
func Render(msg Message) string {
	var b strings.Builder
	if msg.Sender != "" {
		fmt.Fprintf(&b, "%s: %s\n", msg.Sender, msg.Text)
	} else {
		fmt.Fprintf(&b, "%s\n", msg.Text)
	}

	gateways := append([]GatewayObservation(nil), msg.Gateways...)
	sort.Slice(gateways, func(i, j int) bool { return gateways[i].GatewayID < gateways[j].GatewayID })
	for _, g := range gateways {
		fmt.Fprintf(&b, "  via %s\n", renderGateway(g))
	}
	return b.String()
}

// processedTTL is how long the Notifier remembers a (id, gatewayId,
// broker) tuple it has already forwarded. This set is kept in-process,
// separate from the Deduper's store-backed markers, and cleared after
// this long rather than via an external TTL store.
const processedTTL = 10 * time.Minute

// DedupingNotifier wraps a Notifier with an in-process
// processed-message set: a message is forwarded to the inner Notifier
// only if at least one of its (id, gatewayId, broker) tuples has not
// been forwarded before, so a duplicate flush of the same id is
// dropped whatever order its gateways are listed in.
type DedupingNotifier struct {
	inner Notifier

	mu        sync.Mutex
	processed map[string]time.Time
}

// NewDeduping wraps inner with the processed-message gate.
func NewDeduping(inner Notifier) *DedupingNotifier {
	return &DedupingNotifier{inner: inner, processed: make(map[string]time.Time)}
}

func (n *DedupingNotifier) Notify(ctx context.Context, msg Message) error {
	n.mu.Lock()
	now := time.Now()
	for key, seenAt := range n.processed {
		if now.Sub(seenAt) > processedTTL {
			delete(n.processed, key)
		}
	}

	keys := make([]string, 0, len(msg.Gateways))
	fresh := len(msg.Gateways) == 0
	for _, g := range msg.Gateways {
		key := fmt.Sprintf("%d:%s:%s", msg.ID, g.GatewayID, g.Broker)
		keys = append(keys, key)
		if _, seen := n.processed[key]; !seen {
			fresh = true
		}
	}
	if !fresh {
		n.mu.Unlock()
		return nil
	}
	for _, key := range keys {
		n.processed[key] = now
	}
	n.mu.Unlock()

	return n.inner.Notify(ctx, msg)
}
