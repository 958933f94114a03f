// Package groupbuf implements GroupBuffer: it accumulates the gateways
// that relayed one broadcast text message and hands the assembled set
// to a Notifier once no gateway has reported it for GroupWindow.
package groupbuf

import (
	"context"
	"sync"
	"time"

	"github.com/pico-cs/mesh-ingest/internal/notifier"
	"github.com/pico-cs/mesh-ingest/internal/topicfilter"
)

// GroupWindow is the default flush delay: how long a MessageGroup
// waits after its last observation before flushing.
const GroupWindow = 8 * time.Second

// messageGroup is the mutable per-packet-id accumulator. Its gateway
// membership map is keyed by gatewayId, so a relay repeating through
// the same gateway never produces a duplicate entry.
type messageGroup struct {
	id       uint32
	text     string
	sender   string
	channel  topicfilter.Channel
	gateways map[string]notifier.GatewayObservation
	timer    *time.Timer
}

// GroupBuffer owns the live MessageGroup table. Flushes run on their
// own timer goroutine and never block the caller of Observe.
type GroupBuffer struct {
	mu       sync.Mutex
	groups   map[uint32]*messageGroup
	window   time.Duration
	notifier notifier.Notifier
}

// New returns a GroupBuffer flushing to n after window of inactivity
// (GroupWindow if window is zero).
func New(n notifier.Notifier, window time.Duration) *GroupBuffer {
	if window <= 0 {
		window = GroupWindow
	}
	return &GroupBuffer{
		groups:   make(map[uint32]*messageGroup),
		window:   window,
		notifier: n,
	}
}

// Observe records one gateway's relay of packet id. If this is the
// first observation of id, a new MessageGroup is created with a flush
// timer; otherwise the existing group's membership and flush deadline
// are updated. text/sender/channel are only meaningful on first
// observation — later calls for the same id may pass them again
// (they're idempotent) since every relay carries the same payload.
func (g *GroupBuffer) Observe(id uint32, text, sender string, channel topicfilter.Channel, obs notifier.GatewayObservation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	grp, ok := g.groups[id]
	if !ok {
		grp = &messageGroup{
			id:       id,
			text:     text,
			sender:   sender,
			channel:  channel,
			gateways: make(map[string]notifier.GatewayObservation),
		}
		g.groups[id] = grp
	}
	grp.gateways[obs.GatewayID] = obs

	if grp.timer != nil {
		grp.timer.Stop()
	}
	grp.timer = time.AfterFunc(g.window, func() { g.flush(id) })
}

// flush removes the group for id and hands it to the Notifier. Called
// only from the group's own timer, so it never runs on the ingest path.
func (g *GroupBuffer) flush(id uint32) {
	g.mu.Lock()
	grp, ok := g.groups[id]
	if ok {
		delete(g.groups, id)
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	gateways := make([]notifier.GatewayObservation, 0, len(grp.gateways))
	for _, obs := range grp.gateways {
		gateways = append(gateways, obs)
	}

	msg := notifier.Message{
		ID:       id,
		Text:     grp.text,
		Sender:   grp.sender,
		Channel:  grp.channel,
		Gateways: gateways,
	}
	// The Notifier contract forbids blocking the ingest path; this
	// runs on the timer goroutine already, so a direct call is safe,
	// but a slow/unavailable sink must not wedge the shared timer
	// pool, so give it a bounded context.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = g.notifier.Notify(ctx, msg) // failures are the Notifier's own concern; see its contract
}

// Pending reports how many MessageGroups are currently buffered,
// awaiting flush. Used by the ops dashboard.
func (g *GroupBuffer) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.groups)
}

// Abandon drops every pending group without flushing it — used on a
// shutdown path that chooses not to wait out the remaining windows.
func (g *GroupBuffer) Abandon() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, grp := range g.groups {
		if grp.timer != nil {
			grp.timer.Stop()
		}
		delete(g.groups, id)
	}
}
