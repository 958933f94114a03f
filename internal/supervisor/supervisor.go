// Package supervisor wires the ingest pipeline end to end: it owns
// the BrokerSession collection, the bounded work queue between them
// and the worker pool, and runs every inbound message through
// Codec -> PortRouter -> Deduper -> Store + MapAggregator ->
// (GroupBuffer ->) Notifier.
package supervisor

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pico-cs/mesh-ingest/internal/broker"
	"github.com/pico-cs/mesh-ingest/internal/dedup"
	"github.com/pico-cs/mesh-ingest/internal/errs"
	"github.com/pico-cs/mesh-ingest/internal/groupbuf"
	"github.com/pico-cs/mesh-ingest/internal/logger"
	"github.com/pico-cs/mesh-ingest/internal/mapagg"
	"github.com/pico-cs/mesh-ingest/internal/meshproto"
	"github.com/pico-cs/mesh-ingest/internal/notifier"
	"github.com/pico-cs/mesh-ingest/internal/opsserver"
	"github.com/pico-cs/mesh-ingest/internal/portrouter"
	"github.com/pico-cs/mesh-ingest/internal/store"
	"github.com/pico-cs/mesh-ingest/internal/topicfilter"
)

var _ opsserver.StatusSource = (*Supervisor)(nil)

// DefaultQueueSize is the bounded work queue's capacity between
// BrokerSessions and the worker pool.
const DefaultQueueSize = 1000

// DefaultWorkers is the default worker pool width.
const DefaultWorkers = 10

// Config bundles everything the Supervisor needs besides its
// collaborators: broker list, worker count, decryption keys.
type Config struct {
	Brokers        []broker.Config
	Workers        int
	QueueSize      int
	DecryptionKeys []meshproto.Key
	ComponentTag   string
}

// Supervisor owns the BrokerSession collection and the worker pool
// draining their shared queue.
type Supervisor struct {
	cfg      Config
	lg       logger.Logger
	queue    chan broker.Message
	sessions map[string]*broker.BrokerSession

	store    store.Store
	dedupe   *dedup.Deduper
	mapagg   *mapagg.MapAggregator
	groupbuf *groupbuf.GroupBuffer
}

// New builds a Supervisor. s/d/m/g are the already-constructed
// collaborators (Store, Deduper, MapAggregator, GroupBuffer); the
// Supervisor does not own their lifecycle beyond the shutdown order
// described in Close.
func New(cfg Config, lg logger.Logger, s store.Store, d *dedup.Deduper, m *mapagg.MapAggregator, g *groupbuf.GroupBuffer) *Supervisor {
	if lg == nil {
		lg = logger.Null
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	sup := &Supervisor{
		cfg:      cfg,
		lg:       lg,
		queue:    make(chan broker.Message, cfg.QueueSize),
		sessions: make(map[string]*broker.BrokerSession),
		store:    s,
		dedupe:   d,
		mapagg:   m,
		groupbuf: g,
	}
	for _, bc := range cfg.Brokers {
		sup.sessions[bc.Name] = broker.New(bc, lg, sup.queue)
	}
	return sup
}

// Run starts every BrokerSession and the worker pool, blocking until
// ctx is canceled. An uncaught failure in a worker is logged and the
// pool continues rather than tearing the whole pipeline down.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, session := range s.sessions {
		go session.Run(s.cfg.ComponentTag)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			s.workerLoop(gctx)
			return nil
		})
	}

	<-ctx.Done()
	return g.Wait()
}

func (s *Supervisor) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			s.process(ctx, msg)
		}
	}
}

// process runs one inbound MQTT message through the full pipeline.
// Any decode/validation failure is dropped silently; only unsuppressed
// errors are logged.
func (s *Supervisor) process(ctx context.Context, msg broker.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.lg.Printf("worker: recovered from panic processing %s from %s: %v", msg.Topic, msg.Broker, r)
		}
	}()

	parsed, ok := topicfilter.Parse(msg.Topic)
	if !ok || parsed.Type == topicfilter.TypeStat {
		return
	}

	switch parsed.Type {
	case topicfilter.TypeJSON:
		s.processJSON(ctx, msg, parsed)
	default:
		s.processBinary(ctx, msg, parsed)
	}
}

func (s *Supervisor) processBinary(ctx context.Context, msg broker.Message, parsed topicfilter.Parsed) {
	env, err := meshproto.DecodeEnvelope(msg.Payload)
	if err != nil {
		s.logFailure(errs.KindValidation, "decode envelope", err)
		return
	}

	data := env.Packet.Decoded
	if data == nil {
		data, _, err = meshproto.Decrypt(&env.Packet, s.cfg.DecryptionKeys)
		if err != nil {
			s.logFailure(errs.KindDecrypt, "decrypt", err)
			return
		}
	}

	s.dispatch(ctx, dispatchInput{
		broker:    msg.Broker,
		topic:     msg.Topic,
		gatewayID: env.GatewayID,
		id:        env.Packet.ID,
		from:      env.Packet.From,
		to:        env.Packet.To,
		rxTime:    int64(env.Packet.RxTime) * 1000,
		rxSnr:     env.Packet.RxSnr,
		rxRssi:    env.Packet.RxRssi,
		hopLimit:  env.Packet.HopLimit,
		data:      data,
	})
}

func (s *Supervisor) processJSON(ctx context.Context, msg broker.Message, parsed topicfilter.Parsed) {
	je, err := meshproto.ParseJSONEnvelope(msg.Payload)
	if err != nil {
		s.logFailure(errs.KindDecode, "parse json envelope", err)
		return
	}
	pkt := je.ToMeshPacket()

	s.dispatch(ctx, dispatchInput{
		broker:    msg.Broker,
		topic:     msg.Topic,
		gatewayID: je.GatewayID(),
		id:        je.Uint32("id"),
		from:      pkt.From,
		to:        pkt.To,
		rxTime:    time.Now().UnixMilli(),
		rxSnr:     pkt.RxSnr,
		rxRssi:    pkt.RxRssi,
		hopLimit:  pkt.HopLimit,
		data:      &meshproto.Data{Portnum: jsonPortnum(je.PortnumName())},
	})
}

type dispatchInput struct {
	broker    string
	topic     string
	gatewayID string
	id        uint32
	from      uint32
	to        uint32
	rxTime    int64
	rxSnr     float32
	rxRssi    int32
	hopLimit  uint32
	data      *meshproto.Data
}

// dispatch runs the shared PortRouter -> Deduper -> Store +
// MapAggregator -> GroupBuffer tail once a packet has been decoded or
// decrypted, regardless of whether it arrived binary or JSON.
func (s *Supervisor) dispatch(ctx context.Context, in dispatchInput) {
	broadcast := in.to == topicfilter.Broadcast
	allowedRegion := topicfilter.IsAllowed(in.topic)

	route, err := portrouter.RouteData(in.data, broadcast, allowedRegion)
	if err != nil {
		s.logFailure(errs.KindDecode, "route payload", err)
		return
	}

	deviceID := strconv.FormatUint(uint64(in.from), 10)
	allowed, err := s.dedupe.AllowAppend(ctx, in.from, uint32(in.data.Portnum), in.rxTime)
	if err != nil {
		s.logFailure(errs.KindStore, "dedup gate", err)
		return
	}
	if allowed {
		rec := store.PortnumRecord{
			Timestamp: time.Now().UnixMilli(),
			From:      in.from,
			To:        in.to,
			RxTime:    in.rxTime,
			RxSnr:     in.rxSnr,
			RxRssi:    in.rxRssi,
			HopLimit:  in.hopLimit,
			GatewayID: in.gatewayID,
			Broker:    in.broker,
			RawData:   in.data,
		}
		if err := s.store.AppendPortnum(ctx, string(route.PortName), deviceID, rec); err != nil {
			s.logFailure(errs.KindStore, "append portnum", err)
		}
	}

	if portrouter.Known(in.data.Portnum) {
		if err := s.mapagg.UpdateFromPortnum(ctx, in.from, route, in.gatewayID, time.Now().Unix()); err != nil {
			s.logFailure(errs.KindStore, "map aggregate", err)
		}
	}

	if route.Groupable && s.groupbuf != nil {
		text := string(in.data.Payload)
		s.groupbuf.Observe(in.id, text, "", topicfilter.ChannelFor(in.topic), notifier.GatewayObservation{
			GatewayID: in.gatewayID,
			HopLimit:  in.hopLimit,
			RxRssi:    in.rxRssi,
			RxSnr:     in.rxSnr,
			Broker:    in.broker,
		})
	}
}

func jsonPortnum(name string) meshproto.Portnum {
	switch name {
	case "text":
		return meshproto.PortnumTextMessage
	case "position":
		return meshproto.PortnumPosition
	case "nodeinfo":
		return meshproto.PortnumNodeInfo
	default:
		return meshproto.Portnum(0)
	}
}

func (s *Supervisor) logFailure(kind errs.Kind, op string, err error) {
	wrapped := errs.New(kind, op, err)
	if errs.Suppressed(err) {
		return
	}
	s.lg.Printf("%s", wrapped)
}

// BrokerStatuses reports each BrokerSession's current state, for the
// ops dashboard and readiness probe.
func (s *Supervisor) BrokerStatuses() []opsserver.BrokerStatus {
	out := make([]opsserver.BrokerStatus, 0, len(s.sessions))
	for name, session := range s.sessions {
		out = append(out, opsserver.BrokerStatus{Name: name, State: session.State().String()})
	}
	return out
}

// GroupBufferPending reports how many MessageGroups are buffered,
// awaiting flush. Zero when no GroupBuffer is configured.
func (s *Supervisor) GroupBufferPending() int {
	if s.groupbuf == nil {
		return 0
	}
	return s.groupbuf.Pending()
}

// Close stops every BrokerSession first, so handleMessage can no
// longer attempt to send on the work queue, only then closes the
// queue itself, and finally closes the Store. It does not wait for the
// worker pool: workers stop once Run's context is canceled, and
// messages still buffered in the queue at that point are not
// guaranteed to be processed.
func (s *Supervisor) Close(ctx context.Context) error {
	for _, session := range s.sessions {
		if err := session.Close(ctx); err != nil {
			s.lg.Printf("close broker session %s: %s", session.State(), err)
		}
	}
	close(s.queue)
	return s.store.Close()
}
