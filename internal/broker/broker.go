// Package broker implements BrokerSession: one MQTT client per
// configured broker, each running its own connect/subscribe/reconnect
// state machine independent of every other session.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/pico-cs/mesh-ingest/internal/logger"
	"github.com/pico-cs/mesh-ingest/internal/topicfilter"
)

// State is a BrokerSession's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

const (
	reconnectDelay = 5 * time.Second
	connectTimeout = 30 * time.Second
	defaultQoS     = 0 // QoS 0: at-most-once, matches the firmware's own publishes
)

// Config describes one broker to connect to.
type Config struct {
	Name          string
	Address       string
	Username      string
	Password      string
	ForwardToChat bool
}

// Message is one inbound MQTT publish handed to the Supervisor's work
// queue, still unparsed.
type Message struct {
	Broker  string
	Topic   string
	Payload []byte
}

// BrokerSession owns one broker's MQTT client, its reconnect state,
// and a handle to the shared work queue it feeds. The Supervisor holds
// a collection of these keyed by broker name; the failure of one
// session never touches another.
type BrokerSession struct {
	cfg    Config
	lg     logger.Logger
	queue  chan<- Message
	client MQTT.Client

	mu    sync.RWMutex
	state State

	stop chan struct{}
	done chan struct{}
}

// New returns a BrokerSession for cfg that will deliver inbound
// messages to queue once Run is called.
func New(cfg Config, lg logger.Logger, queue chan<- Message) *BrokerSession {
	if lg == nil {
		lg = logger.Null
	}
	return &BrokerSession{
		cfg:   cfg,
		lg:    lg,
		queue: queue,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// State returns the session's current connection state.
func (s *BrokerSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *BrokerSession) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.lg.Printf("broker %s: %s -> %s", s.cfg.Name, prev, st)
	}
}

func clientID(componentTag, brokerName string) string {
	sanitized := brokerName
	return fmt.Sprintf("%s_%s_%s", componentTag, sanitized, uuid.NewString()[:8])
}

// Run drives the connect/subscribe/reconnect loop until Close is
// called. It blocks, so callers run it in its own goroutine.
func (s *BrokerSession) Run(componentTag string) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.setState(Connecting)
		if err := s.connectAndSubscribe(componentTag); err != nil {
			s.lg.Printf("broker %s: connect failed: %s", s.cfg.Name, err)
			s.setState(Disconnected)
			select {
			case <-time.After(reconnectDelay):
				continue
			case <-s.stop:
				return
			}
		}

		s.setState(Subscribed)
		<-s.awaitDisconnect()
		s.setState(Disconnected)

		select {
		case <-time.After(reconnectDelay):
		case <-s.stop:
			return
		}
	}
}

func (s *BrokerSession) connectAndSubscribe(componentTag string) error {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(s.cfg.Address)
	opts.SetClientID(clientID(componentTag, s.cfg.Name))
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetAutoReconnect(false) // this package owns reconnection, not the client library
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)

	client := MQTT.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("connect timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.client = client

	for _, filter := range topicfilter.Filters {
		subToken := client.Subscribe(filter, defaultQoS, s.handleMessage)
		if subToken.Wait() && subToken.Error() != nil {
			client.Disconnect(0)
			return fmt.Errorf("subscribe %s: %w", filter, subToken.Error())
		}
	}
	return nil
}

// awaitDisconnect returns a channel that closes once the underlying
// client reports it is no longer connected, polling at a modest
// interval since paho's client exposes connectivity via IsConnected
// rather than a disconnect channel.
func (s *BrokerSession) awaitDisconnect() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.client == nil || !s.client.IsConnected() {
					return
				}
			case <-s.stop:
				return
			}
		}
	}()
	return ch
}

func (s *BrokerSession) handleMessage(_ MQTT.Client, msg MQTT.Message) {
	m := Message{Broker: s.cfg.Name, Topic: msg.Topic(), Payload: msg.Payload()}
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.queue <- m:
	case <-s.stop:
	}
}

// Close stops the session's reconnect loop and disconnects the
// client, if connected. It blocks until Run has returned.
func (s *BrokerSession) Close(ctx context.Context) error {
	close(s.stop)
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
