package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/lightpanel/internal/eventlog"
)

// DefaultBuffer is the number of messages held while disconnected.
const DefaultBuffer = 256

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics
	Buffer   int
	Logger   *log.Logger

	// OnConnectionChange is called whenever the broker connection comes up
	// or goes down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Log lines are queued
// and sent from a background goroutine so PublishLog never blocks; while
// the broker is unreachable they are kept in a ring buffer and replayed on
// reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *log.Logger

	mu   sync.Mutex
	buf  *ringBuffer
	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	onChange func(bool)
}

// NewRealPublisher connects to the configured broker. A broker that is
// not yet reachable is not an error: the client keeps retrying and queued
// messages are flushed once it connects.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt: no broker configured")
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultPrefix
	}
	if opts.Topics == (Topics{}) {
		opts.Topics = NewTopics(DefaultPrefix)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	p := &RealPublisher{
		topics:   opts.Topics,
		logger:   opts.Logger.WithPrefix("mqtt"),
		buf:      newRingBuffer(opts.Buffer),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		onChange: opts.OnConnectionChange,
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(opts.Topics.System, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			p.logger.Info("connected", "broker", opts.Broker)
			p.notify(true)
			p.kick()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("connection lost", "err", err)
			p.notify(false)
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.logger.Warn("broker not reachable yet, buffering", "broker", opts.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	p.wg.Add(1)
	go p.loop()
	return p, nil
}

// PublishLog queues an event-log line (QoS 0, not retained).
func (p *RealPublisher) PublishLog(entry eventlog.Entry) error {
	payload, err := FormatLogPayload(entry)
	if err != nil {
		return fmt.Errorf("format log payload: %w", err)
	}
	p.enqueue(bufferedMsg{topic: p.topics.Log, payload: payload})
	p.kick()
	return nil
}

// PublishSystem sends a lifecycle event with QoS 1. When disconnected the
// event is buffered instead.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	msg := bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained}
	if !p.client.IsConnectionOpen() {
		p.enqueue(msg)
		return nil
	}
	return p.send(msg)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close flushes what it can and disconnects from the broker.
func (p *RealPublisher) Close() error {
	close(p.done)
	p.wg.Wait()
	p.flush()
	p.client.Disconnect(1000)
	return nil
}

func (p *RealPublisher) enqueue(msg bufferedMsg) {
	p.mu.Lock()
	first := p.buf.push(msg)
	size := p.buf.capacity
	p.mu.Unlock()
	if first {
		p.logger.Warn("buffer full, dropping oldest", "capacity", size)
	}
}

func (p *RealPublisher) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *RealPublisher) notify(connected bool) {
	if p.onChange != nil {
		p.onChange(connected)
	}
}

func (p *RealPublisher) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
			p.flush()
		}
	}
}

// flush sends buffered messages in order, stopping at the first failure
// and putting the unsent remainder back.
func (p *RealPublisher) flush() {
	if !p.client.IsConnectionOpen() {
		return
	}
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	for i, m := range msgs {
		if err := p.send(m); err != nil {
			p.logger.Warn("publish failed, requeueing", "topic", m.topic, "pending", len(msgs)-i, "err", err)
			p.mu.Lock()
			p.buf.pushFront(msgs[i:])
			p.mu.Unlock()
			return
		}
	}
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}
