package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = time.Second

type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QueueSize   int
}

type sample struct {
	name  string
	value float32
	seq   uint64
}

// Payload is the JSON body of every telemetry message.
type Payload struct {
	Value float32 `json:"value"`
	Seq   uint64  `json:"seq"`
}

// MQTT publishes samples to <prefix>/<name>. Samples wait in a bounded queue
// drained by one goroutine; when the queue is full they are dropped.
type MQTT struct {
	client mqtt.Client
	prefix string
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan sample
	done   chan struct{}

	seq     atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Dial connects to the broker and starts the publisher.
func Dial(opts Options, logger *log.Logger) (*MQTT, error) {
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, token.Error())
	}
	return NewMQTT(client, opts.TopicPrefix, opts.QueueSize, logger), nil
}

// NewMQTT wraps a connected client.
func NewMQTT(client mqtt.Client, prefix string, queueSize int, logger *log.Logger) *MQTT {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &MQTT{
		client: client,
		prefix: prefix,
		logger: logger,
		queue:  make(chan sample, queueSize),
		done:   make(chan struct{}),
	}
	go m.drain()
	return m
}

func (m *MQTT) Publish(name string, value float32) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- sample{name: name, value: value, seq: m.seq.Add(1)}:
	default:
		m.dropped.Add(1)
	}
}

func (m *MQTT) Topic(name string) string {
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

func (m *MQTT) drain() {
	defer close(m.done)
	for s := range m.queue {
		payload, err := json.Marshal(Payload{Value: s.value, Seq: s.seq})
		if err != nil {
			m.logger.Printf("telemetry: marshal %s: %v", s.name, err)
			continue
		}
		token := m.client.Publish(m.Topic(s.name), 0, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			m.fail(s.name, fmt.Errorf("timeout after %v", publishTimeout))
			continue
		}
		if err := token.Error(); err != nil {
			m.fail(s.name, err)
		}
	}
}

func (m *MQTT) fail(name string, err error) {
	if n := m.failed.Add(1); n == 1 || n%100 == 0 {
		m.logger.Printf("telemetry: publish %s: %v (%d failures)", name, err, n)
	}
}

// Dropped is the number of samples lost to a full queue.
func (m *MQTT) Dropped() uint64 { return m.dropped.Load() }

// Failed is the number of samples the broker did not accept.
func (m *MQTT) Failed() uint64 { return m.failed.Load() }

// Close flushes the queue and disconnects. Later samples are ignored.
func (m *MQTT) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	<-m.done
	m.client.Disconnect(250)
}
