// Package mirror republishes panel session state to an MQTT broker so other
// tools can follow what the panel is doing. It is read-only: nothing received
// from the broker is acted upon.
package mirror

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/config"
	"github.com/dokzlo13/trulight/internal/eventbus"
	"github.com/dokzlo13/trulight/internal/panel"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// closedTTL is how long a closed session's events keep being discarded
const closedTTL = time.Minute

// Publisher is the subset of mqtt.Client the mirror needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Mirror publishes state and layout events for every panel session.
//
// Topics:
//
//	<prefix>/availability              online / offline (retained, also the LWT)
//	<prefix>/sessions/<id>/state       JSON snapshot (retained)
//	<prefix>/sessions/<id>/layout      "true" when compact (retained)
//
// Bus handlers run out of order, so state is only published when its version
// is newer than the last one published for the session, and events that
// arrive after a session closed are discarded.
type Mirror struct {
	client  mqtt.Client
	pub     Publisher
	prefix  string
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	versions map[string]uint64
	closed   map[string]time.Time
}

// New creates a Mirror backed by a paho client. Call Connect before events flow.
func New(cfg config.MQTTConfig) *Mirror {
	m := &Mirror{
		prefix:   cfg.TopicPrefix,
		timeout:  cfg.Timeout.Duration(),
		now:      time.Now,
		versions: make(map[string]uint64),
		closed:   make(map[string]time.Time),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWill(m.topic("availability"), availabilityOffline, 1, true)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT mirror connected")
		go m.publish("availability", availabilityOnline)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost, reconnecting in background")
	})

	m.client = mqtt.NewClient(opts)
	m.pub = m.client
	return m
}

// NewWithPublisher creates a Mirror over an existing publisher
func NewWithPublisher(pub Publisher, prefix string, timeout time.Duration) *Mirror {
	return &Mirror{
		pub:      pub,
		prefix:   prefix,
		timeout:  timeout,
		now:      time.Now,
		versions: make(map[string]uint64),
		closed:   make(map[string]time.Time),
	}
}

// Connect blocks until the first connection succeeds.
// With connect retry enabled this only returns an error for configuration problems.
func (m *Mirror) Connect() error {
	if m.client == nil {
		return nil
	}
	token := m.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Attach subscribes the mirror to panel events on the bus
func (m *Mirror) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeState, m.handle)
	bus.Subscribe(eventbus.EventTypeLayout, m.handle)
	bus.Subscribe(eventbus.EventTypeSessionClosed, m.handle)
}

// Disconnect announces offline and closes the connection
func (m *Mirror) Disconnect() {
	if m.client == nil || !m.client.IsConnected() {
		return
	}
	m.publish("availability", availabilityOffline)
	m.client.Disconnect(250)
	log.Info().Msg("MQTT mirror disconnected")
}

func (m *Mirror) handle(e eventbus.Event) {
	switch e.Type {
	case eventbus.EventTypeState:
		snap, ok := e.Data["snapshot"].(panel.Snapshot)
		if !ok {
			return
		}
		data, err := json.Marshal(snap)
		if err != nil {
			log.Warn().Err(err).Str("session", e.Session).Msg("Failed to encode snapshot for MQTT")
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.isClosedLocked(e.Session) {
			return
		}
		if last, seen := m.versions[e.Session]; seen && snap.Version <= last {
			return
		}
		m.versions[e.Session] = snap.Version
		m.publish(sessionTopic(e.Session, "state"), data)

	case eventbus.EventTypeLayout:
		compact, ok := e.Data["compact"].(bool)
		if !ok {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.isClosedLocked(e.Session) {
			return
		}
		m.publish(sessionTopic(e.Session, "layout"), strconv.FormatBool(compact))

	case eventbus.EventTypeSessionClosed:
		m.mu.Lock()
		defer m.mu.Unlock()
		now := m.now()
		for id, at := range m.closed {
			if now.Sub(at) > closedTTL {
				delete(m.closed, id)
			}
		}
		delete(m.versions, e.Session)
		m.closed[e.Session] = now

		// Empty retained payloads remove the retained messages
		m.publish(sessionTopic(e.Session, "state"), "")
		m.publish(sessionTopic(e.Session, "layout"), "")
	}
}

func (m *Mirror) isClosedLocked(session string) bool {
	_, ok := m.closed[session]
	return ok
}

func (m *Mirror) publish(subtopic string, payload interface{}) {
	if m.client != nil && !m.client.IsConnected() {
		return
	}
	token := m.pub.Publish(m.topic(subtopic), 0, true, payload)
	if !token.WaitTimeout(m.timeout) {
		log.Debug().Str("topic", subtopic).Msg("MQTT publish not acknowledged in time")
		return
	}
	if err := token.Error(); err != nil {
		log.Debug().Err(err).Str("topic", subtopic).Msg("MQTT publish failed")
	}
}

func sessionTopic(session, leaf string) string {
	return "sessions/" + session + "/" + leaf
}

func (m *Mirror) topic(subtopic string) string {
	return m.prefix + "/" + subtopic
}
