package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"gortlbridge/shared"
	"gortlbridge/utils"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	publishTimeout = 5 * time.Second
	queueSize      = 1024
)

// Client is the subset of mqtt.Client the publisher uses.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Restarter receives restart commands from the broker.
type Restarter interface {
	RestartRadios()
	RestartRadio(key string) bool
}

// Topics builds every topic the bridge publishes or listens on.
type Topics struct {
	Prefix   string
	Suffix   string
	BridgeID string
}

func TopicsFromConfig(cfg *shared.Config) Topics {
	return Topics{
		Prefix:   strings.TrimSuffix(cfg.Bridge.TopicPrefix, "/"),
		Suffix:   cfg.Bridge.IDSuffix,
		BridgeID: utils.CleanID(cfg.Bridge.ID),
	}
}

func (t Topics) bridge() string {
	return t.Prefix + "/status/rtl_bridge" + t.Suffix
}

// Availability is the retained online/offline topic, also used as last will.
func (t Topics) Availability() string { return t.bridge() + "/availability" }

// Restart is the command topic that restarts every radio.
func (t Topics) Restart() string { return t.bridge() + "/restart/set" }

// RestartFilter matches both the global and the per-radio restart topics.
func (t Topics) RestartFilter() string { return t.bridge() + "/restart/#" }

// RestartRadio is the command topic that restarts one radio.
func (t Topics) RestartRadio(key string) string {
	return t.bridge() + "/restart/" + key + "/set"
}

// Sensor is the state topic of one device field.
func (t Topics) Sensor(deviceID, field string) string {
	return t.Prefix + "/rtl_devices/" + deviceID + "/" + field
}

// Status is the state topic of one radio.
func (t Topics) Status(radioID string) string {
	return t.Sensor(t.BridgeID, "radio_status_"+shared.SafeStatusSuffix(radioID))
}

// ClientOptions configures paho for the bridge: a last will on the
// availability topic, automatic reconnects and a random client id when none
// is configured.
func ClientOptions(cfg *shared.Config, topics Topics) *mqtt.ClientOptions {
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "gortlbridge-" + uuid.NewString()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.MQTT.User)
	opts.SetPassword(cfg.MQTT.Pass)
	if cfg.MQTT.KeepAlive > 0 {
		opts.SetKeepAlive(time.Duration(cfg.MQTT.KeepAlive) * time.Second)
	}
	opts.SetWill(topics.Availability(), payloadOffline, cfg.MQTT.QoS, true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	return opts
}

type message struct {
	topic    string
	payload  string
	retained bool
}

// MQTT publishes state, status and battery topics. Publish calls only
// enqueue; Run drains the queue to the broker.
type MQTT struct {
	client    Client
	topics    Topics
	qos       byte
	restarter Restarter
	queue     chan message
	broker    string
}

// NewMQTT wraps an existing client. FromConfig builds one from the
// configuration.
func NewMQTT(client Client, topics Topics, qos byte, restarter Restarter) *MQTT {
	return &MQTT{
		client:    client,
		topics:    topics,
		qos:       qos,
		restarter: restarter,
		queue:     make(chan message, queueSize),
	}
}

// FromConfig builds the paho client for cfg without connecting it.
func FromConfig(cfg *shared.Config) *MQTT {
	topics := TopicsFromConfig(cfg)
	opts := ClientOptions(cfg, topics)

	m := NewMQTT(nil, topics, cfg.MQTT.QoS, nil)
	opts.SetOnConnectHandler(func(c mqtt.Client) { m.OnConnect(c) })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", "err", err)
	})
	m.client = mqtt.NewClient(opts)
	m.broker = fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port)
	return m
}

// Connect sets the restart command target and connects. With connect retry
// enabled the broker may come up later; Connect only fails on a hard error.
func (m *MQTT) Connect(restarter Restarter) error {
	m.restarter = restarter

	log.Infof("connecting to MQTT broker %s", m.broker)
	token := m.client.Connect()
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}
	return nil
}

// OnConnect marks the bridge online and (re)subscribes to the restart
// commands. paho calls it after every successful connect.
func (m *MQTT) OnConnect(c Client) {
	log.Info("connected to MQTT broker")
	c.Publish(m.topics.Availability(), m.qos, true, payloadOnline)

	if m.restarter == nil {
		return
	}
	filter := m.topics.RestartFilter()
	if token := c.Subscribe(filter, m.qos, m.handler()); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.Error("Subscription error", "topic", filter, "err", token.Error())
		return
	}
	log.Infof("subscribed to topic: ['%s'] with Qos: [%d]", filter, m.qos)
}

func (m *MQTT) handler() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		m.HandleCommand(msg.Topic())
	}
}

// HandleCommand dispatches a restart command topic. It reports whether the
// topic was recognized.
func (m *MQTT) HandleCommand(topic string) bool {
	log.Infof("Received MQTT message from topic: \x1b[33m%s\x1b[0m", topic)
	if m.restarter == nil || !utils.TopicMatches(m.topics.RestartFilter(), topic) {
		return false
	}
	if topic == m.topics.Restart() {
		m.restarter.RestartRadios()
		return true
	}
	seg := utils.TopicSegments(m.topics.bridge()+"/restart", topic)
	if len(seg) != 2 || seg[1] != "set" || seg[0] == "" {
		log.Warn("Ignoring unknown restart topic", "topic", topic)
		return false
	}
	if !m.restarter.RestartRadio(seg[0]) {
		log.Warn("Restart requested for unknown radio", "radio", seg[0])
		return false
	}
	return true
}

func (m *MQTT) enqueue(msg message) {
	select {
	case m.queue <- msg:
	default:
		log.Warn("MQTT queue full, dropping message", "topic", msg.topic)
	}
}

func (m *MQTT) PublishStatus(ev shared.StatusEvent) {
	m.enqueue(message{topic: m.topics.Status(ev.RadioID), payload: StatusPayload(ev), retained: true})
}

func (m *MQTT) PublishSensor(ev shared.SensorEvent) {
	m.enqueue(message{topic: m.topics.Sensor(ev.DeviceID, ev.Field), payload: FormatValue(ev.Value), retained: true})
}

func (m *MQTT) PublishBattery(ev shared.BatteryEvent) {
	m.enqueue(message{topic: m.topics.Sensor(ev.DeviceID, "battery_low"), payload: BatteryPayload(ev.IsLow), retained: true})
}

// Run publishes queued messages until ctx is done, then drains what is left
// while the broker is still connected.
func (m *MQTT) Run(ctx context.Context) {
	for {
		select {
		case msg := <-m.queue:
			m.send(msg)
		case <-ctx.Done():
			if !m.client.IsConnected() {
				return
			}
			for {
				select {
				case msg := <-m.queue:
					m.send(msg)
				default:
					log.Info("MQTT publisher received shutdown signal (cancelled).")
					return
				}
			}
		}
	}
}

func (m *MQTT) send(msg message) {
	token := m.client.Publish(msg.topic, m.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn("MQTT publish timed out", "topic", msg.topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Warn("MQTT publish failed", "topic", msg.topic, "err", err)
		return
	}
	log.Debug("TX", "topic", msg.topic, "payload", utils.ReplaceBinaryWithHex(msg.payload))
}

// Close marks the bridge offline and disconnects.
func (m *MQTT) Close() {
	if m.client.IsConnected() {
		m.client.Publish(m.topics.Availability(), m.qos, true, payloadOffline).WaitTimeout(time.Second)
	}
	log.Info("Disconnecting from MQTT broker")
	m.client.Disconnect(250)
}
