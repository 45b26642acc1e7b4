// Package transport carries cascade control commands over MQTT,
// serial, and a diagnostic WebSocket, alongside the primary HTTP API.
package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Command is the wire shape accepted on the MQTT command topic and
// the serial console: one pattern-lifecycle call per message.
type Command struct {
	Op      string `json:"op"` // "set", "replace", "delete", "blank"
	Lamps   []int  `json:"lamps,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	PID     uint16 `json:"pid,omitempty"`
	On      bool   `json:"on,omitempty"`
}

// CommandHandler executes a decoded Command against the controller
// and reports a result to publish back, if any.
type CommandHandler func(Command) (interface{}, error)

// MQTTConfig configures the broker connection and topic names.
type MQTTConfig struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	CommandTopic string
	StatusTopic  string
	QoS          byte
}

// MQTTTransport subscribes to CommandTopic, decodes each payload as a
// Command, and publishes the handler's result (or error) to
// StatusTopic.
type MQTTTransport struct {
	cfg     MQTTConfig
	client  mqtt.Client
	handler CommandHandler
	log     *zap.Logger

	mu        sync.Mutex
	connected bool
}

func NewMQTTTransport(cfg MQTTConfig, handler CommandHandler, log *zap.Logger) *MQTTTransport {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("ledcascade-%d", time.Now().UnixNano())
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	return &MQTTTransport{cfg: cfg, handler: handler, log: log}
}

// Start connects to the broker and subscribes to the command topic.
// It returns once the subscription is confirmed.
func (t *MQTTTransport) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		t.mu.Lock()
		t.connected = true
		t.mu.Unlock()
		t.log.Info("mqtt connected", zap.String("broker", t.cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		t.log.Warn("mqtt connection lost", zap.Error(err))
	})

	t.client = mqtt.NewClient(opts)
	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("transport: mqtt connect: %w", token.Error())
	}

	token := t.client.Subscribe(t.cfg.CommandTopic, t.cfg.QoS, t.onMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("transport: mqtt subscribe: %w", token.Error())
	}
	return nil
}

func (t *MQTTTransport) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		t.log.Warn("mqtt: malformed command", zap.Error(err))
		t.publishError(err)
		return
	}

	result, err := t.handler(cmd)
	if err != nil {
		t.log.Warn("mqtt: command failed", zap.String("op", cmd.Op), zap.Error(err))
		t.publishError(err)
		return
	}
	t.publishResult(cmd.Op, result)
}

func (t *MQTTTransport) publishResult(op string, result interface{}) {
	if t.cfg.StatusTopic == "" {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{"op": op, "ok": true, "result": result})
	if err != nil {
		return
	}
	t.client.Publish(t.cfg.StatusTopic, t.cfg.QoS, false, payload)
}

func (t *MQTTTransport) publishError(err error) {
	if t.cfg.StatusTopic == "" {
		return
	}
	payload, marshalErr := json.Marshal(map[string]interface{}{"ok": false, "error": err.Error()})
	if marshalErr != nil {
		return
	}
	t.client.Publish(t.cfg.StatusTopic, t.cfg.QoS, false, payload)
}

// Stop disconnects cleanly, waiting up to 250ms for in-flight work.
func (t *MQTTTransport) Stop() {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
}

func (t *MQTTTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
