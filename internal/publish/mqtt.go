package publish

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Krimson/strokeguard/internal/scan"
)

const (
	DefaultMQTTTopic = "strokeguard/scans"

	disconnectQuiesce = 250 // ms
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// mqttClient is the part of mqtt.Client the publisher needs.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes scan events on <prefix>/<session>/<type>.
// Outcomes are retained so a late subscriber still sees how a scan ended.
type MQTTPublisher struct {
	client mqttClient
	prefix string
	qos    byte
	logger *zap.Logger
}

// ConnectMQTT connects to the broker with auto reconnect.
func ConnectMQTT(cfg MQTTConfig, logger *zap.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("[MQTT] connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("[MQTT] connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

func NewMQTTPublisher(client mqttClient, cfg MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultMQTTTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTPublisher{client: client, prefix: prefix, qos: cfg.QoS, logger: logger}
}

func (p *MQTTPublisher) Topic(sessionID string, t EventType) string {
	return p.prefix + "/" + sessionID + "/" + string(t)
}

func (p *MQTTPublisher) ForSession(sessionID string) scan.Sink {
	return &mqttSink{p: p, sessionID: sessionID}
}

func (p *MQTTPublisher) publish(ctx context.Context, e Event, retained bool) error {
	data, err := e.encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	topic := p.Topic(e.SessionID, e.Type)

	token := p.client.Publish(topic, p.qos, retained, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	p.logger.Debug("[MQTT] event published", zap.String("topic", topic))
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}

type mqttSink struct {
	p         *MQTTPublisher
	sessionID string
}

func (s *mqttSink) Progress(ctx context.Context, pr scan.Progress) error {
	return s.p.publish(ctx, progressEvent(s.sessionID, pr), false)
}

func (s *mqttSink) Complete(ctx context.Context, o scan.Outcome) error {
	return s.p.publish(ctx, outcomeEvent(EventComplete, s.sessionID, o), true)
}

func (s *mqttSink) Abort(ctx context.Context, o scan.Outcome) error {
	return s.p.publish(ctx, outcomeEvent(EventAbort, s.sessionID, o), true)
}
