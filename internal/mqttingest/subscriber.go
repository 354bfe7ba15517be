package mqttingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/septivank/battery-drain-worker/internal/service"
	"go.uber.org/zap"
)

// ErrEmptyPayload is returned for MQTT messages with no body
var ErrEmptyPayload = errors.New("empty mqtt payload")

// MessageHandler processes one ingest message body
type MessageHandler func(ctx context.Context, body []byte) error

// Config holds broker settings
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string
	QoS       byte
}

// Subscriber feeds readings published by device gateways over MQTT into the ingest pipeline
type Subscriber struct {
	client  mqtt.Client
	cfg     Config
	handler MessageHandler
	logger  *zap.Logger
	timeout time.Duration
}

// NewSubscriber creates a subscriber; Start connects and subscribes
func NewSubscriber(cfg Config, handler MessageHandler, logger *zap.Logger) *Subscriber {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("[MQTT] connection lost, reconnecting", zap.Error(err))
	})

	return &Subscriber{
		client:  mqtt.NewClient(opts),
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// Start connects to the broker and subscribes to the ingest topic
func (s *Subscriber) Start() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("[MQTT] failed to connect to broker: %w", token.Error())
	}

	if token := s.client.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("[MQTT] failed to subscribe to topic %s: %w", s.cfg.Topic, token.Error())
	}

	s.logger.Info("mqtt ingest subscribed",
		zap.String("broker", s.cfg.BrokerURL),
		zap.String("topic", s.cfg.Topic))
	return nil
}

// Stop unsubscribes and disconnects
func (s *Subscriber) Stop() {
	if !s.client.IsConnected() {
		return
	}
	if token := s.client.Unsubscribe(s.cfg.Topic); token.Wait() && token.Error() != nil {
		s.logger.Warn("[MQTT] failed to unsubscribe", zap.Error(token.Error()))
	}
	s.client.Disconnect(250)
	s.logger.Info("mqtt ingest disconnected")
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := s.handle(msg.Topic(), msg.Payload()); err != nil {
		// MQTT has no dead-letter path; the rejected payload is only logged
		s.logger.Error("failed to process mqtt message",
			zap.String("topic", msg.Topic()),
			zap.Int("payload_size", len(msg.Payload())),
			zap.Error(err))
	}
}

func (s *Subscriber) handle(topic string, payload []byte) error {
	body, err := WrapPayload(topic, payload, time.Now().UTC())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.handler(ctx, body)
}

// WrapPayload turns an MQTT payload into an ingest message body. The payload is
// either a single reading object or an array of readings; the topic becomes the source.
func WrapPayload(topic string, payload []byte, receivedAt time.Time) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, ErrEmptyPayload
	}

	var readings []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &readings); err != nil {
			return nil, fmt.Errorf("malformed reading array: %w", err)
		}
	case '{':
		readings = []json.RawMessage{json.RawMessage(trimmed)}
	default:
		return nil, fmt.Errorf("payload is neither a reading nor an array of readings")
	}

	msg := service.IngestMessage{
		RequestID:  uuid.NewString(),
		Source:     "mqtt:" + topic,
		ReceivedAt: receivedAt,
		Readings:   readings,
	}
	return json.Marshal(msg)
}
