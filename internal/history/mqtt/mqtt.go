// Package mqtt publishes unit lifecycle events to an MQTT broker, so home
// automation can react to players starting and stopping.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/loykin/pasys/internal/history"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesce     = 250 // milliseconds

	DefaultTopicPrefix = "pasys/units"
)

type Config struct {
	Broker      string // tcp://host:1883 or ssl://host:8883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retained    bool
}

// publishFunc sends one message and waits for its acknowledgement.
type publishFunc func(ctx context.Context, topic string, payload []byte) error

// Sink publishes each event as JSON to <prefix>/<unit>/<type>.
type Sink struct {
	prefix  string
	publish publishFunc
	close   func()
}

func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	return opts
}

// New connects to the broker.
func New(cfg Config) (*Sink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt history sink: broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("pasys-%d", time.Now().UnixNano())
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt history sink: invalid qos %d", cfg.QoS)
	}
	client := pahomqtt.NewClient(buildClientOptions(cfg))
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	publish := func(ctx context.Context, topic string, payload []byte) error {
		t := client.Publish(topic, cfg.QoS, cfg.Retained, payload)
		select {
		case <-t.Done():
			return t.Error()
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(defaultPublishTimeout):
			return fmt.Errorf("mqtt publish %s: timeout", topic)
		}
	}
	return newSink(cfg.TopicPrefix, publish, func() { client.Disconnect(disconnectQuiesce) }), nil
}

func newSink(prefix string, publish publishFunc, closeFn func()) *Sink {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Sink{prefix: prefix, publish: publish, close: closeFn}
}

// Topic returns the topic an event is published to.
func (s *Sink) Topic(e history.Event) string {
	return s.prefix + "/" + e.Record.Unit + "/" + string(e.Type)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.publish(ctx, s.Topic(e), payload); err != nil {
		return fmt.Errorf("mqtt history sink: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
