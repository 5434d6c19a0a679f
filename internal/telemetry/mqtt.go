package telemetry

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTConfig describes the broker an MQTTSink publishes to.
type MQTTConfig struct {
	Broker      string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTTSink publishes events as JSON to an MQTT broker, one topic per
// device under TopicPrefix. Publishing is fire and forget: a failed
// publish is logged and dropped, never surfaced to the emitting caller.
type MQTTSink struct {
	client mqtt.Client
	prefix string
}

// NewMQTTSink connects to the configured broker. The connection attempt
// is synchronous so that a misconfigured broker fails at startup rather
// than silently swallowing every event.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: mqtt connect: %w", token.Error())
	}
	log.Info().Str("broker", cfg.Broker).Int("port", cfg.Port).Msg("telemetry broker connected")

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "lab"
	}
	return &MQTTSink{client: client, prefix: prefix}, nil
}

func (s *MQTTSink) Emit(ev Event) {
	if ev.Validate() != nil {
		return
	}
	if !s.client.IsConnected() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry event not serializable")
		return
	}
	topic := s.prefix + "/" + ev.Kind
	if ev.Device != "" {
		topic = s.prefix + "/" + ev.Device + "/" + ev.Kind
	}
	token := s.client.Publish(topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("telemetry publish failed")
		}
	}()
}

// Close disconnects from the broker, allowing a short drain window for
// in-flight publishes.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
