package events

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTEmitter publishes events to an MQTT topic. Delivery is QoS 0 and
// fire-and-forget, matching the best-effort contract.
type MQTTEmitter struct {
	conn  mqtt.Client
	topic string
	log   zerolog.Logger
}

// MQTTOptions configures the MQTT event emitter.
type MQTTOptions struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Log       zerolog.Logger
}

// ConnectMQTT connects to the broker and returns an emitter.
func ConnectMQTT(opts MQTTOptions) (*MQTTEmitter, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false)

	conn := mqtt.NewClient(clientOpts)
	token := conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return &MQTTEmitter{
		conn:  conn,
		topic: opts.Topic,
		log:   opts.Log.With().Str("component", "mqtt-emitter").Logger(),
	}, nil
}

func (e *MQTTEmitter) Emit(stage, action, status string, data map[string]any) {
	event := newEvent(stage, action, status, data)
	payload, err := json.Marshal(event)
	if err != nil {
		e.log.Debug().Err(err).Str("action", action).Msg("failed to marshal event")
		return
	}
	// Token intentionally not waited on.
	e.conn.Publish(e.topic, 0, false, payload)
}

// Close disconnects from the broker.
func (e *MQTTEmitter) Close() {
	e.conn.Disconnect(250)
}
