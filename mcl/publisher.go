package mcl

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher pushes pose estimates and degraded-condition events back onto
// MQTT so downstream consumers (navigation, dashboards) can follow the
// localization run.
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewPublisher creates a publisher. A nil client disables publishing.
// The topic prefix comes from MQTT_PUBLISH_PREFIX or the config, falling
// back to "gridloc".
func NewPublisher(client mqtt.Client, configPrefix string) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = configPrefix
	}
	if prefix == "" {
		prefix = "gridloc"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    0, // pose updates are fire and forget
	}
}

// estimateMessage is the wire form of a published pose estimate.
type estimateMessage struct {
	PoseEstimate
	State     State `json:"state"`
	Timestamp int64 `json:"timestamp"`
}

// PublishEstimate publishes the latest pose estimate, retained so late
// subscribers see the most recent pose immediately.
func (p *Publisher) PublishEstimate(est PoseEstimate, state State) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(estimateMessage{
		PoseEstimate: est,
		State:        state,
		Timestamp:    time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling pose estimate: %w", err)
	}

	topic := fmt.Sprintf("%s/pose", p.prefix)
	token := p.client.Publish(topic, p.qos, true, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// PublishEvent publishes a degraded-condition report, unretained.
func (p *Publisher) PublishEvent(e Event) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	topic := fmt.Sprintf("%s/events", p.prefix)
	token := p.client.Publish(topic, p.qos, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	log.Printf("published %s event", e.Kind)
	return nil
}
