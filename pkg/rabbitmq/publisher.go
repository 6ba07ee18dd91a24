package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrNotConnected = errors.New("mqtt client not connected")

// IPublisher publishes JSON documents under a topic prefix.
type IPublisher interface {
	PublishJSON(subtopic string, v any) error
}

// Publisher sends fire-and-forget JSON messages on the shared client.
type Publisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	return &Publisher{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     0,
		timeout: 5 * time.Second,
	}
}

// Topic joins the publisher prefix and subtopic.
func (p *Publisher) Topic(subtopic string) string {
	if p.prefix == "" {
		return subtopic
	}
	return p.prefix + "/" + subtopic
}

func (p *Publisher) PublishJSON(subtopic string, v any) error {
	if p.client == nil || !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	topic := p.Topic(subtopic)
	tok := p.client.Publish(topic, p.qos, false, payload)
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
