package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mqtt.Client
	open bool
	err  error
	out  []published
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.out = append(c.out, published{topic: topic, payload: payload.([]byte)})
	return fakeToken{err: c.err}
}

func TestPublishJSONUsesPrefixedTopic(t *testing.T) {
	c := &fakeClient{open: true}
	p := NewPublisher(c, "road/conditions/")

	require.NoError(t, p.PublishJSON("17", map[string]any{"sensor_id": "17"}))
	require.Len(t, c.out, 1)
	assert.Equal(t, "road/conditions/17", c.out[0].topic)

	var got map[string]any
	require.NoError(t, json.Unmarshal(c.out[0].payload, &got))
	assert.Equal(t, "17", got["sensor_id"])
}

func TestPublishJSONErrors(t *testing.T) {
	p := NewPublisher(&fakeClient{open: false}, "x")
	assert.ErrorIs(t, p.PublishJSON("a", 1), ErrNotConnected)

	boom := errors.New("boom")
	p = NewPublisher(&fakeClient{open: true, err: boom}, "x")
	assert.ErrorIs(t, p.PublishJSON("a", 1), boom)
}

func TestBrokerURLDefaultsPort(t *testing.T) {
	assert.Equal(t, "tcp://broker:1883", Config{Host: "broker"}.brokerURL())
	assert.Equal(t, "tcp://broker:8883", Config{Host: "broker", Port: 8883}.brokerURL())
}
