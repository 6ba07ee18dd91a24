package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Config describes the MQTT listener of the broker carrying the live record feed.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	// MaxAttempts bounds the connection attempts made by Connect.
	MaxAttempts int
}

func (c Config) brokerURL() string {
	port := c.Port
	if port == 0 {
		port = 1883
	}
	return fmt.Sprintf("tcp://%s:%d", c.Host, port)
}

func (c Config) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.brokerURL())
	opts.SetUsername(c.User)
	opts.SetPassword(c.Password)
	opts.SetClientID(c.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	return opts
}

// Connect dials the broker with exponential backoff and disconnects once ctx ends.
func Connect(ctx context.Context, cfg Config, log *logrus.Logger) (mqtt.Client, error) {
	opts := cfg.clientOptions()
	entry := log.WithField("broker", cfg.brokerURL())

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 5
	}

	var client mqtt.Client
	err := backoff.RetryNotify(func() error {
		client = mqtt.NewClient(opts)
		tok := client.Connect()
		if !tok.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("connect timed out")
		}
		return tok.Error()
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx),
		func(err error, next time.Duration) {
			entry.WithError(err).WithField("retry_in", next).Warn("mqtt connect failed")
		})
	if err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.brokerURL(), err)
	}
	entry.Info("connected to mqtt broker")

	go func() {
		<-ctx.Done()
		Close(client)
		entry.Info("mqtt connection closed")
	}()
	return client, nil
}

func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
