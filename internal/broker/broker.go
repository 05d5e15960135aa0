// internal/broker/broker.go
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tamzrod/surplus-charger/internal/log"
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("broker: timeout")

// Publisher is the slice of mqtt.Client used for publishing.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Subscriber is the slice of mqtt.Client used for subscribing.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Config is minimal connection config.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration

	// Will is published retained by the broker if we vanish.
	WillTopic   string
	WillPayload string
}

// Dial connects to the broker. Connection loss is handled by paho's
// auto-reconnect; every hook runs again after each (re)connect.
// An unreachable broker at startup is not fatal: paho keeps retrying.
func Dial(ctx context.Context, cfg Config, hooks ...func(mqtt.Client)) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("broker: address required")
	}

	// unique suffix so several instances can share one broker
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(time.Minute)
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 0, true)
	}

	logger := log.Ctx(ctx)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker, "client_id", clientID)
		for _, h := range hooks {
			h(c)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		logger.WarnContext(ctx, "mqtt not connected yet, retrying in background", "broker", cfg.Broker)
		return c, nil
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("broker: connect %s: %w", cfg.Broker, err)
	}
	return c, nil
}

// Wait blocks on tok for at most timeout, shortened by ctx's deadline.
func Wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < timeout {
			timeout = rem
		}
	}
	if timeout <= 0 || !tok.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return tok.Error()
}

// Publish sends one message and waits for the broker.
func Publish(ctx context.Context, p Publisher, timeout time.Duration, topic string, retained bool, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Wait(ctx, p.Publish(topic, 0, retained, payload), timeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
