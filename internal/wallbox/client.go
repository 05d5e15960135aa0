// internal/wallbox/client.go
package wallbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tamzrod/surplus-charger/internal/broker"
	"github.com/tamzrod/surplus-charger/internal/charger"
	"github.com/tamzrod/surplus-charger/internal/log"
)

// Commander delivers one command to the wallbox.
type Commander interface {
	SendCommand(ctx context.Context, cmd charger.Command) error
}

// DeliveryError reports a command the broker did not accept.
type DeliveryError struct {
	Topic string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("wallbox: deliver %s: %v", e.Topic, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Config is minimal wallbox config.
type Config struct {
	Prefix  string // go-eCharger
	Serial  string
	Timeout time.Duration
}

// MQTT talks to a go-eCharger through its MQTT API.
// Status keys arrive on <prefix>/<serial>/<key>; commands go to <key>/set.
type MQTT struct {
	cfg   Config
	pub   broker.Publisher
	cache *Cache
	now   func() time.Time
}

// New creates a wallbox client. The cache is fed by Subscribe.
func New(cfg Config, pub broker.Publisher, cache *Cache) (*MQTT, error) {
	if cfg.Serial == "" {
		return nil, errors.New("wallbox: serial required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "go-eCharger"
	}
	if cache == nil {
		cache = NewCache()
	}
	return &MQTT{
		cfg:   cfg,
		pub:   pub,
		cache: cache,
		now:   time.Now,
	}, nil
}

func (w *MQTT) base() string {
	return w.cfg.Prefix + "/" + w.cfg.Serial
}

// Subscribe registers the status subscriptions. It is called again on
// every reconnect; paho does not restore subscriptions of a clean session.
func (w *MQTT) Subscribe(ctx context.Context, sub broker.Subscriber) error {
	var errs []string
	for _, key := range Keys {
		topic := w.base() + "/" + key
		if err := broker.Wait(ctx, sub.Subscribe(topic, 0, w.handle), w.cfg.Timeout); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", topic, err))
		}
	}
	if len(errs) > 0 {
		return errors.New("wallbox: subscribe: " + strings.Join(errs, " | "))
	}
	return nil
}

// handle is the paho message callback.
func (w *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	key := msg.Topic()
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		key = key[i+1:]
	}
	if err := w.cache.Apply(key, msg.Payload(), w.now()); err != nil {
		log.Ctx(context.Background()).Warn("wallbox status payload rejected",
			"topic", msg.Topic(), "error", err)
	}
}

// Status returns the cached wallbox status.
func (w *MQTT) Status() (Status, bool) {
	return w.cache.Status()
}

// SendCommand publishes amp, frc and psm as one command.
// The first failed publish aborts the rest.
func (w *MQTT) SendCommand(ctx context.Context, cmd charger.Command) error {
	sets := []struct {
		key string
		val int
	}{
		{"amp", cmd.Amps},
		{"frc", int(cmd.Force)},
		{"psm", int(cmd.Phase)},
	}

	for _, s := range sets {
		topic := w.base() + "/" + s.key + "/set"
		if err := broker.Publish(ctx, w.pub, w.cfg.Timeout, topic, false, strconv.Itoa(s.val)); err != nil {
			return &DeliveryError{Topic: topic, Err: err}
		}
	}
	return nil
}
