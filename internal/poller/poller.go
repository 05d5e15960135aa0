// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tamzrod/surplus-charger/internal/register"
)

// Config is the minimal runtime config the poller needs.
type Config struct {
	Device string

	// Reconnect pacing after transport death. Zero values use defaults.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Poller reads register schemas from one device and decodes them.
// Cycles are serialized: fast and slow schemas share one connection.
// A cycle waiting for the connection gives up when its context ends.
type Poller struct {
	cfg     Config
	factory Factory

	sem     chan struct{} // capacity 1, held for a whole cycle
	client  Client
	bo      *backoff.ExponentialBackOff
	retryAt time.Time
	now     func() time.Time
}

// ErrReconnectPending is returned while the reconnect backoff has not elapsed.
var ErrReconnectPending = errors.New("poller: reconnect pending")

// New creates a poller with immutable config.
// client may be nil; factory is then used on the first cycle.
func New(cfg Config, client Client, factory Factory) (*Poller, error) {
	if cfg.Device == "" {
		return nil, errors.New("poller: device required")
	}
	if client == nil && factory == nil {
		return nil, errors.New("poller: client or factory required")
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 2 * time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = time.Minute
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ReconnectMin
	bo.MaxInterval = cfg.ReconnectMax
	bo.MaxElapsedTime = 0 // never give up; each tick decides
	bo.Reset()

	return &Poller{
		cfg:     cfg,
		client:  client,
		factory: factory,
		sem:     make(chan struct{}, 1),
		bo:      bo,
		now:     time.Now,
	}, nil
}

// PollOnce performs exactly one poll cycle of schema.
// All-or-nothing: any failure aborts the cycle and no values are returned.
func (p *Poller) PollOnce(ctx context.Context, schema register.Schema) PollResult {
	res := PollResult{
		Device: p.cfg.Device,
		Schema: schema.Name,
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		res.Err = fmt.Errorf("poller: device %s: connection busy: %w", p.cfg.Device, ctx.Err())
		return res
	}
	defer func() { <-p.sem }()

	res.At = p.now()

	client, err := p.connect()
	if err != nil {
		res.Err = err
		return res
	}

	var values []register.DecodedValue

	for _, def := range schema.Definitions {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("poller: device %s: cycle aborted: %w", p.cfg.Device, err)
			return res
		}

		qty := uint16(def.Words())
		words, err := client.ReadHoldingRegisters(def.Address, qty)
		if err != nil {
			p.discard(err)
			res.Err = &TransportError{Device: p.cfg.Device, Name: def.Name, Address: def.Address, Err: err}
			return res
		}

		vals, err := register.Decode(words, def)
		if err != nil {
			res.Err = fmt.Errorf("poller: device %s: decode %q: %w", p.cfg.Device, def.Name, err)
			return res
		}
		values = append(values, vals...)
	}

	// Commit only if all reads succeeded
	res.Values = values
	return res
}

// connect returns the live client or makes ONE dial attempt once the
// backoff delay has elapsed.
func (p *Poller) connect() (Client, error) {
	if p.client != nil {
		return p.client, nil
	}
	if p.factory == nil {
		return nil, &TransportError{Device: p.cfg.Device, Err: errors.New("no client and no factory")}
	}

	now := p.now()
	if now.Before(p.retryAt) {
		return nil, &TransportError{Device: p.cfg.Device, Err: ErrReconnectPending}
	}

	c, err := p.factory()
	if err != nil {
		p.retryAt = now.Add(p.bo.NextBackOff())
		return nil, &TransportError{Device: p.cfg.Device, Err: fmt.Errorf("dial: %w", err)}
	}

	p.bo.Reset()
	p.retryAt = time.Time{}
	p.client = c
	return c, nil
}

// discard drops the client unless the device answered with a protocol
// exception, in which case the connection is still usable.
func (p *Poller) discard(err error) {
	var coded interface{ Code() uint16 }
	if errors.As(err, &coded) {
		return
	}
	if p.factory == nil {
		return
	}
	if c, ok := p.client.(Closer); ok {
		_ = c.Close()
	}
	p.client = nil
	p.retryAt = p.now().Add(p.bo.NextBackOff())
}

// Close releases the current client, if any.
func (p *Poller) Close() error {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	c, ok := p.client.(Closer)
	p.client = nil
	if !ok {
		return nil
	}
	return c.Close()
}
