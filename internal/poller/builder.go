// internal/poller/builder.go
package poller

import (
	"context"

	cfg "github.com/tamzrod/surplus-charger/internal/config"
	"github.com/tamzrod/surplus-charger/internal/log"
	pmodbus "github.com/tamzrod/surplus-charger/internal/poller/modbus"
)

// Build constructs a Poller and wires Modbus client lifecycle.
// Connection is reused while healthy.
// On transport death, Poller discards the client and uses factory on a future tick.
// An unreachable inverter at startup is not fatal: the first cycles reconnect.
func Build(ctx context.Context, inv cfg.InverterConfig) (*Poller, func() error, error) {
	// client factory: ONE attempt per call
	factory := func() (Client, error) {
		c, err := pmodbus.New(pmodbus.Config{
			Endpoint: inv.Endpoint,
			UnitID:   inv.UnitID,
			Timeout:  cfg.Ms(inv.TimeoutMs),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	var client Client
	c, err := factory()
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "inverter not reachable at startup",
			"device", inv.Device, "endpoint", inv.Endpoint, "error", err)
	} else {
		client = c
	}

	p, err := New(
		Config{
			Device:       inv.Device,
			ReconnectMin: cfg.Ms(inv.ReconnectMinMs),
			ReconnectMax: cfg.Ms(inv.ReconnectMaxMs),
		},
		client,
		factory,
	)
	if err != nil {
		if cl, ok := c.(Closer); ok {
			_ = cl.Close()
		}
		return nil, nil, err
	}

	return p, p.Close, nil
}
