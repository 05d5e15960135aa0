// cmd/surplusd/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/tamzrod/surplus-charger/internal/app"
	"github.com/tamzrod/surplus-charger/internal/broker"
	"github.com/tamzrod/surplus-charger/internal/charger"
	"github.com/tamzrod/surplus-charger/internal/config"
	"github.com/tamzrod/surplus-charger/internal/log"
	"github.com/tamzrod/surplus-charger/internal/poller"
	"github.com/tamzrod/surplus-charger/internal/scheduler"
	"github.com/tamzrod/surplus-charger/internal/status"
	"github.com/tamzrod/surplus-charger/internal/telemetry"
	"github.com/tamzrod/surplus-charger/internal/wallbox"
	"github.com/tamzrod/surplus-charger/internal/writer"
	"github.com/tamzrod/surplus-charger/internal/writer/influx"
	mqttwriter "github.com/tamzrod/surplus-charger/internal/writer/mqtt"
)

func main() {
	cfgPath := lflag.String("config", "configs/surplus.yaml", "Path to the YAML configuration")
	influxToken := lflag.String("influx-token", "", "InfluxDB API token (overrides influx.token)")

	lflag.Configure()

	// lflag sets llog's level; mirror it into slog
	switch llog.GetLevel() {
	case llog.DebugLevel:
		log.SetLevel(slog.LevelDebug)
	case llog.InfoLevel:
		log.SetLevel(slog.LevelInfo)
	case llog.WarnLevel:
		log.SetLevel(slog.LevelWarn)
	case llog.ErrorLevel:
		log.SetLevel(slog.LevelError)
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *cfgPath, *influxToken); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "surplusd failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "surplusd exited cleanly")
}

func run(ctx context.Context, cfgPath, influxToken string) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if influxToken != "" {
		cfg.Influx.Token = influxToken
	}

	inv := cfg.Inverter
	ctx = log.WithAttrs(ctx, slog.String("device", inv.Device))

	// --------------------
	// Inverter
	// --------------------

	p, closePoller, err := poller.Build(ctx, inv)
	if err != nil {
		return fmt.Errorf("poller build failed: %w", err)
	}
	defer closePoller()

	// --------------------
	// MQTT: wallbox + telemetry share one connection
	// --------------------

	mqttTimeout := config.Ms(cfg.MQTT.TimeoutMs)
	cache := wallbox.NewCache()

	var wb *wallbox.MQTT
	wbReady := make(chan struct{})

	client, err := broker.Dial(ctx, broker.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		Timeout:     mqttTimeout,
		WillTopic:   writer.AvailabilityTopic(inv.Topic),
		WillPayload: status.Offline,
	}, func(c mqtt.Client) {
		// subscriptions are lost with the session
		select {
		case <-wbReady:
		case <-ctx.Done():
			return
		}
		if err := wb.Subscribe(ctx, c); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "wallbox subscribe failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	wb, err = wallbox.New(wallbox.Config{
		Prefix:  cfg.Wallbox.TopicPrefix,
		Serial:  cfg.Wallbox.Serial,
		Timeout: mqttTimeout,
	}, client, cache)
	if err != nil {
		return err
	}
	close(wbReady)

	// --------------------
	// Telemetry sinks
	// --------------------

	mapping := telemetry.Mapping{
		PVPower:      inv.Telemetry.PVPower,
		BatteryPower: inv.Telemetry.BatteryPower,
		GridPower:    inv.Telemetry.GridPower,
		BatterySOC:   inv.Telemetry.BatterySOC,
	}

	sinks := map[string]writer.Writer{}

	mw, err := mqttwriter.New(mqttwriter.Config{
		Measurements: map[string]string{writer.MeasurementInverter: inv.Topic},
		Fields:       writer.PublishedFields(mapping),
		Timeout:      mqttTimeout,
	}, client)
	if err != nil {
		return err
	}
	sinks["mqtt"] = mw

	if cfg.Influx.Enabled {
		iw, err := influx.New(influx.Config{
			URL:    cfg.Influx.URL,
			Org:    cfg.Influx.Org,
			Token:  cfg.Influx.Token,
			Bucket: cfg.Influx.InverterBucket,
		})
		if err != nil {
			return fmt.Errorf("influx writer failed: %w", err)
		}
		defer iw.Close()

		if err := iw.Ping(ctx); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "influx not reachable yet", slog.Any("error", err))
		}
		sinks["influx"] = iw
	}

	statusWriter, err := writer.NewDeviceStatusWriter(inv.Topic, client, mqttTimeout)
	if err != nil {
		return err
	}

	// --------------------
	// Control
	// --------------------

	c := cfg.Control
	ctrl := charger.New(charger.Config{
		SinglePhaseMinPower:  c.SinglePhaseMinPower,
		ThreePhaseMinPower:   c.ThreePhaseMinPower,
		BatteryMinChargeSOC:  c.BatteryMinChargeSOC,
		DefaultChargeCurrent: c.DefaultChargeCurrent,
		MinCurrent:           c.MinCurrent,
		MaxCurrent:           c.MaxCurrent,
		Voltage:              c.Voltage,
		CurrentOffset:        c.CurrentOffset,
	})

	a, err := app.New(app.Deps{
		Device:         inv.Device,
		Poller:         p,
		Fast:           inv.Fast,
		Slow:           inv.Slow,
		Mapping:        mapping,
		Aggregator:     telemetry.NewAggregator(c.WindowSize),
		Controller:     ctrl,
		Wallbox:        wb,
		Commander:      wb,
		WallboxSerial:  cfg.Wallbox.Serial,
		StatusMaxAge:   config.Ms(cfg.Wallbox.StatusMaxAgeMs),
		Sink:           writer.Multi(sinks),
		InverterBucket: cfg.Influx.InverterBucket,
		WallboxBucket:  cfg.Influx.WallboxBucket,
		StatusWriter:   statusWriter,
	})
	if err != nil {
		return err
	}

	// --------------------
	// Run
	// --------------------

	tasks, health := a.Tasks(cfg.Schedule)
	sched, err := scheduler.New(tasks...)
	if err != nil {
		return err
	}

	log.Ctx(ctx).InfoContext(ctx, "surplusd started",
		slog.String("endpoint", inv.Endpoint),
		slog.String("broker", cfg.MQTT.Broker),
		slog.String("wallbox", cfg.Wallbox.Serial),
	)

	err = sched.Run(ctx)
	logHealth(ctx, health)

	// a clean disconnect does not fire the will
	offCtx, offCancel := context.WithTimeout(context.WithoutCancel(ctx), mqttTimeout)
	defer offCancel()
	if perr := broker.Publish(offCtx, client, mqttTimeout, writer.AvailabilityTopic(inv.Topic), true, status.Offline); perr != nil {
		log.Ctx(ctx).WarnContext(ctx, "offline publish failed", slog.Any("error", perr))
	}
	return err
}

func logHealth(ctx context.Context, health map[string]*status.Tracker) {
	names := make([]string, 0, len(health))
	for n := range health {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		s := health[n].Snapshot()
		log.Ctx(ctx).InfoContext(ctx, "task health",
			slog.String("task", n),
			slog.Int("health", int(s.Health)),
			slog.Int("last_error_code", int(s.LastErrorCode)),
			slog.Time("last_success", health[n].LastSuccess()),
		)
	}
}
