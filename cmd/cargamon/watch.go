package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/farouk15160/cargamon/internal/alarm"
	"github.com/farouk15160/cargamon/internal/bridge"
	"github.com/farouk15160/cargamon/internal/config"
	"github.com/farouk15160/cargamon/internal/mqtt"
	"github.com/farouk15160/cargamon/internal/telemetry"
)

func (a *app) watch(ctx context.Context, args []string) error {
	var (
		order      int64
		threshold  float64
		hysteresis float64
	)
	flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	flagSet.Int64VarP(&order, "order", "o", 0, "order number whose product threshold drives the temperature alarm")
	flagSet.Float64Var(&threshold, "threshold", 0, "temperature alarm threshold (overrides the order's product)")
	flagSet.Float64Var(&hysteresis, "hysteresis", 0, "degrees under the threshold needed to clear the alarm")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := a.apiClient(order != 0)
	if err != nil {
		return err
	}

	thresholdSet := flagSet.Changed("threshold")
	if order != 0 && !thresholdSet {
		o, err := client.Orders.GetByNumber(ctx, order)
		if err != nil {
			return err
		}
		if t, ok := o.TemperatureThreshold(); ok {
			threshold, thresholdSet = t, true
		} else {
			a.logger.Warn("watch: order product has no temperature threshold, alarm disabled", "order", order)
		}
	}

	baseURL := a.cfg.Stomp.BaseURL
	if baseURL == "" {
		baseURL = client.Origin()
	}

	var handlers telemetry.Handlers
	handlers = append(handlers, a.readingLogger())

	var evaluator *alarm.Evaluator
	if thresholdSet {
		evaluator = alarm.NewEvaluator(alarm.Config{
			Threshold:  threshold,
			Hysteresis: hysteresis,
			Logger:     a.logger,
			Notify: func(tr alarm.Transition) {
				fmt.Fprintf(a.stdout, "%s ALARM %s\n", tr.At.Local().Format("15:04:05"), tr)
			},
		})
		handlers = append(handlers, evaluator)
	}

	var (
		mqttClient *mqtt.Client
		mirror     *bridge.Mirror
	)
	if a.cfg.MQTT.Broker != "" {
		format, err := bridge.ParseFormat(a.cfg.MQTT.Format)
		if err != nil {
			return err
		}
		prefix := strings.Trim(a.cfg.MQTT.TopicPrefix, "/")
		mqttClient, err = mqtt.NewClient(mqtt.Options{
			Broker:   a.cfg.MQTT.Broker,
			ClientID: a.cfg.MQTT.ClientID,
			UniqueID: true,
			Will:     availabilityWill(prefix),
			Debug:    a.cfg.MQTT.Debug,
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		commands := bridge.NewCommands(mqttClient, a.commandConfig(prefix, evaluator, cancel))
		if err := commands.Start(); err != nil {
			return err
		}
		mqttClient.Connect()
		defer mqttClient.Disconnect()
		mirror = bridge.NewMirror(mqttClient, bridge.MirrorConfig{Prefix: prefix, Format: format, Order: order, Logger: a.logger})
		handlers = append(handlers, mirror)
	}

	session := telemetry.Open(telemetry.Config{
		BaseURL:           baseURL,
		Path:              a.cfg.Stomp.Path,
		Token:             client.Token(),
		Login:             a.cfg.Stomp.Login,
		Passcode:          a.cfg.Stomp.Passcode,
		Dialer:            buildDialer(a.cfg.Stomp),
		ReconnectDelay:    a.cfg.Stomp.ReconnectDelay,
		HeartbeatOutgoing: a.cfg.Stomp.HeartbeatOutgoing,
		HeartbeatIncoming: a.cfg.Stomp.HeartbeatIncoming,
		Logger:            a.logger,
	}, handlers)
	a.logger.Info("watch: session opened", "session", session.ID(), "broker", baseURL, "order", order)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-session.Done():
		}
		session.Close()
		<-session.Done()
		return nil
	})
	if mirror != nil {
		status := bridge.NewStatusPublisher(mqttClient, mirror, session, bridge.StatusConfig{
			Interval: a.cfg.MQTT.StatusInterval,
			Alarm:    alarmSource(evaluator),
			Logger:   a.logger,
		})
		g.Go(func() error { return status.Run(gctx) })
	}

	err = g.Wait()
	if mirror != nil {
		mirror.Close()
	}
	stats := session.Stats()
	attrs := []any{
		"connects", stats.Connects,
		"disconnects", stats.Disconnects,
		"failed_attempts", stats.FailedAttempts,
		"dropped_frames", stats.DroppedFrames,
	}
	if evaluator != nil {
		attrs = append(attrs, "alarms_raised", evaluator.Raises())
	}
	a.logger.Info("watch: session closed", attrs...)
	return err
}

// availabilityWill makes the broker mark the mirror offline on the same
// topic the mirror itself uses.
func availabilityWill(prefix string) *mqtt.Will {
	return &mqtt.Will{
		Topic:    bridge.AvailabilityTopic(prefix),
		Payload:  []byte(bridge.AvailabilityOffline),
		Retained: true,
	}
}

// commandConfig maps the remote MQTT commands onto this watch: a threshold
// command retunes the alarm when one is running, a stop command ends the
// watch as an interrupt would.
func (a *app) commandConfig(prefix string, evaluator *alarm.Evaluator, stop context.CancelFunc) bridge.CommandConfig {
	cfg := bridge.CommandConfig{
		Prefix: prefix,
		Stop:   stop,
		Logger: a.logger,
	}
	if evaluator != nil {
		cfg.Threshold = evaluator.SetThreshold
	}
	return cfg
}

// alarmSource keeps a nil *Evaluator from becoming a non-nil interface.
func alarmSource(e *alarm.Evaluator) bridge.AlarmSource {
	if e == nil {
		return nil
	}
	return e
}

// readingLogger prints readings to stdout and lifecycle changes to the log.
func (a *app) readingLogger() telemetry.Handler {
	return telemetry.HandlerFunc(func(ev telemetry.Event) {
		switch ev.Kind {
		case telemetry.EventReading:
			r := ev.Reading
			fmt.Fprintf(a.stdout, "%s %-11s %g\n", r.ReceivedAt.Local().Format("15:04:05.000"), r.Topic, r.Value)
		case telemetry.EventConnected:
			a.logger.Info("watch: connected", "attempt", ev.Attempt)
		case telemetry.EventDisconnected:
			a.logger.Warn("watch: disconnected, reconnecting", "error", ev.Err)
		case telemetry.EventError:
			a.logger.Warn("watch: broker error", "attempt", ev.Attempt, "error", ev.Err)
		}
	})
}

// buildDialer turns the configured transport list into a Dialer.
func buildDialer(cfg config.StompConfig) telemetry.Dialer {
	var dialers telemetry.FallbackDialer
	for _, name := range cfg.Transports {
		switch strings.TrimSpace(name) {
		case "websocket":
			dialers = append(dialers, telemetry.WebSocketDialer{})
		case "sockjs":
			dialers = append(dialers, telemetry.WebSocketDialer{SockJS: true})
		case "tcp":
			dialers = append(dialers, telemetry.TCPDialer{Addr: cfg.TCPAddr})
		}
	}
	switch len(dialers) {
	case 0:
		return nil
	case 1:
		return dialers[0]
	}
	return dialers
}
