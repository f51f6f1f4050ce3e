// Command biketrackerd runs the peripheral role: it accumulates crank
// pulses into sessions, persists them, and serves the sync and CSC GATT
// services over BLE.
//
// Pulses arrive on stdin by default (one line per crank revolution), which
// is also how a hardware sensor wrapper is expected to feed the daemon: by
// publishing into the pulse broker.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"

	"github.com/biketracker/biketracker-go/config"
	"github.com/biketracker/biketracker-go/csc"
	"github.com/biketracker/biketracker-go/internal/logctx"
	"github.com/biketracker/biketracker-go/pulse"
	"github.com/biketracker/biketracker-go/sessions"
	"github.com/biketracker/biketracker-go/storage/file"
	"github.com/biketracker/biketracker-go/syncservice"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile    string
		pulseStdin bool
	)
	cmd := &cobra.Command{
		Use:           "biketrackerd",
		Short:         "Stationary bike sensor daemon: session tracking and BLE sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), envFile, pulseStdin)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "env file to watch for config changes")
	cmd.Flags().BoolVar(&pulseStdin, "pulse-stdin", true, "treat each stdin line as one crank pulse")
	return cmd
}

func run(ctx context.Context, envFile string, pulseStdin bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := slog.New(logctx.Handler{Handler: slog.NewTextHandler(os.Stderr, nil)})
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx = logctx.WithDevice(ctx, &logctx.DeviceData{Name: cfg.DeviceName})

	store, err := file.New(cfg.SessionsFile, file.WithLogger(log))
	if err != nil {
		return err
	}
	snap, status, err := store.Load(ctx)
	if err != nil {
		log.Warn("snapshot load reported an I/O problem; continuing empty", "err", err)
	}
	log.InfoContext(ctx, "session snapshot loaded",
		"status", status.String(), "sessions", len(snap.Sessions))

	mgr := sessions.NewManager(snap, store,
		sessions.WithIdleTimeout(cfg.IdleTimeout),
		sessions.WithCheckpointInterval(cfg.CheckpointInterval),
		sessions.WithMinDuration(cfg.MinSessionDuration),
		sessions.WithLogger(log),
	)

	broker := pulse.New()
	counter := csc.NewCrankCounter()

	responder := syncservice.NewResponder(mgr, syncservice.WithResponderLogger(log))
	svc := syncservice.NewService(bluetooth.DefaultAdapter, responder, counter,
		syncservice.Config{
			DeviceName:     cfg.DeviceName,
			NotifyInterval: cfg.CSCNotifyInterval,
		},
		syncservice.WithServiceLogger(log),
	)
	if err := svc.Register(); err != nil {
		return err
	}

	events, _ := broker.Subscribe(ctx)
	go func() {
		for ev := range events {
			mgr.Pulse(ev.Time)
			counter.Record()
		}
	}()

	if pulseStdin {
		go readPulses(broker)
	}

	if envFile != "" {
		if _, err := config.Watch(ctx, envFile, log); err != nil {
			log.Warn("config watch unavailable", "err", err)
		}
	}

	errc := make(chan error, 2)
	go func() { errc <- mgr.Run(ctx) }()
	go func() { errc <- svc.Run(ctx) }()

	log.InfoContext(ctx, "biketrackerd running",
		"idle_timeout", cfg.IdleTimeout,
		"checkpoint_interval", cfg.CheckpointInterval,
		"env", cfg.Env)

	<-ctx.Done()
	<-errc

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Error("final snapshot save failed", "err", err)
		return err
	}
	return nil
}

func readPulses(broker *pulse.Broker) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		broker.Publish(pulse.Event{Time: time.Now()})
	}
}
