// Command bikesync runs one sync pass against a bike tracker peripheral:
// scan, connect, verify the MTU, then pull every session newer than the
// durable store's cursor into the chosen backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"

	"github.com/biketracker/biketracker-go/healthstore"
	hsmemory "github.com/biketracker/biketracker-go/healthstore/memory"
	hsredis "github.com/biketracker/biketracker-go/healthstore/redis"
	hssqlite "github.com/biketracker/biketracker-go/healthstore/sqlite"
	"github.com/biketracker/biketracker-go/internal/logctx"
	"github.com/biketracker/biketracker-go/syncclient"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		deviceName  string
		storeKind   string
		sqlitePath  string
		dialTimeout time.Duration
		budget      time.Duration
	)
	cmd := &cobra.Command{
		Use:           "bikesync",
		Short:         "Pull sessions from a bike tracker into the durable record store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), deviceName, storeKind, sqlitePath, dialTimeout, budget)
		},
	}
	cmd.Flags().StringVar(&deviceName, "device-name", "BikeTracker", "advertised name to scan for")
	cmd.Flags().StringVar(&storeKind, "store", "sqlite", "record store backend: sqlite, redis or memory")
	cmd.Flags().StringVar(&sqlitePath, "db", "biketracker.db", "sqlite database path (store=sqlite)")
	cmd.Flags().DurationVar(&dialTimeout, "dial-timeout", 30*time.Second, "scan/connect timeout")
	cmd.Flags().DurationVar(&budget, "budget", syncclient.DefaultBudget, "wall-clock budget for the pass")
	return cmd
}

func run(ctx context.Context, deviceName, storeKind, sqlitePath string, dialTimeout, budget time.Duration) error {
	log := slog.New(logctx.Handler{Handler: slog.NewTextHandler(os.Stderr, nil)})
	slog.SetDefault(log)

	store, err := openStore(ctx, storeKind, sqlitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	transport, err := syncclient.DialBLE(dialCtx, bluetooth.DefaultAdapter, deviceName,
		syncclient.WithDialLogger(log))
	if err != nil {
		return fmt.Errorf("peripheral unavailable: %w", err)
	}
	defer transport.Close()

	peripheralID := transport.PeripheralID()
	ctx = logctx.WithPass(ctx, &logctx.PassData{
		PassID:       uuid.NewString(),
		PeripheralID: peripheralID,
	})

	client := syncclient.New(transport, store, peripheralID,
		syncclient.WithBudget(budget),
		syncclient.WithLogger(log))
	res, err := client.Sync(ctx)

	switch {
	case err == nil:
		fmt.Printf("synced %d session(s) from %s\n", res.Synced, peripheralID)
		return nil
	case errors.Is(err, syncclient.ErrMTUTooSmall):
		return fmt.Errorf("peripheral found but incompatible: %w", err)
	case errors.Is(err, syncclient.ErrBudgetExceeded):
		fmt.Printf("partial sync: %d session(s) written, ~%d remaining\n", res.Synced, res.Remaining)
		return err
	default:
		fmt.Printf("sync failed after %d session(s) written\n", res.Synced)
		return err
	}
}

func openStore(ctx context.Context, kind, sqlitePath string) (healthstore.Store, error) {
	switch kind {
	case "sqlite":
		return hssqlite.Open(ctx, sqlitePath)
	case "redis":
		return hsredis.NewFromEnv(ctx)
	case "memory":
		return hsmemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
