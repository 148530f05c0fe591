package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slot-gateway/middleware/slots/infra"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		opts     benchOptions
		failLeak bool
	)

	cmd := &cobra.Command{
		Use:   "slotbench",
		Short: "Exercise the slot pool under concurrent borrow/return load and drain it",
		Long: `slotbench starts N workers that borrow a slot, hold it and give it back,
optionally paced by a global rate. When the duration ends the pool is drained
with the given quiescence window and the number of leaked slots is reported.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			logger.Info("starting",
				"slots", opts.Slots,
				"workers", opts.Workers,
				"duration", opts.Duration,
				"hold", opts.Hold,
				"rate", opts.Rate,
				"abandon", opts.Abandon,
			)

			res, err := runBench(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)

			if failLeak && res.Leaked > 0 {
				return fmt.Errorf("%d slots leaked", res.Leaked)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Slots, "slots", 16, "pool capacity")
	f.IntVar(&opts.Workers, "workers", 64, "concurrent workers")
	f.DurationVar(&opts.Duration, "duration", 5*time.Second, "how long to generate load")
	f.DurationVar(&opts.Hold, "hold", time.Millisecond, "how long each worker keeps a slot")
	f.Float64Var(&opts.Rate, "rate", 0, "global borrows per second (0 = unlimited)")
	f.IntVar(&opts.Abandon, "abandon", 0, "workers that take one slot and never return it")
	f.DurationVar(&opts.Quiescence, "quiescence", infra.DefaultQuiescencePeriod, "drain window without releases before giving up")
	f.BoolVar(&failLeak, "fail-on-leak", false, "exit non-zero when slots leak")

	return cmd
}

func printResult(w io.Writer, r benchResult) {
	fmt.Fprintf(w, "acquired:  %d\n", r.Acquired)
	fmt.Fprintf(w, "rejected:  %d\n", r.Rejected)
	fmt.Fprintf(w, "releases:  %d\n", r.Stats.Releases)
	fmt.Fprintf(w, "leaked:    %d\n", r.Leaked)
	fmt.Fprintf(w, "drain:     %s\n", r.Drain.Round(time.Millisecond))
}
