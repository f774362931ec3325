package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/webitel/im-delivery-service/internal/service/reporting"
)

// reportCmd groups operator-facing report scheduler commands.
func reportCmd() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Operate on the DMARC/TLS report scheduler",
		Subcommands: []*cli.Command{
			reportRunOnceCmd(),
		},
	}
}

// reportRunOnceCmd forces a single scan/dispatch pass against a freshly
// constructed Scheduler built from the same Store/LockStore/Sender types
// reporting.Module wires (a new, empty MemStore, a MemLockStore and a
// LogSender), per SPEC_FULL.md section 6.5. The loaded config is not used,
// and the pass does not see the queue of a running server process.
func reportRunOnceCmd() *cli.Command {
	return &cli.Command{
		Name:  "run-once",
		Usage: "Force a single report scan/dispatch pass and exit",
		Flags: []cli.Flag{configFileFlag()},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigFromCLI(c)
			if err != nil {
				return err
			}

			_ = cfg

			logger := ProvideLogger()
			store := reporting.NewMemStore()
			locks := reporting.NewMemLockStore()
			sender := reporting.NewLogSender(logger)
			scheduler := reporting.NewScheduler(store, locks, sender, logger)

			n, err := scheduler.RunOnce(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("dispatched %d due report event(s)\n", n)
			return nil
		},
	}
}
