package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"github.com/webitel/im-delivery-service/config"
)

const (
	ServiceName      = "im-delivery-service"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Telemetry event collection and distribution service",
		Commands: []*cli.Command{
			serverCmd(),
			statsCmd(),
			reportCmd(),
		},
	}

	return app.Run(os.Args)
}

func configFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "config_file",
		Usage: "Path to the configuration file",
	}
}

// loadConfigFromCLI bridges urfave/cli's flag parsing with the
// pflag.FlagSet config.LoadConfig binds against - the config_file value is
// the only flag every subcommand shares, so it's copied across rather than
// asking urfave/cli and pflag to parse the same argv twice.
func loadConfigFromCLI(c *cli.Context) (*config.Config, error) {
	fs := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
	fs.String("config_file", c.String("config_file"), "Path to the configuration file")
	return config.LoadConfig(fs)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the collector, scheduler and every transport",
		Flags:   []cli.Flag{configFileFlag()},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigFromCLI(c)
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("SHUTTING_DOWN")
			return app.Stop(context.Background())
		},
	}
}
