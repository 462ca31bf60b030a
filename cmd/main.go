package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/syncctl/internal/services"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:    "syncctl",
		Usage:   "Operator console for the NAS1 → USB → NAS2 migration",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Before:   runner.configure,
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotImplemented):
			logger.Warn("not implemented")
			os.Exit(0)
		case errors.Is(err, shared.ErrRestricted):
			logger.Fatalf("refused: %v", err)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}

// configure loads the config named by --config before any command runs. A missing file means defaults.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	r.configPath = path

	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return ctx, err
		}
	}

	if err := shared.ApplyLogLevel(r.logger, config.Log.Level); err != nil {
		return ctx, err
	}

	timings, err := config.Timings()
	if err != nil {
		return ctx, err
	}

	r.config = config
	r.httpClient = &http.Client{Timeout: timings.RequestTimeout}
	r.api = services.NewAPIService(config.Backend.URL, r.httpClient).WithRateLimit(config.Backend.RateLimit)
	return ctx, nil
}
