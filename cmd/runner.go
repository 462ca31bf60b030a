package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncctl/internal/console"
	"github.com/desertthunder/syncctl/internal/phase"
	"github.com/desertthunder/syncctl/internal/push"
	"github.com/desertthunder/syncctl/internal/repositories"
	"github.com/desertthunder/syncctl/internal/services"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	api        *services.APIService
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	store      phase.Store
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	API        *services.APIService
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer

	// Store replaces the client-state database. Commands open the database from config when it is nil.
	Store phase.Store
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.API == nil {
		opts.API = services.NewAPIService(opts.Config.Backend.URL, opts.HTTPClient).WithRateLimit(opts.Config.Backend.RateLimit)
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		api:        opts.API,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		store:      opts.Store,
	}
}

// SetLogger replaces the logger used by commands and the engines they create.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, consoleCommand, statusCommand, phaseCommand, jobsCommand, batchesCommand,
		datasetsCommand, scansCommand, compareCommand, watchCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openStore returns the phase store and a func releasing it.
func (r *Runner) openStore() (phase.Store, func(), error) {
	if r.store != nil {
		return r.store, func() {}, nil
	}

	db, err := shared.OpenClientState(r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open client state: %w", err)
	}
	return repositories.NewClientStateRepository(db), func() { closeDB(r.logger, db) }, nil
}

// newEngine wires a console engine. The push channel is only attached when live is set.
func (r *Runner) newEngine(live bool) (*console.Engine, func(), error) {
	timings, err := r.config.Timings()
	if err != nil {
		return nil, nil, err
	}

	store, release, err := r.openStore()
	if err != nil {
		return nil, nil, err
	}

	opts := console.Opts{API: r.api, Store: store, Timings: timings, Logger: r.logger}
	if live {
		url, err := r.config.PushURL()
		if err != nil {
			release()
			return nil, nil, err
		}
		opts.Push = push.NewClient(url, push.ClientOpts{ReconnectDelay: timings.ReconnectDelay, Logger: r.logger})
	}
	return console.New(opts), release, nil
}

// withEngine loads current state into a fresh engine and hands it to fn. Mutating commands go through it so they
// are checked by the same eligibility rules as the console.
func (r *Runner) withEngine(ctx context.Context, fn func(e *console.Engine) error) error {
	e, release, err := r.newEngine(false)
	if err != nil {
		return err
	}
	defer release()

	if err := e.Sync(ctx); err != nil {
		r.logger.Warn("state partially loaded", "err", err)
	}
	return fn(e)
}

func closeDB(logger *log.Logger, db *sql.DB) {
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", "err", err)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
