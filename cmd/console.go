package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/desertthunder/syncctl/internal/ui"
	"github.com/urfave/cli/v3"
)

// Console runs the engine with its push channel attached and draws the operator console over it.
func (r *Runner) Console(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	if err := shared.ApplyLogLevel(fileLogger, r.config.Log.Level); err != nil {
		return err
	}
	r.SetLogger(fileLogger)

	engine, release, err := r.newEngine(true)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	stopped := make(chan error, 1)
	go func() { stopped <- engine.Run(ctx) }()

	model := ui.NewModel(ctx, engine, cmd.String("script-dir"))
	_, runErr := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	interrupted := ctx.Err() != nil
	cancel()
	if err := <-stopped; err != nil {
		r.logger.Error("engine stopped", "err", err)
	}
	if runErr != nil && !interrupted {
		return fmt.Errorf("error running console: %w", runErr)
	}
	return nil
}
