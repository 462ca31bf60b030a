package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/syncctl/internal/phase"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/urfave/cli/v3"
)

type phaseReport struct {
	Phase  phase.Phase `json:"phase"`
	Label  string      `json:"label"`
	Route  string      `json:"route"`
	Routes []string    `json:"routes"`
}

// PhaseShow prints the stored phase and the views it allows.
func (r *Runner) PhaseShow(ctx context.Context, cmd *cli.Command) error {
	store, release, err := r.openStore()
	if err != nil {
		return err
	}
	defer release()

	gate := phase.NewGatekeeper(store, r.logger)
	defer gate.Close()

	report := phaseReport{Phase: gate.Current(), Label: gate.Current().Label(), Route: gate.Route()}
	for _, route := range gate.Allowed() {
		report.Routes = append(report.Routes, route.Path)
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, cmd.Bool("pretty"))
	}

	r.writePlain("Phase: %s\n", report.Label)
	r.writePlain("Views:\n")
	for _, route := range gate.Allowed() {
		r.writePlain("  %-15s %s\n", route.Path, route.Title)
	}
	return nil
}

// PhaseSet selects and persists a phase.
func (r *Runner) PhaseSet(ctx context.Context, cmd *cli.Command) error {
	raw := cmd.StringArg("phase")
	if raw == "" {
		return fmt.Errorf("%w: phase", shared.ErrMissingArgument)
	}
	p, err := phase.Parse(raw)
	if err != nil {
		return err
	}

	e, release, err := r.newEngine(false)
	if err != nil {
		return err
	}
	defer release()

	change, err := e.SelectPhase(p)
	if err != nil {
		return err
	}
	if change.From == change.To {
		r.writePlain("Already in %s\n", change.To.Label())
		return nil
	}
	r.writePlain("✓ Phase set to %s\n", change.To.Label())
	return nil
}
