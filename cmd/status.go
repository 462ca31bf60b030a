package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/syncctl/internal/console"
	"github.com/desertthunder/syncctl/internal/formatter"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/services"
	"github.com/urfave/cli/v3"
)

type statusReport struct {
	Backend string             `json:"backend"`
	Health  *services.Health   `json:"health,omitempty"`
	Mounts  models.MountStatus `json:"mounts"`
}

// Status prints backend health and the mount record. With --refresh the backend re-checks every mount first.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	report := statusReport{Backend: r.api.BaseURL()}

	health, err := r.api.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	report.Health = health

	if cmd.Bool("refresh") {
		err = r.withEngine(ctx, func(e *console.Engine) error {
			if err := e.RefreshMounts(ctx); err != nil {
				return err
			}
			report.Mounts = e.View().Mounts
			return nil
		})
	} else {
		var st *models.MountStatus
		if st, err = r.api.MountStatus(ctx); err == nil {
			report.Mounts = *st
		}
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Backend")
	r.writePlain("URL:      %s\n", report.Backend)
	r.writePlain("Status:   %s\n", health.Status)
	if health.Version != "" {
		r.writePlain("Version:  %s\n", health.Version)
	}
	r.writePlain("\n")
	r.writePlainHeader("Mounts")
	return r.writeBytes(formatter.MountsToText(report.Mounts))
}
