package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/syncctl/internal/console"
	"github.com/desertthunder/syncctl/internal/formatter"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// BatchesList lists plans with their comparison names and latest copy job.
func (r *Runner) BatchesList(ctx context.Context, cmd *cli.Command) error {
	return r.withEngine(ctx, func(e *console.Engine) error {
		v := e.View()
		if cmd.Bool("json") {
			return r.writeJSON(v.Batches, cmd.Bool("pretty"))
		}

		if len(v.Batches) == 0 {
			return r.writePlain("No plans\n")
		}
		r.writePlain("Phase: %s\n\n", v.Phase.Label())
		for _, b := range v.Batches {
			r.writePlain("%d. %s\n", b.ID, v.ComparisonName(b.DiffID))
			r.writePlain("   Status: %s\n", b.Status)
			if job, ok := v.LatestJobFor(b.ID); ok {
				r.writePlain("   Latest copy: job %d %s (%s)\n", job.ID, job.Status, formatter.Direction(job.Metadata.Direction()))
			}
			if v.BatchRunning(b.ID) {
				r.writePlain("   A copy is running\n")
			}
			if b.ErrorMessage != "" {
				r.writePlain("   Error: %s\n", b.ErrorMessage)
			}
		}
		return nil
	})
}

// BatchesCreate plans a transfer from a comparison.
func (r *Runner) BatchesCreate(ctx context.Context, cmd *cli.Command) error {
	in := models.BatchInput{
		DiffID:           cmd.Int64("comparison"),
		IncludeConflicts: cmd.Bool("include-conflicts"),
		ExcludePatterns:  cmd.StringSlice("exclude"),
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		b, err := e.CreatePlan(ctx, in)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Plan %d created (%s)\n", b.ID, b.Status)
	})
}

// BatchesDelete removes a plan.
func (r *Runner) BatchesDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		if err := e.DeletePlan(ctx, id); err != nil {
			return err
		}
		return r.writePlain("✓ Plan %d deleted\n", id)
	})
}

// BatchesItems lists a plan's items with the file status of its newest copy job.
func (r *Runner) BatchesItems(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		items, err := e.BatchItems(ctx, id)
		if err != nil {
			return err
		}

		if cmd.Bool("json") {
			return r.writeJSON(items, cmd.Bool("pretty"))
		}

		var data []byte
		switch format := cmd.String("format"); format {
		case "", "text":
			data, err = formatter.ItemsToText(items)
		case "csv":
			data, err = formatter.ItemsToCSV(items)
		default:
			return fmt.Errorf("%w: --format %q (want text or csv)", shared.ErrInvalidFlag, format)
		}
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	})
}

// BatchesEnable includes one item in future copies.
func (r *Runner) BatchesEnable(ctx context.Context, cmd *cli.Command) error {
	return r.toggleItem(ctx, cmd, true)
}

// BatchesDisable excludes one item from future copies.
func (r *Runner) BatchesDisable(ctx context.Context, cmd *cli.Command) error {
	return r.toggleItem(ctx, cmd, false)
}

// BatchesEnableAll includes every item of a plan.
func (r *Runner) BatchesEnableAll(ctx context.Context, cmd *cli.Command) error {
	return r.toggleAll(ctx, cmd, true)
}

// BatchesDisableAll excludes every item of a plan.
func (r *Runner) BatchesDisableAll(ctx context.Context, cmd *cli.Command) error {
	return r.toggleAll(ctx, cmd, false)
}

func (r *Runner) toggleItem(ctx context.Context, cmd *cli.Command, enabled bool) error {
	batchID, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	itemID, err := idArg(cmd, "item")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		if err := e.ToggleItem(ctx, batchID, itemID, enabled); err != nil {
			return err
		}
		return r.writePlain("✓ Item %d of plan %d %s\n", itemID, batchID, enabledText(enabled))
	})
}

func (r *Runner) toggleAll(ctx context.Context, cmd *cli.Command, enabled bool) error {
	batchID, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		if err := e.ToggleAll(ctx, batchID, enabled); err != nil {
			return err
		}
		return r.writePlain("✓ All items of plan %d %s\n", batchID, enabledText(enabled))
	})
}

func enabledText(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// BatchesScript exports the copy script for the active phase's leg. Without --output it is printed.
func (r *Runner) BatchesScript(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		name, data, err := e.ExportScript(ctx, id)
		if err != nil {
			return err
		}

		dir := cmd.String("output")
		if dir == "" {
			return r.writeBytes(data)
		}
		path, err := formatter.WriteScript(dir, name, data)
		if err != nil {
			return err
		}
		r.logger.Info("script saved", "path", path)
		return r.writePlain("✓ Script saved to %s\n", path)
	})
}

// BatchesCopy starts the active phase's copy leg for a plan.
func (r *Runner) BatchesCopy(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	dryRun := cmd.Bool("dry-run")
	return r.withEngine(ctx, func(e *console.Engine) error {
		job, err := e.StartCopy(ctx, id, dryRun)
		if err != nil {
			return err
		}
		r.writePlain("✓ Copy job %d started for plan %d (%s)\n", job.ID, id, formatter.Direction(e.View().Phase.Direction()))
		return r.writePlain("Follow it with 'syncctl watch' or 'syncctl console'\n")
	})
}

// BatchesExport writes a plan's items to CSV (items plus metadata) or a Markdown README.
func (r *Runner) BatchesExport(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		v := e.View()
		b, ok := v.Batch(id)
		if !ok {
			return fmt.Errorf("%w: plan %d", shared.ErrNotFound, id)
		}
		items, err := e.BatchItems(ctx, id)
		if err != nil {
			return err
		}

		switch format := cmd.String("format"); format {
		case "", "csv":
			res, err := formatter.WriteCSVExport(b, items, cmd.String("output"))
			if err != nil {
				return err
			}
			return r.writePlain("✓ Exported %d items to %s and %s\n", len(items), res.ItemsFile, res.MetadataFile)
		case "md", "markdown":
			path, err := formatter.WriteMarkdownExport(b, v.ComparisonName(b.DiffID), items, cmd.String("output"))
			if err != nil {
				return err
			}
			return r.writePlain("✓ Exported %d items to %s\n", len(items), path)
		default:
			return fmt.Errorf("%w: --format %q (want csv or md)", shared.ErrInvalidFlag, format)
		}
	})
}
