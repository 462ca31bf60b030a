package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/syncctl/internal/console"
	"github.com/desertthunder/syncctl/internal/formatter"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/urfave/cli/v3"
)

var (
	locations = []models.Location{models.LocationOrigin, models.LocationIntermediate, models.LocationDestination}
	access    = []models.AccessMethod{models.AccessLocal, models.AccessSSH}
)

func parseLocation(raw string) (models.Location, error) {
	l := models.Location(strings.ToUpper(strings.TrimSpace(raw)))
	if !slices.Contains(locations, l) {
		return "", fmt.Errorf("%w: --location %q (want NAS1, USB or NAS2)", shared.ErrInvalidFlag, raw)
	}
	return l, nil
}

func parseAccess(flag, raw string) (models.AccessMethod, error) {
	if raw == "" {
		return "", nil
	}
	m := models.AccessMethod(strings.ToLower(strings.TrimSpace(raw)))
	if !slices.Contains(access, m) {
		return "", fmt.Errorf("%w: --%s %q (want local or ssh)", shared.ErrInvalidFlag, flag, raw)
	}
	return m, nil
}

// DatasetsList lists datasets.
func (r *Runner) DatasetsList(ctx context.Context, cmd *cli.Command) error {
	datasets, err := r.api.Datasets(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(datasets, cmd.Bool("pretty"))
	}

	if len(datasets) == 0 {
		return r.writePlain("No datasets\n")
	}
	for _, d := range datasets {
		r.writePlain("%d. %s (%s)\n", d.ID, d.Name, d.Location)
		r.writePlain("   Roots: %s\n", strings.Join(d.Roots, ", "))
		r.writePlain("   Scan: %s", d.ScanAdapterType)
		if d.TransferAdapterType != "" {
			r.writePlain("  Transfer: %s", d.TransferAdapterType)
		}
		r.writePlain("\n")
	}
	return nil
}

// DatasetsCreate defines a dataset.
func (r *Runner) DatasetsCreate(ctx context.Context, cmd *cli.Command) error {
	loc, err := parseLocation(cmd.String("location"))
	if err != nil {
		return err
	}
	scan, err := parseAccess("scan-adapter", cmd.String("scan-adapter"))
	if err != nil {
		return err
	}
	transfer, err := parseAccess("transfer-adapter", cmd.String("transfer-adapter"))
	if err != nil {
		return err
	}

	in := models.DatasetInput{
		Name:                cmd.String("name"),
		Location:            loc,
		Roots:               cmd.StringSlice("root"),
		ScanAdapterType:     scan,
		TransferAdapterType: transfer,
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		ds, err := e.SaveDataset(ctx, 0, in)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Dataset %d created: %s\n", ds.ID, ds.Name)
	})
}

// DatasetsDelete removes a dataset.
func (r *Runner) DatasetsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		if err := e.DeleteDataset(ctx, id); err != nil {
			return err
		}
		return r.writePlain("✓ Dataset %d deleted\n", id)
	})
}

// ScansList lists scans with their dataset names.
func (r *Runner) ScansList(ctx context.Context, cmd *cli.Command) error {
	return r.withEngine(ctx, func(e *console.Engine) error {
		v := e.View()
		if cmd.Bool("json") {
			return r.writeJSON(v.Scans, cmd.Bool("pretty"))
		}

		if len(v.Scans) == 0 {
			return r.writePlain("No scans\n")
		}
		for _, s := range v.Scans {
			r.writePlain("%d. %s\n", s.ID, v.DatasetName(s.DatasetID))
			r.writePlain("   %s, %d files, %s, %s\n", s.Status, s.TotalFiles, formatter.Bytes(s.TotalSize), formatter.Ago(s.CreatedAt))
			if s.ErrorMessage != "" {
				r.writePlain("   Error: %s\n", s.ErrorMessage)
			}
		}
		return nil
	})
}

// ScansCreate starts a scan of a dataset.
func (r *Runner) ScansCreate(ctx context.Context, cmd *cli.Command) error {
	datasetID, err := idArg(cmd, "dataset")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		scan, err := e.CreateScan(ctx, datasetID)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Scan %d started for %s\n", scan.ID, e.View().DatasetName(datasetID))
	})
}

// ScansDelete removes a scan.
func (r *Runner) ScansDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		if err := e.DeleteScan(ctx, id); err != nil {
			return err
		}
		return r.writePlain("✓ Scan %d deleted\n", id)
	})
}

// CompareList lists comparisons as "source → target".
func (r *Runner) CompareList(ctx context.Context, cmd *cli.Command) error {
	return r.withEngine(ctx, func(e *console.Engine) error {
		v := e.View()
		if cmd.Bool("json") {
			return r.writeJSON(v.Comparisons, cmd.Bool("pretty"))
		}

		if len(v.Comparisons) == 0 {
			return r.writePlain("No comparisons\n")
		}
		for _, c := range v.Comparisons {
			r.writePlain("%d. %s\n", c.ID, v.ComparisonName(c.ID))
			r.writePlain("   %s, %s\n", c.Status, formatter.Ago(c.CreatedAt))
			if c.ErrorMessage != "" {
				r.writePlain("   Error: %s\n", c.ErrorMessage)
			}
		}
		return nil
	})
}

// CompareCreate compares a source scan against a target scan.
func (r *Runner) CompareCreate(ctx context.Context, cmd *cli.Command) error {
	source, err := idArg(cmd, "source")
	if err != nil {
		return err
	}
	target, err := idArg(cmd, "target")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		c, err := e.CreateComparison(ctx, source, target)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Comparison %d started\n", c.ID)
	})
}

// CompareSummary prints per-category counts of a comparison.
func (r *Runner) CompareSummary(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	summary, err := r.api.ComparisonSummary(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(summary, cmd.Bool("pretty"))
	}
	return r.writeBytes(formatter.ComparisonSummaryToText(fmt.Sprintf("Comparison %d", id), *summary))
}

// CompareDelete removes a comparison.
func (r *Runner) CompareDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		if err := e.DeleteComparison(ctx, id); err != nil {
			return err
		}
		return r.writePlain("✓ Comparison %d deleted\n", id)
	})
}
