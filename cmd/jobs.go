package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/syncctl/internal/console"
	"github.com/desertthunder/syncctl/internal/formatter"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
)

// idArg parses a positional id.
func idArg(cmd *cli.Command, name string) (int64, error) {
	raw := strings.TrimSpace(cmd.StringArg(name))
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", shared.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

// JobsList lists jobs newest first, optionally filtered by type and status.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	jobs, err := r.api.Jobs(ctx)
	if err != nil {
		return err
	}

	kind, status := cmd.String("type"), cmd.String("status")
	jobs = lo.Filter(jobs, func(j models.Job, _ int) bool {
		return (kind == "" || j.Type == kind) && (status == "" || j.Status == status)
	})
	slices.SortFunc(jobs, func(a, b models.Job) int { return int(b.ID - a.ID) })
	if limit := cmd.Int("limit"); limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(jobs, cmd.Bool("pretty"))
	}

	if len(jobs) == 0 {
		return r.writePlain("No jobs\n")
	}
	now := time.Now()
	r.writePlain("Found %d jobs:\n\n", len(jobs))
	for _, j := range jobs {
		r.writePlain("%d. %s %s (%s)\n", j.ID, j.Type, j.Status, formatter.Elapsed(j, now))
		if id, ok := j.Metadata.BatchID(); ok {
			r.writePlain("   Plan: %d  Leg: %s\n", id, formatter.Direction(j.Metadata.Direction()))
		}
		if j.ErrorMessage != "" {
			r.writePlain("   Error: %s\n", j.ErrorMessage)
		}
	}
	return nil
}

// JobsShow prints one job.
func (r *Runner) JobsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	job, err := r.api.Job(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(job, cmd.Bool("pretty"))
	}
	return r.writeBytes(formatter.JobToText(*job, time.Now()))
}

// JobsFiles lists the file records of a copy job.
func (r *Runner) JobsFiles(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	files, err := r.api.JobFiles(ctx, id)
	if err != nil {
		return err
	}
	if status := cmd.String("status"); status != "" {
		files = lo.Filter(files, func(f models.JobFile, _ int) bool { return f.Status == status })
	}

	if cmd.Bool("json") {
		return r.writeJSON(files, cmd.Bool("pretty"))
	}

	counts := lo.CountValuesBy(files, func(f models.JobFile) string { return f.Status })
	r.writePlain("Job %d: %d files (%d copied, %d failed, %d skipped)\n\n", id, len(files),
		counts[models.FileCopied], counts[models.FileFailed], counts[models.FileSkipped])
	for _, f := range files {
		r.writePlain("%-8s %10s  %s\n", f.Status, formatter.Bytes(f.FileSize), f.FilePath)
		if f.ErrorMessage != "" {
			r.writePlain("         %s\n", f.ErrorMessage)
		}
	}
	return nil
}

// JobsLog prints the stored log of a job.
func (r *Runner) JobsLog(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	job, err := r.api.Job(ctx, id)
	if err != nil {
		return err
	}
	if job.Log == "" {
		return r.writePlain("Job %d has no log\n", id)
	}
	return r.writePlain("%s\n", strings.TrimRight(job.Log, "\n"))
}

// JobsRetry retries a finished copy job.
func (r *Runner) JobsRetry(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		next, err := e.RetryJob(ctx, id)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Job %d retried as job %d\n", id, next.ID)
	})
}

// JobsDelete deletes a finished job.
func (r *Runner) JobsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		if err := e.DeleteJob(ctx, id); err != nil {
			return err
		}
		return r.writePlain("✓ Job %d deleted\n", id)
	})
}

// JobsVerify checks a copy job's files at the destination.
func (r *Runner) JobsVerify(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	return r.withEngine(ctx, func(e *console.Engine) error {
		res, err := e.VerifyJob(ctx, id)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(res, cmd.Bool("pretty"))
		}
		return r.writeBytes(formatter.VerifyToText(id, *res))
	})
}
