package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/notify"
	"github.com/desertthunder/syncctl/internal/phase"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/desertthunder/syncctl/internal/snapshot"
	"github.com/desertthunder/syncctl/internal/tasks"
)

// Sync loads mounts and every snapshot collection synchronously. Commands that never call [Engine.Run] use it to get
// state for eligibility checks.
func (e *Engine) Sync(ctx context.Context) error {
	mountErr := e.mounts.Load(ctx)
	e.loader.LoadAll(ctx)
	e.refreshed()

	var errs []error
	if mountErr != nil {
		errs = append(errs, mountErr)
	}
	for _, c := range snapshot.All {
		if err := e.loader.Err(c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
		}
	}
	return errors.Join(errs...)
}

// SelectPhase switches the active phase. The gatekeeper redirects the route when needed.
func (e *Engine) SelectPhase(p phase.Phase) (phase.Change, error) {
	change, err := e.gate.Select(p)
	if err != nil && change.To == "" {
		e.notices.Notify(err.Error(), notify.Warning)
		return change, err
	}
	if err != nil {
		e.notices.Fail("phase not saved", err)
	}
	e.refreshed()
	return change, err
}

// Navigate moves to a route allowed in the active phase.
func (e *Engine) Navigate(path string) error {
	if err := e.gate.Navigate(path); err != nil {
		return err
	}
	e.refreshed()
	return nil
}

// StartCopy starts the copy leg of the active phase for a batch.
func (e *Engine) StartCopy(ctx context.Context, batchID int64, dryRun bool) (*models.Job, error) {
	v := e.live()
	action, dir := phase.ActionCopyOut, models.DirectionOut
	if v.Phase == phase.TransferIn {
		action, dir = phase.ActionCopyIn, models.DirectionIn
	}
	if err := e.gated(v.Eligible(action, batchID, nil)); err != nil {
		return nil, err
	}

	job, err := e.api.StartCopy(ctx, dir, models.CopyRequest{BatchID: batchID, DryRun: dryRun})
	if err != nil {
		return nil, e.report("copy failed to start", err)
	}
	e.logger.Info("copy started", "job", job.ID, "batch", batchID, "direction", dir, "dry_run", dryRun)
	e.notices.Notify(fmt.Sprintf("copy job %d started for plan %d", job.ID, batchID), notify.Info)
	e.reload(snapshot.Jobs, snapshot.Batches)
	return job, nil
}

// RetryJob re-runs a failed copy job and clears its failure banner.
func (e *Engine) RetryJob(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := e.jobFor(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := e.gated(e.live().Eligible(phase.ActionRetryJob, 0, job)); err != nil {
		return nil, err
	}

	next, err := e.api.RetryJob(ctx, jobID)
	if err != nil {
		return nil, e.report("retry failed", err)
	}
	e.DismissBanner(tasks.KeyOf(*job))
	e.notices.Notify(fmt.Sprintf("job %d retried as job %d", jobID, next.ID), notify.Info)
	e.reload(snapshot.Jobs, snapshot.Batches)
	return next, nil
}

// DeleteJob removes a finished job from the backend history.
func (e *Engine) DeleteJob(ctx context.Context, jobID int64) error {
	job, err := e.jobFor(ctx, jobID)
	if err != nil {
		return err
	}
	if err := e.gated(e.live().Eligible(phase.ActionDeleteJob, 0, job)); err != nil {
		return err
	}
	if err := e.api.DeleteJob(ctx, jobID); err != nil {
		return e.report("delete job failed", err)
	}
	e.DismissBanner(tasks.KeyOf(*job))
	e.notices.Notify(fmt.Sprintf("job %d deleted", jobID), notify.Success)
	e.reload(snapshot.Jobs)
	return nil
}

// VerifyJob checks a finished copy job's files against the destination.
func (e *Engine) VerifyJob(ctx context.Context, jobID int64) (*models.VerifyResult, error) {
	job, err := e.jobFor(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := e.gated(e.live().Eligible(phase.ActionVerifyJob, 0, job)); err != nil {
		return nil, err
	}

	res, err := e.api.VerifyJob(ctx, jobID)
	if err != nil {
		return nil, e.report("verify failed", err)
	}
	if res.OK() {
		e.notices.Notify(fmt.Sprintf("job %d verified: %d/%d files ok", jobID, res.VerifiedOK, res.TotalFiles), notify.Success)
	} else {
		e.notices.Notify(fmt.Sprintf("job %d verify found %d missing, %d mismatched", jobID, res.MissingCount, res.SizeMismatchCount), notify.Warning)
	}
	return res, nil
}

// ToggleItem enables or disables one batch item for future copies. Recorded file statuses are unaffected.
func (e *Engine) ToggleItem(ctx context.Context, batchID, itemID int64, enabled bool) error {
	if err := e.gated(e.live().Eligible(phase.ActionToggleItem, batchID, nil)); err != nil {
		return err
	}
	if err := e.api.SetItemEnabled(ctx, batchID, itemID, enabled); err != nil {
		return e.report("toggle item failed", err)
	}
	return nil
}

// ToggleAll enables or disables every item of a batch.
func (e *Engine) ToggleAll(ctx context.Context, batchID int64, enabled bool) error {
	if err := e.gated(e.live().Eligible(phase.ActionToggleAll, batchID, nil)); err != nil {
		return err
	}
	if err := e.api.SetAllEnabled(ctx, batchID, enabled); err != nil {
		return e.report("toggle all failed", err)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	e.notices.Notify(fmt.Sprintf("all items of plan %d %s", batchID, state), notify.Success)
	return nil
}

// ExportScript downloads the offline copy script for a batch in the active phase's direction.
func (e *Engine) ExportScript(ctx context.Context, batchID int64) (name string, data []byte, err error) {
	v := e.live()
	if err := e.gated(v.Eligible(phase.ActionExportScript, batchID, nil)); err != nil {
		return "", nil, err
	}
	data, err = e.api.BatchScript(ctx, batchID, v.Phase.Direction())
	if err != nil {
		return "", nil, e.report("script export failed", err)
	}
	return ScriptName(batchID), data, nil
}

// ScriptName is the file name an exported copy script is saved under.
func ScriptName(batchID int64) string {
	return fmt.Sprintf("copy_batch_%d.sh", batchID)
}

// RefreshMounts asks the backend to re-check every endpoint.
func (e *Engine) RefreshMounts(ctx context.Context) error {
	if err := e.gated(e.live().Eligible(phase.ActionRefreshMounts, 0, nil)); err != nil {
		return err
	}
	if err := e.mounts.Refresh(ctx); err != nil {
		return e.report("mount refresh failed", err)
	}
	e.refreshed()
	return nil
}

// SaveDataset creates a dataset, or updates it when id is non-zero.
func (e *Engine) SaveDataset(ctx context.Context, id int64, in models.DatasetInput) (*models.Dataset, error) {
	if err := e.gated(e.live().Eligible(phase.ActionSaveDataset, 0, nil)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, e.invalid("dataset name is required")
	}

	var ds *models.Dataset
	var err error
	if id == 0 {
		ds, err = e.api.CreateDataset(ctx, in)
	} else {
		ds, err = e.api.UpdateDataset(ctx, id, in)
	}
	if err != nil {
		return nil, e.report("save dataset failed", err)
	}
	e.notices.Notify(fmt.Sprintf("dataset %s saved", ds.Name), notify.Success)
	e.reload(snapshot.Datasets)
	return ds, nil
}

// DeleteDataset removes a dataset.
func (e *Engine) DeleteDataset(ctx context.Context, id int64) error {
	return e.remove(ctx, phase.ActionDeleteDataset, "dataset", id, e.api.DeleteDataset, snapshot.Datasets)
}

// CreateScan starts a scan job for a dataset.
func (e *Engine) CreateScan(ctx context.Context, datasetID int64) (*models.Scan, error) {
	if err := e.gated(e.live().Eligible(phase.ActionCreateScan, 0, nil)); err != nil {
		return nil, err
	}
	scan, err := e.api.CreateScan(ctx, datasetID)
	if err != nil {
		return nil, e.report("scan failed to start", err)
	}
	e.notices.Notify(fmt.Sprintf("scan %d started", scan.ID), notify.Info)
	e.reload(snapshot.Scans, snapshot.Jobs)
	return scan, nil
}

// DeleteScan removes a scan.
func (e *Engine) DeleteScan(ctx context.Context, id int64) error {
	return e.remove(ctx, phase.ActionDeleteScan, "scan", id, e.api.DeleteScan, snapshot.Scans)
}

// CreateComparison starts a comparison between two completed scans.
func (e *Engine) CreateComparison(ctx context.Context, sourceScanID, targetScanID int64) (*models.Comparison, error) {
	if err := e.gated(e.live().Eligible(phase.ActionCreateComparison, 0, nil)); err != nil {
		return nil, err
	}
	if sourceScanID == targetScanID {
		return nil, e.invalid("source and target scans must differ")
	}
	cmp, err := e.api.CreateComparison(ctx, sourceScanID, targetScanID)
	if err != nil {
		return nil, e.report("comparison failed to start", err)
	}
	e.notices.Notify(fmt.Sprintf("comparison %d started", cmp.ID), notify.Info)
	e.reload(snapshot.Comparisons, snapshot.Jobs)
	return cmp, nil
}

// DeleteComparison removes a comparison.
func (e *Engine) DeleteComparison(ctx context.Context, id int64) error {
	return e.remove(ctx, phase.ActionDeleteComparison, "comparison", id, e.api.DeleteComparison, snapshot.Comparisons)
}

// CreatePlan builds a batch from a comparison.
func (e *Engine) CreatePlan(ctx context.Context, in models.BatchInput) (*models.Batch, error) {
	if err := e.gated(e.live().Eligible(phase.ActionCreatePlan, 0, nil)); err != nil {
		return nil, err
	}
	b, err := e.api.CreateBatch(ctx, in)
	if err != nil {
		return nil, e.report("plan failed", err)
	}
	e.notices.Notify(fmt.Sprintf("plan %d created", b.ID), notify.Info)
	e.reload(snapshot.Batches, snapshot.Jobs)
	return b, nil
}

// DeletePlan removes a batch.
func (e *Engine) DeletePlan(ctx context.Context, id int64) error {
	return e.remove(ctx, phase.ActionDeletePlan, "plan", id, e.api.DeleteBatch, snapshot.Batches)
}

// BatchItems lists a batch's items with the file status of the newest copy job that ran against it.
func (e *Engine) BatchItems(ctx context.Context, batchID int64) ([]tasks.ItemStatus, error) {
	items, err := e.api.BatchItems(ctx, batchID)
	if err != nil {
		return nil, err
	}

	v := e.live()
	if p, ok := v.ProgressFor(batchID); ok {
		if files := e.tasks.Files(p.Key); files != nil {
			return tasks.Annotate(items, files), nil
		}
	}
	job, ok := v.LatestJobFor(batchID)
	if !ok {
		return tasks.Annotate(items, nil), nil
	}
	files, err := e.api.JobFiles(ctx, job.ID)
	if err != nil {
		e.logger.Debug("file status fetch failed", "job", job.ID, "err", err)
	}
	return tasks.Annotate(items, files), nil
}

// DismissBanner clears a failure banner.
func (e *Engine) DismissBanner(key tasks.Key) {
	e.post(func() { delete(e.banners, key) })
}

// DismissNotice starts closing a notice.
func (e *Engine) DismissNotice(id string) {
	e.notices.Dismiss(id)
}

// Notify queues an operator notice.
func (e *Engine) Notify(message string, severity notify.Severity) string {
	return e.notices.Notify(message, severity)
}

func (e *Engine) remove(
	ctx context.Context, action phase.Action, what string, id int64,
	del func(context.Context, int64) error, c snapshot.Collection,
) error {
	if err := e.gated(e.live().Eligible(action, 0, nil)); err != nil {
		return err
	}
	if err := del(ctx, id); err != nil {
		return e.report("delete "+what+" failed", err)
	}
	e.notices.Notify(fmt.Sprintf("%s %d deleted", what, id), notify.Success)
	e.reload(c)
	return nil
}

// jobFor finds a job in the snapshot, falling back to the backend. Live terminal state overrides a lagging status.
func (e *Engine) jobFor(ctx context.Context, id int64) (*models.Job, error) {
	job, ok := e.loader.Job(id)
	if !ok {
		j, err := e.api.Job(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				err = fmt.Errorf("%w: %d", shared.ErrJobNotFound, id)
			}
			return nil, e.report("job lookup failed", err)
		}
		job = *j
	}

	if p, ok := e.tasks.ForJob(tasks.KeyOf(job)); ok {
		switch p.State {
		case tasks.Failed:
			job.Status = models.StatusFailed
			if job.ErrorMessage == "" {
				job.ErrorMessage = p.Error
			}
		case tasks.Finished:
			job.Status = models.StatusCompleted
		}
	}
	return &job, nil
}

// gated turns a refused decision into a warning notice and an error.
func (e *Engine) gated(d phase.Decision) error {
	if d.Allowed {
		return nil
	}
	e.notices.Notify(fmt.Sprintf("%s not available: %s", d.Action, strings.Join(d.Reasons, "; ")), notify.Warning)
	return d.Err()
}

func (e *Engine) invalid(msg string) error {
	e.notices.Notify(msg, notify.Warning)
	return fmt.Errorf("%w: %s", shared.ErrInvalidInput, msg)
}

func (e *Engine) report(prefix string, err error) error {
	e.logger.Warn(prefix, "err", err)
	e.notices.Fail(prefix, err)
	return fmt.Errorf("%s: %w", prefix, err)
}

// reload refreshes collections after an action. Before Run it loads inline.
func (e *Engine) reload(cs ...snapshot.Collection) {
	load := func(ctx context.Context) {
		for _, c := range cs {
			e.loader.Load(ctx, c)
		}
	}
	if !e.started.Load() {
		load(context.Background())
		e.publish()
		return
	}
	e.post(func() { e.spawn(load) })
}

// refreshed republishes after a component changed outside the loop.
func (e *Engine) refreshed() {
	if !e.started.Load() {
		e.publish()
		return
	}
	e.post(func() {})
}
