package console

import (
	"fmt"
	"maps"
	"slices"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/notify"
	"github.com/desertthunder/syncctl/internal/phase"
	"github.com/desertthunder/syncctl/internal/tasks"
)

// View is an immutable snapshot of console state. Slices are owned by the view.
type View struct {
	Version   uint64
	Phase     phase.Phase
	Route     string
	Routes    []phase.Route
	Connected bool

	Mounts       models.MountStatus
	MountsLoaded bool

	Datasets    []models.Dataset
	Scans       []models.Scan
	Comparisons []models.Comparison
	Batches     []models.Batch
	Jobs        []models.Job

	Progress []tasks.Progress
	Banners  []Banner
	Notices  []notify.Notice
}

// View returns the latest published snapshot. It never blocks on the loop.
func (e *Engine) View() View {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view
}

// Subscribe returns a channel signalled whenever a new view is published. Signals coalesce; the channel is closed on
// teardown.
func (e *Engine) Subscribe() <-chan struct{} {
	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	ch := make(chan struct{}, 1)
	if e.subs == nil {
		close(ch)
		return ch
	}
	e.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a channel returned by [Engine.Subscribe].
func (e *Engine) Unsubscribe(ch <-chan struct{}) {
	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	for sub := range e.subs {
		if sub == ch {
			delete(e.subs, sub)
			close(sub)
			return
		}
	}
}

// live reads the thread-safe components directly. Loop-owned fields come from the last published view.
func (e *Engine) live() View {
	v := e.View()
	v.Phase = e.gate.Current()
	v.Route = e.gate.Route()
	v.Routes = phase.AllowedRoutes(v.Phase)
	v.Mounts = e.mounts.Status()
	v.MountsLoaded = e.mounts.Loaded()
	v.Datasets = e.loader.Datasets()
	v.Scans = e.loader.Scans()
	v.Comparisons = e.loader.Comparisons()
	v.Batches = e.loader.Batches()
	v.Jobs = e.loader.Jobs()
	v.Progress = e.tasks.Snapshot()
	v.Notices = e.notices.Notices()
	return v
}

// publish composes a new view from the loop and signals subscribers.
func (e *Engine) publish() {
	v := e.live()
	v.Connected = e.connected
	v.Banners = slices.SortedFunc(maps.Values(e.banners), func(a, b Banner) int { return a.At.Compare(b.At) })

	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	e.version++
	v.Version = e.version
	e.view = v
	for ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Batch finds a batch by id.
func (v View) Batch(id int64) (models.Batch, bool) {
	for _, b := range v.Batches {
		if b.ID == id {
			return b, true
		}
	}
	return models.Batch{}, false
}

// Job finds a snapshot job by id. Historical jobs stay here after leaving the live progress index.
func (v View) Job(id int64) (models.Job, bool) {
	for _, j := range v.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return models.Job{}, false
}

// ProgressFor returns the live progress of the most recent job on a batch.
func (v View) ProgressFor(batchID int64) (tasks.Progress, bool) {
	var found *tasks.Progress
	for i := range v.Progress {
		p := &v.Progress[i]
		if p.BatchID == batchID && p.Key.Type == models.JobCopy && (found == nil || p.Key.ID > found.Key.ID) {
			found = p
		}
	}
	if found == nil {
		return tasks.Progress{}, false
	}
	return *found, true
}

// ProgressOf returns the live progress of one job.
func (v View) ProgressOf(key tasks.Key) (tasks.Progress, bool) {
	for _, p := range v.Progress {
		if p.Key == key {
			return p, true
		}
	}
	return tasks.Progress{}, false
}

// BatchRunning reports whether a copy is live for the batch, either in the progress index or in the jobs snapshot.
func (v View) BatchRunning(batchID int64) bool {
	if p, ok := v.ProgressFor(batchID); ok && !p.State.Terminal() {
		return true
	}
	for _, j := range v.Jobs {
		id, ok := j.Metadata.BatchID()
		if !ok || id != batchID || j.Type != models.JobCopy || !j.Running() {
			continue
		}
		// The push channel runs ahead of the snapshot.
		if p, live := v.ProgressOf(tasks.KeyOf(j)); live && p.State.Terminal() {
			continue
		}
		return true
	}
	return false
}

// CopyJobs returns snapshot copy jobs for a direction, newest first.
func (v View) CopyJobs(dir models.Direction) []models.Job {
	var out []models.Job
	for _, j := range v.Jobs {
		if j.Type == models.JobCopy && (dir == "" || j.Metadata.Direction() == dir) {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b models.Job) int { return int(b.ID - a.ID) })
	return out
}

// LatestJobFor returns the newest snapshot copy job that ran against a batch.
func (v View) LatestJobFor(batchID int64) (models.Job, bool) {
	for _, j := range v.CopyJobs("") {
		if id, ok := j.Metadata.BatchID(); ok && id == batchID {
			return j, true
		}
	}
	return models.Job{}, false
}

// Inputs assembles eligibility inputs for an action against a batch and/or job.
func (v View) Inputs(batchID int64, job *models.Job) phase.Inputs {
	in := phase.Inputs{Phase: v.Phase, Mounts: v.Mounts, Job: job}
	if job != nil {
		in.Direction = job.Metadata.Direction()
		if id, ok := job.Metadata.BatchID(); ok && batchID == 0 {
			batchID = id
		}
	}
	if batchID == 0 {
		return in
	}
	if b, ok := v.Batch(batchID); ok {
		in.Batch = &b
		in.OriginRemote, in.DestinationRemote = v.remoteEnds(b)
	}
	in.BatchRunning = v.BatchRunning(batchID)
	return in
}

// Eligible decides an action against the view.
func (v View) Eligible(action phase.Action, batchID int64, job *models.Job) phase.Decision {
	return phase.Eligible(action, v.Inputs(batchID, job))
}

// remoteEnds reports whether the source and target datasets behind a batch are reached over ssh.
func (v View) remoteEnds(b models.Batch) (origin, destination bool) {
	var cmp *models.Comparison
	for i := range v.Comparisons {
		if v.Comparisons[i].ID == b.DiffID {
			cmp = &v.Comparisons[i]
			break
		}
	}
	if cmp == nil {
		return false, false
	}
	return v.scanRemote(cmp.SourceScanID), v.scanRemote(cmp.TargetScanID)
}

func (v View) scanRemote(scanID int64) bool {
	for _, s := range v.Scans {
		if s.ID != scanID {
			continue
		}
		for _, d := range v.Datasets {
			if d.ID == s.DatasetID {
				return d.Remote()
			}
		}
	}
	return false
}

// DatasetName resolves a dataset id to its name, falling back to "#id".
func (v View) DatasetName(id int64) string {
	for _, d := range v.Datasets {
		if d.ID == id {
			return d.Name
		}
	}
	return fmt.Sprintf("#%d", id)
}

// ScanName describes a scan by its dataset.
func (v View) ScanName(id int64) string {
	for _, s := range v.Scans {
		if s.ID == id {
			return v.DatasetName(s.DatasetID)
		}
	}
	return fmt.Sprintf("scan #%d", id)
}

// ComparisonName is "source → target".
func (v View) ComparisonName(id int64) string {
	for _, c := range v.Comparisons {
		if c.ID == id {
			return v.ScanName(c.SourceScanID) + " → " + v.ScanName(c.TargetScanID)
		}
	}
	return fmt.Sprintf("comparison #%d", id)
}

func failureText(p tasks.Progress) string {
	msg := fmt.Sprintf("%s job %d failed", p.Key.Type, p.Key.ID)
	if p.Error != "" {
		msg += ": " + p.Error
	}
	return msg
}

func completionText(p tasks.Progress) string {
	if p.TotalFiles > 0 {
		return fmt.Sprintf("%s job %d completed (%d/%d files)", p.Key.Type, p.Key.ID, p.Count, p.TotalFiles)
	}
	return fmt.Sprintf("%s job %d completed", p.Key.Type, p.Key.ID)
}
