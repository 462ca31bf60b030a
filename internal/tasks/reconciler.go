package tasks

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/push"
	"github.com/samber/lo"
)

const (
	defaultLogLimit = 200

	// retiredRetention is how long a retired job stays remembered after it has left the jobs snapshot.
	retiredRetention = time.Minute
)

// ReconcilerOpts configures a [Reconciler].
type ReconcilerOpts struct {
	LogLimit int           // lines of job log kept per record
	Changes  chan<- Change // optional, receives every visible change without blocking
	Now      func() time.Time
}

// Reconciler folds job events and snapshots into per-job progress records.
//
// Mutating methods are meant to be called from one goroutine. Readers may call the query methods concurrently.
type Reconciler struct {
	mu      sync.RWMutex
	records map[Key]*Progress
	byBatch map[int64]Key
	retired map[Key]time.Time
	files   map[Key][]models.JobFile

	logLimit int
	changes  chan<- Change
	now      func() time.Time
}

// NewReconciler creates an empty reconciler.
func NewReconciler(opts ReconcilerOpts) *Reconciler {
	if opts.LogLimit <= 0 {
		opts.LogLimit = defaultLogLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		records:  make(map[Key]*Progress),
		byBatch:  make(map[int64]Key),
		retired:  make(map[Key]time.Time),
		files:    make(map[Key][]models.JobFile),
		logLimit: opts.LogLimit,
		changes:  opts.Changes,
		now:      opts.Now,
	}
}

func refKey(r push.JobRef) Key {
	return Key{Type: r.Type, ID: r.JobID}
}

// resolve maps an event to the record it belongs to. Events may omit the job type: those go to the batch's record when
// it has the same job id, otherwise to the only live or retired record with that id.
func (r *Reconciler) resolve(ref push.JobRef, batchID *int64) Key {
	key := refKey(ref)
	if key.Type != "" {
		return key
	}
	if batchID != nil {
		if k, ok := r.byBatch[*batchID]; ok && k.ID == ref.JobID {
			return k
		}
	}
	if k, ok := soleKey(lo.Keys(r.records), ref.JobID); ok {
		return k
	}
	if k, ok := soleKey(lo.Keys(r.retired), ref.JobID); ok {
		return k
	}
	return key
}

func soleKey(keys []Key, id int64) (Key, bool) {
	matches := lo.Filter(keys, func(k Key, _ int) bool { return k.ID == id && k.Type != "" })
	if len(matches) != 1 {
		return Key{}, false
	}
	return matches[0], true
}

// adopt moves a record opened by an untyped event under its typed key.
func (r *Reconciler) adopt(key Key) (*Progress, bool) {
	orphan := Key{ID: key.ID}
	p, ok := r.records[orphan]
	if !ok || key.Type == "" {
		return nil, false
	}
	delete(r.records, orphan)
	p.Key = key
	r.records[key] = p
	if files, ok := r.files[orphan]; ok {
		delete(r.files, orphan)
		r.files[key] = files
	}
	if p.BatchID != 0 && r.byBatch[p.BatchID] == orphan {
		r.byBatch[p.BatchID] = key
	}
	return p, true
}

// Start opens a record for a job.started event.
//
// A replayed start for a record that is still live keeps its counters so a reconnect cannot move progress backwards.
func (r *Reconciler) Start(m push.JobStarted) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.resolve(m.JobRef, m.BatchID)
	if r.isRetired(key) {
		return Change{Key: key}
	}

	p, ok := r.records[key]
	if !ok {
		p, ok = r.adopt(key)
	}
	effect := Updated
	if !ok {
		p = &Progress{Key: key, State: Started}
		r.records[key] = p
		effect = Opened
	} else if p.State.Terminal() {
		return Change{Key: key, BatchID: p.BatchID}
	}

	if m.Direction != "" {
		p.Direction = m.Direction
	}
	if m.BatchID != nil {
		r.index(p, *m.BatchID)
	}
	setIf(&p.TotalFiles, m.TotalFiles)
	setIf(&p.TotalSize, m.TotalSize)
	p.UpdatedAt = r.now()
	return r.emit(Change{Key: key, BatchID: p.BatchID, Effect: effect})
}

// Progress merges a job.progress event. An event for an unknown live job opens its record.
func (r *Reconciler) Progress(m push.JobProgress) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.resolve(m.JobRef, m.BatchID)
	if r.isRetired(key) {
		return Change{Key: key}
	}

	p, ok := r.records[key]
	if !ok {
		p, ok = r.adopt(key)
	}
	effect := Updated
	if !ok {
		p = &Progress{Key: key}
		r.records[key] = p
		effect = Opened
	} else if p.State.Terminal() {
		return Change{Key: key, BatchID: p.BatchID}
	}

	p.State = Progressing
	if m.BatchID != nil {
		r.index(p, *m.BatchID)
	}
	raise(&p.Count, m.Count)
	raise(&p.CopiedSize, m.CopiedSize)
	setIf(&p.TotalFiles, m.TotalFiles)
	setIf(&p.TotalSize, m.TotalSize)
	setIf(&p.CurrentFileSize, m.CurrentFileSize)
	if m.CurrentFile != nil {
		p.CurrentFile = *m.CurrentFile
	} else if m.Path != nil {
		p.CurrentFile = *m.Path
	}
	if m.Message != nil {
		p.Message = *m.Message
	}
	p.UpdatedAt = r.now()
	return r.emit(Change{Key: key, BatchID: p.BatchID, Effect: effect})
}

// Finish marks a record terminal. Duplicate terminal events and events for retired jobs are ignored.
func (r *Reconciler) Finish(m push.JobFinished) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.resolve(m.JobRef, m.BatchID)
	if r.isRetired(key) {
		return Change{Key: key}
	}

	p, ok := r.records[key]
	if !ok {
		p, ok = r.adopt(key)
	}
	if !ok {
		p = &Progress{Key: key}
		r.records[key] = p
	} else if p.State.Terminal() {
		return Change{Key: key, BatchID: p.BatchID}
	}

	if m.BatchID != nil {
		r.index(p, *m.BatchID)
	}
	r.close(p, m.Failed(), m.Error)
	return r.emit(Change{Key: key, BatchID: p.BatchID, Effect: Closed})
}

// Log appends a job.log line to a live record's bounded tail.
func (r *Reconciler) Log(m push.JobLog) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.resolve(m.JobRef, nil)
	p, ok := r.records[key]
	if !ok || r.isRetired(key) {
		return Change{Key: key}
	}

	p.Log = append(p.Log, m.Message)
	if over := len(p.Log) - r.logLimit; over > 0 {
		p.Log = append([]string(nil), p.Log[over:]...)
	}
	return r.emit(Change{Key: key, BatchID: p.BatchID, Effect: Updated})
}

// Resume seeds a record for a running copy job from its file statuses and its batch's items, as if job.started and one
// job.progress had been received. An existing live record is only ever moved forward.
func (r *Reconciler) Resume(job models.Job, files []models.JobFile, items []models.BatchItem) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := KeyOf(job)
	if r.isRetired(key) {
		return Change{Key: key}
	}

	enabled := lo.Filter(items, func(it models.BatchItem, _ int) bool { return it.IsEnabled() })
	copied := lo.Filter(files, func(f models.JobFile, _ int) bool { return f.Status == models.FileCopied })
	total := int64(len(enabled))
	totalSize := lo.SumBy(enabled, func(it models.BatchItem) int64 { return it.Size })
	count := int64(len(copied))
	copiedSize := lo.SumBy(copied, func(f models.JobFile) int64 { return f.FileSize })

	p, ok := r.records[key]
	if !ok {
		p, ok = r.adopt(key)
	}
	effect := Updated
	if !ok {
		p = &Progress{Key: key, Resumed: true}
		r.records[key] = p
		effect = Opened
	} else if p.State.Terminal() {
		return Change{Key: key, BatchID: p.BatchID}
	}

	p.State = Progressing
	if d := job.Metadata.Direction(); d != "" {
		p.Direction = d
	}
	if id, ok := job.Metadata.BatchID(); ok {
		r.index(p, id)
	}
	p.TotalFiles = total
	p.TotalSize = totalSize
	raise(&p.Count, &count)
	raise(&p.CopiedSize, &copiedSize)
	r.files[key] = append([]models.JobFile(nil), files...)
	p.UpdatedAt = r.now()
	return r.emit(Change{Key: key, BatchID: p.BatchID, Effect: effect})
}

// Reconcile converges live records with a jobs snapshot.
//
// Records whose job the snapshot reports terminal are closed and returned as changes. Running copy jobs that have no
// live record and were never retired are returned for the caller to resume. Retired jobs the snapshot no longer lists
// are forgotten once they have been retired for longer than a minute.
func (r *Reconciler) Reconcile(jobs []models.Job) ([]Change, []models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listed := make(map[Key]struct{}, len(jobs))
	for _, j := range jobs {
		listed[KeyOf(j)] = struct{}{}
	}
	cutoff := r.now().Add(-retiredRetention)
	for key, at := range r.retired {
		if _, ok := listed[key]; !ok && at.Before(cutoff) {
			delete(r.retired, key)
		}
	}

	var closed []Change
	var missing []models.Job
	for _, j := range jobs {
		key := KeyOf(j)
		if r.isRetired(key) {
			continue
		}
		p, ok := r.records[key]
		switch {
		case ok && !p.State.Terminal() && models.Terminal(j.Status):
			r.close(p, j.Status == models.StatusFailed, j.ErrorMessage)
			closed = append(closed, r.emit(Change{Key: key, BatchID: p.BatchID, Effect: Closed}))
		case !ok && j.Type == models.JobCopy && j.Running():
			missing = append(missing, j)
		}
	}
	return closed, missing
}

// SetFiles stores a job's wholesale file-status list. The copied count it implies moves the record forward when higher.
func (r *Reconciler) SetFiles(key Key, files []models.JobFile) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRetired(key) {
		return Change{Key: key}
	}
	r.files[key] = append([]models.JobFile(nil), files...)

	p, ok := r.records[key]
	if !ok || p.State.Terminal() {
		return Change{Key: key}
	}
	copied := lo.CountBy(files, func(f models.JobFile) bool { return f.Status == models.FileCopied })
	n := int64(copied)
	raise(&p.Count, &n)
	return r.emit(Change{Key: key, BatchID: p.BatchID, Effect: Updated})
}

// Expire removes a terminal record from the live index. The batch index entry is dropped only if it still points at
// this job, so a newer copy of the same batch is unaffected.
func (r *Reconciler) Expire(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.records[key]
	if !ok || !p.State.Terminal() {
		return false
	}
	delete(r.records, key)
	delete(r.files, key)
	if p.BatchID != 0 && r.byBatch[p.BatchID] == key {
		delete(r.byBatch, p.BatchID)
	}
	r.retired[key] = r.now()
	return true
}

// Retired returns how many expired jobs are remembered so late events for them are ignored.
func (r *Reconciler) Retired() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.retired)
}

// ForJob returns the live record of a job.
func (r *Reconciler) ForJob(key Key) (Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.records[key]
	if !ok {
		return Progress{}, false
	}
	return p.clone(), true
}

// ForBatch returns the live record of the most recent job on a batch.
func (r *Reconciler) ForBatch(batchID int64) (Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byBatch[batchID]
	if !ok {
		return Progress{}, false
	}
	p, ok := r.records[key]
	if !ok {
		return Progress{}, false
	}
	return p.clone(), true
}

// Running reports whether a non-terminal record exists for the batch.
func (r *Reconciler) Running(batchID int64) bool {
	p, ok := r.ForBatch(batchID)
	return ok && !p.State.Terminal()
}

// Files returns the last file-status list stored for a job.
func (r *Reconciler) Files(key Key) []models.JobFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.JobFile(nil), r.files[key]...)
}

// Snapshot returns every live record ordered by type then id.
func (r *Reconciler) Snapshot() []Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := lo.MapToSlice(r.records, func(_ Key, p *Progress) Progress { return p.clone() })
	slices.SortFunc(out, func(a, b Progress) int {
		if c := cmp.Compare(a.Key.Type, b.Key.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.ID, b.Key.ID)
	})
	return out
}

func (r *Reconciler) isRetired(key Key) bool {
	_, ok := r.retired[key]
	return ok
}

func (r *Reconciler) index(p *Progress, batchID int64) {
	p.BatchID = batchID
	r.byBatch[batchID] = p.Key
}

func (r *Reconciler) close(p *Progress, failed bool, msg string) {
	p.State = Finished
	if failed {
		p.State = Failed
		p.Error = msg
	}
	p.UpdatedAt = r.now()
}

func (r *Reconciler) emit(c Change) Change {
	sendChange(r.changes, c)
	return c
}

// raise sets *dst to *v when v is present and larger.
func raise(dst *int64, v *int64) {
	if v != nil && *v > *dst {
		*dst = *v
	}
}

// setIf overwrites *dst when v is present.
func setIf(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}
