// Package snapshot keeps the last good copy of every backend collection.
//
// Each fetch is independent and fail-soft: a failed request is logged, recorded for [Loader.Err] and leaves the previous
// copy untouched. [Loader.Start] loads everything once and then re-fetches the volatile collections on a fixed interval.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/robfig/cron/v3"
)

// Collection names one backend list.
type Collection int

const (
	Datasets Collection = iota
	Scans
	Comparisons
	Batches
	Jobs
)

// Volatile are the collections that change while jobs run and are polled.
var Volatile = []Collection{Scans, Comparisons, Batches, Jobs}

// All lists every collection.
var All = []Collection{Datasets, Scans, Comparisons, Batches, Jobs}

func (c Collection) String() string {
	switch c {
	case Datasets:
		return "datasets"
	case Scans:
		return "scans"
	case Comparisons:
		return "comparisons"
	case Batches:
		return "batches"
	case Jobs:
		return "jobs"
	default:
		return ""
	}
}

// Source fetches the collections. [services.APIService] satisfies it.
type Source interface {
	Datasets(ctx context.Context) ([]models.Dataset, error)
	Scans(ctx context.Context) ([]models.Scan, error)
	Comparisons(ctx context.Context) ([]models.Comparison, error)
	Batches(ctx context.Context) ([]models.Batch, error)
	Jobs(ctx context.Context) ([]models.Job, error)
}

// LoaderOpts configures a [Loader].
type LoaderOpts struct {
	Interval time.Duration
	Logger   *log.Logger
}

// Loader holds the latest successful copy of each collection.
type Loader struct {
	src      Source
	interval time.Duration
	logger   *log.Logger

	mu          sync.RWMutex
	datasets    []models.Dataset
	scans       []models.Scan
	comparisons []models.Comparison
	batches     []models.Batch
	jobs        []models.Job
	loaded      map[Collection]time.Time
	errs        map[Collection]error
	listeners   []func(Collection)

	runMu   sync.Mutex
	sched   *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewLoader creates a loader over src.
func NewLoader(src Source, opts LoaderOpts) *Loader {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Loader{
		src:      src,
		interval: opts.Interval,
		logger:   shared.WithLogger(opts.Logger, "component", "snapshot"),
		loaded:   make(map[Collection]time.Time),
		errs:     make(map[Collection]error),
	}
}

// OnRefresh registers fn to be called, outside the loader's lock, after each successful fetch.
func (l *Loader) OnRefresh(fn func(Collection)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Load fetches one collection.
func (l *Loader) Load(ctx context.Context, c Collection) {
	switch c {
	case Datasets:
		fetch(ctx, l, c, l.src.Datasets, func(v []models.Dataset) { l.datasets = v })
	case Scans:
		fetch(ctx, l, c, l.src.Scans, func(v []models.Scan) { l.scans = v })
	case Comparisons:
		fetch(ctx, l, c, l.src.Comparisons, func(v []models.Comparison) { l.comparisons = v })
	case Batches:
		fetch(ctx, l, c, l.src.Batches, func(v []models.Batch) { l.batches = v })
	case Jobs:
		fetch(ctx, l, c, l.src.Jobs, func(v []models.Job) { l.jobs = v })
	}
}

// LoadAll fetches every collection.
func (l *Loader) LoadAll(ctx context.Context) {
	for _, c := range All {
		l.Load(ctx, c)
	}
}

// RefreshVolatile fetches the polled collections.
func (l *Loader) RefreshVolatile(ctx context.Context) {
	for _, c := range Volatile {
		if ctx.Err() != nil {
			return
		}
		l.Load(ctx, c)
	}
}

func fetch[T any](ctx context.Context, l *Loader, c Collection, get func(context.Context) ([]T, error), set func([]T)) {
	items, err := get(ctx)
	if err != nil {
		l.mu.Lock()
		l.errs[c] = err
		l.mu.Unlock()
		if ctx.Err() == nil {
			l.logger.Warn("snapshot fetch failed, keeping previous data", "collection", c, "err", err)
		}
		return
	}
	if items == nil {
		items = []T{}
	}

	l.mu.Lock()
	set(items)
	l.loaded[c] = time.Now()
	delete(l.errs, c)
	listeners := append(([]func(Collection))(nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(c)
	}
}

// Start performs the initial load and schedules volatile refreshes every interval. The schedule has one-second resolution.
func (l *Loader) Start(ctx context.Context) {
	l.runMu.Lock()
	if l.running {
		l.runMu.Unlock()
		return
	}
	l.running = true
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.sched = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(l.logger))))
	l.sched.Schedule(cron.Every(l.interval), cron.FuncJob(func() { l.RefreshVolatile(ctx) }))
	l.runMu.Unlock()

	l.LoadAll(ctx)
	l.sched.Start()
}

// Stop cancels in-flight fetches and waits for a running refresh to return.
func (l *Loader) Stop() {
	l.runMu.Lock()
	if !l.running {
		l.runMu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	sched := l.sched
	l.runMu.Unlock()

	<-sched.Stop().Done()
}

// Loaded reports whether c has been fetched successfully at least once, and when it last was.
func (l *Loader) Loaded(c Collection) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	at, ok := l.loaded[c]
	return at, ok
}

// Err returns the error of the most recent failed fetch of c, cleared by the next success.
func (l *Loader) Err(c Collection) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.errs[c]
}

func (l *Loader) Datasets() []models.Dataset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Dataset(nil), l.datasets...)
}

func (l *Loader) Scans() []models.Scan {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Scan(nil), l.scans...)
}

func (l *Loader) Comparisons() []models.Comparison {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Comparison(nil), l.comparisons...)
}

func (l *Loader) Batches() []models.Batch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Batch(nil), l.batches...)
}

func (l *Loader) Jobs() []models.Job {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Job(nil), l.jobs...)
}

// Job looks up a job by id in the latest jobs snapshot. Historical jobs stay here after leaving the live progress view.
func (l *Loader) Job(id int64) (models.Job, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, j := range l.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return models.Job{}, false
}

// Batch looks up a batch by id.
func (l *Loader) Batch(id int64) (models.Batch, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.batches {
		if b.ID == id {
			return b, true
		}
	}
	return models.Batch{}, false
}

// RunningCopyJobs returns the copy jobs the backend reports as running.
func (l *Loader) RunningCopyJobs() []models.Job {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Job
	for _, j := range l.jobs {
		if j.Type == models.JobCopy && j.Running() {
			out = append(out, j)
		}
	}
	return out
}
