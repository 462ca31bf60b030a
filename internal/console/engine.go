// Package console is the state container behind every operator surface.
//
// An [Engine] owns the push client, the snapshot loader, the mount aggregator, the progress reconciler, the phase
// gatekeeper and the notification dispatcher. All engine-owned state is mutated on one loop goroutine started by
// [Engine.Run]: push messages, connectivity changes, snapshot refreshes, timer expiries and action results are handed
// to it in order. Readers take an immutable [View] with [Engine.View] and wait for changes on [Engine.Subscribe].
//
// Operator actions ([Engine.StartCopy], [Engine.RetryJob], ...) may be called from any goroutine. Each checks
// eligibility against live state first and reports its outcome through the notification dispatcher.
package console

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/mounts"
	"github.com/desertthunder/syncctl/internal/notify"
	"github.com/desertthunder/syncctl/internal/phase"
	"github.com/desertthunder/syncctl/internal/push"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/desertthunder/syncctl/internal/snapshot"
	"github.com/desertthunder/syncctl/internal/tasks"
)

const inboxSize = 64

// Backend is every REST operation the engine uses. [services.APIService] satisfies it.
type Backend interface {
	snapshot.Source
	mounts.Source
	tasks.ResumeSource

	CreateDataset(ctx context.Context, in models.DatasetInput) (*models.Dataset, error)
	UpdateDataset(ctx context.Context, id int64, in models.DatasetInput) (*models.Dataset, error)
	DeleteDataset(ctx context.Context, id int64) error
	CreateScan(ctx context.Context, datasetID int64) (*models.Scan, error)
	DeleteScan(ctx context.Context, id int64) error
	CreateComparison(ctx context.Context, sourceScanID, targetScanID int64) (*models.Comparison, error)
	DeleteComparison(ctx context.Context, id int64) error
	CreateBatch(ctx context.Context, in models.BatchInput) (*models.Batch, error)
	DeleteBatch(ctx context.Context, id int64) error
	SetItemEnabled(ctx context.Context, batchID, itemID int64, enabled bool) error
	SetAllEnabled(ctx context.Context, batchID int64, enabled bool) error
	BatchScript(ctx context.Context, batchID int64, dir models.Direction) ([]byte, error)
	StartCopy(ctx context.Context, dir models.Direction, req models.CopyRequest) (*models.Job, error)
	Job(ctx context.Context, id int64) (*models.Job, error)
	RetryJob(ctx context.Context, id int64) (*models.Job, error)
	VerifyJob(ctx context.Context, id int64) (*models.VerifyResult, error)
	DeleteJob(ctx context.Context, id int64) error
}

// PushSource is the push channel. [push.Client] satisfies it.
type PushSource interface {
	Run(ctx context.Context) error
	Messages() <-chan push.Message
	States() <-chan bool
}

// Opts configures an [Engine].
type Opts struct {
	API     Backend
	Push    PushSource
	Store   phase.Store
	Timings shared.Timings
	Logger  *log.Logger

	// AfterFunc schedules grace-window expiries and notice timers. Defaults to [time.AfterFunc].
	AfterFunc notify.AfterFunc
}

// Banner is a persistent job failure, cleared by a retry or an explicit dismiss.
type Banner struct {
	Key       tasks.Key
	BatchID   int64
	Direction models.Direction
	Error     string
	At        time.Time
}

// Engine is the console state container.
type Engine struct {
	api     Backend
	push    PushSource
	logger  *log.Logger
	timings shared.Timings
	after   notify.AfterFunc

	loader  *snapshot.Loader
	mounts  *mounts.Aggregator
	tasks   *tasks.Reconciler
	gate    *phase.Gatekeeper
	notices *notify.Dispatcher

	inbox   chan func()
	started atomic.Bool
	done    chan struct{}
	ctx     context.Context
	wg      sync.WaitGroup

	// loop-owned
	connected bool
	banners   map[tasks.Key]Banner
	timers    map[tasks.Key]notify.Timer
	resuming  map[tasks.Key]bool
	fetching  map[tasks.Key]bool
	stale     map[tasks.Key]bool

	viewMu  sync.RWMutex
	view    View
	version uint64
	subs    map[chan struct{}]struct{}
}

// New wires an engine. Nothing runs until [Engine.Run].
func New(opts Opts) *Engine {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Timings == (shared.Timings{}) {
		opts.Timings = shared.DefaultTimings()
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) notify.Timer { return time.AfterFunc(d, f) }
	}

	e := &Engine{
		api:      opts.API,
		push:     opts.Push,
		logger:   shared.WithLogger(opts.Logger, "component", "console"),
		timings:  opts.Timings,
		after:    opts.AfterFunc,
		loader:   snapshot.NewLoader(opts.API, snapshot.LoaderOpts{Interval: opts.Timings.PollInterval, Logger: opts.Logger}),
		mounts:   mounts.NewAggregator(opts.API, opts.Logger),
		tasks:    tasks.NewReconciler(tasks.ReconcilerOpts{}),
		gate:     phase.NewGatekeeper(opts.Store, opts.Logger),
		notices:  notify.New(notify.Opts{Duration: opts.Timings.NotifyDuration, Fade: opts.Timings.NotifyFade, AfterFunc: opts.AfterFunc}),
		inbox:    make(chan func(), inboxSize),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		banners:  make(map[tasks.Key]Banner),
		timers:   make(map[tasks.Key]notify.Timer),
		resuming: make(map[tasks.Key]bool),
		fetching: make(map[tasks.Key]bool),
		stale:    make(map[tasks.Key]bool),
		subs:     make(map[chan struct{}]struct{}),
	}
	e.loader.OnRefresh(func(c snapshot.Collection) {
		e.post(func() { e.onSnapshot(c) })
	})
	e.publish()
	return e
}

// Run starts the push client and the snapshot schedule and processes events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return shared.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.ctx = ctx

	var msgs <-chan push.Message
	var states <-chan bool
	if e.push != nil {
		msgs, states = e.push.Messages(), e.push.States()
		e.spawn(func(ctx context.Context) {
			if err := e.push.Run(ctx); err != nil {
				e.logger.Error("push client stopped", "err", err)
			}
		})
	}

	phaseChanges := e.gate.Subscribe()
	noticeChanges := e.notices.Subscribe()

	e.spawn(func(ctx context.Context) {
		e.mounts.Load(ctx)
		e.post(func() {})
	})
	e.spawn(func(ctx context.Context) { e.loader.Start(ctx) })

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return nil
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			e.fold(m)
		case up, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			e.setConnected(up)
		case fn := <-e.inbox:
			fn()
		case _, ok := <-phaseChanges:
			if !ok {
				phaseChanges = nil
			}
		case _, ok := <-noticeChanges:
			if !ok {
				noticeChanges = nil
			}
		}
		e.publish()
	}
}

// fold applies one push message. It is the only place push messages reach component state.
func (e *Engine) fold(m push.Message) {
	switch m := m.(type) {
	case push.MountsStatus:
		e.mounts.Apply(m.Patch)
	case push.JobStarted:
		e.track(e.tasks.Start(m))
	case push.JobProgress:
		c := e.tasks.Progress(m)
		e.track(c)
		if c.Changed() && c.Key.Type == models.JobCopy {
			e.refreshFiles(c.Key)
		}
	case push.JobFinished:
		c := e.tasks.Finish(m)
		e.track(c)
		if c.Effect == tasks.Closed {
			e.refreshAfterFinish()
		}
	case push.JobLog:
		e.tasks.Log(m)
	default:
		e.logger.Warn("unhandled push message", "kind", m.Kind())
	}
}

// track reacts to a reconciler change: closed records get a failure banner or a notice and an expiry timer.
func (e *Engine) track(c tasks.Change) {
	if c.Effect != tasks.Closed {
		return
	}
	p, ok := e.tasks.ForJob(c.Key)
	if !ok {
		return
	}

	switch p.State {
	case tasks.Failed:
		e.banners[c.Key] = Banner{Key: c.Key, BatchID: p.BatchID, Direction: p.Direction, Error: p.Error, At: time.Now()}
		e.notices.Notify(failureText(p), notify.Error)
	case tasks.Finished:
		e.notices.Notify(completionText(p), notify.Success)
	}
	e.scheduleExpiry(c.Key)
}

func (e *Engine) scheduleExpiry(key tasks.Key) {
	if t, ok := e.timers[key]; ok {
		t.Stop()
	}
	e.timers[key] = e.after(e.timings.FinishGrace, func() {
		e.post(func() {
			delete(e.timers, key)
			e.tasks.Expire(key)
		})
	})
}

func (e *Engine) setConnected(up bool) {
	if e.connected == up {
		return
	}
	e.connected = up
	if up {
		// Events may have been missed while disconnected.
		e.spawn(func(ctx context.Context) {
			e.mounts.Load(ctx)
			e.loader.RefreshVolatile(ctx)
			e.post(func() {})
		})
	}
}

func (e *Engine) onSnapshot(c snapshot.Collection) {
	if c != snapshot.Jobs {
		return
	}
	closed, missing := e.tasks.Reconcile(e.loader.Jobs())
	for _, ch := range closed {
		e.track(ch)
	}

	var todo []models.Job
	for _, j := range missing {
		key := tasks.KeyOf(j)
		if !e.resuming[key] {
			e.resuming[key] = true
			todo = append(todo, j)
		}
	}
	if len(todo) > 0 {
		e.resume(todo)
	}
}

// resume rebuilds progress for running copy jobs this client has no record of.
func (e *Engine) resume(jobs []models.Job) {
	e.spawn(func(ctx context.Context) {
		results := tasks.FetchResume(ctx, e.api, jobs, tasks.ResumeOpts{})
		e.post(func() {
			for _, res := range results {
				key := tasks.KeyOf(res.Job)
				delete(e.resuming, key)
				if res.Err != nil {
					e.logger.Warn("resume failed", "job", key, "err", res.Err)
					continue
				}
				c := e.tasks.Resume(res.Job, res.Files, res.Items)
				e.logger.Info("resumed job progress", "job", key, "effect", c.Effect)
				e.track(c)
			}
		})
	})
}

// refreshFiles re-fetches a copy job's file-status list. A request already in flight is followed by one more.
func (e *Engine) refreshFiles(key tasks.Key) {
	if e.fetching[key] {
		e.stale[key] = true
		return
	}
	e.fetching[key] = true
	e.spawn(func(ctx context.Context) {
		files, err := e.api.JobFiles(ctx, key.ID)
		e.post(func() {
			delete(e.fetching, key)
			if err != nil {
				e.logger.Debug("file status fetch failed", "job", key, "err", err)
			} else {
				e.tasks.SetFiles(key, files)
			}
			if e.stale[key] {
				delete(e.stale, key)
				e.refreshFiles(key)
			}
		})
	})
}

func (e *Engine) refreshAfterFinish() {
	e.spawn(func(ctx context.Context) {
		e.loader.Load(ctx, snapshot.Jobs)
		e.loader.Load(ctx, snapshot.Batches)
	})
}

// spawn runs fn on its own goroutine with the engine context. Teardown waits for it. Only the loop goroutine calls it.
func (e *Engine) spawn(fn func(ctx context.Context)) {
	if !e.started.Load() {
		return
	}
	select {
	case <-e.done:
		return
	default:
	}
	ctx := e.ctx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(ctx)
	}()
}

// post hands fn to the loop. Tasks posted before Run or after teardown are dropped.
func (e *Engine) post(fn func()) bool {
	if !e.started.Load() {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.inbox <- fn:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) teardown() {
	close(e.done)
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
	e.wg.Wait()
	e.loader.Stop()
	e.notices.Close()
	e.gate.Close()
	e.connected = false
	e.publish()

	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	for ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}

// Done is closed once Run has torn down.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}
