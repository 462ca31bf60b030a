package phase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/repositories"
	"github.com/desertthunder/syncctl/internal/shared"
)

type memStore struct {
	values map[string]string
	setErr error
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (m *memStore) Get(key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrClientStateUnset, key)
	}
	return v, nil
}

func (m *memStore) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Phase
		wantErr bool
	}{
		{"planning", Planning, false},
		{"transfer-out", TransferOut, false},
		{" Transfer-In ", TransferIn, false},
		{"copy-nas-hdd", TransferOut, false},
		{"copy-hdd-nas", TransferIn, false},
		{"", Planning, true},
		{"phase-4", Planning, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, shared.ErrUnknownPhase) {
				t.Errorf("expected ErrUnknownPhase, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	t.Run("Default Route Is Allowed", func(t *testing.T) {
		for _, p := range Phases {
			if !RouteAllowed(DefaultRoute(p), p) {
				t.Errorf("default route %s not allowed in %s", DefaultRoute(p), p)
			}
		}
	})

	t.Run("Every Route Belongs To A Phase", func(t *testing.T) {
		for _, r := range Routes {
			if len(r.Phases) == 0 {
				t.Errorf("route %s has no phase", r.Path)
			}
		}
	})

	t.Run("Allowed Sets", func(t *testing.T) {
		tests := []struct {
			phase Phase
			want  []string
		}{
			{Planning, []string{"/", "/datasets", "/scan", "/compare", "/plan-transfer"}},
			{TransferOut, []string{"/", "/copy-out"}},
			{TransferIn, []string{"/", "/copy-in"}},
		}
		for _, tt := range tests {
			got := AllowedRoutes(tt.phase)
			if len(got) != len(tt.want) {
				t.Fatalf("%s: got %d routes, want %d", tt.phase, len(got), len(tt.want))
			}
			for i, r := range got {
				if r.Path != tt.want[i] {
					t.Errorf("%s: route %d = %s, want %s", tt.phase, i, r.Path, tt.want[i])
				}
			}
		}
	})

	t.Run("Unknown Route", func(t *testing.T) {
		if RouteAllowed("/nowhere", Planning) {
			t.Error("unknown route must not be allowed")
		}
	})
}

func TestGatekeeper(t *testing.T) {
	t.Run("Defaults To Planning", func(t *testing.T) {
		g := NewGatekeeper(newMemStore(), nil)
		if g.Current() != Planning || g.Route() != "/" {
			t.Errorf("got %s at %s", g.Current(), g.Route())
		}
	})

	t.Run("Restores Stored Phase", func(t *testing.T) {
		store := newMemStore()
		store.values[StateKey] = "copy-hdd-nas"
		g := NewGatekeeper(store, nil)
		if g.Current() != TransferIn || g.Route() != "/copy-in" {
			t.Errorf("got %s at %s", g.Current(), g.Route())
		}
	})

	t.Run("Ignores Garbage", func(t *testing.T) {
		store := newMemStore()
		store.values[StateKey] = "bogus"
		if g := NewGatekeeper(store, nil); g.Current() != Planning {
			t.Errorf("expected planning, got %s", g.Current())
		}
	})

	t.Run("Select Persists", func(t *testing.T) {
		store := newMemStore()
		g := NewGatekeeper(store, nil)
		if _, err := g.Select(TransferOut); err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if store.values[StateKey] != "transfer-out" {
			t.Errorf("expected stored transfer-out, got %q", store.values[StateKey])
		}
		if again := NewGatekeeper(store, nil); again.Current() != TransferOut {
			t.Errorf("expected reload to resume transfer-out, got %s", again.Current())
		}
	})

	t.Run("Select Normalizes Legacy", func(t *testing.T) {
		store := newMemStore()
		g := NewGatekeeper(store, nil)
		c, err := g.Select(Phase("copy-nas-hdd"))
		if err != nil || c.To != TransferOut || store.values[StateKey] != "transfer-out" {
			t.Errorf("got %+v, %v, stored %q", c, err, store.values[StateKey])
		}
	})

	t.Run("Select Unknown", func(t *testing.T) {
		g := NewGatekeeper(newMemStore(), nil)
		if _, err := g.Select(Phase("nope")); !errors.Is(err, shared.ErrUnknownPhase) {
			t.Errorf("expected ErrUnknownPhase, got %v", err)
		}
		if g.Current() != Planning {
			t.Error("unknown phase must not change the active phase")
		}
	})

	t.Run("Select Survives Store Failure", func(t *testing.T) {
		store := newMemStore()
		store.setErr = errors.New("disk full")
		g := NewGatekeeper(store, nil)
		_, err := g.Select(TransferIn)
		if err == nil {
			t.Error("expected persistence error to be returned")
		}
		if g.Current() != TransferIn {
			t.Error("expected transition to happen regardless")
		}
	})

	t.Run("Navigation Guard Totality", func(t *testing.T) {
		for _, from := range Phases {
			for _, r := range AllowedRoutes(from) {
				for _, to := range Phases {
					store := newMemStore()
					store.values[StateKey] = string(from)
					g := NewGatekeeper(store, nil)
					if err := g.Navigate(r.Path); err != nil {
						t.Fatalf("Navigate(%s) in %s: %v", r.Path, from, err)
					}

					c, _ := g.Select(to)
					if r.Allows(to) {
						if c.Redirected || g.Route() != r.Path {
							t.Errorf("%s→%s at %s: unexpected redirect to %s", from, to, r.Path, g.Route())
						}
						continue
					}
					if !c.Redirected || g.Route() != DefaultRoute(to) {
						t.Errorf("%s→%s at %s: expected redirect to %s, at %s", from, to, r.Path, DefaultRoute(to), g.Route())
					}
				}
			}
		}
	})

	t.Run("Navigate", func(t *testing.T) {
		g := NewGatekeeper(newMemStore(), nil)
		if err := g.Navigate("/compare"); err != nil {
			t.Errorf("Navigate(/compare) error = %v", err)
		}
		if err := g.Navigate("/copy-in"); !errors.Is(err, shared.ErrRouteNotAllowed) {
			t.Errorf("expected ErrRouteNotAllowed, got %v", err)
		}
		if err := g.Navigate("/nowhere"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if g.Route() != "/compare" {
			t.Errorf("failed navigation moved the route to %s", g.Route())
		}
	})

	t.Run("Broadcast", func(t *testing.T) {
		g := NewGatekeeper(newMemStore(), nil)
		a, b := g.Subscribe(), g.Subscribe()

		g.Select(TransferOut)
		for _, ch := range []<-chan Change{a, b} {
			select {
			case c := <-ch:
				if c.From != Planning || c.To != TransferOut || c.Route != "/copy-out" {
					t.Errorf("unexpected change %+v", c)
				}
			default:
				t.Error("expected every subscriber to receive the change")
			}
		}

		g.Unsubscribe(a)
		if _, ok := <-a; ok {
			t.Error("expected unsubscribed channel to be closed")
		}

		g.Close()
		if _, ok := <-b; ok {
			t.Error("expected Close to close subscribers")
		}
		if _, ok := <-g.Subscribe(); ok {
			t.Error("expected subscribe after Close to return a closed channel")
		}
	})

	t.Run("Subscribers Get The Latest Change", func(t *testing.T) {
		g := NewGatekeeper(newMemStore(), nil)
		defer g.Close()
		ch := g.Subscribe()

		g.Select(TransferOut)
		g.Select(TransferIn)

		select {
		case c := <-ch:
			if c.From != TransferOut || c.To != TransferIn {
				t.Errorf("expected the newest change, got %+v", c)
			}
		default:
			t.Fatal("expected a pending change")
		}
		select {
		case c := <-ch:
			t.Errorf("expected changes to be coalesced, got extra %+v", c)
		default:
		}
	})

	t.Run("With Client State Repository", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		shared.ConfigureDatabase(db, 1, 1)
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}

		repo := repositories.NewClientStateRepository(db)
		g := NewGatekeeper(repo, nil)
		g.Select(TransferIn)

		if again := NewGatekeeper(repo, nil); again.Current() != TransferIn {
			t.Errorf("expected transfer-in after reload, got %s", again.Current())
		}
	})
}

func reachable() models.MountStatus {
	up := models.Endpoint{Available: true, Writable: true}
	return models.MountStatus{Origin: up, Intermediate: up, Destination: up, Database: models.DatabaseStatus{Available: true}}
}

func TestEligible(t *testing.T) {
	readyOut := &models.Batch{ID: 7, Status: models.BatchReadyOut}
	readyIn := &models.Batch{ID: 7, Status: models.BatchReadyIn}
	failedOut := &models.Job{ID: 42, Type: models.JobCopy, Status: models.StatusFailed, Metadata: models.JobMetadata{"direction": "nas1-usb", "batch_id": float64(7)}}
	done := &models.Job{ID: 43, Type: models.JobCopy, Status: models.StatusCompleted}

	t.Run("Copy Out", func(t *testing.T) {
		in := Inputs{Phase: TransferOut, Mounts: reachable(), Batch: readyOut}
		if d := Eligible(ActionCopyOut, in); !d.Allowed {
			t.Errorf("expected allowed, got %v", d.Reasons)
		}

		legacy := in
		legacy.Batch = &models.Batch{ID: 7, Status: models.BatchReady}
		if d := Eligible(ActionCopyOut, legacy); !d.Allowed {
			t.Errorf("expected plain ready to be accepted, got %v", d.Reasons)
		}
	})

	t.Run("Copy In Over SSH", func(t *testing.T) {
		m := reachable()
		m.Destination = models.Endpoint{}
		in := Inputs{Phase: TransferIn, Mounts: m, Batch: readyIn}
		if d := Eligible(ActionCopyIn, in); d.Allowed {
			t.Error("expected missing NAS2 to block")
		}
		in.DestinationRemote = true
		if d := Eligible(ActionCopyIn, in); !d.Allowed {
			t.Errorf("expected ssh destination to be accepted, got %v", d.Reasons)
		}
	})

	t.Run("Blocking Conditions", func(t *testing.T) {
		noUSB := reachable()
		noUSB.Intermediate = models.Endpoint{}
		noNAS1 := reachable()
		noNAS1.Origin = models.Endpoint{}

		tests := []struct {
			name   string
			action Action
			in     Inputs
		}{
			{"wrong phase", ActionCopyOut, Inputs{Phase: Planning, Mounts: reachable(), Batch: readyOut}},
			{"usb missing", ActionCopyOut, Inputs{Phase: TransferOut, Mounts: noUSB, Batch: readyOut}},
			{"nas1 missing", ActionCopyOut, Inputs{Phase: TransferOut, Mounts: noNAS1, Batch: readyOut}},
			{"batch not ready", ActionCopyOut, Inputs{Phase: TransferOut, Mounts: reachable(), Batch: readyIn}},
			{"no batch", ActionCopyOut, Inputs{Phase: TransferOut, Mounts: reachable()}},
			{"already running", ActionCopyOut, Inputs{Phase: TransferOut, Mounts: reachable(), Batch: readyOut, BatchRunning: true}},
			{"copy in needs phase 3 plan", ActionCopyIn, Inputs{Phase: TransferIn, Mounts: reachable(), Batch: readyOut}},
			{"retry in wrong phase", ActionRetryJob, Inputs{Phase: TransferIn, Mounts: reachable(), Batch: readyOut, Job: failedOut}},
			{"retry completed job", ActionRetryJob, Inputs{Phase: TransferOut, Mounts: reachable(), Batch: readyOut, Job: done, Direction: models.DirectionOut}},
			{"delete running job", ActionDeleteJob, Inputs{Phase: TransferOut, Mounts: reachable(), Job: &models.Job{ID: 1, Status: models.StatusRunning}}},
			{"scan outside planning", ActionCreateScan, Inputs{Phase: TransferOut, Mounts: reachable()}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				d := Eligible(tt.action, tt.in)
				if d.Allowed {
					t.Fatal("expected action to be blocked")
				}
				if len(d.Reasons) == 0 {
					t.Error("expected a reason")
				}
				if !errors.Is(d.Err(), shared.ErrNotEligible) {
					t.Errorf("expected ErrNotEligible, got %v", d.Err())
				}
			})
		}
	})

	t.Run("Retry Failed Job", func(t *testing.T) {
		failedBatch := &models.Batch{ID: 7, Status: models.StatusFailed}
		in := Inputs{Phase: TransferOut, Mounts: reachable(), Batch: failedBatch, Job: failedOut}
		if d := Eligible(ActionRetryJob, in); !d.Allowed {
			t.Errorf("expected retry to be allowed, got %v", d.Reasons)
		}
	})

	t.Run("Restricted Mode Blocks Every Mutation", func(t *testing.T) {
		m := reachable()
		m.Restricted = true

		for _, p := range Phases {
			for _, a := range Actions() {
				in := Inputs{
					Phase:             p,
					Mounts:            m,
					Batch:             &models.Batch{ID: 7, Status: models.BatchReadyOut},
					Job:               failedOut,
					DestinationRemote: true,
				}
				d := Eligible(a, in)
				if !a.Mutating() {
					continue
				}
				if d.Allowed {
					t.Errorf("%s allowed in %s under restricted mode", a, p)
				}
				if !d.Restricted || !errors.Is(d.Err(), shared.ErrRestricted) {
					t.Errorf("%s in %s: expected restricted error, got %v", a, p, d.Err())
				}
				if d.Reasons[0] != "restricted mode: USB or database unavailable" {
					t.Errorf("%s in %s: restricted mode must be the first reason, got %v", a, p, d.Reasons)
				}
			}
		}
	})

	t.Run("Read Only Actions Ignore Restricted Mode", func(t *testing.T) {
		m := reachable()
		m.Restricted = true
		if d := Eligible(ActionRefreshMounts, Inputs{Phase: Planning, Mounts: m}); !d.Allowed {
			t.Errorf("expected refresh to stay available, got %v", d.Reasons)
		}
		if d := Eligible(ActionVerifyJob, Inputs{Phase: TransferOut, Mounts: m, Job: done}); !d.Allowed {
			t.Errorf("expected verify to stay available, got %v", d.Reasons)
		}
	})

	t.Run("Unknown Action", func(t *testing.T) {
		if d := Eligible(Action("launch"), Inputs{Phase: Planning}); d.Allowed {
			t.Error("unknown action must not be allowed")
		}
	})
}
