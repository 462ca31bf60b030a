package mounts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/services"
	"github.com/desertthunder/syncctl/internal/shared"
	tu "github.com/desertthunder/syncctl/internal/testing"
)

func healthy() models.MountStatus {
	return models.MountStatus{
		Origin:       models.Endpoint{Available: true, Path: "/mnt/nas1"},
		Intermediate: models.Endpoint{Available: true, Writable: true, Path: "/mnt/usb", FreeSize: 500},
		Destination:  models.Endpoint{Available: false, Error: "not mounted"},
		Database:     models.DatabaseStatus{Available: true, Path: "/mnt/usb/sync.db"},
	}
}

func newAggregator(t *testing.T) (*Aggregator, *tu.FakeBackend) {
	t.Helper()
	fb := tu.NewFakeBackend(t)
	api := services.NewAPIService(fb.URL(), nil)
	return NewAggregator(api, nil), fb
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	t.Run("Starts Pessimistic", func(t *testing.T) {
		a, _ := newAggregator(t)
		if !a.Restricted() {
			t.Error("expected restricted mode before first load")
		}
		if a.Loaded() {
			t.Error("expected Loaded() to be false")
		}
		if st := a.Status(); st.Intermediate.Available || st.Origin.Available {
			t.Errorf("expected nothing reachable, got %+v", st)
		}
	})

	t.Run("Load", func(t *testing.T) {
		a, fb := newAggregator(t)
		fb.JSON("GET /api/mounts/status", healthy())

		if err := a.Load(ctx); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		st := a.Status()
		if st.Restricted || !st.Intermediate.Available || st.Intermediate.FreeSize != 500 {
			t.Errorf("unexpected status %+v", st)
		}
		if !a.Loaded() {
			t.Error("expected Loaded() after success")
		}
	})

	t.Run("Load Failure Keeps Record", func(t *testing.T) {
		a, fb := newAggregator(t)
		fb.JSON("GET /api/mounts/status", healthy())
		a.Load(ctx)

		fb.Fail("GET /api/mounts/status", 500, "boom")
		err := a.Load(ctx)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if st := a.Status(); !st.Intermediate.Available {
			t.Error("expected previous record to survive")
		}
	})

	t.Run("Refresh", func(t *testing.T) {
		a, fb := newAggregator(t)
		fixed := healthy()
		fixed.Destination = models.Endpoint{Available: true, Path: "/mnt/nas2"}
		fb.JSON("POST /api/mounts/status/refresh", fixed)

		if err := a.Refresh(ctx); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if !a.Status().Destination.Available {
			t.Error("expected destination to be available after refresh")
		}
		if fb.Count("POST /api/mounts/status/refresh") != 1 {
			t.Error("expected one refresh request")
		}
	})

	t.Run("Apply Merges Shallowly", func(t *testing.T) {
		a, _ := newAggregator(t)
		a.Set(healthy())

		patch := json.RawMessage(`{"usb": {"available": false, "error": "unplugged"}, "safe_mode": true}`)
		if err := a.Apply(patch); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}

		st := a.Status()
		if !st.Restricted {
			t.Error("expected restricted mode from patch")
		}
		if st.Intermediate.Available || st.Intermediate.Error != "unplugged" {
			t.Errorf("expected usb replaced, got %+v", st.Intermediate)
		}
		if st.Intermediate.Path != "" {
			t.Errorf("expected replaced key not to inherit nested fields, got path %q", st.Intermediate.Path)
		}
		if !st.Origin.Available || st.Origin.Path != "/mnt/nas1" {
			t.Errorf("expected nas1 untouched, got %+v", st.Origin)
		}
		if !st.Database.Available {
			t.Error("expected database untouched")
		}
	})

	t.Run("Apply Bad Patch", func(t *testing.T) {
		a, _ := newAggregator(t)
		a.Set(healthy())

		if err := a.Apply(json.RawMessage(`{"usb": "yes"}`)); err == nil {
			t.Fatal("expected error for undecodable patch")
		}
		if st := a.Status(); !st.Intermediate.Available {
			t.Error("expected record unchanged after bad patch")
		}
	})

	t.Run("Apply Null Safe Mode", func(t *testing.T) {
		a, _ := newAggregator(t)
		st := healthy()
		st.Restricted = true
		a.Set(st)

		if err := a.Apply(json.RawMessage(`{"safe_mode": null, "usb": {"available": false}}`)); err == nil {
			t.Fatal("expected error for null safe_mode")
		}
		if !a.Restricted() {
			t.Error("expected restricted mode to stay on")
		}
		if !a.Status().Intermediate.Available {
			t.Error("expected the rest of the patch to be rejected with it")
		}
	})

	t.Run("Restricted Is Never Derived", func(t *testing.T) {
		a, _ := newAggregator(t)
		st := healthy()
		st.Intermediate.Available = false
		a.Set(st)

		if a.Restricted() {
			t.Error("restricted mode must come from the payload only")
		}
	})
}
