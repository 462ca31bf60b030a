package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestamp(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "zone-less microseconds", in: `"2024-05-01T10:20:30.123456"`, want: time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC)},
		{name: "rfc3339 with offset", in: `"2024-05-01T12:20:30+02:00"`, want: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)},
		{name: "null", in: `null`, want: time.Time{}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ts.Equal(tt.want) {
				t.Errorf("got %v, want %v", ts.Time, tt.want)
			}
		})
	}

	t.Run("garbage", func(t *testing.T) {
		var ts Timestamp
		if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestBatchItem(t *testing.T) {
	t.Run("absent enabled means enabled", func(t *testing.T) {
		var item BatchItem
		if err := json.Unmarshal([]byte(`{"id":1,"full_rel_path":"a","size":3}`), &item); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !item.IsEnabled() {
			t.Error("expected item without enabled key to be enabled")
		}
	})

	t.Run("explicit false", func(t *testing.T) {
		var item BatchItem
		if err := json.Unmarshal([]byte(`{"id":1,"enabled":false}`), &item); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if item.IsEnabled() {
			t.Error("expected item to be disabled")
		}
	})
}

func TestJobMetadata(t *testing.T) {
	var job Job
	raw := `{"id":42,"type":"copy","status":"running","job_metadata":{"batch_id":7,"direction":"nas1-usb","dry_run":true}}`
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batchID, ok := job.Metadata.BatchID()
	if !ok || batchID != 7 {
		t.Errorf("expected batch 7, got %d (%v)", batchID, ok)
	}
	if job.Metadata.Direction() != DirectionOut {
		t.Errorf("expected direction %s, got %s", DirectionOut, job.Metadata.Direction())
	}
	if !job.Metadata.DryRun() {
		t.Error("expected dry run")
	}
	if !job.Running() {
		t.Error("expected running job")
	}

	if _, ok := (JobMetadata{}).BatchID(); ok {
		t.Error("expected no batch id on empty metadata")
	}
	if DirectionIn.ScriptDirection() != "usb-to-nas" || DirectionOut.ScriptDirection() != "nas-to-usb" {
		t.Error("unexpected script direction mapping")
	}
}

func TestMountStatusMerge(t *testing.T) {
	base := MountStatus{
		Origin:       Endpoint{Available: true, Path: "/mnt/nas1", FreeSize: 100},
		Intermediate: Endpoint{Available: true, Path: "/mnt/usb"},
		Restricted:   false,
		Database:     DatabaseStatus{Available: true, Path: "/mnt/usb/db.sqlite"},
	}

	t.Run("absent keys persist", func(t *testing.T) {
		got, err := base.Merge(json.RawMessage(`{"nas2":{"available":true,"path":"/mnt/nas2"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Destination.Available {
			t.Error("expected destination to become available")
		}
		if got.Origin != base.Origin {
			t.Errorf("expected origin untouched, got %+v", got.Origin)
		}
	})

	t.Run("present keys replace whole value", func(t *testing.T) {
		got, err := base.Merge(json.RawMessage(`{"nas1":{"available":false,"error":"gone"},"safe_mode":true}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Origin.Available || got.Origin.Path != "" || got.Origin.FreeSize != 0 {
			t.Errorf("expected origin replaced, got %+v", got.Origin)
		}
		if !got.Restricted {
			t.Error("expected restricted mode from payload")
		}
	})

	t.Run("bad value leaves record unchanged", func(t *testing.T) {
		got, err := base.Merge(json.RawMessage(`{"usb":"yes"}`))
		if err == nil {
			t.Fatal("expected error")
		}
		if got != base {
			t.Error("expected original record on error")
		}
	})

	t.Run("pessimistic default", func(t *testing.T) {
		p := PessimisticMountStatus()
		if !p.Restricted || p.Origin.Available || p.Intermediate.Available || p.Destination.Available {
			t.Errorf("unexpected default %+v", p)
		}
	})
}
