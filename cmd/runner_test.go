package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/phase"
	"github.com/desertthunder/syncctl/internal/push"
	"github.com/desertthunder/syncctl/internal/services"
	"github.com/desertthunder/syncctl/internal/shared"
	tu "github.com/desertthunder/syncctl/internal/testing"
	"github.com/urfave/cli/v3"
)

type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStore(kv ...string) *memStore {
	s := &memStore{values: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		s.values[kv[i]] = kv[i+1]
	}
	return s
}

func (s *memStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", shared.ErrClientStateUnset
	}
	return v, nil
}

func (s *memStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

// newBackend serves one plan (7) ready for the outbound copy and healthy mounts.
func newBackend(t *testing.T) *tu.FakeBackend {
	t.Helper()
	up := models.Endpoint{Available: true, Writable: true}
	fb := tu.NewFakeBackend(t)
	fb.JSON("GET /api/health", services.Health{Status: "ok", Version: "1.4.0"})
	fb.JSON("GET /api/mounts/status", models.MountStatus{
		Origin: up, Intermediate: up, Destination: up, Database: models.DatabaseStatus{Available: true},
	})
	fb.JSON("GET /api/datasets/", []models.Dataset{
		{ID: 1, Name: "nas1-media", Location: models.LocationOrigin},
		{ID: 2, Name: "usb-stage", Location: models.LocationIntermediate},
	})
	fb.JSON("GET /api/scans/", []models.Scan{
		{ID: 10, DatasetID: 1, Status: models.StatusCompleted},
		{ID: 11, DatasetID: 2, Status: models.StatusCompleted},
	})
	fb.JSON("GET /api/diffs/", []models.Comparison{{ID: 3, SourceScanID: 10, TargetScanID: 11, Status: models.StatusCompleted}})
	fb.JSON("GET /api/batches/", []models.Batch{{ID: 7, DiffID: 3, Status: models.BatchReadyOut}})
	fb.JSON("GET /api/copy/jobs", []models.Job{
		{ID: 5, Type: "scan", Status: models.StatusCompleted},
		{ID: 9, Type: "copy", Status: models.StatusFailed, ErrorMessage: "disk full"},
		{ID: 12, Type: "copy", Status: models.StatusCompleted},
	})
	return fb
}

func newTestRunner(fb *tu.FakeBackend, store phase.Store) (*Runner, *bytes.Buffer) {
	output := &bytes.Buffer{}
	r := NewRunner(RunnerOpts{
		API:    services.NewAPIService(fb.URL(), nil),
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
		Store:  store,
	})
	return r, output
}

// execute runs args through the registered commands without the config hook.
func execute(r *Runner, args ...string) error {
	app := &cli.Command{Name: "syncctl", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"syncctl"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			api := &services.APIService{}
			store := newMemStore()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				API:        api,
				Store:      store,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.api != api {
				t.Error("expected api to be set")
			}
			if runner.store != store {
				t.Error("expected store to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with nil api builds one from config", func(t *testing.T) {
			config := shared.DefaultConfig()
			runner := NewRunner(RunnerOpts{Config: config})

			if runner.api == nil {
				t.Fatal("expected api to be built")
			}
			if runner.api.BaseURL() == "" {
				t.Errorf("expected base URL from %q", config.Backend.URL)
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("writePlainln surrounds text with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlainln("Next steps:"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "\nNext steps:\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}

		names := make(map[string]bool)
		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
				continue
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "console", "status", "phase", "jobs", "batches", "watch", "api"} {
			if !names[want] {
				t.Errorf("expected %q to be registered", want)
			}
		}
	})
}

func TestArguments(t *testing.T) {
	t.Run("idArg", func(t *testing.T) {
		tests := []struct {
			name    string
			raw     string
			want    int64
			wantErr error
		}{
			{name: "valid id", raw: "42", want: 42},
			{name: "surrounding space", raw: " 7 ", want: 7},
			{name: "missing", raw: "", wantErr: shared.ErrMissingArgument},
			{name: "not a number", raw: "seven", wantErr: shared.ErrInvalidArgument},
			{name: "zero", raw: "0", wantErr: shared.ErrInvalidArgument},
			{name: "negative", raw: "-3", wantErr: shared.ErrInvalidArgument},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var got int64
				var gotErr error
				cmd := &cli.Command{
					Name:      "probe",
					Arguments: positional("id"),
					Action: func(ctx context.Context, cmd *cli.Command) error {
						got, gotErr = idArg(cmd, "id")
						return nil
					},
				}
				args := []string{"probe"}
				if tt.raw != "" {
					args = append(args, "--", tt.raw)
				}
				if err := cmd.Run(context.Background(), args); err != nil {
					t.Fatalf("unexpected run error: %v", err)
				}

				if tt.wantErr != nil {
					if !errors.Is(gotErr, tt.wantErr) {
						t.Errorf("expected %v, got %v", tt.wantErr, gotErr)
					}
					return
				}
				if gotErr != nil {
					t.Fatalf("expected no error, got %v", gotErr)
				}
				if got != tt.want {
					t.Errorf("expected %d, got %d", tt.want, got)
				}
			})
		}
	})

	t.Run("parseLocation", func(t *testing.T) {
		for raw, want := range map[string]models.Location{
			"NAS1":  models.LocationOrigin,
			"usb":   models.LocationIntermediate,
			" nas2": models.LocationDestination,
		} {
			got, err := parseLocation(raw)
			if err != nil {
				t.Errorf("parseLocation(%q) returned %v", raw, err)
			}
			if got != want {
				t.Errorf("parseLocation(%q) = %q, want %q", raw, got, want)
			}
		}

		if _, err := parseLocation("NAS3"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("parseAccess", func(t *testing.T) {
		if m, err := parseAccess("scan-adapter", "SSH"); err != nil || m != models.AccessSSH {
			t.Errorf("expected ssh, got %q, %v", m, err)
		}
		if m, err := parseAccess("transfer-adapter", ""); err != nil || m != "" {
			t.Errorf("expected empty method for empty flag, got %q, %v", m, err)
		}

		_, err := parseAccess("scan-adapter", "ftp")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Fatalf("expected ErrInvalidFlag, got %v", err)
		}
		if !strings.Contains(err.Error(), "--scan-adapter") {
			t.Errorf("expected flag name in error, got %v", err)
		}
	})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		msg  push.Message
		want string
	}{
		{
			name: "mounts",
			msg:  push.MountsStatus{Patch: json.RawMessage(`{"intermediate":{"available":false}}`)},
			want: `mounts {"intermediate":{"available":false}}`,
		},
		{
			name: "started copy",
			msg: push.JobStarted{
				JobRef:     push.JobRef{JobID: 42, Type: "copy"},
				Direction:  models.DirectionOut,
				BatchID:    ptr(int64(7)),
				TotalFiles: ptr(int64(10)),
			},
			want: "copy#42 started plan 7 NAS1 → USB (10 files)",
		},
		{
			name: "started scan",
			msg:  push.JobStarted{JobRef: push.JobRef{JobID: 3, Type: "scan"}},
			want: "scan#3 started",
		},
		{
			name: "progress message only",
			msg:  push.JobProgress{JobRef: push.JobRef{JobID: 3, Type: "scan"}, Message: ptr("walking /media")},
			want: "scan#3 progress walking /media",
		},
		{
			name: "failed",
			msg:  push.JobFinished{JobRef: push.JobRef{JobID: 42, Type: "copy"}, Status: models.StatusFailed, Error: "disk full"},
			want: "copy#42 failed: disk full",
		},
		{
			name: "completed",
			msg:  push.JobFinished{JobRef: push.JobRef{JobID: 42, Type: "copy"}, Status: models.StatusCompleted},
			want: "copy#42 completed",
		},
		{
			name: "log",
			msg:  push.JobLog{JobRef: push.JobRef{JobID: 42, Type: "copy"}, Message: "copied a.mkv"},
			want: "copy#42 log copied a.mkv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describe(tt.msg); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCommands(t *testing.T) {
	t.Run("status reports health and mounts", func(t *testing.T) {
		fb := newBackend(t)
		r, output := newTestRunner(fb, newMemStore())

		if err := execute(r, "status", "--json", "--pretty=false"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var report statusReport
		if err := json.Unmarshal(output.Bytes(), &report); err != nil {
			t.Fatalf("failed to decode output %q: %v", output.String(), err)
		}
		if report.Health == nil || report.Health.Version != "1.4.0" {
			t.Errorf("expected health version 1.4.0, got %+v", report.Health)
		}
		if !report.Mounts.Intermediate.Available {
			t.Error("expected intermediate mount to be available")
		}
		if fb.Count("POST /api/mounts/status/refresh") != 0 {
			t.Error("expected no refresh without --refresh")
		}
	})

	t.Run("status fails when backend is down", func(t *testing.T) {
		fb := newBackend(t)
		fb.Fail("GET /api/health", http.StatusServiceUnavailable, "starting")
		r, _ := newTestRunner(fb, newMemStore())

		err := execute(r, "status")
		if err == nil || !strings.Contains(err.Error(), "health check failed") {
			t.Errorf("expected health check error, got %v", err)
		}
	})

	t.Run("jobs list filters and sorts newest first", func(t *testing.T) {
		fb := newBackend(t)
		r, output := newTestRunner(fb, newMemStore())

		if err := execute(r, "jobs", "list", "--type", "copy"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		result := output.String()
		if !strings.Contains(result, "Found 2 jobs") {
			t.Errorf("expected two copy jobs, got %q", result)
		}
		if strings.Contains(result, "scan") {
			t.Errorf("expected scan job to be filtered out, got %q", result)
		}
		if strings.Index(result, "12. copy") > strings.Index(result, "9. copy") {
			t.Errorf("expected newest job first, got %q", result)
		}
	})

	t.Run("jobs show rejects a bad id", func(t *testing.T) {
		fb := newBackend(t)
		r, _ := newTestRunner(fb, newMemStore())

		if err := execute(r, "jobs", "show", "abc"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("batches copy is refused while planning", func(t *testing.T) {
		fb := newBackend(t)
		fb.JSON("POST /api/copy/nas1-usb", models.Job{ID: 50, Type: "copy", Status: models.StatusRunning})
		r, _ := newTestRunner(fb, newMemStore())

		if err := execute(r, "batches", "copy", "7"); err == nil {
			t.Fatal("expected copy to be refused in planning")
		}
		if n := fb.Count("POST /api/copy/nas1-usb"); n != 0 {
			t.Errorf("expected no copy request, got %d", n)
		}
	})

	t.Run("batches copy starts the outbound leg", func(t *testing.T) {
		fb := newBackend(t)
		fb.JSON("POST /api/copy/nas1-usb", models.Job{ID: 50, Type: "copy", Status: models.StatusRunning})
		r, output := newTestRunner(fb, newMemStore(phase.StateKey, string(phase.TransferOut)))

		if err := execute(r, "batches", "copy", "7"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n := fb.Count("POST /api/copy/nas1-usb"); n != 1 {
			t.Errorf("expected one copy request, got %d", n)
		}
		if !strings.Contains(output.String(), "50") {
			t.Errorf("expected job id in output, got %q", output.String())
		}
	})

	t.Run("phase set persists and phase show reads it back", func(t *testing.T) {
		fb := newBackend(t)
		store := newMemStore()
		r, output := newTestRunner(fb, store)

		if err := execute(r, "phase", "set", "transfer-out"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if v, _ := store.Get(phase.StateKey); v != string(phase.TransferOut) {
			t.Errorf("expected stored phase transfer-out, got %q", v)
		}
		if !strings.Contains(output.String(), "Phase set to") {
			t.Errorf("expected confirmation, got %q", output.String())
		}

		output.Reset()
		if err := execute(r, "phase", "show", "--json", "--pretty=false"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var report phaseReport
		if err := json.Unmarshal(output.Bytes(), &report); err != nil {
			t.Fatalf("failed to decode output %q: %v", output.String(), err)
		}
		if report.Phase != phase.TransferOut {
			t.Errorf("expected transfer-out, got %q", report.Phase)
		}
		if len(report.Routes) == 0 {
			t.Error("expected allowed routes")
		}
	})

	t.Run("phase set rejects unknown phases", func(t *testing.T) {
		fb := newBackend(t)
		r, _ := newTestRunner(fb, newMemStore())

		if err := execute(r, "phase", "set", "teardown"); !errors.Is(err, shared.ErrUnknownPhase) {
			t.Errorf("expected ErrUnknownPhase, got %v", err)
		}
	})
}
