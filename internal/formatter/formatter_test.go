package formatter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/tasks"
	th "github.com/desertthunder/syncctl/internal/testing"
)

func testItems() []tasks.ItemStatus {
	off := false
	return []tasks.ItemStatus{
		{
			BatchItem:  models.BatchItem{ID: 1, BatchID: 7, FullRelPath: "movies/a.mkv", Size: 1500, Category: models.CategoryMissing},
			FileStatus: models.FileCopied,
		},
		{
			BatchItem:  models.BatchItem{ID: 2, BatchID: 7, FullRelPath: "movies/b.mkv", Size: 2500, Category: models.CategoryConflict, Enabled: &off},
			FileStatus: models.FilePending,
		},
		{
			BatchItem:  models.BatchItem{ID: 3, BatchID: 7, FullRelPath: "movies/c, part 1.mkv", Size: 10, Category: models.CategoryMissing},
			FileStatus: models.FileFailed,
			FileError:  "permission denied",
		},
	}
}

func testBatch() models.Batch {
	return models.Batch{ID: 7, DiffID: 3, Status: models.BatchReadyOut, IncludeConflicts: true, ExcludePatterns: []string{"*.tmp"}}
}

func TestRendering(t *testing.T) {
	t.Run("Bytes", func(t *testing.T) {
		tc := []struct {
			in   int64
			want string
		}{
			{0, "0 B"},
			{1500, "1.5 kB"},
			{2_000_000_000, "2.0 GB"},
			{-1, "-"},
		}
		for _, tt := range tc {
			if got := Bytes(tt.in); got != tt.want {
				t.Errorf("Bytes(%d) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})

	t.Run("Progress", func(t *testing.T) {
		tc := []struct {
			name string
			p    tasks.Progress
			want string
		}{
			{"known total", tasks.Progress{Count: 7, TotalFiles: 10}, "7/10 files (70%)"},
			{"unknown total", tasks.Progress{Count: 3}, "3 files"},
			{"sizes", tasks.Progress{Count: 1, TotalFiles: 2, CopiedSize: 1000, TotalSize: 2000}, "1/2 files (50%) 1.0 kB/2.0 kB"},
			{"resumed", tasks.Progress{Count: 3, TotalFiles: 10, Resumed: true}, "3/10 files (30%) (resumed)"},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if got := Progress(tt.p); got != tt.want {
					t.Errorf("got %q, want %q", got, tt.want)
				}
			})
		}
	})

	t.Run("Direction", func(t *testing.T) {
		if got := Direction(models.DirectionOut); got != "NAS1 → USB" {
			t.Errorf("got %q", got)
		}
		if got := Direction(models.DirectionIn); got != "USB → NAS2" {
			t.Errorf("got %q", got)
		}
		if got := Direction(""); got != "-" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("Elapsed", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		running := models.Job{StartedAt: models.Timestamp{Time: start}}
		if got := Elapsed(running, start.Add(90*time.Second)); got != "1m30s" {
			t.Errorf("running job: got %q", got)
		}

		done := running
		done.FinishedAt = models.Timestamp{Time: start.Add(5 * time.Second)}
		if got := Elapsed(done, start.Add(time.Hour)); got != "5s" {
			t.Errorf("finished job: got %q", got)
		}

		if got := Elapsed(models.Job{}, start); got != "-" {
			t.Errorf("unstarted job: got %q", got)
		}
	})

	t.Run("MountsToText", func(t *testing.T) {
		m := models.MountStatus{
			Origin:       models.Endpoint{Available: true, Writable: true, TotalSize: 4000, FreeSize: 1000},
			Intermediate: models.Endpoint{Available: false, Error: "not mounted"},
			Destination:  models.Endpoint{Available: true},
			Restricted:   true,
		}
		out := string(MountsToText(m))

		for _, want := range []string{
			"NAS1:     available, 1.0 kB free of 4.0 kB",
			"USB:      unavailable: not mounted",
			"NAS2:     available, read-only",
			"Database: unavailable",
			"RESTRICTED MODE",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q in:\n%s", want, out)
			}
		}
	})

	t.Run("JobToText", func(t *testing.T) {
		now := time.Now()
		j := models.Job{
			ID: 42, Type: models.JobCopy, Status: models.StatusFailed,
			StartedAt:    models.Timestamp{Time: now.Add(-time.Minute)},
			ErrorMessage: "disk full",
			Metadata:     models.JobMetadata{"batch_id": float64(7), "direction": "nas1-usb", "dry_run": true},
			Log:          "rsync started\nrsync failed\n",
		}
		out := string(JobToText(j, now))

		for _, want := range []string{"Job 42 (copy)", "Status:   failed", "Plan:     7", "Leg:      NAS1 → USB", "Dry run:  yes", "Error:    disk full", "rsync failed"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q in:\n%s", want, out)
			}
		}
	})

	t.Run("VerifyToText", func(t *testing.T) {
		ok := models.VerifyResult{TotalFiles: 3, VerifiedOK: 3}
		if got := string(VerifyToText(42, ok)); got != "Verify job 42: 3/3 files ok\n" {
			t.Errorf("got %q", got)
		}

		bad := models.VerifyResult{
			TotalFiles: 3, VerifiedOK: 1, MissingCount: 1, SizeMismatchCount: 1,
			MissingFiles:      []string{"a.mkv"},
			SizeMismatchFiles: []models.SizeMismatch{{Path: "b.mkv", Expected: 2000, Actual: 1000}},
		}
		out := string(VerifyToText(42, bad))
		for _, want := range []string{"Missing (1):", "  a.mkv", "Size mismatch (1):", "b.mkv (expected 2.0 kB, found 1.0 kB)"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q in:\n%s", want, out)
			}
		}
	})

	t.Run("ComparisonSummaryToText", func(t *testing.T) {
		out := string(ComparisonSummaryToText("nas1 → usb", models.ComparisonSummary{TotalFiles: 1200, MissingCount: 1000, MissingSize: 5000}))
		if !strings.Contains(out, "nas1 → usb: 1,200 files") {
			t.Errorf("missing header in:\n%s", out)
		}
		if !strings.Contains(out, "missing") || !strings.Contains(out, "1,000") || !strings.Contains(out, "5.0 kB") {
			t.Errorf("missing category row in:\n%s", out)
		}
	})
}

func TestExporters(t *testing.T) {
	t.Run("ItemsToCSV", func(t *testing.T) {
		data, err := ItemsToCSV(testItems())
		if err != nil {
			t.Fatalf("ItemsToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "ID,Path,Size,Category,Enabled,Status,Error") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "1,movies/a.mkv,1500,missing,true,copied,") {
			t.Errorf("CSV missing first item, got: %s", output)
		}
		if !strings.Contains(output, "2,movies/b.mkv,2500,conflict,false,pending,") {
			t.Errorf("CSV missing disabled item, got: %s", output)
		}
		if !strings.Contains(output, `"movies/c, part 1.mkv"`) {
			t.Errorf("CSV did not quote a path with a comma, got: %s", output)
		}
	})

	t.Run("PlanToMarkdown", func(t *testing.T) {
		data, err := PlanToMarkdown(testBatch(), "nas1 → usb", testItems())
		if err != nil {
			t.Fatalf("PlanToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Plan 7: nas1 → usb",
			"**Status**: ready_to_phase_2",
			"**Conflicts**: included",
			"**Excluded**: *.tmp",
			"**Items**: 3 (2 enabled, 1.5 kB)",
			"**Copied**: 1, **failed**: 1, **pending**: 1",
			"1. [x] movies/a.mkv (1.5 kB) copied",
			"2. [ ] movies/b.mkv (2.5 kB) pending",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ItemsToText", func(t *testing.T) {
		data, err := ItemsToText(testItems())
		if err != nil {
			t.Fatalf("ItemsToText failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected 3 lines, got %d", len(lines))
		}
		if !strings.HasSuffix(lines[1], "movies/b.mkv (disabled)") {
			t.Errorf("expected disabled marker, got %q", lines[1])
		}
	})

	t.Run("WriteCSVExport", func(t *testing.T) {
		t.Run("WithDefaultPath", func(t *testing.T) {
			tempDir := t.TempDir()
			originalDir := th.MustGetwd(t)
			th.MustChdir(t, tempDir)
			defer th.MustChdir(t, originalDir)

			result, err := WriteCSVExport(testBatch(), testItems(), "")
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}

			if result.ItemsFile != "plan_7_items.csv" {
				t.Errorf("Expected items file 'plan_7_items.csv', got '%s'", result.ItemsFile)
			}
			if result.MetadataFile != "plan_7_metadata.json" {
				t.Errorf("Expected metadata file 'plan_7_metadata.json', got '%s'", result.MetadataFile)
			}

			th.AssertFileExists(t, result.ItemsFile)
			th.AssertFileExists(t, result.MetadataFile)

			metadataContent := th.MustReadFile(t, result.MetadataFile)
			if !strings.Contains(metadataContent, `"diff_id": 3`) || !strings.Contains(metadataContent, "ready_to_phase_2") {
				t.Errorf("Metadata JSON missing expected fields: %s", metadataContent)
			}
		})

		t.Run("WithCustomPath", func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "custom_export")

			result, err := WriteCSVExport(testBatch(), testItems(), base)
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			if result.ItemsFile != base+"_items.csv" {
				t.Errorf("Expected '%s_items.csv', got '%s'", base, result.ItemsFile)
			}
			th.AssertFileExists(t, result.ItemsFile)
			th.AssertFileExists(t, result.MetadataFile)
		})

		t.Run("UnwritableDirectory", func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "missing", "export")
			if _, err := WriteCSVExport(testBatch(), testItems(), base); err == nil {
				t.Error("expected an error for a missing directory")
			}
		})
	})

	t.Run("WriteMarkdownExport", func(t *testing.T) {
		t.Run("WithDefaultDirectory", func(t *testing.T) {
			tempDir := t.TempDir()
			originalDir := th.MustGetwd(t)
			th.MustChdir(t, tempDir)
			defer th.MustChdir(t, originalDir)

			path, err := WriteMarkdownExport(testBatch(), "nas1 → usb", testItems(), "")
			if err != nil {
				t.Fatalf("WriteMarkdownExport failed: %v", err)
			}

			th.AssertDirExists(t, "plan_7")
			if path != filepath.Join("plan_7", "README.md") {
				t.Errorf("unexpected path %s", path)
			}
			if content := th.MustReadFile(t, path); !strings.Contains(content, "# Plan 7") {
				t.Errorf("Markdown missing title")
			}
		})

		t.Run("WithCustomDirectory", func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "reports", "plan")
			path, err := WriteMarkdownExport(testBatch(), "x", testItems(), dir)
			if err != nil {
				t.Fatalf("WriteMarkdownExport failed: %v", err)
			}
			th.AssertFileExists(t, path)
		})
	})

	t.Run("WriteScript", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "scripts")
		path, err := WriteScript(dir, "copy_batch_7.sh", []byte("#!/bin/sh\necho ok\n"))
		if err != nil {
			t.Fatalf("WriteScript failed: %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm()&0100 == 0 {
			t.Errorf("expected executable script, got mode %v", info.Mode())
		}
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "#!/bin/sh") {
			t.Errorf("unexpected content %q", content)
		}
	})
}
