// package formatter renders backend records for the terminal and exports plan data to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/desertthunder/syncctl/internal/tasks"
	"github.com/dustin/go-humanize"
)

// Bytes renders a byte count in SI units ("1.2 GB"). Negative values render as "-".
func Bytes(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

// Ago renders a timestamp relative to now ("3 minutes ago"), or "-" when unset.
func Ago(ts models.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return humanize.Time(ts.Time)
}

// Elapsed renders how long a job ran, or has been running when it has not finished.
func Elapsed(j models.Job, now time.Time) string {
	if j.StartedAt.IsZero() {
		return "-"
	}
	end := now
	if !j.FinishedAt.IsZero() {
		end = j.FinishedAt.Time
	}
	return end.Sub(j.StartedAt.Time).Round(time.Second).String()
}

// Percent renders a fraction in [0, 1] as "42%".
func Percent(f float64) string {
	return strconv.Itoa(int(f*100+0.5)) + "%"
}

// Progress renders a live record as "7/10 files (70%) 1.2 GB/2.0 GB".
func Progress(p tasks.Progress) string {
	var b strings.Builder
	if p.TotalFiles > 0 {
		fmt.Fprintf(&b, "%s/%s files (%s)", humanize.Comma(p.Count), humanize.Comma(p.TotalFiles), Percent(p.Fraction()))
	} else {
		fmt.Fprintf(&b, "%s files", humanize.Comma(p.Count))
	}
	if p.TotalSize > 0 {
		fmt.Fprintf(&b, " %s/%s", Bytes(p.CopiedSize), Bytes(p.TotalSize))
	} else if p.CopiedSize > 0 {
		fmt.Fprintf(&b, " %s", Bytes(p.CopiedSize))
	}
	if p.Resumed {
		b.WriteString(" (resumed)")
	}
	return b.String()
}

// Direction labels a copy leg.
func Direction(d models.Direction) string {
	switch d {
	case models.DirectionOut:
		return "NAS1 → USB"
	case models.DirectionIn:
		return "USB → NAS2"
	default:
		return "-"
	}
}

// Endpoint renders one mount as "available, 1.2 TB free" or its error.
func Endpoint(e models.Endpoint) string {
	if !e.Available {
		if e.Error != "" {
			return "unavailable: " + e.Error
		}
		return "unavailable"
	}
	parts := []string{"available"}
	if !e.Writable {
		parts = append(parts, "read-only")
	}
	if e.TotalSize > 0 {
		parts = append(parts, fmt.Sprintf("%s free of %s", Bytes(e.FreeSize), Bytes(e.TotalSize)))
	}
	return strings.Join(parts, ", ")
}

// MountsToText renders the mount record, one endpoint per line.
func MountsToText(m models.MountStatus) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "NAS1:     %s\n", Endpoint(m.Origin))
	fmt.Fprintf(&buf, "USB:      %s\n", Endpoint(m.Intermediate))
	fmt.Fprintf(&buf, "NAS2:     %s\n", Endpoint(m.Destination))

	db := "available"
	if !m.Database.Available {
		db = "unavailable"
		if m.Database.Error != "" {
			db += ": " + m.Database.Error
		}
	}
	fmt.Fprintf(&buf, "Database: %s\n", db)
	if m.Restricted {
		buf.WriteString("\nRESTRICTED MODE: the backend refuses changes until USB and its database are back.\n")
	}
	return buf.Bytes()
}

// JobToText renders a job with its metadata and, when present, its stored log.
func JobToText(j models.Job, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Job %d (%s)\n", j.ID, j.Type)
	fmt.Fprintf(&buf, "Status:   %s\n", j.Status)
	fmt.Fprintf(&buf, "Started:  %s\n", Ago(j.StartedAt))
	if !j.FinishedAt.IsZero() {
		fmt.Fprintf(&buf, "Finished: %s\n", Ago(j.FinishedAt))
	}
	fmt.Fprintf(&buf, "Elapsed:  %s\n", Elapsed(j, now))
	if id, ok := j.Metadata.BatchID(); ok {
		fmt.Fprintf(&buf, "Plan:     %d\n", id)
	}
	if d := j.Metadata.Direction(); d != "" {
		fmt.Fprintf(&buf, "Leg:      %s\n", Direction(d))
	}
	if j.Metadata.DryRun() {
		buf.WriteString("Dry run:  yes\n")
	}
	if j.ErrorMessage != "" {
		fmt.Fprintf(&buf, "Error:    %s\n", j.ErrorMessage)
	}
	if j.Log != "" {
		fmt.Fprintf(&buf, "\n%s\n", strings.TrimRight(j.Log, "\n"))
	}
	return buf.Bytes()
}

// VerifyToText renders a verify result, listing every missing and mismatched path.
func VerifyToText(jobID int64, v models.VerifyResult) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Verify job %d: %d/%d files ok\n", jobID, v.VerifiedOK, v.TotalFiles)
	if v.OK() {
		return buf.Bytes()
	}

	if v.MissingCount > 0 {
		fmt.Fprintf(&buf, "\nMissing (%d):\n", v.MissingCount)
		for _, p := range v.MissingFiles {
			fmt.Fprintf(&buf, "  %s\n", p)
		}
	}
	if v.SizeMismatchCount > 0 {
		fmt.Fprintf(&buf, "\nSize mismatch (%d):\n", v.SizeMismatchCount)
		for _, m := range v.SizeMismatchFiles {
			fmt.Fprintf(&buf, "  %s (expected %s, found %s)\n", m.Path, Bytes(m.Expected), Bytes(m.Actual))
		}
	}
	return buf.Bytes()
}

// ComparisonSummaryToText renders per-category counts and sizes.
func ComparisonSummaryToText(name string, s models.ComparisonSummary) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %s files\n", name, humanize.Comma(s.TotalFiles))
	rows := []struct {
		label string
		count int64
		size  int64
	}{
		{"missing", s.MissingCount, s.MissingSize},
		{"conflict", s.ConflictCount, s.ConflictSize},
		{"extra", s.ExtraCount, s.ExtraSize},
		{"same", s.SameCount, s.SameSize},
	}
	for _, r := range rows {
		fmt.Fprintf(&buf, "  %-9s %8s  %s\n", r.label, humanize.Comma(r.count), Bytes(r.size))
	}
	return buf.Bytes()
}

// ItemsToCSV converts plan items to CSV with columns: ID, Path, Size, Category, Enabled, Status, Error
func ItemsToCSV(items []tasks.ItemStatus) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Path", "Size", "Category", "Enabled", "Status", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, it := range items {
		record := []string{
			strconv.FormatInt(it.ID, 10),
			it.FullRelPath,
			strconv.FormatInt(it.Size, 10),
			string(it.Category),
			strconv.FormatBool(it.IsEnabled()),
			it.FileStatus,
			it.FileError,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// PlanToMarkdown renders a plan report: header, sizing and every item with its copy status
func PlanToMarkdown(b models.Batch, name string, items []tasks.ItemStatus) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Plan %d: %s\n\n", b.ID, name))
	buf.WriteString(fmt.Sprintf("**Status**: %s\n", b.Status))
	buf.WriteString(fmt.Sprintf("**Created**: %s\n", Ago(b.CreatedAt)))
	if b.IncludeConflicts {
		buf.WriteString("**Conflicts**: included\n")
	}
	if len(b.ExcludePatterns) > 0 {
		buf.WriteString(fmt.Sprintf("**Excluded**: %s\n", strings.Join(b.ExcludePatterns, ", ")))
	}

	var enabled, size int64
	counts := make(map[string]int)
	for _, it := range items {
		if it.IsEnabled() {
			enabled++
			size += it.Size
		}
		counts[it.FileStatus]++
	}
	buf.WriteString(fmt.Sprintf("**Items**: %d (%d enabled, %s)\n", len(items), enabled, Bytes(size)))
	buf.WriteString(fmt.Sprintf("**Copied**: %d, **failed**: %d, **pending**: %d\n\n",
		counts[models.FileCopied], counts[models.FileFailed], counts[models.FilePending]))

	buf.WriteString("## Items\n\n")
	for i, it := range items {
		mark := "x"
		if !it.IsEnabled() {
			mark = " "
		}
		buf.WriteString(fmt.Sprintf("%d. [%s] %s (%s) %s\n", i+1, mark, it.FullRelPath, Bytes(it.Size), it.FileStatus))
	}

	return buf.Bytes(), nil
}

// ItemsToText converts plan items to plain text, one path per line with its status
func ItemsToText(items []tasks.ItemStatus) ([]byte, error) {
	var buf bytes.Buffer
	for _, it := range items {
		flag := ""
		if !it.IsEnabled() {
			flag = " (disabled)"
		}
		buf.WriteString(fmt.Sprintf("%-8s %10s  %s%s\n", it.FileStatus, Bytes(it.Size), it.FullRelPath, flag))
	}
	return buf.Bytes(), nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	ItemsFile    string
	MetadataFile string
}

// WriteCSVExport exports plan items to CSV with an accompanying plan metadata JSON file.
//
// Defaults to "plan_{id}" as the base filename & creates {base}_items.csv and {base}_metadata.json
func WriteCSVExport(b models.Batch, items []tasks.ItemStatus, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = fmt.Sprintf("plan_%d", b.ID)
	}

	csvData, err := ItemsToCSV(items)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	itemsFile := baseFilepath + "_items.csv"
	if err := os.WriteFile(itemsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := shared.MarshalJSON(b, true)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{ItemsFile: itemsFile, MetadataFile: metadataFile}, nil
}

// WriteMarkdownExport writes a plan report to {dir}/README.md, creating the directory.
//
// Directory name defaults to "plan_{id}".
func WriteMarkdownExport(b models.Batch, name string, items []tasks.ItemStatus, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = fmt.Sprintf("plan_%d", b.ID)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	mdData, err := PlanToMarkdown(b, name, items)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return mdFile, nil
}

// WriteScript saves an exported copy script under dir with the executable bit set.
func WriteScript(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0755); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	return path, nil
}
