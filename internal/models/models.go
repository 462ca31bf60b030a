// package models defines the data model mirrored from the migration backend
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Location tags where a dataset lives.
type Location string

const (
	LocationOrigin       Location = "NAS1"
	LocationIntermediate Location = "USB"
	LocationDestination  Location = "NAS2"
)

// AccessMethod is how the backend reaches a dataset's files.
type AccessMethod string

const (
	AccessLocal AccessMethod = "local"
	AccessSSH   AccessMethod = "ssh"
)

// Dataset is a named collection of roots at one location.
type Dataset struct {
	ID                    int64          `json:"id"`
	Name                  string         `json:"name"`
	Location              Location       `json:"location"`
	Roots                 []string       `json:"roots"`
	ScanAdapterType       AccessMethod   `json:"scan_adapter_type"`
	ScanAdapterConfig     map[string]any `json:"scan_adapter_config,omitempty"`
	TransferAdapterType   AccessMethod   `json:"transfer_adapter_type,omitempty"`
	TransferAdapterConfig map[string]any `json:"transfer_adapter_config,omitempty"`
	CreatedAt             Timestamp      `json:"created_at"`
}

// DatasetInput is the body accepted when creating or updating a dataset.
type DatasetInput struct {
	Name                  string         `json:"name"`
	Location              Location       `json:"location"`
	Roots                 []string       `json:"roots"`
	ScanAdapterType       AccessMethod   `json:"scan_adapter_type"`
	ScanAdapterConfig     map[string]any `json:"scan_adapter_config,omitempty"`
	TransferAdapterType   AccessMethod   `json:"transfer_adapter_type,omitempty"`
	TransferAdapterConfig map[string]any `json:"transfer_adapter_config,omitempty"`
}

// Remote reports whether files are transferred over ssh rather than a local mount.
func (d Dataset) Remote() bool {
	return d.TransferAdapterType == AccessSSH
}

// Shared status values for scans, comparisons and jobs.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Terminal reports whether status is completed or failed.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Scan is an inventory of a dataset.
type Scan struct {
	ID           int64     `json:"id"`
	DatasetID    int64     `json:"dataset_id"`
	CreatedAt    Timestamp `json:"created_at"`
	Status       string    `json:"status"`
	TotalFiles   int64     `json:"total_files"`
	TotalSize    int64     `json:"total_size"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ScanFile is one file recorded by a scan.
type ScanFile struct {
	ID          int64   `json:"id"`
	ScanID      int64   `json:"scan_id"`
	FullRelPath string  `json:"full_rel_path"`
	Size        int64   `json:"size"`
	Mtime       float64 `json:"mtime"`
	Root        string  `json:"root_rel_path,omitempty"`
}

// Category classifies a path in a comparison.
type Category string

const (
	CategoryMissing  Category = "missing"
	CategoryConflict Category = "conflict"
	CategoryExtra    Category = "extra"
	CategorySame     Category = "same"
)

// Comparison (a "diff" on the wire) is the categorized difference between two scans.
type Comparison struct {
	ID           int64     `json:"id"`
	SourceScanID int64     `json:"source_scan_id"`
	TargetScanID int64     `json:"target_scan_id"`
	CreatedAt    Timestamp `json:"created_at"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ComparisonItem is one categorized path.
type ComparisonItem struct {
	ID          int64    `json:"id"`
	DiffID      int64    `json:"diff_id"`
	FullRelPath string   `json:"full_rel_path"`
	SourceSize  *int64   `json:"source_size"`
	TargetSize  *int64   `json:"target_size"`
	SourceMtime *float64 `json:"source_mtime"`
	TargetMtime *float64 `json:"target_mtime"`
	Category    Category `json:"category"`
}

// ComparisonSummary holds per-category counts and byte sizes.
type ComparisonSummary struct {
	TotalFiles    int64 `json:"total_files"`
	MissingCount  int64 `json:"missing_count"`
	MissingSize   int64 `json:"missing_size"`
	ConflictCount int64 `json:"conflict_count"`
	ConflictSize  int64 `json:"conflict_size"`
	ExtraCount    int64 `json:"extra_count"`
	ExtraSize     int64 `json:"extra_size"`
	SameCount     int64 `json:"same_count"`
	SameSize      int64 `json:"same_size"`
}

// Batch statuses that gate copy actions.
const (
	BatchReady    = "ready" // planned, accepted for the first copy leg
	BatchReadyOut = "ready_to_phase_2"
	BatchReadyIn  = "ready_to_phase_3"
)

// Batch (a "plan") is an ordered selection of comparison items to move.
type Batch struct {
	ID               int64     `json:"id"`
	DiffID           int64     `json:"diff_id"`
	CreatedAt        Timestamp `json:"created_at"`
	USBLimitPct      float64   `json:"usb_limit_pct"`
	IncludeConflicts bool      `json:"include_conflicts"`
	ExcludePatterns  []string  `json:"exclude_patterns"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

// BatchInput is the body accepted when creating a batch.
type BatchInput struct {
	DiffID           int64    `json:"diff_id"`
	IncludeConflicts bool     `json:"include_conflicts"`
	ExcludePatterns  []string `json:"exclude_patterns,omitempty"`
}

// BatchItem is one path in a plan. A missing "enabled" key means enabled.
type BatchItem struct {
	ID          int64    `json:"id"`
	BatchID     int64    `json:"batch_id"`
	FullRelPath string   `json:"full_rel_path"`
	Size        int64    `json:"size"`
	Category    Category `json:"category"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

// IsEnabled reports whether the item takes part in future copy actions.
func (i BatchItem) IsEnabled() bool {
	return i.Enabled == nil || *i.Enabled
}

// BatchSummary is the sizing view of a batch against the intermediate medium.
type BatchSummary struct {
	TotalFiles   int64 `json:"total_files"`
	TotalSize    int64 `json:"total_size"`
	USBAvailable int64 `json:"usb_available"`
	USBLimit     int64 `json:"usb_limit"`
}

// Timestamp decodes backend datetimes with or without a zone offset.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}

	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
