package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// Job types reported by the backend.
const (
	JobScan  = "scan"
	JobDiff  = "diff"
	JobBatch = "batch"
	JobCopy  = "copy"
)

// Direction is a copy job's leg of the migration.
type Direction string

const (
	DirectionOut Direction = "nas1-usb" // origin to intermediate
	DirectionIn  Direction = "usb-nas2" // intermediate to destination
)

// ScriptDirection is the query value the script export endpoint expects for this leg.
func (d Direction) ScriptDirection() string {
	if d == DirectionIn {
		return "usb-to-nas"
	}
	return "nas-to-usb"
}

// JobMetadata is the free-form metadata object attached to a job.
type JobMetadata map[string]any

// BatchID returns the batch the job operates on, when recorded.
func (m JobMetadata) BatchID() (int64, bool) {
	return int64Of(m["batch_id"])
}

// Direction returns the copy leg, when recorded.
func (m JobMetadata) Direction() Direction {
	s, _ := m["direction"].(string)
	return Direction(s)
}

// DryRun reports whether the copy was started without writing files.
func (m JobMetadata) DryRun() bool {
	b, _ := m["dry_run"].(bool)
	return b
}

// Job is one backend job run. Jobs are authoritative in the backend; the console only mirrors them.
type Job struct {
	ID           int64       `json:"id"`
	Type         string      `json:"type"`
	Status       string      `json:"status"`
	StartedAt    Timestamp   `json:"started_at"`
	FinishedAt   Timestamp   `json:"finished_at"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Metadata     JobMetadata `json:"job_metadata,omitempty"`
	Log          string      `json:"job_log,omitempty"`
}

// Running reports whether the backend still considers the job active.
func (j Job) Running() bool {
	return j.Status == StatusRunning
}

// File statuses recorded for copy jobs. Pending is derived locally for items with no record yet.
const (
	FileCopied  = "copied"
	FileFailed  = "failed"
	FileSkipped = "skipped"
	FilePending = "pending"
)

// JobFile is the recorded outcome of one file in a copy job.
type JobFile struct {
	ID           int64     `json:"id"`
	JobID        int64     `json:"job_id"`
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CopiedAt     Timestamp `json:"copied_at"`
}

// SizeMismatch is a file present at the destination with an unexpected size.
type SizeMismatch struct {
	Path     string `json:"path"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
}

// VerifyResult is the backend's post-copy check of a job's destination.
type VerifyResult struct {
	TotalFiles        int64          `json:"total_files"`
	VerifiedOK        int64          `json:"verified_ok"`
	MissingCount      int64          `json:"missing_count"`
	SizeMismatchCount int64          `json:"size_mismatch_count"`
	MissingFiles      []string       `json:"missing_files"`
	SizeMismatchFiles []SizeMismatch `json:"size_mismatch_files"`
}

// OK reports whether every file was found with the expected size.
func (v VerifyResult) OK() bool {
	return v.MissingCount == 0 && v.SizeMismatchCount == 0
}

// CopyRequest starts a copy job for a batch.
type CopyRequest struct {
	BatchID int64 `json:"batch_id"`
	DryRun  bool  `json:"dry_run"`
}

func int64Of(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
