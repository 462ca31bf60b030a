package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/syncctl/internal/models"
)

// State of a progress record.
type State int

const (
	Idle State = iota
	Started
	Progressing
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Started:
		return "started"
	case Progressing:
		return "progressing"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether the job has finished, successfully or not.
func (s State) Terminal() bool {
	return s == Finished || s == Failed
}

// Key identifies a job across types.
type Key struct {
	Type string
	ID   int64
}

// CopyKey is the key of a copy job.
func CopyKey(id int64) Key {
	return Key{Type: models.JobCopy, ID: id}
}

// KeyOf returns the key of a snapshot job.
func KeyOf(j models.Job) Key {
	return Key{Type: j.Type, ID: j.ID}
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%d", k.Type, k.ID)
}

// Progress is the live view-model of one job.
type Progress struct {
	Key             Key
	State           State
	BatchID         int64 // zero when the job names no batch
	Direction       models.Direction
	Count           int64
	TotalFiles      int64
	TotalSize       int64
	CopiedSize      int64
	CurrentFile     string
	CurrentFileSize int64
	Message         string
	Error           string
	Resumed         bool
	UpdatedAt       time.Time
	Log             []string
}

// Fraction returns Count/TotalFiles clamped to [0, 1], or 0 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.TotalFiles <= 0 {
		return 0
	}
	f := float64(p.Count) / float64(p.TotalFiles)
	return min(max(f, 0), 1)
}

func (p Progress) clone() Progress {
	p.Log = append([]string(nil), p.Log...)
	return p
}

// Effect is what applying an event did to the reconciler.
type Effect int

const (
	Ignored Effect = iota
	Opened
	Updated
	Closed
)

func (e Effect) String() string {
	switch e {
	case Ignored:
		return "ignored"
	case Opened:
		return "opened"
	case Updated:
		return "updated"
	case Closed:
		return "closed"
	default:
		return ""
	}
}

// Change describes the outcome of one merge. Callers schedule expiry of Closed records.
type Change struct {
	Key     Key
	BatchID int64
	Effect  Effect
}

// Changed reports whether the merge altered visible state.
func (c Change) Changed() bool {
	return c.Effect != Ignored
}

// sendChange delivers c without blocking.
func sendChange(ch chan<- Change, c Change) {
	if ch == nil {
		return
	}
	select {
	case ch <- c:
	default:
	}
}
