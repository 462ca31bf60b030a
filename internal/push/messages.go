package push

import (
	"encoding/json"
	"fmt"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
)

// Wire tags of the push messages.
const (
	TypeMountsStatus = "mounts.status"
	TypeJobStarted   = "job.started"
	TypeJobProgress  = "job.progress"
	TypeJobFinished  = "job.finished"
	TypeJobLog       = "job.log"
)

// Message is the closed set of push messages. Consumers switch on the concrete type.
type Message interface {
	isMessage()
	Kind() string
}

// JobRef identifies the job a message is about. Job ids are only unique per type.
type JobRef struct {
	JobID int64
	Type  string
}

// MountsStatus carries a partial mount status record to be shallow-merged.
type MountsStatus struct {
	Patch json.RawMessage
}

// JobStarted opens a fresh progress record.
type JobStarted struct {
	JobRef
	Direction  models.Direction
	BatchID    *int64
	TotalFiles *int64
	TotalSize  *int64
}

// JobProgress updates a record. Nil fields were absent on the wire and must not overwrite known values.
type JobProgress struct {
	JobRef
	BatchID         *int64
	Count           *int64
	TotalFiles      *int64
	CurrentFile     *string
	CurrentFileSize *int64
	CopiedSize      *int64
	TotalSize       *int64
	Message         *string
	Path            *string
}

// JobFinished closes a record. Status is "completed" or "failed".
type JobFinished struct {
	JobRef
	BatchID *int64
	Status  string
	Error   string
}

// Failed reports whether the backend finished the job unsuccessfully.
func (m JobFinished) Failed() bool {
	return m.Status == models.StatusFailed || m.Error != ""
}

// JobLog is one log line emitted by a running job.
type JobLog struct {
	JobRef
	Message string
}

func (MountsStatus) isMessage() {}
func (JobStarted) isMessage()   {}
func (JobProgress) isMessage()  {}
func (JobFinished) isMessage()  {}
func (JobLog) isMessage()       {}

func (MountsStatus) Kind() string { return TypeMountsStatus }
func (JobStarted) Kind() string   { return TypeJobStarted }
func (JobProgress) Kind() string  { return TypeJobProgress }
func (JobFinished) Kind() string  { return TypeJobFinished }
func (JobLog) Kind() string       { return TypeJobLog }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type jobFields struct {
	JobID           *int64  `json:"job_id"`
	Type            string  `json:"type"`
	Direction       string  `json:"direction"`
	BatchID         *int64  `json:"batch_id"`
	Count           *int64  `json:"count"`
	Total           *int64  `json:"total"`
	TotalFiles      *int64  `json:"total_files"`
	TotalSize       *int64  `json:"total_size"`
	CurrentFile     *string `json:"current_file"`
	CurrentFileSize *int64  `json:"current_file_size"`
	CopiedSize      *int64  `json:"copied_size"`
	Message         *string `json:"message"`
	Path            *string `json:"path"`
	Status          string  `json:"status"`
	Error           *string `json:"error"`
}

// Decode turns one raw push payload into a [Message].
//
// Errors wrap [shared.ErrMalformedMessage] for undecodable payloads and [shared.ErrUnknownMessage] for unrecognized tags.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", shared.ErrMalformedMessage)
	}

	switch env.Type {
	case TypeMountsStatus:
		if !isObject(env.Data) {
			return nil, fmt.Errorf("%w: %s data is not an object", shared.ErrMalformedMessage, env.Type)
		}
		return MountsStatus{Patch: env.Data}, nil
	case TypeJobStarted, TypeJobProgress, TypeJobFinished, TypeJobLog:
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownMessage, env.Type)
	}

	var f jobFields
	if err := json.Unmarshal(env.Data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrMalformedMessage, env.Type, err)
	}
	if f.JobID == nil {
		return nil, fmt.Errorf("%w: %s without job_id", shared.ErrMalformedMessage, env.Type)
	}
	ref := JobRef{JobID: *f.JobID, Type: f.Type}

	switch env.Type {
	case TypeJobStarted:
		return JobStarted{
			JobRef:     ref,
			Direction:  models.Direction(f.Direction),
			BatchID:    f.BatchID,
			TotalFiles: firstNonNil(f.TotalFiles, f.Total),
			TotalSize:  f.TotalSize,
		}, nil
	case TypeJobProgress:
		return JobProgress{
			JobRef:          ref,
			BatchID:         f.BatchID,
			Count:           f.Count,
			TotalFiles:      firstNonNil(f.TotalFiles, f.Total),
			CurrentFile:     f.CurrentFile,
			CurrentFileSize: f.CurrentFileSize,
			CopiedSize:      f.CopiedSize,
			TotalSize:       f.TotalSize,
			Message:         f.Message,
			Path:            f.Path,
		}, nil
	case TypeJobFinished:
		msg := JobFinished{JobRef: ref, BatchID: f.BatchID, Status: f.Status}
		if f.Error != nil {
			msg.Error = *f.Error
		}
		if msg.Status == "" {
			msg.Status = models.StatusCompleted
			if msg.Error != "" {
				msg.Status = models.StatusFailed
			}
		}
		return msg, nil
	default:
		var text string
		if f.Message != nil {
			text = *f.Message
		}
		return JobLog{JobRef: ref, Message: text}, nil
	}
}

func isObject(raw json.RawMessage) bool {
	var probe map[string]json.RawMessage
	return json.Unmarshal(raw, &probe) == nil && probe != nil
}

func firstNonNil(vals ...*int64) *int64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
