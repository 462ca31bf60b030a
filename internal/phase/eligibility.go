package phase

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
)

// Action is an operator action subject to gating.
type Action string

const (
	ActionCopyOut          Action = "copy-out"
	ActionCopyIn           Action = "copy-in"
	ActionRetryJob         Action = "retry-job"
	ActionDeleteJob        Action = "delete-job"
	ActionVerifyJob        Action = "verify-job"
	ActionToggleItem       Action = "toggle-item"
	ActionToggleAll        Action = "toggle-all"
	ActionExportScript     Action = "export-script"
	ActionSaveDataset      Action = "save-dataset"
	ActionDeleteDataset    Action = "delete-dataset"
	ActionCreateScan       Action = "create-scan"
	ActionDeleteScan       Action = "delete-scan"
	ActionCreateComparison Action = "create-comparison"
	ActionDeleteComparison Action = "delete-comparison"
	ActionCreatePlan       Action = "create-plan"
	ActionDeletePlan       Action = "delete-plan"
	ActionRefreshMounts    Action = "refresh-mounts"
)

// rule is the static part of an action's eligibility.
type rule struct {
	phases      []Phase // empty means any phase
	mutating    bool
	needsBatch  bool
	idleBatch   bool // no job may be running against the batch
	direction   bool // phase, mounts and readiness follow Inputs.Direction
	failedJob   bool
	finishedJob bool
}

var transfer = []Phase{TransferOut, TransferIn}

var rules = map[Action]rule{
	ActionCopyOut:          {phases: []Phase{TransferOut}, mutating: true, needsBatch: true, idleBatch: true},
	ActionCopyIn:           {phases: []Phase{TransferIn}, mutating: true, needsBatch: true, idleBatch: true},
	ActionRetryJob:         {mutating: true, needsBatch: true, idleBatch: true, direction: true, failedJob: true},
	ActionDeleteJob:        {phases: transfer, mutating: true, finishedJob: true},
	ActionVerifyJob:        {phases: transfer, finishedJob: true},
	ActionToggleItem:       {mutating: true, needsBatch: true},
	ActionToggleAll:        {mutating: true, needsBatch: true},
	ActionExportScript:     {phases: transfer, needsBatch: true},
	ActionSaveDataset:      {phases: []Phase{Planning}, mutating: true},
	ActionDeleteDataset:    {phases: []Phase{Planning}, mutating: true},
	ActionCreateScan:       {phases: []Phase{Planning}, mutating: true},
	ActionDeleteScan:       {phases: []Phase{Planning}, mutating: true},
	ActionCreateComparison: {phases: []Phase{Planning}, mutating: true},
	ActionDeleteComparison: {phases: []Phase{Planning}, mutating: true},
	ActionCreatePlan:       {phases: []Phase{Planning}, mutating: true},
	ActionDeletePlan:       {phases: []Phase{Planning}, mutating: true},
	ActionRefreshMounts:    {},
}

// Actions lists every gated action.
func Actions() []Action {
	out := make([]Action, 0, len(rules))
	for a := range rules {
		out = append(out, a)
	}
	return out
}

// Mutating reports whether the action changes backend state and is therefore blocked in restricted mode.
func (a Action) Mutating() bool {
	return rules[a].mutating
}

// Inputs is the state an eligibility decision reads.
type Inputs struct {
	Phase  Phase
	Mounts models.MountStatus

	// Batch the action targets, when any, and whether a live job is running against it.
	Batch        *models.Batch
	BatchRunning bool

	// Job the action targets, when any. Direction falls back to the job's metadata.
	Job       *models.Job
	Direction models.Direction

	// OriginRemote and DestinationRemote are set when that side's dataset is reached over ssh, so a missing local mount
	// does not block.
	OriginRemote      bool
	DestinationRemote bool
}

// Decision is the outcome of [Eligible].
type Decision struct {
	Action     Action
	Allowed    bool
	Restricted bool
	Reasons    []string
}

// Err returns nil when allowed. Otherwise it wraps [shared.ErrRestricted] when restricted mode blocked the action and
// [shared.ErrNotEligible] in every case.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	err := fmt.Errorf("%w: %s: %s", shared.ErrNotEligible, d.Action, strings.Join(d.Reasons, "; "))
	if d.Restricted {
		return errors.Join(shared.ErrRestricted, err)
	}
	return err
}

// Eligible decides whether action may run. Every failed condition is reported; restricted mode always comes first.
func Eligible(action Action, in Inputs) Decision {
	d := Decision{Action: action}
	r, ok := rules[action]
	if !ok {
		d.Reasons = append(d.Reasons, "unknown action")
		return d
	}

	if r.mutating && in.Mounts.Restricted {
		d.Restricted = true
		d.Reasons = append(d.Reasons, "restricted mode: USB or database unavailable")
	}

	dir := in.Direction
	if dir == "" && in.Job != nil {
		dir = in.Job.Metadata.Direction()
	}
	switch action {
	case ActionCopyOut:
		dir = models.DirectionOut
	case ActionCopyIn:
		dir = models.DirectionIn
	}

	phases := r.phases
	if r.direction {
		if p, ok := ForDirection(dir); ok {
			phases = []Phase{p}
		} else {
			d.Reasons = append(d.Reasons, "unknown copy direction")
		}
	}
	if len(phases) > 0 && !slices.Contains(phases, in.Phase) {
		d.Reasons = append(d.Reasons, fmt.Sprintf("not available in %s phase", in.Phase))
	}

	if r.mutating && (action == ActionCopyOut || action == ActionCopyIn || r.direction) {
		d.Reasons = append(d.Reasons, mountReasons(dir, in)...)
	}

	if r.needsBatch {
		switch {
		case in.Batch == nil:
			d.Reasons = append(d.Reasons, "no plan selected")
		case action == ActionCopyOut || action == ActionCopyIn:
			if want := readyStatuses(dir); !slices.Contains(want, in.Batch.Status) {
				d.Reasons = append(d.Reasons, fmt.Sprintf("plan %d is %s, needs %s", in.Batch.ID, in.Batch.Status, strings.Join(want, " or ")))
			}
		}
		if r.idleBatch && in.BatchRunning {
			d.Reasons = append(d.Reasons, "a job is already running for this plan")
		}
	}

	if r.failedJob || r.finishedJob {
		switch {
		case in.Job == nil:
			d.Reasons = append(d.Reasons, "no job selected")
		case r.failedJob && in.Job.Status != models.StatusFailed:
			d.Reasons = append(d.Reasons, fmt.Sprintf("job %d is %s, only failed jobs can be retried", in.Job.ID, in.Job.Status))
		case r.finishedJob && !models.Terminal(in.Job.Status):
			d.Reasons = append(d.Reasons, fmt.Sprintf("job %d is still %s", in.Job.ID, in.Job.Status))
		}
	}

	d.Allowed = len(d.Reasons) == 0
	return d
}

func mountReasons(dir models.Direction, in Inputs) []string {
	var out []string
	m := in.Mounts
	switch dir {
	case models.DirectionOut:
		if !m.Origin.Available && !in.OriginRemote {
			out = append(out, "NAS1 is not available")
		}
		if !m.Intermediate.Available {
			out = append(out, "USB is not available")
		}
	case models.DirectionIn:
		if !m.Intermediate.Available {
			out = append(out, "USB is not available")
		}
		if !m.Destination.Available && !in.DestinationRemote {
			out = append(out, "NAS2 is not available")
		}
	}
	return out
}

func readyStatuses(dir models.Direction) []string {
	if dir == models.DirectionIn {
		return []string{models.BatchReadyIn}
	}
	return []string{models.BatchReady, models.BatchReadyOut}
}
