// Package phase implements the three-state workflow gate.
//
// The operator selects one of [Planning], [TransferOut] or [TransferIn]. The selection is persisted under [StateKey],
// broadcast to subscribers and restricts which routes may be shown; leaving an allowed route forces navigation to the
// phase's default. [Eligible] decides whether an action may run given the phase, mount reachability, restricted mode
// and running jobs.
package phase

import (
	"fmt"
	"strings"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
)

// Phase is the active workflow mode.
type Phase string

const (
	Planning    Phase = "planning"
	TransferOut Phase = "transfer-out" // origin to intermediate
	TransferIn  Phase = "transfer-in"  // intermediate to destination
)

// Phases lists every phase in workflow order.
var Phases = []Phase{Planning, TransferOut, TransferIn}

// StateKey is the client-state key the active phase is stored under.
const StateKey = "sync_phase"

var legacy = map[string]Phase{
	"copy-nas-hdd": TransferOut,
	"copy-hdd-nas": TransferIn,
}

// Parse maps a stored or typed value onto a phase. Older stored values are accepted.
func Parse(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Phases {
		if string(p) == s {
			return p, nil
		}
	}
	if p, ok := legacy[s]; ok {
		return p, nil
	}
	return Planning, fmt.Errorf("%w: %q", shared.ErrUnknownPhase, s)
}

func (p Phase) String() string {
	return string(p)
}

// Label is the operator-facing name.
func (p Phase) Label() string {
	switch p {
	case TransferOut:
		return "Transfer out (NAS1 → USB)"
	case TransferIn:
		return "Transfer in (USB → NAS2)"
	default:
		return "Planning"
	}
}

// Direction returns the copy leg run in this phase, empty for planning.
func (p Phase) Direction() models.Direction {
	switch p {
	case TransferOut:
		return models.DirectionOut
	case TransferIn:
		return models.DirectionIn
	default:
		return ""
	}
}

// ForDirection returns the phase a copy leg belongs to.
func ForDirection(d models.Direction) (Phase, bool) {
	switch d {
	case models.DirectionOut:
		return TransferOut, true
	case models.DirectionIn:
		return TransferIn, true
	default:
		return "", false
	}
}

// Route is one console view and the phases it belongs to.
type Route struct {
	Path   string
	Title  string
	Phases []Phase
}

// Allows reports whether the route may be shown in p.
func (r Route) Allows(p Phase) bool {
	for _, rp := range r.Phases {
		if rp == p {
			return true
		}
	}
	return false
}

// Routes is the console's route table in display order.
var Routes = []Route{
	{Path: "/", Title: "Overview", Phases: Phases},
	{Path: "/datasets", Title: "Datasets", Phases: []Phase{Planning}},
	{Path: "/scan", Title: "Scans", Phases: []Phase{Planning}},
	{Path: "/compare", Title: "Compare", Phases: []Phase{Planning}},
	{Path: "/plan-transfer", Title: "Plans", Phases: []Phase{Planning}},
	{Path: "/copy-out", Title: "Copy NAS1 → USB", Phases: []Phase{TransferOut}},
	{Path: "/copy-in", Title: "Copy USB → NAS2", Phases: []Phase{TransferIn}},
}

var defaults = map[Phase]string{
	Planning:    "/",
	TransferOut: "/copy-out",
	TransferIn:  "/copy-in",
}

// DefaultRoute is where a phase lands when the current route is not allowed.
func DefaultRoute(p Phase) string {
	if r, ok := defaults[p]; ok {
		return r
	}
	return "/"
}

// LookupRoute finds a route by path.
func LookupRoute(path string) (Route, bool) {
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// AllowedRoutes returns the routes shown in p, in table order.
func AllowedRoutes(p Phase) []Route {
	var out []Route
	for _, r := range Routes {
		if r.Allows(p) {
			out = append(out, r)
		}
	}
	return out
}

// RouteAllowed reports whether path is a known route shown in p.
func RouteAllowed(path string, p Phase) bool {
	r, ok := LookupRoute(path)
	return ok && r.Allows(p)
}
