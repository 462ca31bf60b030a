package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/syncctl/internal/console"
	"github.com/desertthunder/syncctl/internal/formatter"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/tasks"
)

var (
	_ list.Item = row{}
	_ list.Item = planRow{}
	_ list.Item = fileRow{}
)

// row is a plain listing entry.
type row struct {
	title string
	desc  string
}

func (r row) FilterValue() string { return r.title }
func (r row) Title() string       { return r.title }
func (r row) Description() string { return r.desc }

// planRow wraps [models.Batch] to implement [list.Item].
type planRow struct {
	batch models.Batch
	name  string
	live  string
}

func (r planRow) FilterValue() string { return r.name }
func (r planRow) Title() string       { return fmt.Sprintf("Plan %d: %s", r.batch.ID, r.name) }
func (r planRow) Description() string {
	desc := r.batch.Status
	if r.live != "" {
		desc = fmt.Sprintf("%s • %s", desc, r.live)
	}
	return desc
}

// fileRow wraps [tasks.ItemStatus] to implement [list.Item].
type fileRow struct {
	item tasks.ItemStatus
}

func (r fileRow) FilterValue() string { return r.item.FullRelPath }
func (r fileRow) Title() string {
	mark := "[x]"
	if !r.item.IsEnabled() {
		mark = "[ ]"
	}
	return mark + " " + r.item.FullRelPath
}
func (r fileRow) Description() string {
	desc := fmt.Sprintf("%s • %s • %s", formatter.Bytes(r.item.Size), r.item.Category, r.item.FileStatus)
	if r.item.FileError != "" {
		desc = fmt.Sprintf("%s • %s", desc, r.item.FileError)
	}
	return desc
}

// routeItems builds the listing for a route from a view. Routes without a listing return nil.
func routeItems(route string, v console.View) []list.Item {
	var items []list.Item
	switch route {
	case "/datasets":
		for _, d := range v.Datasets {
			desc := fmt.Sprintf("%s • %s", d.Location, d.ScanAdapterType)
			if d.Remote() {
				desc += " • ssh transfer"
			}
			items = append(items, row{title: d.Name, desc: desc})
		}
	case "/scan":
		for _, s := range v.Scans {
			items = append(items, row{
				title: fmt.Sprintf("Scan %d: %s", s.ID, v.DatasetName(s.DatasetID)),
				desc:  fmt.Sprintf("%s • %d files • %s • %s", s.Status, s.TotalFiles, formatter.Bytes(s.TotalSize), formatter.Ago(s.CreatedAt)),
			})
		}
	case "/compare":
		for _, c := range v.Comparisons {
			items = append(items, row{
				title: fmt.Sprintf("Comparison %d: %s", c.ID, v.ComparisonName(c.ID)),
				desc:  fmt.Sprintf("%s • %s", c.Status, formatter.Ago(c.CreatedAt)),
			})
		}
	case "/plan-transfer", "/copy-out", "/copy-in":
		for _, b := range v.Batches {
			r := planRow{batch: b, name: v.ComparisonName(b.DiffID)}
			if p, ok := v.ProgressFor(b.ID); ok {
				r.live = fmt.Sprintf("job %d %s %s", p.Key.ID, p.State, formatter.Progress(p))
			}
			items = append(items, r)
		}
	}
	return items
}

func fileItems(items []tasks.ItemStatus) []list.Item {
	out := make([]list.Item, len(items))
	for i, it := range items {
		out[i] = fileRow{item: it}
	}
	return out
}
