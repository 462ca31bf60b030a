package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/syncctl/internal/console"
	"github.com/desertthunder/syncctl/internal/formatter"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/notify"
	"github.com/desertthunder/syncctl/internal/phase"
	"github.com/desertthunder/syncctl/internal/tasks"
)

// Console is the engine surface the TUI drives. [console.Engine] satisfies it.
type Console interface {
	View() console.View
	Subscribe() <-chan struct{}

	SelectPhase(p phase.Phase) (phase.Change, error)
	Navigate(path string) error
	StartCopy(ctx context.Context, batchID int64, dryRun bool) (*models.Job, error)
	RetryJob(ctx context.Context, jobID int64) (*models.Job, error)
	VerifyJob(ctx context.Context, jobID int64) (*models.VerifyResult, error)
	ToggleItem(ctx context.Context, batchID, itemID int64, enabled bool) error
	ToggleAll(ctx context.Context, batchID int64, enabled bool) error
	ExportScript(ctx context.Context, batchID int64) (string, []byte, error)
	RefreshMounts(ctx context.Context) error
	BatchItems(ctx context.Context, batchID int64) ([]tasks.ItemStatus, error)
	DismissBanner(key tasks.Key)
	Notify(message string, severity notify.Severity) string
}

// pending is an action waiting for y/n.
type pending struct {
	prompt string
	run    tea.Cmd
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	engine    Console
	changes   <-chan struct{}
	scriptDir string

	v      console.View
	width  int
	height int

	list       list.Model
	items      []tasks.ItemStatus
	itemsBatch int64
	confirm    *pending
	status     string

	bar  progress.Model
	help help.Model
	keys keyMap
}

// NewModel creates a TUI model over a running engine. Exported scripts are saved under scriptDir.
func NewModel(ctx context.Context, engine Console, scriptDir string) *Model {
	m := &Model{
		ctx:       ctx,
		engine:    engine,
		changes:   engine.Subscribe(),
		scriptDir: scriptDir,
		v:         engine.View(),
		list:      list.New(nil, list.NewDefaultDelegate(), 0, 0),
		bar:       progress.New(progress.WithDefaultGradient()),
		help:      help.New(),
		keys:      newKeyMap(),
	}
	m.list.SetShowHelp(false)
	m.refreshList()
	return m
}

// Init starts waiting for engine changes.
func (m *Model) Init() tea.Cmd {
	return m.waitForChange()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-14)
		m.bar.Width = max(msg.Width-20, 10)
		return m, nil

	case tea.KeyMsg:
		if m.confirm != nil {
			return m.handleConfirmKeys(msg)
		}
		if m.list.FilterState() == list.Filtering {
			return m.updateList(msg)
		}
		return m.handleKeys(msg)

	case Msg:
		switch msg.kind {
		case MsgViewChanged:
			m.v = m.engine.View()
			m.refreshList()
			return m, m.waitForChange()
		case MsgEngineStopped:
			return m, tea.Quit
		case MsgItemsFetched:
			res := msg.data.(itemsFetched)
			if res.err != nil {
				m.status = fmt.Sprintf("could not load plan %d items: %v", res.batchID, res.err)
				return m, nil
			}
			m.showItems(res.batchID, res.items)
			return m, nil
		case MsgActionDone:
			res := msg.data.(actionDone)
			m.status = ""
			if res.err != nil {
				m.status = fmt.Sprintf("%s: %v", res.label, res.err)
			}
			if m.itemsBatch != 0 && strings.HasPrefix(res.label, "toggle") {
				return m, m.fetchItems(m.itemsBatch)
			}
			return m, nil
		}
	}

	return m.updateList(msg)
}

// View renders the header, banners, the active route and notices.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	for _, banner := range m.v.Banners {
		b.WriteString(styles.banner.Render(fmt.Sprintf(
			"%s job %d failed on plan %d: %s (R retry, x dismiss)",
			formatter.Direction(banner.Direction), banner.Key.ID, banner.BatchID, banner.Error,
		)))
		b.WriteString("\n")
	}

	switch {
	case m.itemsBatch != 0:
		b.WriteString(m.list.View())
	case m.v.Route == "/":
		b.WriteString(m.renderOverview())
	default:
		b.WriteString(m.list.View())
		b.WriteString(m.renderSelectedProgress())
	}
	b.WriteString("\n")

	for _, n := range m.v.Notices {
		b.WriteString(styles.severity(n).Render("• " + n.Message))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(styles.warn.Render(m.status))
		b.WriteString("\n")
	}

	if m.confirm != nil {
		b.WriteString("\n" + styles.title.Render(m.confirm.prompt) + "\n")
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no}))
		return b.String()
	}
	b.WriteString("\n" + m.help.ShortHelpView(m.contextKeys()))
	return b.String()
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.planning):
		return m, m.selectPhase(phase.Planning)
	case key.Matches(msg, m.keys.transferOut):
		return m, m.selectPhase(phase.TransferOut)
	case key.Matches(msg, m.keys.transferIn):
		return m, m.selectPhase(phase.TransferIn)
	case key.Matches(msg, m.keys.nextRoute):
		m.nextRoute()
		return m, nil
	case key.Matches(msg, m.keys.back):
		if m.itemsBatch != 0 {
			m.itemsBatch, m.items = 0, nil
			m.refreshList()
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.action("re-check mounts", func(ctx context.Context) error { return m.engine.RefreshMounts(ctx) })
	case key.Matches(msg, m.keys.dismiss):
		if n := len(m.v.Banners); n > 0 {
			m.engine.DismissBanner(m.v.Banners[n-1].Key)
		}
		return m, nil
	}

	if m.itemsBatch != 0 {
		return m.handleItemKeys(msg)
	}

	batch, ok := m.selectedPlan()
	if !ok {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.enter):
		return m, m.fetchItems(batch.ID)
	case key.Matches(msg, m.keys.copy), key.Matches(msg, m.keys.dryRun):
		dry := key.Matches(msg, m.keys.dryRun)
		prompt := fmt.Sprintf("Start %s copy for plan %d?", formatter.Direction(m.v.Phase.Direction()), batch.ID)
		if dry {
			prompt = fmt.Sprintf("Start a dry run of %s for plan %d?", formatter.Direction(m.v.Phase.Direction()), batch.ID)
		}
		m.confirm = &pending{prompt: prompt, run: m.action("copy", func(ctx context.Context) error {
			_, err := m.engine.StartCopy(ctx, batch.ID, dry)
			return err
		})}
		return m, nil
	case key.Matches(msg, m.keys.retry):
		bn, ok := m.bannerFor(batch.ID)
		if !ok {
			m.status = fmt.Sprintf("plan %d has no failed job", batch.ID)
			return m, nil
		}
		m.confirm = &pending{prompt: fmt.Sprintf("Retry job %d?", bn.Key.ID), run: m.action("retry", func(ctx context.Context) error {
			_, err := m.engine.RetryJob(ctx, bn.Key.ID)
			return err
		})}
		return m, nil
	case key.Matches(msg, m.keys.export):
		return m, m.action("export script", func(ctx context.Context) error { return m.exportScript(ctx, batch.ID) })
	case key.Matches(msg, m.keys.verify):
		job, ok := m.v.LatestJobFor(batch.ID)
		if !ok {
			m.status = fmt.Sprintf("plan %d has no copy job to verify", batch.ID)
			return m, nil
		}
		return m, m.action("verify", func(ctx context.Context) error {
			_, err := m.engine.VerifyJob(ctx, job.ID)
			return err
		})
	}
	return m.updateList(msg)
}

func (m *Model) handleItemKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	batchID := m.itemsBatch
	switch {
	case key.Matches(msg, m.keys.toggle):
		sel, ok := m.list.SelectedItem().(fileRow)
		if !ok {
			return m, nil
		}
		enable := !sel.item.IsEnabled()
		return m, m.action("toggle item", func(ctx context.Context) error {
			return m.engine.ToggleItem(ctx, batchID, sel.item.ID, enable)
		})
	case key.Matches(msg, m.keys.toggleAll):
		enable := false
		for _, it := range m.items {
			if !it.IsEnabled() {
				enable = true
				break
			}
		}
		return m, m.action("toggle all", func(ctx context.Context) error {
			return m.engine.ToggleAll(ctx, batchID, enable)
		})
	}
	return m.updateList(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		run := m.confirm.run
		m.confirm = nil
		return m, run
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.confirm = nil
	}
	return m, nil
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// waitForChange blocks until the engine publishes a new view.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.changes; !ok {
			return engineStoppedMsg()
		}
		return viewChangedMsg()
	}
}

func (m *Model) selectPhase(p phase.Phase) tea.Cmd {
	m.itemsBatch, m.items = 0, nil
	return func() tea.Msg {
		_, err := m.engine.SelectPhase(p)
		return actionDoneMsg("select phase", err)
	}
}

// nextRoute moves to the route after the current one among those the phase allows.
func (m *Model) nextRoute() {
	routes := m.v.Routes
	if len(routes) == 0 {
		return
	}
	next := routes[0].Path
	for i, r := range routes {
		if r.Path == m.v.Route {
			next = routes[(i+1)%len(routes)].Path
			break
		}
	}
	if err := m.engine.Navigate(next); err != nil {
		m.status = err.Error()
		return
	}
	m.v.Route = next
	m.itemsBatch, m.items = 0, nil
	m.refreshList()
}

func (m *Model) action(label string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg(label, fn(m.ctx))
	}
}

func (m *Model) fetchItems(batchID int64) tea.Cmd {
	return func() tea.Msg {
		items, err := m.engine.BatchItems(m.ctx, batchID)
		return itemsFetchedMsg(batchID, items, err)
	}
}

func (m *Model) exportScript(ctx context.Context, batchID int64) error {
	name, data, err := m.engine.ExportScript(ctx, batchID)
	if err != nil {
		return err
	}
	path, err := formatter.WriteScript(m.scriptDir, name, data)
	if err != nil {
		m.engine.Notify("could not save script: "+err.Error(), notify.Error)
		return err
	}
	m.engine.Notify("script saved to "+path, notify.Success)
	return nil
}

func (m *Model) showItems(batchID int64, items []tasks.ItemStatus) {
	m.itemsBatch, m.items = batchID, items
	m.list.Title = fmt.Sprintf("Plan %d items", batchID)
	m.list.SetItems(fileItems(items))
}

func (m *Model) refreshList() {
	if m.itemsBatch != 0 {
		return
	}
	if r, ok := phase.LookupRoute(m.v.Route); ok {
		m.list.Title = r.Title
	}
	m.list.SetItems(routeItems(m.v.Route, m.v))
}

func (m *Model) selectedPlan() (models.Batch, bool) {
	if m.itemsBatch != 0 {
		return m.v.Batch(m.itemsBatch)
	}
	r, ok := m.list.SelectedItem().(planRow)
	if !ok {
		return models.Batch{}, false
	}
	return r.batch, true
}

func (m *Model) bannerFor(batchID int64) (console.Banner, bool) {
	for i := len(m.v.Banners) - 1; i >= 0; i-- {
		if m.v.Banners[i].BatchID == batchID {
			return m.v.Banners[i], true
		}
	}
	return console.Banner{}, false
}

func (m *Model) contextKeys() []key.Binding {
	keys := []key.Binding{m.keys.planning, m.keys.transferOut, m.keys.transferIn, m.keys.nextRoute}
	switch {
	case m.itemsBatch != 0:
		keys = append(keys, m.keys.toggle, m.keys.toggleAll, m.keys.back)
	case m.v.Route == "/copy-out" || m.v.Route == "/copy-in":
		keys = append(keys, m.keys.enter, m.keys.copy, m.keys.dryRun, m.keys.retry, m.keys.export, m.keys.verify)
	case m.v.Route == "/plan-transfer":
		keys = append(keys, m.keys.enter)
	}
	if len(m.v.Banners) > 0 {
		keys = append(keys, m.keys.dismiss)
	}
	return append(keys, m.keys.refresh, m.keys.quit)
}

func (m *Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(styles.badge.Render(m.v.Phase.Label()))
	if m.v.Connected {
		b.WriteString(styles.ok.Render("  ● live"))
	} else {
		b.WriteString(styles.warn.Render("  ○ reconnecting"))
	}
	if m.v.Mounts.Restricted {
		b.WriteString(styles.err.Render("  RESTRICTED MODE"))
	}
	b.WriteString("\n")

	tabs := make([]string, 0, len(m.v.Routes))
	for _, r := range m.v.Routes {
		if r.Path == m.v.Route {
			tabs = append(tabs, styles.title.UnsetMarginBottom().Render("["+r.Title+"]"))
		} else {
			tabs = append(tabs, styles.help.Render(r.Title))
		}
	}
	b.WriteString(strings.Join(tabs, "  "))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderOverview() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Mounts"))
	b.WriteString("\n")
	if !m.v.MountsLoaded {
		b.WriteString(styles.help.Render("waiting for the first mount check"))
		b.WriteString("\n")
	}
	b.Write(formatter.MountsToText(m.v.Mounts))

	b.WriteString("\n")
	b.WriteString(styles.title.Render("Jobs"))
	b.WriteString("\n")
	if len(m.v.Progress) == 0 {
		b.WriteString(styles.help.Render("no live jobs"))
		b.WriteString("\n")
	}
	for _, p := range m.v.Progress {
		b.WriteString(m.renderProgress(p))
	}
	return b.String()
}

func (m *Model) renderSelectedProgress() string {
	batch, ok := m.selectedPlan()
	if !ok {
		return ""
	}
	p, ok := m.v.ProgressFor(batch.ID)
	if !ok {
		return ""
	}
	return "\n" + m.renderProgress(p)
}

func (m *Model) renderProgress(p tasks.Progress) string {
	label := fmt.Sprintf("%s %d", p.Key.Type, p.Key.ID)
	if p.BatchID != 0 {
		label += fmt.Sprintf(" (plan %d)", p.BatchID)
	}

	state := p.State.String()
	switch p.State {
	case tasks.Finished:
		state = styles.ok.Render(state)
	case tasks.Failed:
		state = styles.err.Render(state)
	}

	line := fmt.Sprintf("%s %s %s\n%s\n", label, state, formatter.Progress(p), m.bar.ViewAs(p.Fraction()))
	if p.CurrentFile != "" && !p.State.Terminal() {
		line += styles.help.Render(p.CurrentFile) + "\n"
	}
	return line
}
