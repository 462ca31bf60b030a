package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	planning    key.Binding
	transferOut key.Binding
	transferIn  key.Binding
	nextRoute   key.Binding
	enter       key.Binding
	back        key.Binding
	yes         key.Binding
	no          key.Binding
	copy        key.Binding
	dryRun      key.Binding
	retry       key.Binding
	export      key.Binding
	verify      key.Binding
	toggle      key.Binding
	toggleAll   key.Binding
	dismiss     key.Binding
	refresh     key.Binding
	quit        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		planning:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "planning")),
		transferOut: key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "transfer out")),
		transferIn:  key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "transfer in")),
		nextRoute:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
		enter:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "items")),
		back:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:         key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:          key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		copy:        key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy")),
		dryRun:      key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dry run")),
		retry:       key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "retry")),
		export:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export script")),
		verify:      key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "verify")),
		toggle:      key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "toggle item")),
		toggleAll:   key.NewBinding(key.WithKeys("T"), key.WithHelp("T", "toggle all")),
		dismiss:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss")),
		refresh:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "re-check mounts")),
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.nextRoute, k.refresh, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.planning, k.transferOut, k.transferIn, k.nextRoute},
		{k.enter, k.back, k.copy, k.dryRun, k.retry},
		{k.export, k.verify, k.toggle, k.toggleAll},
		{k.dismiss, k.refresh, k.quit},
	}
}
