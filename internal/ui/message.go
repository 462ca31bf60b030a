package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/syncctl/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgViewChanged MsgKind = iota
	MsgEngineStopped
	MsgItemsFetched
	MsgActionDone
)

// viewChangedMsg is the constructor for [MsgViewChanged]
func viewChangedMsg() Msg {
	return Msg{kind: MsgViewChanged}
}

// engineStoppedMsg is the constructor for [MsgEngineStopped]
func engineStoppedMsg() Msg {
	return Msg{kind: MsgEngineStopped}
}

type itemsFetched struct {
	batchID int64
	items   []tasks.ItemStatus
	err     error
}

// itemsFetchedMsg is the constructor for [MsgItemsFetched]
func itemsFetchedMsg(batchID int64, items []tasks.ItemStatus, err error) Msg {
	return Msg{kind: MsgItemsFetched, data: itemsFetched{batchID, items, err}}
}

type actionDone struct {
	label string
	err   error
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(label string, err error) Msg {
	return Msg{kind: MsgActionDone, data: actionDone{label, err}}
}
