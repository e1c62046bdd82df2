package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/pulsemix/internal/tasks"
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
	MsgSynced MsgKind = iota
	MsgResolved
	MsgSaved
	MsgOpened
)

type syncedData struct {
	result *tasks.SyncResult
	err    error
}

type resolvedData struct {
	result *tasks.PlaylistResult
	err    error
}

type savedData struct {
	id  string
	err error
}

// syncedMsg is the constructor for [MsgSynced]
func syncedMsg(result *tasks.SyncResult, err error) Msg {
	return Msg{kind: MsgSynced, data: syncedData{result, err}}
}

// resolvedMsg is the constructor for [MsgResolved]
func resolvedMsg(result *tasks.PlaylistResult, err error) Msg {
	return Msg{kind: MsgResolved, data: resolvedData{result, err}}
}

// savedMsg is the constructor for [MsgSaved]
func savedMsg(id string, err error) Msg {
	return Msg{kind: MsgSaved, data: savedData{id, err}}
}

// openedMsg is the constructor for [MsgOpened]
func openedMsg(err error) Msg {
	return Msg{kind: MsgOpened, data: err}
}
