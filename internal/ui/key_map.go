package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	open    key.Binding
	refresh key.Binding
	sync    key.Binding
	enrich  key.Binding
	save    key.Binding
	yes     key.Binding
	no      key.Binding
	back    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		open:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open track")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reshuffle")),
		sync:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync")),
		enrich:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "toggle enrichment")),
		save:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save playlist")),
		yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.open},
		{k.refresh, k.sync, k.enrich, k.save},
		{k.yes, k.no, k.back, k.quit},
	}
}
