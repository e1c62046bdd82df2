// Package ui implements an interactive mood dashboard using bubbletea's Elm architecture.
//
// The TUI walks through a short workflow:
//  1. [LoadingView] : Pull the latest provider data or wait for the first playlist
//  2. [DashboardView] : Show the current mood and the resolved tracks
//  3. [ConfirmView] : Confirm saving the tracks as a catalog playlist
//  4. [SavedView] : Display the saved playlist or the failure
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Long-running engine calls run as [tea.Cmd] functions so the UI never blocks.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, r, s, e, w, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
