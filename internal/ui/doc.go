// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for playlist synchronization:
//  1. [BindingListView] : Browse the configured playlist bindings
//  2. [PlanView] : Review the computed changes and toggle selections
//  3. [ConfirmView] : Confirm before anything is applied
//  4. [SyncView] : Monitor real-time progress, with an emergency stop key
//  5. [ResultView] : Display the applied/skipped/failed summary
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress events flow through a channel from the sync executor, providing
// non-blocking status reporting while changes apply.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, space, y/n, q)
// with contextual help displayed via charmbracelet/bubbles/help.
package ui
