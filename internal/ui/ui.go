package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/syncta/internal/repositories"
	librarysync "github.com/desertthunder/syncta/internal/sync"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	BindingListView ViewState = iota
	PlanView
	ConfirmView
	SyncView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	service *librarysync.Service
	store   *repositories.Store
	width   int
	height  int

	bindingList list.Model
	planList    list.Model
	plan        *librarysync.Plan

	progressChan chan librarysync.ProgressEvent
	progress     librarysync.ProgressEvent
	summary      *librarysync.Summary
	err          error

	help help.Model
	keys keyMap
}

type bindingsFetchedMsg struct {
	items []list.Item
	err   error
}

type planComputedMsg struct {
	plan *librarysync.Plan
	err  error
}

type progressEventMsg librarysync.ProgressEvent

type syncCompleteMsg struct {
	summary *librarysync.Summary
	err     error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, service *librarysync.Service, store *repositories.Store) *Model {
	return &Model{
		ctx:     ctx,
		view:    BindingListView,
		service: service,
		store:   store,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init initializes the TUI by loading the configured bindings.
func (m *Model) Init() tea.Cmd {
	return m.fetchBindings()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.bindingList.Width() == 0 {
			m.bindingList.SetSize(msg.Width-4, msg.Height-8)
		}
		if m.planList.Width() == 0 {
			m.planList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case BindingListView:
			return m.handleBindingListKeys(msg)
		case PlanView:
			return m.handlePlanKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			return m.handleSyncKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case bindingsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.bindingList = list.New(msg.items, list.NewDefaultDelegate(), 0, 0)
		m.bindingList.Title = "Playlist Bindings"
		m.bindingList.SetSize(m.width-4, m.height-8)
		return m, nil

	case planComputedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = BindingListView
			return m, nil
		}
		m.plan = msg.plan
		items := make([]list.Item, len(msg.plan.Changes))
		for i, change := range msg.plan.Changes {
			items[i] = changeItem{change: change}
		}
		m.planList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.planList.Title = fmt.Sprintf("Changes for '%s'", msg.plan.PlaylistName)
		m.planList.SetSize(m.width-4, m.height-8)
		m.view = PlanView
		return m, nil

	case progressEventMsg:
		m.progress = librarysync.ProgressEvent(msg)
		return m, m.waitForProgress()

	case syncCompleteMsg:
		m.summary = msg.summary
		m.err = msg.err
		m.view = ResultView
		m.progressChan = nil
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case BindingListView:
		return m.renderBindingList()
	case PlanView:
		return m.renderPlan()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleBindingListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		selected := m.bindingList.SelectedItem()
		if selected != nil {
			if item, ok := selected.(bindingItem); ok {
				return m, m.computePlan(item.binding.ID)
			}
		}
	}

	var cmd tea.Cmd
	m.bindingList, cmd = m.bindingList.Update(msg)
	return m, cmd
}

func (m *Model) handlePlanKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = BindingListView
		return m, nil
	case " ":
		index := m.planList.Index()
		if item, ok := m.planList.SelectedItem().(changeItem); ok {
			item.change.Selected = !item.change.Selected
			m.plan.Select(item.change.ID, item.change.Selected)
			return m, m.planList.SetItem(index, item)
		}
	case "enter":
		if m.plan != nil && !m.plan.Empty() {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.planList, cmd = m.planList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "n":
		m.view = PlanView
		return m, nil
	case "y":
		m.view = SyncView
		return m, m.startSync()
	}
	return m, nil
}

func (m *Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "s":
		m.service.Gate().EmergencyStop()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = BindingListView
		m.plan = nil
		m.summary = nil
		m.err = nil
		return m, m.fetchBindings()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case BindingListView:
		m.bindingList, cmd = m.bindingList.Update(msg)
	case PlanView:
		m.planList, cmd = m.planList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchBindings() tea.Cmd {
	return func() tea.Msg {
		bindings, err := m.store.Bindings.List()
		if err != nil {
			return bindingsFetchedMsg{err: err}
		}

		items := make([]list.Item, 0, len(bindings))
		for _, binding := range bindings {
			name := fmt.Sprintf("playlist %d", binding.PlaylistID)
			if playlist, err := m.store.Playlists.Get(binding.PlaylistID); err == nil {
				name = playlist.Name
			}
			items = append(items, bindingItem{binding: binding, playlistName: name})
		}
		return bindingsFetchedMsg{items: items}
	}
}

func (m *Model) computePlan(bindingID int64) tea.Cmd {
	return func() tea.Msg {
		plan, err := m.service.Preview(m.ctx, bindingID)
		return planComputedMsg{plan: plan, err: err}
	}
}

func (m *Model) startSync() tea.Cmd {
	m.progressChan = make(chan librarysync.ProgressEvent, 50)
	progressChan := m.progressChan

	go func() {
		summary, err := m.service.Apply(m.ctx, m.plan, progressChan)
		m.summary = summary
		m.err = err
		close(progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		if m.progressChan == nil {
			return syncCompleteMsg{summary: m.summary, err: m.err}
		}

		event, ok := <-m.progressChan
		if !ok {
			return syncCompleteMsg{summary: m.summary, err: m.err}
		}
		return progressEventMsg(event)
	}
}

func (m *Model) renderBindingList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.bindingList.View(), helpView)
}

func (m *Model) renderPlan() string {
	applyKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply"))
	helpKeys := []key.Binding{m.keys.toggle, applyKey, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.plan != nil && m.plan.Empty() {
		title := styles.ok.Render("Nothing to sync")
		return fmt.Sprintf("%s\n\nBoth sides already agree.\n\n%s", title, helpView)
	}
	return fmt.Sprintf("%s\n\n%s", m.planList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	selected := len(m.plan.Selected())
	title := styles.title.Render(fmt.Sprintf("Apply %d changes to '%s'?", selected, m.plan.PlaylistName))
	info := fmt.Sprintf("\nPlatform: %s\nMode: %s\n", m.plan.Binding.Platform, m.plan.Binding.Mode)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Synchronizing")
	if m.service.Gate().Stopped() {
		title = styles.warn.Render("Stopping — letting in-flight changes finish")
	}

	status := "Working..."
	if m.progress.Message != "" {
		status = m.progress.Message
	}

	stopHelp := m.help.ShortHelpView([]key.Binding{m.keys.stop})
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, status, stopHelp)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Sync failed: %v\n\nPress esc to go back, q to quit", m.err))
	}

	if m.summary == nil {
		return styles.err.Render("No result available\n\nPress esc to go back, q to quit")
	}

	title := styles.ok.Render("✓ Sync Complete")
	info := fmt.Sprintf("\nApplied: %d\nSkipped: %d\nFailed: %d", m.summary.Applied, m.summary.Skipped, m.summary.Failed)

	var failed string
	if m.summary.Failed > 0 {
		failed = fmt.Sprintf("\n\n%s", styles.warn.Render("Failed changes:"))
		for _, detail := range m.summary.Details {
			if detail.State == librarysync.StateFailed {
				failed += fmt.Sprintf("\n  • %s (%s)", detail.Change.Description, detail.Reason)
			}
		}
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
