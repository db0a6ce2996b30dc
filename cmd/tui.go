package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/syncta/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive interface for reviewing and applying syncs.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	model := ui.NewModel(ctx, r.service, r.store)
	program := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
