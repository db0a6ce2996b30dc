package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/syncta/internal/models"
	librarysync "github.com/desertthunder/syncta/internal/sync"
)

var (
	_ list.Item = bindingItem{}
	_ list.Item = changeItem{}
)

// bindingItem wraps a [models.Binding] and its playlist name to
// implement [list.Item].
type bindingItem struct {
	binding      *models.Binding
	playlistName string
}

func (i bindingItem) FilterValue() string { return i.playlistName }
func (i bindingItem) Title() string       { return i.playlistName }
func (i bindingItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.binding.Platform, i.binding.Mode)
	if i.binding.Pending() {
		desc = fmt.Sprintf("%s • not exported yet", desc)
	}
	return desc
}

// changeItem wraps a [librarysync.Change] to implement [list.Item].
type changeItem struct {
	change librarysync.Change
}

func (i changeItem) FilterValue() string { return i.change.Title }

func (i changeItem) Title() string {
	marker := "[ ]"
	if i.change.Selected {
		marker = "[x]"
	}
	return fmt.Sprintf("%s %s", marker, i.change.Description)
}

func (i changeItem) Description() string {
	desc := fmt.Sprintf("%s %s", i.change.Direction, i.change.Kind)
	if i.change.NeedsConfirmation {
		desc = fmt.Sprintf("%s • needs confirmation (%.0f%%)", desc, i.change.Confidence*100)
	}
	return desc
}
