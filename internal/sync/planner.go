package sync

import (
	"fmt"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/platforms"
)

// Planner converts a diff into an ordered plan of selectable changes,
// honoring the binding's sync mode and the adapter's capabilities.
type Planner struct{}

// NewPlanner creates a Planner.
func NewPlanner() *Planner { return &Planner{} }

// Plan orders changes so that links land before the memberships that
// depend on them, additions land before removals, and conflicts come
// last. Re-planning an unchanged world yields an identical plan.
func (p *Planner) Plan(diff *Diff, playlistName, remoteName string, caps platforms.Capabilities) *Plan {
	binding := diff.Binding
	mode := effectiveMode(binding)
	plan := &Plan{
		Binding:      binding,
		PlaylistName: playlistName,
		RemoteName:   remoteName,
	}

	var links, p2lAdds, l2pAdds, l2pRemoves, p2lRemoves, conflicts []Change

	if binding.Pending() && exportsAllowed(mode) {
		links = append(links, Change{
			ID:              changeID(binding.ID, LibraryToPlatform, ChangeLink, 0, ""),
			Direction:       LibraryToPlatform,
			Kind:            ChangeLink,
			Title:           playlistName,
			Description:     fmt.Sprintf("create %q on %s", playlistName, binding.Platform),
			Selected:        caps.CanCreate,
			CreatesPlaylist: true,
		})
	}

	librarySet := make(map[int64]bool, len(diff.Library))
	for _, id := range diff.Library {
		librarySet[id] = true
	}
	platformSet := make(map[string]bool, len(diff.Platform))
	for _, id := range diff.Platform {
		platformSet[id] = true
	}

	for _, entry := range diff.PlatformAdded {
		if entry.AutoLink || entry.NeedsConfirmation {
			links = append(links, linkChange(binding.ID, PlatformToLibrary, entry))
		}
		if entry.TrackID != 0 && librarySet[entry.TrackID] {
			continue // counterpart already a member locally
		}

		description := fmt.Sprintf("add %q to library playlist", entryLabel(entry))
		if entry.TrackID == 0 && !entry.NeedsConfirmation {
			description = fmt.Sprintf("import %q as a new track", entryLabel(entry))
		}

		change := Change{
			ID:                changeID(binding.ID, PlatformToLibrary, ChangeAdd, entry.TrackID, entry.ExternalID),
			Direction:         PlatformToLibrary,
			Kind:              ChangeAdd,
			TrackID:           entry.TrackID,
			ExternalID:        entry.ExternalID,
			ExternalURI:       entry.ExternalURI,
			Title:             entry.Title,
			Artist:            entry.Artist,
			Description:       description,
			Selected:          !entry.NeedsConfirmation,
			NeedsConfirmation: entry.NeedsConfirmation,
			Confidence:        entry.Confidence,
		}
		if mode == models.SyncMirrorToPlatform {
			// Platform edits get reverted: the remote addition is undone.
			change = Change{
				ID:          changeID(binding.ID, LibraryToPlatform, ChangeRemove, entry.TrackID, entry.ExternalID),
				Direction:   LibraryToPlatform,
				Kind:        ChangeRemove,
				TrackID:     entry.TrackID,
				ExternalID:  entry.ExternalID,
				ExternalURI: entry.ExternalURI,
				Title:       entry.Title,
				Artist:      entry.Artist,
				Description: fmt.Sprintf("revert remote addition of %q", entryLabel(entry)),
				Selected:    removalDefault(binding, caps),
			}
			l2pRemoves = append(l2pRemoves, change)
			continue
		}
		p2lAdds = append(p2lAdds, change)
	}

	for _, entry := range diff.LibraryAdded {
		if mode == models.SyncMirrorFromPlatform {
			// Local edits get reverted: the library addition is undone.
			p2lRemoves = append(p2lRemoves, Change{
				ID:          changeID(binding.ID, PlatformToLibrary, ChangeRemove, entry.TrackID, entry.ExternalID),
				Direction:   PlatformToLibrary,
				Kind:        ChangeRemove,
				TrackID:     entry.TrackID,
				ExternalID:  entry.ExternalID,
				Title:       entry.Title,
				Artist:      entry.Artist,
				Description: fmt.Sprintf("revert local addition of %q", entryLabel(entry)),
				Selected:    true,
			})
			continue
		}
		if !exportsAllowed(mode) {
			continue
		}

		if entry.AutoLink || entry.NeedsConfirmation {
			links = append(links, linkChange(binding.ID, LibraryToPlatform, entry))
		}
		if entry.ExternalID != "" && platformSet[entry.ExternalID] {
			continue // counterpart already a member remotely
		}

		description := fmt.Sprintf("add %q to %s playlist", entryLabel(entry), binding.Platform)
		if entry.ExternalID == "" {
			description = fmt.Sprintf("no %s match found for %q", binding.Platform, entryLabel(entry))
		}

		l2pAdds = append(l2pAdds, Change{
			ID:                changeID(binding.ID, LibraryToPlatform, ChangeAdd, entry.TrackID, entry.ExternalID),
			Direction:         LibraryToPlatform,
			Kind:              ChangeAdd,
			TrackID:           entry.TrackID,
			ExternalID:        entry.ExternalID,
			ExternalURI:       entry.ExternalURI,
			Title:             entry.Title,
			Artist:            entry.Artist,
			Description:       description,
			Selected:          entry.ExternalID != "" && !entry.NeedsConfirmation,
			NeedsConfirmation: entry.NeedsConfirmation,
			Confidence:        entry.Confidence,
		})
	}

	for _, entry := range diff.PlatformRemoved {
		if mode == models.SyncMirrorToPlatform {
			if entry.ExternalID == "" || entry.TrackID == 0 {
				continue
			}
			l2pAdds = append(l2pAdds, Change{
				ID:          changeID(binding.ID, LibraryToPlatform, ChangeAdd, entry.TrackID, entry.ExternalID),
				Direction:   LibraryToPlatform,
				Kind:        ChangeAdd,
				TrackID:     entry.TrackID,
				ExternalID:  entry.ExternalID,
				Title:       entry.Title,
				Artist:      entry.Artist,
				Description: fmt.Sprintf("restore %q on %s", entryLabel(entry), binding.Platform),
				Selected:    true,
			})
			continue
		}
		if mode == models.SyncAddOnly {
			continue
		}
		if entry.TrackID == 0 || !memberOf(diff.Library, entry.TrackID) {
			continue // nothing left to remove locally
		}

		p2lRemoves = append(p2lRemoves, Change{
			ID:          changeID(binding.ID, PlatformToLibrary, ChangeRemove, entry.TrackID, entry.ExternalID),
			Direction:   PlatformToLibrary,
			Kind:        ChangeRemove,
			TrackID:     entry.TrackID,
			ExternalID:  entry.ExternalID,
			Title:       entry.Title,
			Artist:      entry.Artist,
			Description: fmt.Sprintf("remove %q from library playlist", entryLabel(entry)),
			Selected:    true,
		})
	}

	for _, entry := range diff.LibraryRemoved {
		if mode == models.SyncMirrorFromPlatform {
			if entry.TrackID == 0 {
				continue
			}
			p2lAdds = append(p2lAdds, Change{
				ID:          changeID(binding.ID, PlatformToLibrary, ChangeAdd, entry.TrackID, entry.ExternalID),
				Direction:   PlatformToLibrary,
				Kind:        ChangeAdd,
				TrackID:     entry.TrackID,
				ExternalID:  entry.ExternalID,
				Title:       entry.Title,
				Artist:      entry.Artist,
				Description: fmt.Sprintf("restore %q in library playlist", entryLabel(entry)),
				Selected:    true,
			})
			continue
		}
		if !exportsAllowed(mode) || mode == models.SyncAddOnly {
			continue
		}
		if entry.ExternalID == "" || !platformSet[entry.ExternalID] {
			continue // nothing left to remove remotely
		}

		l2pRemoves = append(l2pRemoves, Change{
			ID:          changeID(binding.ID, LibraryToPlatform, ChangeRemove, entry.TrackID, entry.ExternalID),
			Direction:   LibraryToPlatform,
			Kind:        ChangeRemove,
			TrackID:     entry.TrackID,
			ExternalID:  entry.ExternalID,
			Title:       entry.Title,
			Artist:      entry.Artist,
			Description: fmt.Sprintf("remove %q from %s playlist", entryLabel(entry), binding.Platform),
			Selected:    removalDefault(binding, caps),
		})
	}

	for _, entry := range diff.Conflicts {
		conflicts = append(conflicts, Change{
			ID:          changeID(binding.ID, PlatformToLibrary, ChangeConflict, entry.TrackID, entry.ExternalID),
			Direction:   PlatformToLibrary,
			Kind:        ChangeConflict,
			TrackID:     entry.TrackID,
			ExternalID:  entry.ExternalID,
			Title:       entry.Title,
			Artist:      entry.Artist,
			Description: fmt.Sprintf("metadata diverged for %q", entryLabel(entry)),
			Selected:    false,
			Confidence:  entry.Confidence,
		})
	}

	plan.Changes = append(plan.Changes, links...)
	plan.Changes = append(plan.Changes, p2lAdds...)
	plan.Changes = append(plan.Changes, l2pAdds...)
	plan.Changes = append(plan.Changes, l2pRemoves...)
	plan.Changes = append(plan.Changes, p2lRemoves...)
	plan.Changes = append(plan.Changes, conflicts...)
	return plan
}

// effectiveMode downgrades non-personal bindings to import-only: shared
// playlists are never mutated remotely regardless of the stored mode.
func effectiveMode(binding *models.Binding) models.SyncMode {
	if !binding.IsPersonal {
		return models.SyncImportOnly
	}
	return binding.Mode
}

// exportsAllowed reports whether the mode permits any remote mutation.
func exportsAllowed(mode models.SyncMode) bool {
	switch mode {
	case models.SyncImportOnly, models.SyncMirrorFromPlatform:
		return false
	}
	return true
}

// removalDefault leaves remote removals unselected when the playlist is
// shared or the adapter cannot safely modify shared content.
func removalDefault(binding *models.Binding, caps platforms.Capabilities) bool {
	return binding.IsPersonal || caps.CanModifyShared
}

func linkChange(bindingID int64, direction Direction, entry Entry) Change {
	return Change{
		ID:                changeID(bindingID, direction, ChangeLink, entry.TrackID, entry.ExternalID),
		Direction:         direction,
		Kind:              ChangeLink,
		TrackID:           entry.TrackID,
		ExternalID:        entry.ExternalID,
		ExternalURI:       entry.ExternalURI,
		Title:             entry.Title,
		Artist:            entry.Artist,
		Description:       fmt.Sprintf("link %q (%.0f%% confidence)", entryLabel(entry), entry.Confidence*100),
		Selected:          entry.AutoLink && !entry.NeedsConfirmation,
		NeedsConfirmation: entry.NeedsConfirmation,
		Confidence:        entry.Confidence,
	}
}

func entryLabel(entry Entry) string {
	if entry.Artist != "" {
		return entry.Artist + " - " + entry.Title
	}
	if entry.Title != "" {
		return entry.Title
	}
	if entry.ExternalID != "" {
		return entry.ExternalID
	}
	return fmt.Sprintf("track %d", entry.TrackID)
}

func memberOf(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
