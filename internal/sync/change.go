package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/desertthunder/syncta/internal/models"
)

// Direction tags which side a change mutates.
type Direction string

const (
	PlatformToLibrary Direction = "platform_to_library"
	LibraryToPlatform Direction = "library_to_platform"
)

// Kind is the change taxonomy: membership adds and removes, metadata
// conflicts, and identity links.
type Kind string

const (
	ChangeAdd      Kind = "add"
	ChangeRemove   Kind = "remove"
	ChangeConflict Kind = "conflict"
	ChangeLink     Kind = "link"
)

// Resolution selects how a conflict change is applied.
type Resolution string

const (
	ResolutionNone       Resolution = ""
	ResolutionKeepLocal  Resolution = "keep_local"
	ResolutionKeepRemote Resolution = "keep_remote"
)

// Change is one selectable unit of diff.
//
// A link change with CreatesPlaylist set establishes the remote playlist
// itself (first export); otherwise a link change pairs TrackID with
// ExternalID as a new PlatformLink.
type Change struct {
	ID        string
	Direction Direction
	Kind      Kind

	TrackID     int64  // local track, zero when unresolved
	ExternalID  string // remote track id, empty when unresolved
	ExternalURI string

	Title  string
	Artist string

	Description       string
	Selected          bool
	NeedsConfirmation bool
	Confidence        float64

	CreatesPlaylist bool
	Resolution      Resolution
}

// changeID derives the stable identifier: a hash of binding, direction,
// kind, and the identifiers involved. Re-planning an unchanged world
// yields identical ids.
func changeID(bindingID int64, direction Direction, kind Kind, trackID int64, externalID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%d|%s", bindingID, direction, kind, trackID, externalID)))
	return hex.EncodeToString(sum[:8])
}

// Plan is the ordered list of changes for one binding, ready for preview
// and selective application.
type Plan struct {
	Binding      *models.Binding
	PlaylistName string
	RemoteName   string
	Changes      []Change
}

// Selected returns the subset of changes the user left selected.
func (p *Plan) Selected() []Change {
	var selected []Change
	for _, change := range p.Changes {
		if change.Selected {
			selected = append(selected, change)
		}
	}
	return selected
}

// Select toggles one change by id. Returns false if the id is unknown.
func (p *Plan) Select(id string, selected bool) bool {
	for i := range p.Changes {
		if p.Changes[i].ID == id {
			p.Changes[i].Selected = selected
			return true
		}
	}
	return false
}

// Empty reports whether the plan contains no changes.
func (p *Plan) Empty() bool { return len(p.Changes) == 0 }

// ChangeResult records the terminal state of one change after apply.
type ChangeResult struct {
	Change Change
	State  State
	Reason string
}

// Summary is the user-visible outcome of one sync job.
type Summary struct {
	Applied int
	Skipped int
	Failed  int
	Details []ChangeResult
}

func (s *Summary) record(change Change, state State, reason string) {
	switch state {
	case StateSucceeded:
		s.Applied++
	case StateFailed:
		s.Failed++
	case StateSkipped:
		s.Skipped++
	}
	s.Details = append(s.Details, ChangeResult{Change: change, State: state, Reason: reason})
}
