package sync

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/platforms"
	"github.com/desertthunder/syncta/internal/shared"
)

// Gate is the final safety check before any change is applied. It
// enforces the emergency stop, shared-playlist protection, and the
// test-mode prefix policy. A Gate is safe for concurrent use.
type Gate struct {
	stopped  atomic.Bool
	testMode bool
	prefixes []string
}

// NewGate builds a Gate from the safety configuration.
func NewGate(cfg shared.SafetyConfig) *Gate {
	return &Gate{testMode: cfg.TestMode, prefixes: cfg.TestPrefixes}
}

// EmergencyStop halts all further mutations. Changes already in flight
// finish; nothing new passes the gate until Resume.
func (g *Gate) EmergencyStop() { g.stopped.Store(true) }

// Resume lifts an emergency stop.
func (g *Gate) Resume() { g.stopped.Store(false) }

// Stopped reports whether the emergency stop is engaged.
func (g *Gate) Stopped() bool { return g.stopped.Load() }

// Check decides whether one change may be applied to the given plan's
// target. A nil return means proceed.
func (g *Gate) Check(plan *Plan, change Change, caps platforms.Capabilities) error {
	if g.stopped.Load() {
		return fmt.Errorf("%w: emergency stop engaged", shared.ErrStopped)
	}

	if change.Direction == LibraryToPlatform {
		binding := plan.Binding
		if !binding.IsPersonal && !caps.CanModifyShared {
			return fmt.Errorf("%w: playlist is not owned by this account", shared.ErrNotPermitted)
		}
		if binding.Mode == models.SyncImportOnly || !binding.IsPersonal {
			if change.Kind != ChangeLink || change.CreatesPlaylist {
				return fmt.Errorf("%w: binding is import-only", shared.ErrNotPermitted)
			}
		}
		if change.CreatesPlaylist && !caps.CanCreate {
			return fmt.Errorf("%w: %s cannot create playlists", shared.ErrNotPermitted, binding.Platform)
		}
		if g.testMode && !g.testTarget(plan) {
			return fmt.Errorf("%w: test mode permits only test-prefixed playlists", shared.ErrNotPermitted)
		}
	}

	return nil
}

// FilterPlan deselects every change the gate would refuse, recording
// the reason in the change description. The plan is modified in place.
func (g *Gate) FilterPlan(plan *Plan, caps platforms.Capabilities) {
	for i := range plan.Changes {
		change := &plan.Changes[i]
		if !change.Selected {
			continue
		}
		if err := g.Check(plan, *change, caps); err != nil {
			change.Selected = false
			change.Description = change.Description + " (blocked: " + errReason(err) + ")"
		}
	}
}

// testTarget reports whether either side of the binding carries one of
// the configured test prefixes.
func (g *Gate) testTarget(plan *Plan) bool {
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(plan.PlaylistName, prefix) {
			return true
		}
		if plan.RemoteName != "" && strings.HasPrefix(plan.RemoteName, prefix) {
			return true
		}
	}
	return false
}

func errReason(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
