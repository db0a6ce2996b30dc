package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/platforms"
	"github.com/desertthunder/syncta/internal/repositories"
	"github.com/desertthunder/syncta/internal/shared"
	"github.com/desertthunder/syncta/internal/tasks"
)

// Executor applies a plan's selected changes. Remote mutations run
// first, batched through the rate limiter; local mutations then commit
// in a single transaction; the snapshot is written only when every
// selected change succeeded.
type Executor struct {
	store   *repositories.Store
	limiter *tasks.Limiter
	gate    *Gate
	logger  *log.Logger
}

// NewExecutor creates an Executor over the given store, limiter, and gate.
func NewExecutor(store *repositories.Store, limiter *tasks.Limiter, gate *Gate, logger *log.Logger) *Executor {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Executor{store: store, limiter: limiter, gate: gate, logger: logger}
}

// outcome accumulates per-change terminal states before they are
// flushed to the summary and the progress channel.
type outcome struct {
	states  map[string]State
	reasons map[string]string
}

func newOutcome() *outcome {
	return &outcome{states: make(map[string]State), reasons: make(map[string]string)}
}

func (o *outcome) set(id string, state State, reason string) {
	o.states[id] = state
	o.reasons[id] = reason
}

// Apply executes the plan against the adapter. Changes the user left
// unselected are skipped. A fatal error (auth failure, emergency stop,
// cancellation) aborts the whole job: no local transaction commits and
// no snapshot is written. Per-change failures are recorded and the job
// continues; the snapshot is withheld so the next detection sees the
// unapplied changes again.
func (e *Executor) Apply(ctx context.Context, adapter platforms.Adapter, plan *Plan, progress chan<- ProgressEvent) (*Summary, error) {
	summary := &Summary{}
	caps := adapter.Capabilities()
	binding := plan.Binding

	unlock := e.store.LockPlaylist(binding.PlaylistID)
	defer unlock()

	results := newOutcome()
	if e.gate.Stopped() {
		for _, change := range plan.Changes {
			results.set(change.ID, StateSkipped, "emergency stop engaged")
		}
		return e.finish(summary, plan, results, progress), fmt.Errorf("%w: emergency stop engaged", shared.ErrStopped)
	}
	for _, change := range plan.Changes {
		if !change.Selected {
			results.set(change.ID, StateSkipped, "not selected")
			continue
		}
		if err := e.gate.Check(plan, change, caps); err != nil {
			results.set(change.ID, StateSkipped, errReason(err))
		}
	}

	externalID := binding.ExternalPlaylistID
	createdPlaylist := false

	// Remote phase. The platform offers no transactions, so remote
	// mutations land first; a partial remote failure leaves the
	// snapshot unwritten and the next diff converges.
	for _, change := range plan.Changes {
		if _, done := results.states[change.ID]; done {
			continue
		}
		if !change.CreatesPlaylist {
			continue
		}

		sendProgress(progress, ProgressEvent{ChangeID: change.ID, State: StateRunning, Message: change.Description})
		var created string
		err := e.limiter.Do(ctx, adapter.Name(), func(ctx context.Context) error {
			var createErr error
			created, createErr = adapter.CreatePlaylist(ctx, plan.PlaylistName, "", true)
			return createErr
		})
		if err != nil {
			results.set(change.ID, StateFailed, err.Error())
			if shared.Fatal(err) {
				return e.finish(summary, plan, results, progress), err
			}
			continue
		}
		externalID = created
		createdPlaylist = true
		results.set(change.ID, StateSucceeded, "")
	}

	if externalID != "" {
		if err := e.applyRemote(ctx, adapter, plan, caps, externalID, results, progress); err != nil {
			return e.finish(summary, plan, results, progress), err
		}
	} else {
		// Without a remote playlist every remaining remote mutation is moot.
		for _, change := range plan.Changes {
			if _, done := results.states[change.ID]; done {
				continue
			}
			if change.Direction == LibraryToPlatform && change.Kind != ChangeLink {
				results.set(change.ID, StateSkipped, "no remote playlist")
			}
		}
	}

	// A stop engaged while the remote phase ran leaves the local store
	// untouched: nothing commits and no snapshot is written.
	if e.gate.Stopped() {
		for _, change := range plan.Changes {
			if _, done := results.states[change.ID]; !done {
				results.set(change.ID, StateSkipped, "emergency stop engaged")
			}
		}
		return e.finish(summary, plan, results, progress), fmt.Errorf("%w: emergency stop engaged", shared.ErrStopped)
	}

	// Local phase: one transaction, all or nothing.
	if err := e.applyLocal(plan, externalID, createdPlaylist, results); err != nil {
		for _, change := range plan.Changes {
			if _, done := results.states[change.ID]; done {
				continue
			}
			results.set(change.ID, StateFailed, "local transaction rolled back")
		}
		return e.finish(summary, plan, results, progress), err
	}

	e.finish(summary, plan, results, nil)
	for _, detail := range summary.Details {
		sendProgress(progress, ProgressEvent{ChangeID: detail.Change.ID, State: detail.State, Message: detail.Reason})
	}

	if summary.Failed == 0 {
		if e.gate.Stopped() {
			sendProgress(progress, ProgressEvent{State: StateFailed, Message: "snapshot withheld: emergency stop engaged", Terminal: true})
			return summary, fmt.Errorf("%w: emergency stop engaged", shared.ErrStopped)
		}
		if err := e.writeSnapshot(ctx, adapter, binding, externalID); err != nil {
			e.logger.Warn("snapshot not written", "binding", binding.ID, "err", err)
			sendProgress(progress, ProgressEvent{State: StateFailed, Message: fmt.Sprintf("changes applied but snapshot not written: %v", err), Terminal: true})
			return summary, nil
		}
	}

	sendProgress(progress, ProgressEvent{State: StateSucceeded, Message: "sync complete", Terminal: true})
	return summary, nil
}

// applyRemote pushes the selected library-to-platform membership
// changes in capability-sized batches.
func (e *Executor) applyRemote(ctx context.Context, adapter platforms.Adapter, plan *Plan, caps platforms.Capabilities, externalID string, results *outcome, progress chan<- ProgressEvent) error {
	adds := e.remoteBatch(plan, results, ChangeAdd)
	if err := e.runBatches(ctx, adapter, caps, externalID, adds, results, progress, adapter.AddTracks); err != nil {
		return err
	}

	removes := e.remoteBatch(plan, results, ChangeRemove)
	return e.runBatches(ctx, adapter, caps, externalID, removes, results, progress, adapter.RemoveTracks)
}

// remoteBatch collects the still-pending library-to-platform changes of
// one kind, keyed by remote track id.
func (e *Executor) remoteBatch(plan *Plan, results *outcome, kind Kind) map[string]Change {
	batch := make(map[string]Change)
	for _, change := range plan.Changes {
		if _, done := results.states[change.ID]; done {
			continue
		}
		if change.Direction != LibraryToPlatform || change.Kind != kind || change.ExternalID == "" {
			continue
		}
		batch[change.ExternalID] = change
	}
	return batch
}

type batchFn func(ctx context.Context, externalID string, trackIDs []string) (platforms.BatchResult, error)

// runBatches executes one remote mutation over the batch map, chunked
// to the adapter's batch size, recording per-item outcomes.
func (e *Executor) runBatches(ctx context.Context, adapter platforms.Adapter, caps platforms.Capabilities, externalID string, batch map[string]Change, results *outcome, progress chan<- ProgressEvent, fn batchFn) error {
	if len(batch) == 0 {
		return nil
	}

	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	for _, change := range batch {
		sendProgress(progress, ProgressEvent{ChangeID: change.ID, State: StateRunning, Message: change.Description})
	}

	size := caps.MaxBatchSize
	if size <= 0 {
		size = len(ids)
	}

	for start := 0; start < len(ids); start += size {
		if e.gate.Stopped() {
			for _, id := range ids[start:] {
				results.set(batch[id].ID, StateSkipped, "emergency stop engaged")
			}
			return fmt.Errorf("%w: emergency stop engaged", shared.ErrStopped)
		}

		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		var result platforms.BatchResult
		err := e.limiter.Do(ctx, adapter.Name(), func(ctx context.Context) error {
			var callErr error
			result, callErr = fn(ctx, externalID, chunk)
			return callErr
		})
		if err != nil {
			for _, id := range chunk {
				results.set(batch[id].ID, StateFailed, err.Error())
			}
			if shared.Fatal(err) {
				return err
			}
			continue
		}

		for _, id := range result.Succeeded {
			if change, ok := batch[id]; ok {
				results.set(change.ID, StateSucceeded, "")
			}
		}
		for id, itemErr := range result.Failed {
			if change, ok := batch[id]; ok {
				results.set(change.ID, StateFailed, itemErr.Error())
			}
		}
	}
	return nil
}

// applyLocal commits every pending local mutation in one transaction:
// new links, imported tracks, membership edits, conflict resolutions,
// and the binding's external id when the remote playlist was just
// created.
func (e *Executor) applyLocal(plan *Plan, externalID string, createdPlaylist bool, results *outcome) error {
	binding := plan.Binding

	return e.store.InTx(func(tx *repositories.Store) error {
		if createdPlaylist {
			if err := tx.Bindings.SetExternalID(binding.ID, externalID); err != nil {
				return fmt.Errorf("record created playlist: %w", err)
			}
		}

		for _, change := range plan.Changes {
			if _, done := results.states[change.ID]; done {
				continue
			}

			switch {
			case change.Kind == ChangeLink:
				if err := e.applyLink(tx, binding, change); err != nil {
					return err
				}
				results.set(change.ID, StateSucceeded, "")

			case change.Direction == PlatformToLibrary && change.Kind == ChangeAdd:
				if err := e.applyLocalAdd(tx, binding, change); err != nil {
					return err
				}
				results.set(change.ID, StateSucceeded, "")

			case change.Direction == PlatformToLibrary && change.Kind == ChangeRemove:
				if err := tx.Playlists.RemoveTrack(binding.PlaylistID, change.TrackID); err != nil {
					return fmt.Errorf("remove member: %w", err)
				}
				results.set(change.ID, StateSucceeded, "")

			case change.Kind == ChangeConflict:
				if err := e.applyConflict(tx, binding, change); err != nil {
					return err
				}
				results.set(change.ID, StateSucceeded, "")
			}
		}
		return nil
	})
}

// applyLink records a new track/external pairing. Re-applying an
// existing identical link is a no-op.
func (e *Executor) applyLink(tx *repositories.Store, binding *models.Binding, change Change) error {
	if change.TrackID == 0 || change.ExternalID == "" {
		return nil
	}

	link := &models.PlatformLink{
		TrackID:         change.TrackID,
		Platform:        binding.Platform,
		ExternalID:      change.ExternalID,
		ExternalURI:     change.ExternalURI,
		MatchConfidence: change.Confidence,
		LastSyncedAt:    time.Now().UTC(),
	}
	err := tx.Links.Create(link)
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrConflict) {
		existing, getErr := tx.Links.GetByExternal(binding.Platform, change.ExternalID)
		if getErr == nil && existing.TrackID == change.TrackID {
			return nil
		}
	}
	return fmt.Errorf("create link: %w", err)
}

// applyLocalAdd adds a platform member to the library playlist,
// importing it as a new track (with its link) when nothing local
// matched.
func (e *Executor) applyLocalAdd(tx *repositories.Store, binding *models.Binding, change Change) error {
	trackID := change.TrackID

	if trackID == 0 {
		track := &models.Track{
			Title:         change.Title,
			PrimaryArtist: change.Artist,
		}
		if err := tx.Tracks.Create(track); err != nil {
			return fmt.Errorf("import track: %w", err)
		}
		trackID = track.ID

		if change.ExternalID != "" {
			link := &models.PlatformLink{
				TrackID:         trackID,
				Platform:        binding.Platform,
				ExternalID:      change.ExternalID,
				ExternalURI:     change.ExternalURI,
				MatchConfidence: 1.0,
				LastSyncedAt:    time.Now().UTC(),
			}
			if err := tx.Links.Create(link); err != nil {
				return fmt.Errorf("link imported track: %w", err)
			}
		}
	}

	if err := tx.Playlists.AddTrack(binding.PlaylistID, trackID, -1); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// applyConflict applies the chosen resolution for a diverged pair.
// Keeping the remote side flags the link for a metadata refresh; keeping
// the local side clears the flag. Unresolved conflicts never reach here
// selected.
func (e *Executor) applyConflict(tx *repositories.Store, binding *models.Binding, change Change) error {
	link, err := tx.Links.GetByExternal(binding.Platform, change.ExternalID)
	if err != nil {
		return fmt.Errorf("load conflicted link: %w", err)
	}

	switch change.Resolution {
	case ResolutionKeepRemote:
		link.NeedsRefresh = true
	case ResolutionKeepLocal:
		link.NeedsRefresh = false
	default:
		return nil
	}
	if err := tx.Links.Update(link); err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	return nil
}

// writeSnapshot refetches the remote membership once and records the
// post-sync state of both sides.
func (e *Executor) writeSnapshot(ctx context.Context, adapter platforms.Adapter, binding *models.Binding, externalID string) error {
	var platformMembers []string
	if externalID != "" {
		var remote []platforms.Track
		err := e.limiter.Do(ctx, adapter.Name(), func(ctx context.Context) error {
			var fetchErr error
			remote, fetchErr = adapter.PlaylistTracks(ctx, externalID)
			return fetchErr
		})
		if err != nil {
			return fmt.Errorf("refetch platform members: %w", err)
		}
		for _, track := range remote {
			platformMembers = append(platformMembers, track.ID)
		}
	}

	libraryMembers, err := e.store.Playlists.MemberIDs(binding.PlaylistID)
	if err != nil {
		return fmt.Errorf("load library members: %w", err)
	}

	links, err := e.store.Links.ForPlatform(binding.Platform)
	if err != nil {
		return fmt.Errorf("load links: %w", err)
	}
	pairs := make(map[string]int64)
	for _, external := range platformMembers {
		if link, ok := links[external]; ok {
			pairs[external] = link.TrackID
		}
	}

	now := time.Now().UTC()
	snapshot := &models.Snapshot{
		BindingID:      binding.ID,
		TakenAt:        now,
		LibraryMembers: libraryMembers,
		PlatformMember: platformMembers,
		LinkPairs:      pairs,
	}
	if err := e.store.Snapshots.Replace(snapshot); err != nil {
		return err
	}
	return e.store.Bindings.MarkSynced(binding.ID, now)
}

// finish flushes every recorded outcome into the summary, defaulting
// untouched changes to skipped, and emits the terminal event when a
// progress channel is given.
func (e *Executor) finish(summary *Summary, plan *Plan, results *outcome, progress chan<- ProgressEvent) *Summary {
	if len(summary.Details) > 0 {
		return summary
	}
	for _, change := range plan.Changes {
		state, ok := results.states[change.ID]
		if !ok {
			state = StateSkipped
		}
		summary.record(change, state, results.reasons[change.ID])
	}
	if progress != nil {
		for _, detail := range summary.Details {
			sendProgress(progress, ProgressEvent{ChangeID: detail.Change.ID, State: detail.State, Message: detail.Reason})
		}
		sendProgress(progress, ProgressEvent{State: StateFailed, Message: "sync aborted", Terminal: true})
	}
	return summary
}
