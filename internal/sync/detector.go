package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncta/internal/matching"
	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/platforms"
	"github.com/desertthunder/syncta/internal/repositories"
	"github.com/desertthunder/syncta/internal/shared"
	"github.com/desertthunder/syncta/internal/tasks"
)

// Entry is one classified track in a diff, carrying whichever side's
// identity is known plus the match metadata for unresolved pairs.
type Entry struct {
	TrackID     int64
	ExternalID  string
	ExternalURI string

	Title  string
	Artist string

	Confidence        float64
	NeedsConfirmation bool
	AutoLink          bool // a new PlatformLink should be established
}

// Diff is the three-way comparison of one binding: current library,
// current platform, and the last snapshot.
type Diff struct {
	Binding  *models.Binding
	Library  []int64  // current library member ids, in order
	Platform []string // current platform member ids, in platform order
	Snapshot *models.Snapshot

	RemoteTracks map[string]platforms.Track
	RemoteName   string

	PlatformAdded   []Entry
	PlatformRemoved []Entry
	LibraryAdded    []Entry
	LibraryRemoved  []Entry
	Conflicts       []Entry
	Unchanged       int
}

// Detector computes three-way diffs. Remote reads go through the rate
// limiter; matching runs locally and never suspends.
type Detector struct {
	store      *repositories.Store
	limiter    *tasks.Limiter
	thresholds matching.Thresholds
	logger     *log.Logger
}

// NewDetector creates a Detector over the given store and limiter.
func NewDetector(store *repositories.Store, limiter *tasks.Limiter, thresholds matching.Thresholds, logger *log.Logger) *Detector {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Detector{store: store, limiter: limiter, thresholds: thresholds, logger: logger}
}

// Detect computes the diff for one binding. With no snapshot yet, both
// snapshot sides are empty and everything classifies as an addition.
func (d *Detector) Detect(ctx context.Context, adapter platforms.Adapter, binding *models.Binding) (*Diff, error) {
	diff := &Diff{
		Binding:      binding,
		RemoteTracks: make(map[string]platforms.Track),
	}

	libraryIDs, err := d.store.Playlists.MemberIDs(binding.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("load library members: %w", err)
	}
	diff.Library = libraryIDs

	libraryTracks, err := d.store.Playlists.Tracks(binding.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("load library tracks: %w", err)
	}
	tracksByID := make(map[int64]*models.Track, len(libraryTracks))
	for _, track := range libraryTracks {
		tracksByID[track.ID] = track
	}

	if !binding.Pending() {
		var remote []platforms.Track
		err := d.limiter.Do(ctx, adapter.Name(), func(ctx context.Context) error {
			var fetchErr error
			remote, fetchErr = adapter.PlaylistTracks(ctx, binding.ExternalPlaylistID)
			return fetchErr
		})
		if err != nil {
			return nil, fmt.Errorf("fetch platform members: %w", err)
		}
		for _, track := range remote {
			diff.Platform = append(diff.Platform, track.ID)
			diff.RemoteTracks[track.ID] = track
		}
	}

	snapshot, err := d.store.Snapshots.Get(binding.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	diff.Snapshot = snapshot

	links, err := d.store.Links.ForPlatform(binding.Platform)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	linksByTrack := make(map[int64]*models.PlatformLink, len(links))
	for _, link := range links {
		linksByTrack[link.TrackID] = link
	}

	d.classify(ctx, adapter, diff, tracksByID, links, linksByTrack)
	return diff, nil
}

// classify fills the diff's category lists from the three membership
// sets, resolving unlinked members through matching and remote search.
func (d *Detector) classify(
	ctx context.Context,
	adapter platforms.Adapter,
	diff *Diff,
	tracksByID map[int64]*models.Track,
	links map[string]*models.PlatformLink,
	linksByTrack map[int64]*models.PlatformLink,
) {
	librarySet := make(map[int64]bool, len(diff.Library))
	for _, id := range diff.Library {
		librarySet[id] = true
	}
	platformSet := make(map[string]bool, len(diff.Platform))
	for _, id := range diff.Platform {
		platformSet[id] = true
	}
	snapLibrary := diff.Snapshot.LibrarySet()
	snapPlatform := diff.Snapshot.PlatformSet()

	// Platform side: members new since the snapshot.
	for _, externalID := range diff.Platform {
		if snapPlatform[externalID] {
			continue
		}
		remote := diff.RemoteTracks[externalID]
		entry := Entry{
			ExternalID:  externalID,
			ExternalURI: remote.URI,
			Title:       remote.Title,
			Artist:      remote.Artist,
		}

		if link, ok := links[externalID]; ok {
			entry.TrackID = link.TrackID
			entry.Confidence = link.MatchConfidence
		} else {
			d.resolvePlatformEntry(&entry, remote, tracksByID, linksByTrack)
		}
		diff.PlatformAdded = append(diff.PlatformAdded, entry)
	}

	// Platform side: members gone since the snapshot. The snapshot's
	// link pairs recover the local track even when the link is gone.
	if diff.Snapshot != nil {
		for _, externalID := range diff.Snapshot.PlatformMember {
			if platformSet[externalID] {
				continue
			}
			entry := Entry{ExternalID: externalID}
			if link, ok := links[externalID]; ok {
				entry.TrackID = link.TrackID
			} else if trackID, ok := diff.Snapshot.LinkPairs[externalID]; ok {
				entry.TrackID = trackID
			}
			if track, ok := tracksByID[entry.TrackID]; ok {
				entry.Title = track.Title
				entry.Artist = track.PrimaryArtist
			}
			diff.PlatformRemoved = append(diff.PlatformRemoved, entry)
		}
	}

	// Library side: members new since the snapshot.
	for _, trackID := range diff.Library {
		if snapLibrary[trackID] {
			continue
		}
		track := tracksByID[trackID]
		entry := Entry{TrackID: trackID}
		if track != nil {
			entry.Title = track.Title
			entry.Artist = track.PrimaryArtist
		}

		if link, ok := linksByTrack[trackID]; ok {
			entry.ExternalID = link.ExternalID
			entry.ExternalURI = link.ExternalURI
			entry.Confidence = link.MatchConfidence
		} else if track != nil {
			d.resolveLibraryEntry(ctx, adapter, &entry, track)
		}
		diff.LibraryAdded = append(diff.LibraryAdded, entry)
	}

	// Library side: members gone since the snapshot.
	if diff.Snapshot != nil {
		for _, trackID := range diff.Snapshot.LibraryMembers {
			if librarySet[trackID] {
				continue
			}
			entry := Entry{TrackID: trackID}
			if link, ok := linksByTrack[trackID]; ok {
				entry.ExternalID = link.ExternalID
				entry.ExternalURI = link.ExternalURI
			} else {
				for externalID, pairedID := range diff.Snapshot.LinkPairs {
					if pairedID == trackID {
						entry.ExternalID = externalID
						break
					}
				}
			}
			diff.LibraryRemoved = append(diff.LibraryRemoved, entry)
		}
	}

	// Linked pairs present on both sides: unchanged, unless metadata
	// drifted apart beyond the matching threshold.
	for _, externalID := range diff.Platform {
		link, ok := links[externalID]
		if !ok || !librarySet[link.TrackID] {
			continue
		}
		if !snapPlatform[externalID] {
			continue // already counted as PlatformAdded
		}

		track := tracksByID[link.TrackID]
		remote := diff.RemoteTracks[externalID]
		if track == nil {
			continue
		}

		score := matching.Score(trackSide(track), remoteSide(remote), d.thresholds)
		if score.Confidence < d.thresholds.Candidate {
			diff.Conflicts = append(diff.Conflicts, Entry{
				TrackID:    link.TrackID,
				ExternalID: externalID,
				Title:      track.Title,
				Artist:     track.PrimaryArtist,
				Confidence: score.Confidence,
			})
			continue
		}
		diff.Unchanged++
	}
}

// resolvePlatformEntry matches an unlinked platform member against the
// library. An auto match proposes a link; a candidate is kept aside for
// confirmation; anything below the candidate threshold imports as new.
func (d *Detector) resolvePlatformEntry(entry *Entry, remote platforms.Track, tracksByID map[int64]*models.Track, linksByTrack map[int64]*models.PlatformLink) {
	var candidates []matching.Candidate
	candidateIDs := make(map[string]int64)

	for trackID, track := range tracksByID {
		if _, linked := linksByTrack[trackID]; linked {
			continue // external identity never splits
		}
		result := matching.Score(trackSide(track), remoteSide(remote), d.thresholds)
		if result.Confidence < d.thresholds.Candidate {
			continue
		}
		key := fmt.Sprintf("%d", trackID)
		candidates = append(candidates, matching.Candidate{
			ExternalID: key,
			Side:       trackSide(track),
			Result:     result,
		})
		candidateIDs[key] = trackID
	}

	remoteAsLibrary := remoteSide(remote)
	best := matching.SelectBest(remoteAsLibrary, candidates)
	if best == nil {
		return
	}

	entry.TrackID = candidateIDs[best.ExternalID]
	entry.Confidence = best.Result.Confidence
	entry.AutoLink = best.Result.IsMatch
	entry.NeedsConfirmation = best.Result.NeedsConfirmation
}

// resolveLibraryEntry proposes a remote counterpart for an unlinked
// library member via the adapter's search.
func (d *Detector) resolveLibraryEntry(ctx context.Context, adapter platforms.Adapter, entry *Entry, track *models.Track) {
	query := track.Title + " " + track.PrimaryArtist

	var found []platforms.Track
	err := d.limiter.Do(ctx, adapter.Name(), func(ctx context.Context) error {
		var searchErr error
		found, searchErr = adapter.Search(ctx, query, 5)
		return searchErr
	})
	if err != nil {
		d.logger.Warn("search failed", "track", track.Title, "err", err)
		return
	}

	var candidates []matching.Candidate
	byID := make(map[string]platforms.Track)
	for _, remote := range found {
		result := matching.Score(trackSide(track), remoteSide(remote), d.thresholds)
		if result.Confidence < d.thresholds.Candidate {
			continue
		}
		candidates = append(candidates, matching.Candidate{
			ExternalID: remote.ID,
			Side:       remoteSide(remote),
			Result:     result,
		})
		byID[remote.ID] = remote
	}

	best := matching.SelectBest(trackSide(track), candidates)
	if best == nil {
		return
	}

	entry.ExternalID = best.ExternalID
	entry.ExternalURI = byID[best.ExternalID].URI
	entry.Confidence = best.Result.Confidence
	entry.AutoLink = best.Result.IsMatch
	entry.NeedsConfirmation = best.Result.NeedsConfirmation
}

func trackSide(t *models.Track) matching.Side {
	return matching.Side{
		Title:      t.Title,
		Artist:     t.PrimaryArtist,
		Album:      t.Album,
		DurationMS: t.DurationMS,
	}
}

func remoteSide(t platforms.Track) matching.Side {
	return matching.Side{
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		DurationMS: t.DurationMS,
		ISRC:       t.ISRC,
	}
}
