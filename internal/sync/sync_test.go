package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/desertthunder/syncta/internal/matching"
	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/platforms"
	"github.com/desertthunder/syncta/internal/repositories"
	"github.com/desertthunder/syncta/internal/shared"
	"github.com/desertthunder/syncta/internal/tasks"
)

// mockAdapter is an in-memory platforms.Adapter with failure injection.
type mockAdapter struct {
	playlists map[string]platforms.Playlist
	members   map[string][]string          // playlist id -> external track ids
	catalog   map[string]platforms.Track   // external id -> track
	failAdds  map[string]error             // per-item add failures
	caps      platforms.Capabilities

	createErr    error
	addErr       error
	removeErr    error
	nextCreateID string

	onAdd          func() // runs at the start of every AddTracks call
	tracksErr      error
	tracksErrAfter int // PlaylistTracks calls beyond this many fail with tracksErr

	addCalls    int
	removeCalls int
	trackCalls  int
	searchCalls int
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		playlists: make(map[string]platforms.Playlist),
		members:   make(map[string][]string),
		catalog:   make(map[string]platforms.Track),
		failAdds:  make(map[string]error),
		caps: platforms.Capabilities{
			CanCreate:           true,
			CanDelete:           true,
			RateBudgetPerMinute: 0, // unthrottled in tests
			MaxBatchSize:        100,
		},
		nextCreateID: "created-1",
	}
}

func (m *mockAdapter) addRemote(playlistID string, track platforms.Track) {
	m.catalog[track.ID] = track
	m.members[playlistID] = append(m.members[playlistID], track.ID)
}

func (m *mockAdapter) Name() string                            { return "spotify" }
func (m *mockAdapter) Authenticated() bool                     { return true }
func (m *mockAdapter) Authenticate(ctx context.Context) error  { return nil }
func (m *mockAdapter) Capabilities() platforms.Capabilities    { return m.caps }

func (m *mockAdapter) ListPlaylists(ctx context.Context) ([]platforms.Playlist, error) {
	var lists []platforms.Playlist
	for _, playlist := range m.playlists {
		lists = append(lists, playlist)
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].ID < lists[j].ID })
	return lists, nil
}

func (m *mockAdapter) PlaylistTracks(ctx context.Context, externalID string) ([]platforms.Track, error) {
	m.trackCalls++
	if m.tracksErr != nil && m.trackCalls > m.tracksErrAfter {
		return nil, m.tracksErr
	}
	var tracks []platforms.Track
	for _, id := range m.members[externalID] {
		tracks = append(tracks, m.catalog[id])
	}
	return tracks, nil
}

func (m *mockAdapter) CreatePlaylist(ctx context.Context, name, description string, private bool) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	id := m.nextCreateID
	m.playlists[id] = platforms.Playlist{ID: id, Name: name, IsOwned: true}
	return id, nil
}

func (m *mockAdapter) AddTracks(ctx context.Context, externalID string, trackIDs []string) (platforms.BatchResult, error) {
	m.addCalls++
	if m.onAdd != nil {
		m.onAdd()
	}
	if m.addErr != nil {
		return platforms.BatchResult{}, m.addErr
	}

	var result platforms.BatchResult
	for _, id := range trackIDs {
		if err, ok := m.failAdds[id]; ok {
			if result.Failed == nil {
				result.Failed = make(map[string]error)
			}
			result.Failed[id] = err
			continue
		}
		m.members[externalID] = append(m.members[externalID], id)
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (m *mockAdapter) RemoveTracks(ctx context.Context, externalID string, trackIDs []string) (platforms.BatchResult, error) {
	m.removeCalls++
	if m.removeErr != nil {
		return platforms.BatchResult{}, m.removeErr
	}

	var result platforms.BatchResult
	for _, id := range trackIDs {
		kept := m.members[externalID][:0]
		for _, member := range m.members[externalID] {
			if member != id {
				kept = append(kept, member)
			}
		}
		m.members[externalID] = kept
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

func (m *mockAdapter) Search(ctx context.Context, query string, limit int) ([]platforms.Track, error) {
	m.searchCalls++
	var tracks []platforms.Track
	for _, track := range m.catalog {
		tracks = append(tracks, track)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	if limit > 0 && limit < len(tracks) {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

// pipeline bundles the sync components over a fresh in-memory store.
type pipeline struct {
	store    *repositories.Store
	detector *Detector
	planner  *Planner
	gate     *Gate
	executor *Executor
}

func newPipeline(t *testing.T, safety shared.SafetyConfig) (*pipeline, *sql.DB) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	cfg := shared.DefaultConfig()
	cfg.Sync.RetryBaseDelayMS = 1

	store := repositories.NewStore(db)
	limiter := tasks.NewLimiter(cfg.Sync)
	gate := NewGate(safety)

	return &pipeline{
		store:    store,
		detector: NewDetector(store, limiter, matching.DefaultThresholds(), nil),
		planner:  NewPlanner(),
		gate:     gate,
		executor: NewExecutor(store, limiter, gate, nil),
	}, db
}

func (p *pipeline) plan(t *testing.T, adapter platforms.Adapter, binding *models.Binding, playlistName, remoteName string) *Plan {
	t.Helper()
	diff, err := p.detector.Detect(context.Background(), adapter, binding)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	return p.planner.Plan(diff, playlistName, remoteName, adapter.Capabilities())
}

func (p *pipeline) newPlaylist(t *testing.T, name string) *models.Playlist {
	t.Helper()
	playlist := &models.Playlist{Name: name, Kind: models.KindPlaylist}
	if err := p.store.Playlists.Create(playlist); err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	return playlist
}

func (p *pipeline) newTrack(t *testing.T, title, artist string, durationMS int) *models.Track {
	t.Helper()
	track := &models.Track{Title: title, PrimaryArtist: artist, DurationMS: durationMS}
	if err := p.store.Tracks.Create(track); err != nil {
		t.Fatalf("failed to create track: %v", err)
	}
	return track
}

func (p *pipeline) newBinding(t *testing.T, playlistID int64, externalID string, mode models.SyncMode, personal bool) *models.Binding {
	t.Helper()
	binding := &models.Binding{
		PlaylistID:         playlistID,
		Platform:           models.PlatformSpotify,
		ExternalPlaylistID: externalID,
		Mode:               mode,
		IsPersonal:         personal,
	}
	if err := p.store.Bindings.Create(binding); err != nil {
		t.Fatalf("failed to create binding: %v", err)
	}
	return binding
}

func TestFirstSyncImportsRemotePlaylist(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Weekend Mix", IsOwned: true}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})
	adapter.addRemote("remote-1", platforms.Track{ID: "r2", Title: "Age of Consent", Artist: "New Order", DurationMS: 312000})

	playlist := p.newPlaylist(t, "Weekend Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncImportOnly, true)

	plan := p.plan(t, adapter, binding, playlist.Name, "Weekend Mix")
	if len(plan.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(plan.Changes), plan.Changes)
	}
	for _, change := range plan.Changes {
		if change.Direction != PlatformToLibrary || change.Kind != ChangeAdd {
			t.Errorf("unexpected change %+v", change)
		}
		if !change.Selected {
			t.Errorf("import adds should be selected by default: %+v", change)
		}
	}

	summary, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if summary.Applied != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	members, _ := p.store.Playlists.MemberIDs(playlist.ID)
	if len(members) != 2 {
		t.Errorf("expected 2 members, got %d", len(members))
	}

	links, _ := p.store.Links.ForPlatform(models.PlatformSpotify)
	if len(links) != 2 {
		t.Errorf("expected 2 links, got %d", len(links))
	}

	snapshot, err := p.store.Snapshots.Get(binding.ID)
	if err != nil {
		t.Fatalf("expected snapshot after success: %v", err)
	}
	if len(snapshot.LibraryMembers) != 2 || len(snapshot.PlatformMember) != 2 {
		t.Errorf("unexpected snapshot: %+v", snapshot)
	}
}

func TestSecondSyncIsEmpty(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Weekend Mix", IsOwned: true}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})

	playlist := p.newPlaylist(t, "Weekend Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncImportOnly, true)

	plan := p.plan(t, adapter, binding, playlist.Name, "Weekend Mix")
	if _, err := p.executor.Apply(context.Background(), adapter, plan, nil); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	again := p.plan(t, adapter, binding, playlist.Name, "Weekend Mix")
	if !again.Empty() {
		t.Errorf("expected empty re-plan, got %d changes: %+v", len(again.Changes), again.Changes)
	}
}

func TestChangeIDsAreStable(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncImportOnly, true)

	first := p.plan(t, adapter, binding, playlist.Name, "Mix")
	second := p.plan(t, adapter, binding, playlist.Name, "Mix")

	if len(first.Changes) != len(second.Changes) {
		t.Fatalf("plans differ in size: %d vs %d", len(first.Changes), len(second.Changes))
	}
	for i := range first.Changes {
		if first.Changes[i].ID != second.Changes[i].ID {
			t.Errorf("change %d id differs: %s vs %s", i, first.Changes[i].ID, second.Changes[i].ID)
		}
	}
}

func TestBidirectionalSyncConverges(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	remoteOnly := platforms.Track{ID: "r2", Title: "Temptation", Artist: "New Order", DurationMS: 525000}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})
	adapter.addRemote("remote-1", remoteOnly)

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncFullBidirectional, true)

	// common member, linked on both sides
	common := p.newTrack(t, "Blue Monday", "New Order", 445000)
	p.store.Playlists.AddTrack(playlist.ID, common.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: common.ID, Platform: models.PlatformSpotify, ExternalID: "r1", MatchConfidence: 1})

	// library-only member, linked to a catalog track not yet on the remote playlist
	localOnly := p.newTrack(t, "Ceremony", "New Order", 263000)
	p.store.Playlists.AddTrack(playlist.ID, localOnly.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: localOnly.ID, Platform: models.PlatformSpotify, ExternalID: "r3", MatchConfidence: 1})
	adapter.catalog["r3"] = platforms.Track{ID: "r3", Title: "Ceremony", Artist: "New Order", DurationMS: 263000}

	// snapshot knows only the common member
	p.store.Snapshots.Replace(&models.Snapshot{
		BindingID:      binding.ID,
		LibraryMembers: []int64{common.ID},
		PlatformMember: []string{"r1"},
		LinkPairs:      map[string]int64{"r1": common.ID},
	})

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")

	var p2lAdds, l2pAdds int
	for _, change := range plan.Changes {
		switch {
		case change.Direction == PlatformToLibrary && change.Kind == ChangeAdd:
			p2lAdds++
		case change.Direction == LibraryToPlatform && change.Kind == ChangeAdd:
			l2pAdds++
		}
	}
	if p2lAdds != 1 || l2pAdds != 1 {
		t.Fatalf("expected one add per direction, got p2l=%d l2p=%d: %+v", p2lAdds, l2pAdds, plan.Changes)
	}

	summary, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", summary)
	}

	members, _ := p.store.Playlists.MemberIDs(playlist.ID)
	if len(members) != 3 {
		t.Errorf("expected 3 library members, got %d", len(members))
	}
	if len(adapter.members["remote-1"]) != 3 {
		t.Errorf("expected 3 remote members, got %d", len(adapter.members["remote-1"]))
	}
}

func TestSharedPlaylistForcesImportOnly(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Collab", IsOwned: false}

	playlist := p.newPlaylist(t, "Collab")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncFullBidirectional, false)

	// local addition that full_bidirectional would normally export
	track := p.newTrack(t, "Ceremony", "New Order", 263000)
	p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: track.ID, Platform: models.PlatformSpotify, ExternalID: "r3", MatchConfidence: 1})
	adapter.catalog["r3"] = platforms.Track{ID: "r3", Title: "Ceremony", Artist: "New Order", DurationMS: 263000}

	plan := p.plan(t, adapter, binding, playlist.Name, "Collab")
	for _, change := range plan.Changes {
		if change.Direction == LibraryToPlatform {
			t.Errorf("shared playlist produced an outbound change: %+v", change)
		}
	}
	if adapter.addCalls != 0 {
		t.Errorf("remote mutation attempted on shared playlist")
	}
}

func TestAddOnlyModeDropsRemovals(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncAddOnly, true)

	common := p.newTrack(t, "Blue Monday", "New Order", 445000)
	p.store.Playlists.AddTrack(playlist.ID, common.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: common.ID, Platform: models.PlatformSpotify, ExternalID: "r1", MatchConfidence: 1})

	// the snapshot remembers a second member the library has since dropped
	gone := p.newTrack(t, "Temptation", "New Order", 525000)
	p.store.Links.Create(&models.PlatformLink{TrackID: gone.ID, Platform: models.PlatformSpotify, ExternalID: "r2", MatchConfidence: 1})
	adapter.catalog["r2"] = platforms.Track{ID: "r2", Title: "Temptation", Artist: "New Order", DurationMS: 525000}
	adapter.members["remote-1"] = append(adapter.members["remote-1"], "r2")
	p.store.Snapshots.Replace(&models.Snapshot{
		BindingID:      binding.ID,
		LibraryMembers: []int64{common.ID, gone.ID},
		PlatformMember: []string{"r1", "r2"},
		LinkPairs:      map[string]int64{"r1": common.ID, "r2": gone.ID},
	})

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")
	for _, change := range plan.Changes {
		if change.Kind == ChangeRemove {
			t.Errorf("add_only plan contains a removal: %+v", change)
		}
	}
}

func TestMirrorFromPlatformRevertsLocalEdits(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncMirrorFromPlatform, true)

	common := p.newTrack(t, "Blue Monday", "New Order", 445000)
	p.store.Playlists.AddTrack(playlist.ID, common.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: common.ID, Platform: models.PlatformSpotify, ExternalID: "r1", MatchConfidence: 1})

	// local addition the mirror must revert
	extra := p.newTrack(t, "Ceremony", "New Order", 263000)
	p.store.Playlists.AddTrack(playlist.ID, extra.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: extra.ID, Platform: models.PlatformSpotify, ExternalID: "r3", MatchConfidence: 1})
	adapter.catalog["r3"] = platforms.Track{ID: "r3", Title: "Ceremony", Artist: "New Order", DurationMS: 263000}

	p.store.Snapshots.Replace(&models.Snapshot{
		BindingID:      binding.ID,
		LibraryMembers: []int64{common.ID},
		PlatformMember: []string{"r1"},
		LinkPairs:      map[string]int64{"r1": common.ID},
	})

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")

	var revert *Change
	for i := range plan.Changes {
		change := &plan.Changes[i]
		if change.Kind == ChangeRemove && change.Direction == PlatformToLibrary && change.TrackID == extra.ID {
			revert = change
		}
		if change.Direction == LibraryToPlatform {
			t.Errorf("mirror_from_platform produced an outbound change: %+v", change)
		}
	}
	if revert == nil {
		t.Fatalf("expected a revert removal for the local addition: %+v", plan.Changes)
	}

	summary, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", summary)
	}

	members, _ := p.store.Playlists.MemberIDs(playlist.ID)
	if len(members) != 1 || members[0] != common.ID {
		t.Errorf("local edit not reverted: %v", members)
	}
}

func TestFirstExportCreatesRemotePlaylist(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.catalog["r1"] = platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000}

	playlist := p.newPlaylist(t, "Fresh Export")
	binding := p.newBinding(t, playlist.ID, "", models.SyncMirrorToPlatform, true)

	track := p.newTrack(t, "Blue Monday", "New Order", 445000)
	p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)

	plan := p.plan(t, adapter, binding, playlist.Name, "")

	var creates int
	for _, change := range plan.Changes {
		if change.CreatesPlaylist {
			creates++
			if !change.Selected {
				t.Error("playlist creation should be selected when the adapter can create")
			}
		}
	}
	if creates != 1 {
		t.Fatalf("expected one creation change, got %d: %+v", creates, plan.Changes)
	}

	summary, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", summary)
	}

	updated, _ := p.store.Bindings.Get(binding.ID)
	if updated.Pending() || updated.ExternalPlaylistID != "created-1" {
		t.Errorf("binding not updated with created playlist: %+v", updated)
	}
	if len(adapter.members["created-1"]) != 1 {
		t.Errorf("track not pushed to created playlist: %v", adapter.members["created-1"])
	}

	if _, err := p.store.Snapshots.Get(binding.ID); err != nil {
		t.Errorf("expected snapshot after first export: %v", err)
	}
}

func TestPartialRemoteFailureWithholdsSnapshot(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.failAdds["r3"] = fmt.Errorf("%w: item rejected", shared.ErrNotPermitted)
	adapter.catalog["r3"] = platforms.Track{ID: "r3", Title: "Ceremony", Artist: "New Order", DurationMS: 263000}

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncFullBidirectional, true)

	track := p.newTrack(t, "Ceremony", "New Order", 263000)
	p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: track.ID, Platform: models.PlatformSpotify, ExternalID: "r3", MatchConfidence: 1})

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")
	summary, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if err != nil {
		t.Fatalf("apply returned fatal error: %v", err)
	}
	if summary.Failed == 0 {
		t.Fatalf("expected a failed change: %+v", summary)
	}

	if _, err := p.store.Snapshots.Get(binding.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("snapshot must be withheld after failures, got %v", err)
	}
}

func TestAuthFailureAbortsJob(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.addErr = fmt.Errorf("%w: token expired", shared.ErrAuthFailed)
	adapter.catalog["r3"] = platforms.Track{ID: "r3", Title: "Ceremony", Artist: "New Order", DurationMS: 263000}

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncFullBidirectional, true)

	track := p.newTrack(t, "Ceremony", "New Order", 263000)
	p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: track.ID, Platform: models.PlatformSpotify, ExternalID: "r3", MatchConfidence: 1})

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")
	_, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if !errors.Is(err, shared.ErrAuthFailed) {
		t.Fatalf("expected auth failure to abort, got %v", err)
	}

	if _, err := p.store.Snapshots.Get(binding.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("no snapshot may be written on abort, got %v", err)
	}
}

func TestUnselectedChangesAreSkipped(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncImportOnly, true)

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")
	for _, change := range plan.Changes {
		plan.Select(change.ID, false)
	}

	summary, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if summary.Applied != 0 || summary.Skipped != len(plan.Changes) {
		t.Errorf("unexpected summary: %+v", summary)
	}

	members, _ := p.store.Playlists.MemberIDs(playlist.ID)
	if len(members) != 0 {
		t.Errorf("skipped changes must not apply: %v", members)
	}
}

func TestAmbiguousImportNeedsConfirmation(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	// same title and artist as the library track but a different album and
	// no duration: lands in the confirmation band
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", Album: "Substance"})

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncImportOnly, true)

	track := p.newTrack(t, "Blue Monday", "New Order", 445000)
	p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")

	var confirmations int
	for _, change := range plan.Changes {
		if change.NeedsConfirmation {
			confirmations++
			if change.Selected {
				t.Errorf("ambiguous change selected by default: %+v", change)
			}
		}
	}
	if confirmations == 0 {
		t.Fatalf("expected a confirmation-band change: %+v", plan.Changes)
	}
}

func TestEmergencyStopMidJobHaltsRemainingBatches(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.caps.MaxBatchSize = 1
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.catalog["r3"] = platforms.Track{ID: "r3", Title: "Ceremony", Artist: "New Order", DurationMS: 263000}
	adapter.catalog["r4"] = platforms.Track{ID: "r4", Title: "Temptation", Artist: "New Order", DurationMS: 525000}

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncFullBidirectional, true)

	for _, id := range []string{"r3", "r4"} {
		track := p.newTrack(t, adapter.catalog[id].Title, "New Order", adapter.catalog[id].DurationMS)
		p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)
		p.store.Links.Create(&models.PlatformLink{TrackID: track.ID, Platform: models.PlatformSpotify, ExternalID: id, MatchConfidence: 1})
	}

	// the stop lands while the first batch is in flight
	adapter.onAdd = func() { p.gate.EmergencyStop() }

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")
	_, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if !errors.Is(err, shared.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}

	if adapter.addCalls != 1 {
		t.Errorf("no further batch may be issued after the stop, got %d calls", adapter.addCalls)
	}
	members, _ := p.store.Playlists.MemberIDs(playlist.ID)
	if len(members) != 2 {
		t.Errorf("local store must equal its pre-job state, got %d members", len(members))
	}
	if _, err := p.store.Snapshots.Get(binding.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("no snapshot may be written after a mid-job stop, got %v", err)
	}
}

func TestExhaustedRateLimitAbortsJob(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.addErr = fmt.Errorf("%w: 429", shared.ErrRateLimited)
	adapter.catalog["r3"] = platforms.Track{ID: "r3", Title: "Ceremony", Artist: "New Order", DurationMS: 263000}
	adapter.addRemote("remote-1", platforms.Track{ID: "r9", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncFullBidirectional, true)

	track := p.newTrack(t, "Ceremony", "New Order", 263000)
	p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: track.ID, Platform: models.PlatformSpotify, ExternalID: "r3", MatchConfidence: 1})

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")
	_, err := p.executor.Apply(context.Background(), adapter, plan, nil)
	if !errors.Is(err, shared.ErrRateLimited) {
		t.Fatalf("expected rate-limit exhaustion to abort, got %v", err)
	}

	members, _ := p.store.Playlists.MemberIDs(playlist.ID)
	if len(members) != 1 {
		t.Errorf("local phase must not commit after the abort, got %d members", len(members))
	}
	if _, err := p.store.Snapshots.Get(binding.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("snapshot must be withheld, got %v", err)
	}
}

func TestLinkedPairClassifiedOnceOnFirstSync(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	// linked counterpart with metadata that would score far below the
	// candidate threshold
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Paranoid Android", Artist: "Radiohead", DurationMS: 387000})

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncFullBidirectional, true)

	track := p.newTrack(t, "Blue Monday", "New Order", 445000)
	p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: track.ID, Platform: models.PlatformSpotify, ExternalID: "r1", MatchConfidence: 1})

	diff, err := p.detector.Detect(context.Background(), adapter, binding)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}

	if len(diff.PlatformAdded) != 1 {
		t.Errorf("expected one platform addition, got %+v", diff.PlatformAdded)
	}
	if len(diff.Conflicts) != 0 {
		t.Errorf("a member counted as added must not also surface as a conflict: %+v", diff.Conflicts)
	}
	if diff.Unchanged != 0 {
		t.Errorf("unchanged count should be zero on a first sync, got %d", diff.Unchanged)
	}
}

func TestSnapshotWriteFailureReachesTerminalEvent(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})
	// the diff's fetch succeeds; the post-apply refetch does not
	adapter.tracksErr = errors.New("service unavailable")
	adapter.tracksErrAfter = 1

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncImportOnly, true)

	plan := p.plan(t, adapter, binding, playlist.Name, "Mix")
	progress := make(chan ProgressEvent, 50)

	summary, err := p.executor.Apply(context.Background(), adapter, plan, progress)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if summary.Applied != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var terminal *ProgressEvent
	for len(progress) > 0 {
		event := <-progress
		if event.Terminal {
			terminal = &event
		}
	}
	if terminal == nil {
		t.Fatal("expected a terminal progress event")
	}
	if terminal.State != StateFailed || !strings.Contains(terminal.Message, "snapshot") {
		t.Errorf("snapshot failure must reach the terminal event, got %+v", terminal)
	}

	if _, err := p.store.Snapshots.Get(binding.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected no snapshot, got %v", err)
	}
}
