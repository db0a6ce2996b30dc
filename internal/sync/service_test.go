package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/platforms"
	"github.com/desertthunder/syncta/internal/repositories"
	"github.com/desertthunder/syncta/internal/shared"
)

func newTestService(t *testing.T) (*Service, *repositories.Store) {
	t.Helper()

	p, db := newPipeline(t, shared.SafetyConfig{})
	t.Cleanup(func() { db.Close() })

	cfg := shared.DefaultConfig()
	cfg.Sync.RetryBaseDelayMS = 1
	return NewService(p.store, cfg, nil), p.store
}

func TestServiceImport(t *testing.T) {
	service, store := newTestService(t)

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Weekend Mix", IsOwned: true}
	adapter.addRemote("remote-1", platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000})
	adapter.addRemote("remote-1", platforms.Track{ID: "r2", Title: "Temptation", Artist: "New Order", DurationMS: 525000})
	service.RegisterAdapter(adapter)

	summary, err := service.Import(context.Background(), models.PlatformSpotify, "remote-1", nil)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if summary.Applied != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	bindings, err := store.Bindings.List()
	if err != nil || len(bindings) != 1 {
		t.Fatalf("expected one binding, got %d (%v)", len(bindings), err)
	}
	binding := bindings[0]
	if binding.Mode != models.SyncImportOnly || !binding.IsPersonal {
		t.Errorf("unexpected binding: %+v", binding)
	}

	playlist, err := store.Playlists.Get(binding.PlaylistID)
	if err != nil {
		t.Fatalf("imported playlist missing: %v", err)
	}
	if playlist.Name != "Weekend Mix" {
		t.Errorf("expected remote name carried over, got %q", playlist.Name)
	}

	members, _ := store.Playlists.MemberIDs(playlist.ID)
	if len(members) != 2 {
		t.Errorf("expected 2 imported members, got %d", len(members))
	}
}

func TestServiceImportUnknownPlaylist(t *testing.T) {
	service, _ := newTestService(t)
	service.RegisterAdapter(newMockAdapter())

	_, err := service.Import(context.Background(), models.PlatformSpotify, "missing", nil)
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceExport(t *testing.T) {
	service, store := newTestService(t)

	adapter := newMockAdapter()
	adapter.catalog["r1"] = platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000}
	service.RegisterAdapter(adapter)

	playlist := &models.Playlist{Name: "Fresh Export", Kind: models.KindPlaylist}
	if err := store.Playlists.Create(playlist); err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	track := &models.Track{Title: "Blue Monday", PrimaryArtist: "New Order", DurationMS: 445000}
	if err := store.Tracks.Create(track); err != nil {
		t.Fatalf("failed to create track: %v", err)
	}
	store.Playlists.AddTrack(playlist.ID, track.ID, -1)

	summary, err := service.Export(context.Background(), playlist.ID, models.PlatformSpotify, models.SyncMirrorToPlatform, nil)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if summary.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", summary)
	}

	if _, ok := adapter.playlists["created-1"]; !ok {
		t.Error("remote playlist was not created")
	}
	if len(adapter.members["created-1"]) != 1 {
		t.Errorf("expected 1 exported member, got %v", adapter.members["created-1"])
	}

	bindings, _ := store.Bindings.List()
	if len(bindings) != 1 || bindings[0].Pending() {
		t.Errorf("binding should record the created playlist: %+v", bindings)
	}
}

func TestServiceUnregisteredAdapter(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Import(context.Background(), models.PlatformSpotify, "remote-1", nil)
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unregistered adapter, got %v", err)
	}
}

func TestServicePreviewIsGateFiltered(t *testing.T) {
	p, db := newPipeline(t, shared.SafetyConfig{})
	defer db.Close()

	cfg := shared.DefaultConfig()
	cfg.Sync.RetryBaseDelayMS = 1
	cfg.Safety.TestMode = true
	service := NewService(p.store, cfg, nil)

	adapter := newMockAdapter()
	adapter.playlists["remote-1"] = platforms.Playlist{ID: "remote-1", Name: "Mix", IsOwned: true}
	adapter.catalog["r1"] = platforms.Track{ID: "r1", Title: "Blue Monday", Artist: "New Order", DurationMS: 445000}
	service.RegisterAdapter(adapter)

	playlist := p.newPlaylist(t, "Mix")
	binding := p.newBinding(t, playlist.ID, "remote-1", models.SyncFullBidirectional, true)

	track := p.newTrack(t, "Blue Monday", "New Order", 445000)
	p.store.Playlists.AddTrack(playlist.ID, track.ID, -1)
	p.store.Links.Create(&models.PlatformLink{TrackID: track.ID, Platform: models.PlatformSpotify, ExternalID: "r1", MatchConfidence: 1})

	plan, err := service.Preview(context.Background(), binding.ID)
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}

	for _, change := range plan.Changes {
		if change.Direction == LibraryToPlatform && change.Selected {
			t.Errorf("test mode should deselect outbound changes on unprefixed playlists: %+v", change)
		}
	}
}
