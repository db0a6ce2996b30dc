// Package platforms defines interface Adapter for external music services.
//
// An adapter translates between the sync core's operations and one remote
// service's wire format. Adapters never touch the repository; the core
// branches on capability flags, not on adapter identity.
package platforms

import (
	"context"
)

// Adapter is the uniform contract every external platform implements.
type Adapter interface {
	// Name returns the platform identifier (e.g. "spotify").
	Name() string

	// Authenticated is a pure read of cached credentials. Never fails.
	Authenticated() bool

	// Authenticate performs the platform's auth flow. May block on an
	// external OAuth exchange. Fails with shared.ErrAuthFailed.
	Authenticate(ctx context.Context) error

	// ListPlaylists retrieves all playlists visible to the user.
	// Pagination is handled internally.
	ListPlaylists(ctx context.Context) ([]Playlist, error)

	// PlaylistTracks fetches the members of one playlist in platform order.
	PlaylistTracks(ctx context.Context, externalID string) ([]Track, error)

	// CreatePlaylist creates a new remote playlist and returns its id.
	// Fails with shared.ErrNotPermitted when the adapter cannot create.
	CreatePlaylist(ctx context.Context, name, description string, private bool) (string, error)

	// AddTracks adds tracks to a remote playlist in batches, reporting
	// per-item success.
	AddTracks(ctx context.Context, externalID string, trackIDs []string) (BatchResult, error)

	// RemoveTracks removes tracks from a remote playlist in batches.
	// May reject when the remote playlist is not owned.
	RemoveTracks(ctx context.Context, externalID string, trackIDs []string) (BatchResult, error)

	// Search finds candidate tracks for export-time matching.
	Search(ctx context.Context, query string, limit int) ([]Track, error)

	// Capabilities returns the adapter's static capability flags.
	Capabilities() Capabilities
}

// Capabilities is the static declaration of what one adapter supports.
type Capabilities struct {
	CanCreate           bool
	CanDelete           bool
	CanModifyShared     bool
	OwnsFilesystemPaths bool
	IsPersonalOnly      bool
	RateBudgetPerMinute int
	MaxBatchSize        int
}

// Playlist represents a remote playlist as seen through an adapter.
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	IsOwned     bool
	Public      bool
}

// Track represents a remote track as seen through an adapter.
type Track struct {
	ID         string
	URI        string
	Title      string
	Artist     string
	Album      string
	DurationMS int
	ISRC       string
}

// BatchResult reports per-item outcomes of a batched mutation.
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
}

// Ok reports whether every item in the batch succeeded.
func (r BatchResult) Ok() bool { return len(r.Failed) == 0 }

// Merge folds another batch result into this one.
func (r *BatchResult) Merge(other BatchResult) {
	r.Succeeded = append(r.Succeeded, other.Succeeded...)
	for id, err := range other.Failed {
		if r.Failed == nil {
			r.Failed = make(map[string]error)
		}
		r.Failed[id] = err
	}
}
