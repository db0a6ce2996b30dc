package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies one external music service.
type Platform string

const (
	PlatformSpotify   Platform = "spotify"
	PlatformRekordbox Platform = "rekordbox"
	PlatformDiscogs   Platform = "discogs"
	PlatformYouTube   Platform = "youtube"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformSpotify, PlatformRekordbox, PlatformDiscogs, PlatformYouTube:
		return true
	}
	return false
}

// PlaylistKind distinguishes folders, regular playlists, and collection views.
type PlaylistKind string

const (
	KindFolder         PlaylistKind = "folder"
	KindPlaylist       PlaylistKind = "playlist"
	KindCollectionView PlaylistKind = "collection-view"
)

// SyncMode controls which directions and kinds of changes a binding accepts.
type SyncMode string

const (
	SyncFullBidirectional  SyncMode = "full_bidirectional"
	SyncAddOnly            SyncMode = "add_only"
	SyncMirrorFromPlatform SyncMode = "mirror_from_platform"
	SyncMirrorToPlatform   SyncMode = "mirror_to_platform"
	SyncImportOnly         SyncMode = "import_only"
)

// Valid reports whether m is a recognized sync mode.
func (m SyncMode) Valid() bool {
	switch m {
	case SyncFullBidirectional, SyncAddOnly, SyncMirrorFromPlatform, SyncMirrorToPlatform, SyncImportOnly:
		return true
	}
	return false
}

// Track is a song as known to the local library.
type Track struct {
	ID            int64
	Title         string
	PrimaryArtist string
	Album         string
	DurationMS    int
	Year          int
	BPM           float64
	IsLocalFile   bool
	LocalPath     string
	QualityRating int // 0-5
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the track invariants: title and primary artist must be
// non-empty after trimming, and the quality rating stays in range.
func (t *Track) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("track title is empty")
	}
	if strings.TrimSpace(t.PrimaryArtist) == "" {
		return fmt.Errorf("track artist is empty")
	}
	if t.QualityRating < 0 || t.QualityRating > 5 {
		return fmt.Errorf("quality rating %d out of range 0-5", t.QualityRating)
	}
	return nil
}

// PlatformLink bridges a local track and its representation on one platform.
//
// (TrackID, Platform) is unique, and (Platform, ExternalID) is unique
// globally: an external identity never splits across local tracks.
type PlatformLink struct {
	ID              int64
	TrackID         int64
	Platform        Platform
	ExternalID      string
	ExternalURI     string
	Metadata        []byte // opaque JSON from the platform
	LastSyncedAt    time.Time
	NeedsRefresh    bool
	MatchConfidence float64
}

func (l *PlatformLink) Validate() error {
	if l.TrackID == 0 {
		return fmt.Errorf("platform link has no track")
	}
	if !l.Platform.Valid() {
		return fmt.Errorf("unknown platform %q", l.Platform)
	}
	if l.ExternalID == "" {
		return fmt.Errorf("platform link has empty external id")
	}
	if l.MatchConfidence < 0 || l.MatchConfidence > 1 {
		return fmt.Errorf("match confidence %f out of range", l.MatchConfidence)
	}
	return nil
}

// Playlist is an ordered collection of tracks, or a folder containing
// other playlists. The root "Library Collection" is a system playlist
// that cannot be deleted or renamed.
type Playlist struct {
	ID        int64
	Name      string
	Kind      PlaylistKind
	ParentID  int64 // zero means top level
	IsSystem  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Playlist) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("playlist name is empty")
	}
	switch p.Kind {
	case KindFolder, KindPlaylist, KindCollectionView:
	default:
		return fmt.Errorf("unknown playlist kind %q", p.Kind)
	}
	return nil
}

// IsFolder reports whether the playlist is a folder. Folders contain only
// playlists and folders, never tracks.
func (p *Playlist) IsFolder() bool { return p.Kind == KindFolder }

// PlaylistMember is one ordered membership edge. Positions within a
// playlist form a dense contiguous sequence starting at zero after every
// mutating operation.
type PlaylistMember struct {
	PlaylistID int64
	TrackID    int64
	Position   int
	AddedAt    time.Time
}

func (m *PlaylistMember) Validate() error {
	if m.PlaylistID == 0 || m.TrackID == 0 {
		return fmt.Errorf("playlist member missing playlist or track")
	}
	if m.Position < 0 {
		return fmt.Errorf("negative position %d", m.Position)
	}
	return nil
}

// Binding records that a local playlist is linked to an external playlist
// on one platform. (PlaylistID, Platform) and (Platform, ExternalPlaylistID)
// are both unique. An empty ExternalPlaylistID marks a binding whose
// remote playlist has not been created yet; the first sync fills it in.
type Binding struct {
	ID                 int64
	PlaylistID         int64
	Platform           Platform
	ExternalPlaylistID string
	Mode               SyncMode
	IsPersonal         bool
	LastSyncedAt       time.Time // zero until the first successful sync
}

func (b *Binding) Validate() error {
	if b.PlaylistID == 0 {
		return fmt.Errorf("binding has no playlist")
	}
	if !b.Platform.Valid() {
		return fmt.Errorf("unknown platform %q", b.Platform)
	}
	if !b.Mode.Valid() {
		return fmt.Errorf("unknown sync mode %q", b.Mode)
	}
	return nil
}

// Pending reports whether the binding's remote playlist still has to be
// created on the platform.
func (b *Binding) Pending() bool { return b.ExternalPlaylistID == "" }

// Snapshot is the observed membership of a binding at the last successful
// sync. Immutable once written; replaced atomically by the next sync.
type Snapshot struct {
	BindingID      int64
	TakenAt        time.Time
	LibraryMembers []int64           // ordered local track ids
	PlatformMember []string          // ordered external ids, platform order
	LinkPairs      map[string]int64  // external id -> local track id at snapshot time
}

// Empty is the zero snapshot used before a binding's first sync: both
// sides are treated as having had no members.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.LibraryMembers) == 0 && len(s.PlatformMember) == 0)
}

// LibrarySet returns the snapshot's library membership as a set.
func (s *Snapshot) LibrarySet() map[int64]bool {
	if s == nil {
		return map[int64]bool{}
	}
	set := make(map[int64]bool, len(s.LibraryMembers))
	for _, id := range s.LibraryMembers {
		set[id] = true
	}
	return set
}

// PlatformSet returns the snapshot's platform membership as a set.
func (s *Snapshot) PlatformSet() map[string]bool {
	if s == nil {
		return map[string]bool{}
	}
	set := make(map[string]bool, len(s.PlatformMember))
	for _, id := range s.PlatformMember {
		set[id] = true
	}
	return set
}
