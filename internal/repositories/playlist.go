package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/shared"
)

// PlaylistRepository persists [models.Playlist] and its ordered members.
//
// Folders contain only playlists, never tracks; the parent chain stays
// acyclic; system playlists cannot be renamed or deleted; member
// positions are re-compacted to a dense zero-based sequence after every
// mutation.
type PlaylistRepository struct {
	db dbtx
}

// NewPlaylistRepository creates a PlaylistRepository with the given database connection.
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a new playlist and fills in its generated id.
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if playlist.ParentID != 0 {
		parent, err := r.Get(playlist.ParentID)
		if err != nil {
			return fmt.Errorf("parent lookup: %w", err)
		}
		if !parent.IsFolder() {
			return fmt.Errorf("%w: parent %d is not a folder", shared.ErrConflict, playlist.ParentID)
		}
	}

	now := time.Now().UTC()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	query := `
		INSERT INTO playlists (name, kind, parent_id, is_system, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		playlist.Name,
		string(playlist.Kind),
		nullableID(playlist.ParentID),
		playlist.IsSystem,
		playlist.CreatedAt,
		playlist.UpdatedAt,
	)
	if err != nil {
		return wrapConflict(err, "failed to insert playlist")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read playlist id: %w", err)
	}
	playlist.ID = id

	return nil
}

// Get retrieves a playlist by id, excluding soft-deleted playlists.
func (r *PlaylistRepository) Get(id int64) (*models.Playlist, error) {
	query := playlistSelect + ` WHERE id = ? AND deleted_at IS NULL`
	return scanPlaylist(r.db.QueryRow(query, id))
}

// Rename changes a playlist's name. System playlists are protected.
func (r *PlaylistRepository) Rename(id int64, name string) error {
	playlist, err := r.Get(id)
	if err != nil {
		return err
	}
	if playlist.IsSystem {
		return fmt.Errorf("%w: cannot rename system playlist", shared.ErrNotPermitted)
	}

	_, err = r.db.Exec("UPDATE playlists SET name = ?, updated_at = ? WHERE id = ?", name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rename playlist: %w", err)
	}
	return nil
}

// SetParent moves a playlist under a folder, enforcing acyclicity.
func (r *PlaylistRepository) SetParent(id, parentID int64) error {
	if parentID != 0 {
		parent, err := r.Get(parentID)
		if err != nil {
			return fmt.Errorf("parent lookup: %w", err)
		}
		if !parent.IsFolder() {
			return fmt.Errorf("%w: parent %d is not a folder", shared.ErrConflict, parentID)
		}

		// Walk the would-be ancestor chain; finding id means a cycle.
		cursor := parentID
		for cursor != 0 {
			if cursor == id {
				return fmt.Errorf("%w: moving playlist %d under %d creates a cycle", shared.ErrConflict, id, parentID)
			}
			ancestor, err := r.Get(cursor)
			if err != nil {
				return fmt.Errorf("ancestor lookup: %w", err)
			}
			cursor = ancestor.ParentID
		}
	}

	_, err := r.db.Exec("UPDATE playlists SET parent_id = ?, updated_at = ? WHERE id = ?", nullableID(parentID), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to move playlist: %w", err)
	}
	return nil
}

// Delete soft-deletes a playlist and its membership. System playlists
// are protected.
func (r *PlaylistRepository) Delete(id int64) error {
	playlist, err := r.Get(id)
	if err != nil {
		return err
	}
	if playlist.IsSystem {
		return fmt.Errorf("%w: cannot delete system playlist", shared.ErrNotPermitted)
	}

	if _, err := r.db.Exec("DELETE FROM playlist_members WHERE playlist_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	if _, err := r.db.Exec("UPDATE playlists SET deleted_at = ? WHERE id = ?", time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return nil
}

// Children lists the live playlists directly under a folder (or at top
// level for id zero).
func (r *PlaylistRepository) Children(parentID int64) ([]*models.Playlist, error) {
	var rows *sql.Rows
	var err error
	if parentID == 0 {
		rows, err = r.db.Query(playlistSelect + " WHERE parent_id IS NULL AND deleted_at IS NULL ORDER BY name ASC")
	} else {
		rows, err = r.db.Query(playlistSelect+" WHERE parent_id = ? AND deleted_at IS NULL ORDER BY name ASC", parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := scanPlaylistRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return playlists, nil
}

// MemberIDs returns the playlist's track ids in position order.
func (r *PlaylistRepository) MemberIDs(playlistID int64) ([]int64, error) {
	rows, err := r.db.Query(
		"SELECT track_id FROM playlist_members WHERE playlist_id = ? ORDER BY position ASC",
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// Tracks loads the playlist's tracks in position order with a single
// join query.
func (r *PlaylistRepository) Tracks(playlistID int64) ([]*models.Track, error) {
	query := `
		SELECT t.id, t.title, t.primary_artist, t.album, t.duration_ms, t.year, t.bpm, t.is_local_file, t.local_path, t.quality_rating, t.created_at, t.updated_at
		FROM tracks t
		JOIN playlist_members m ON m.track_id = t.id
		WHERE m.playlist_id = ? AND t.deleted_at IS NULL
		ORDER BY m.position ASC
	`

	rows, err := r.db.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// AddTrack appends a track to a playlist, or inserts at position when
// position >= 0. Adding an already-present member is a no-op.
func (r *PlaylistRepository) AddTrack(playlistID, trackID int64, position int) error {
	playlist, err := r.Get(playlistID)
	if err != nil {
		return err
	}
	if playlist.IsFolder() {
		return fmt.Errorf("%w: folders cannot contain tracks", shared.ErrConflict)
	}

	var exists bool
	err = r.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM playlist_members WHERE playlist_id = ? AND track_id = ?)",
		playlistID, trackID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if exists {
		return nil
	}

	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM playlist_members WHERE playlist_id = ?", playlistID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count members: %w", err)
	}

	if position < 0 || position > count {
		position = count
	} else {
		// shift members at and after the insertion point
		_, err := r.db.Exec(
			"UPDATE playlist_members SET position = position + 1 WHERE playlist_id = ? AND position >= ?",
			playlistID, position,
		)
		if err != nil {
			return fmt.Errorf("failed to shift positions: %w", err)
		}
	}

	_, err = r.db.Exec(
		"INSERT INTO playlist_members (playlist_id, track_id, position, added_at) VALUES (?, ?, ?, ?)",
		playlistID, trackID, position, time.Now().UTC(),
	)
	if err != nil {
		return wrapConflict(err, "failed to add member")
	}

	return r.compactPositions(playlistID)
}

// RemoveTrack removes a member. Removing an absent member is a no-op.
func (r *PlaylistRepository) RemoveTrack(playlistID, trackID int64) error {
	_, err := r.db.Exec(
		"DELETE FROM playlist_members WHERE playlist_id = ? AND track_id = ?",
		playlistID, trackID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return r.compactPositions(playlistID)
}

// ClearTracks removes all members of a playlist.
func (r *PlaylistRepository) ClearTracks(playlistID int64) error {
	if _, err := r.db.Exec("DELETE FROM playlist_members WHERE playlist_id = ?", playlistID); err != nil {
		return fmt.Errorf("failed to clear members: %w", err)
	}
	return nil
}

// compactPositions rewrites member positions into a dense contiguous
// sequence starting at zero, preserving order.
func (r *PlaylistRepository) compactPositions(playlistID int64) error {
	ids, err := r.MemberIDs(playlistID)
	if err != nil {
		return err
	}

	for i, trackID := range ids {
		_, err := r.db.Exec(
			"UPDATE playlist_members SET position = ? WHERE playlist_id = ? AND track_id = ? AND position != ?",
			i, playlistID, trackID, i,
		)
		if err != nil {
			return fmt.Errorf("failed to compact positions: %w", err)
		}
	}
	return nil
}

const playlistSelect = `
	SELECT id, name, kind, parent_id, is_system, created_at, updated_at
	FROM playlists
`

func scanPlaylistRow(row rowScanner) (*models.Playlist, error) {
	var p models.Playlist
	var kind string
	var parent sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &kind, &parent, &p.IsSystem, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Kind = models.PlaylistKind(kind)
	if parent.Valid {
		p.ParentID = parent.Int64
	}
	return &p, nil
}

func scanPlaylist(row *sql.Row) (*models.Playlist, error) {
	playlist, err := scanPlaylistRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: playlist", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}
	return playlist, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
