package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/shared"
)

// TrackRepository persists [models.Track] with soft delete support.
type TrackRepository struct {
	db dbtx
}

// NewTrackRepository creates a TrackRepository with the given database connection.
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a new track and fills in its generated id.
func (r *TrackRepository) Create(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	track.CreatedAt = now
	track.UpdatedAt = now

	query := `
		INSERT INTO tracks (title, primary_artist, album, duration_ms, year, bpm, is_local_file, local_path, quality_rating, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		track.Title,
		track.PrimaryArtist,
		track.Album,
		track.DurationMS,
		track.Year,
		track.BPM,
		track.IsLocalFile,
		track.LocalPath,
		track.QualityRating,
		track.CreatedAt,
		track.UpdatedAt,
	)
	if err != nil {
		return wrapConflict(err, "failed to insert track")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read track id: %w", err)
	}
	track.ID = id

	return nil
}

// Get retrieves a track by id, excluding soft-deleted tracks.
func (r *TrackRepository) Get(id int64) (*models.Track, error) {
	query := trackSelect + ` WHERE id = ? AND deleted_at IS NULL`
	return scanTrack(r.db.QueryRow(query, id))
}

// Update modifies an existing track.
func (r *TrackRepository) Update(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	track.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tracks
		SET title = ?, primary_artist = ?, album = ?, duration_ms = ?, year = ?, bpm = ?, is_local_file = ?, local_path = ?, quality_rating = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		track.Title,
		track.PrimaryArtist,
		track.Album,
		track.DurationMS,
		track.Year,
		track.BPM,
		track.IsLocalFile,
		track.LocalPath,
		track.QualityRating,
		track.UpdatedAt,
		track.ID,
	)
	if err != nil {
		return wrapConflict(err, "failed to update track")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: track %d", shared.ErrNotFound, track.ID)
	}

	return nil
}

// Delete soft-deletes a track. Refused while any playlist still
// references it.
func (r *TrackRepository) Delete(id int64) error {
	var refs int
	err := r.db.QueryRow("SELECT COUNT(*) FROM playlist_members WHERE track_id = ?", id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: track %d is in %d playlists", shared.ErrConflict, id, refs)
	}

	result, err := r.db.Exec("UPDATE tracks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: track %d", shared.ErrNotFound, id)
	}

	return nil
}

// Search finds tracks whose title or artist contains the query string.
func (r *TrackRepository) Search(query string, limit int) ([]*models.Track, error) {
	if limit <= 0 {
		limit = 25
	}

	pattern := "%" + query + "%"
	stmt := trackSelect + `
		WHERE deleted_at IS NULL AND (title LIKE ? OR primary_artist LIKE ?)
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := r.db.Query(stmt, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// List retrieves all live tracks ordered by id.
func (r *TrackRepository) List() ([]*models.Track, error) {
	rows, err := r.db.Query(trackSelect + " WHERE deleted_at IS NULL ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

const trackSelect = `
	SELECT id, title, primary_artist, album, duration_ms, year, bpm, is_local_file, local_path, quality_rating, created_at, updated_at
	FROM tracks
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrackRow(row rowScanner) (*models.Track, error) {
	var t models.Track
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.PrimaryArtist,
		&t.Album,
		&t.DurationMS,
		&t.Year,
		&t.BPM,
		&t.IsLocalFile,
		&t.LocalPath,
		&t.QualityRating,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTrack(row *sql.Row) (*models.Track, error) {
	track, err := scanTrackRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: track", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	return track, nil
}

func collectTracks(rows *sql.Rows) ([]*models.Track, error) {
	var tracks []*models.Track
	for rows.Next() {
		track, err := scanTrackRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}
