package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/shared"
)

// LinkRepository persists [models.PlatformLink] records.
//
// Two uniqueness invariants hold at all times: one link per
// (track, platform), and one link per (platform, external id) globally.
// Both are enforced by the schema and surfaced as shared.ErrConflict.
type LinkRepository struct {
	db dbtx
}

// NewLinkRepository creates a LinkRepository with the given database connection.
func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create inserts a new link and fills in its generated id.
func (r *LinkRepository) Create(link *models.PlatformLink) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO platform_links (track_id, platform, external_id, external_uri, metadata, last_synced_at, needs_refresh, match_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		link.TrackID,
		string(link.Platform),
		link.ExternalID,
		link.ExternalURI,
		link.Metadata,
		nullableTime(link.LastSyncedAt),
		link.NeedsRefresh,
		link.MatchConfidence,
	)
	if err != nil {
		return wrapConflict(err, "failed to insert link")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read link id: %w", err)
	}
	link.ID = id

	return nil
}

// Update rewrites a link's mutable fields (metadata, refresh flag,
// confidence, sync timestamp).
func (r *LinkRepository) Update(link *models.PlatformLink) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE platform_links
		SET external_uri = ?, metadata = ?, last_synced_at = ?, needs_refresh = ?, match_confidence = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		link.ExternalURI,
		link.Metadata,
		nullableTime(link.LastSyncedAt),
		link.NeedsRefresh,
		link.MatchConfidence,
		link.ID,
	)
	if err != nil {
		return wrapConflict(err, "failed to update link")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: link %d", shared.ErrNotFound, link.ID)
	}

	return nil
}

// GetByTrack retrieves the link for a (track, platform) pair.
func (r *LinkRepository) GetByTrack(trackID int64, platform models.Platform) (*models.PlatformLink, error) {
	query := linkSelect + ` WHERE track_id = ? AND platform = ?`
	return scanLink(r.db.QueryRow(query, trackID, string(platform)))
}

// GetByExternal retrieves the link for a (platform, external id) pair.
func (r *LinkRepository) GetByExternal(platform models.Platform, externalID string) (*models.PlatformLink, error) {
	query := linkSelect + ` WHERE platform = ? AND external_id = ?`
	return scanLink(r.db.QueryRow(query, string(platform), externalID))
}

// ForPlatform loads all links for one platform keyed by external id.
// One query regardless of library size.
func (r *LinkRepository) ForPlatform(platform models.Platform) (map[string]*models.PlatformLink, error) {
	rows, err := r.db.Query(linkSelect+" WHERE platform = ?", string(platform))
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]*models.PlatformLink)
	for rows.Next() {
		link, err := scanLinkRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links[link.ExternalID] = link
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return links, nil
}

// Delete removes a link. Only the user explicitly unlinking reaches this.
func (r *LinkRepository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM platform_links WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: link %d", shared.ErrNotFound, id)
	}
	return nil
}

// MarkSynced stamps the link with the sync time and clears the refresh flag.
func (r *LinkRepository) MarkSynced(id int64, at time.Time) error {
	_, err := r.db.Exec(
		"UPDATE platform_links SET last_synced_at = ?, needs_refresh = 0 WHERE id = ?",
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark link synced: %w", err)
	}
	return nil
}

const linkSelect = `
	SELECT id, track_id, platform, external_id, external_uri, metadata, last_synced_at, needs_refresh, match_confidence
	FROM platform_links
`

func scanLinkRow(row rowScanner) (*models.PlatformLink, error) {
	var l models.PlatformLink
	var platform string
	var lastSynced sql.NullTime
	err := row.Scan(
		&l.ID,
		&l.TrackID,
		&platform,
		&l.ExternalID,
		&l.ExternalURI,
		&l.Metadata,
		&lastSynced,
		&l.NeedsRefresh,
		&l.MatchConfidence,
	)
	if err != nil {
		return nil, err
	}
	l.Platform = models.Platform(platform)
	if lastSynced.Valid {
		l.LastSyncedAt = lastSynced.Time
	}
	return &l, nil
}

func scanLink(row *sql.Row) (*models.PlatformLink, error) {
	link, err := scanLinkRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: link", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}
	return link, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
