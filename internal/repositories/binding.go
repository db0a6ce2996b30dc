package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/shared"
)

// BindingRepository persists [models.Binding] records.
//
// (playlist, platform) and (platform, external playlist) are both unique.
// System playlists stay local-only: binding one is refused.
type BindingRepository struct {
	db dbtx
}

// NewBindingRepository creates a BindingRepository with the given database connection.
func NewBindingRepository(db *sql.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// Create inserts a new binding and fills in its generated id.
func (r *BindingRepository) Create(binding *models.Binding) error {
	if err := binding.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var isSystem bool
	err := r.db.QueryRow("SELECT is_system FROM playlists WHERE id = ? AND deleted_at IS NULL", binding.PlaylistID).Scan(&isSystem)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: playlist %d", shared.ErrNotFound, binding.PlaylistID)
	}
	if err != nil {
		return fmt.Errorf("failed to check playlist: %w", err)
	}
	if isSystem {
		return fmt.Errorf("%w: system playlists cannot be bound", shared.ErrNotPermitted)
	}

	query := `
		INSERT INTO bindings (playlist_id, platform, external_playlist_id, sync_mode, is_personal, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		binding.PlaylistID,
		string(binding.Platform),
		nullableString(binding.ExternalPlaylistID),
		string(binding.Mode),
		binding.IsPersonal,
		nullableTime(binding.LastSyncedAt),
	)
	if err != nil {
		return wrapConflict(err, "failed to insert binding")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read binding id: %w", err)
	}
	binding.ID = id

	return nil
}

// Get retrieves a binding by id.
func (r *BindingRepository) Get(id int64) (*models.Binding, error) {
	query := bindingSelect + ` WHERE id = ?`
	return scanBinding(r.db.QueryRow(query, id))
}

// GetByPlaylist retrieves the binding for a (playlist, platform) pair.
func (r *BindingRepository) GetByPlaylist(playlistID int64, platform models.Platform) (*models.Binding, error) {
	query := bindingSelect + ` WHERE playlist_id = ? AND platform = ?`
	return scanBinding(r.db.QueryRow(query, playlistID, string(platform)))
}

// ListForPlaylist retrieves all bindings of one playlist.
func (r *BindingRepository) ListForPlaylist(playlistID int64) ([]*models.Binding, error) {
	rows, err := r.db.Query(bindingSelect+" WHERE playlist_id = ? ORDER BY platform ASC", playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer rows.Close()

	return collectBindings(rows)
}

// List retrieves every binding.
func (r *BindingRepository) List() ([]*models.Binding, error) {
	rows, err := r.db.Query(bindingSelect + " ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query bindings: %w", err)
	}
	defer rows.Close()

	return collectBindings(rows)
}

// SetMode changes a binding's sync mode.
func (r *BindingRepository) SetMode(id int64, mode models.SyncMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: sync mode %q", shared.ErrInvalidInput, mode)
	}
	_, err := r.db.Exec("UPDATE bindings SET sync_mode = ? WHERE id = ?", string(mode), id)
	if err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	return nil
}

// MarkSynced stamps the binding with the completed sync time.
func (r *BindingRepository) MarkSynced(id int64, at time.Time) error {
	_, err := r.db.Exec("UPDATE bindings SET last_synced_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark binding synced: %w", err)
	}
	return nil
}

// Delete removes a binding and its snapshot.
func (r *BindingRepository) Delete(id int64) error {
	if _, err := r.db.Exec("DELETE FROM snapshots WHERE binding_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	result, err := r.db.Exec("DELETE FROM bindings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: binding %d", shared.ErrNotFound, id)
	}
	return nil
}

const bindingSelect = `
	SELECT id, playlist_id, platform, external_playlist_id, sync_mode, is_personal, last_synced_at
	FROM bindings
`

// SetExternalID records the remote playlist id after first creation.
func (r *BindingRepository) SetExternalID(id int64, externalID string) error {
	_, err := r.db.Exec("UPDATE bindings SET external_playlist_id = ? WHERE id = ?", nullableString(externalID), id)
	if err != nil {
		return wrapConflict(err, "failed to set external playlist id")
	}
	return nil
}

func scanBindingRow(row rowScanner) (*models.Binding, error) {
	var b models.Binding
	var platform, mode string
	var external sql.NullString
	var lastSynced sql.NullTime
	err := row.Scan(&b.ID, &b.PlaylistID, &platform, &external, &mode, &b.IsPersonal, &lastSynced)
	if err != nil {
		return nil, err
	}
	b.Platform = models.Platform(platform)
	b.Mode = models.SyncMode(mode)
	if external.Valid {
		b.ExternalPlaylistID = external.String
	}
	if lastSynced.Valid {
		b.LastSyncedAt = lastSynced.Time
	}
	return &b, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanBinding(row *sql.Row) (*models.Binding, error) {
	binding, err := scanBindingRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: binding", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan binding: %w", err)
	}
	return binding, nil
}

func collectBindings(rows *sql.Rows) ([]*models.Binding, error) {
	var bindings []*models.Binding
	for rows.Next() {
		binding, err := scanBindingRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return bindings, nil
}
