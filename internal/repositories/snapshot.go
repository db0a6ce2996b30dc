package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/shared"
)

// snapshotSchemaVersion is stored with every snapshot and verified on
// read. Unknown payload fields are ignored for forward compatibility.
const snapshotSchemaVersion = 1

// snapshotPayload is the serialized form of a snapshot.
type snapshotPayload struct {
	Version         int              `json:"version"`
	TakenAt         time.Time        `json:"taken_at"`
	LibraryMembers  []int64          `json:"library_members"`
	PlatformMembers []string         `json:"platform_members"`
	LinkPairs       map[string]int64 `json:"link_pairs"`
}

// SnapshotRepository persists one [models.Snapshot] per binding.
// Snapshots are replace-only: a successful sync atomically overwrites
// the previous one.
type SnapshotRepository struct {
	db dbtx
}

// NewSnapshotRepository creates a SnapshotRepository with the given database connection.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Replace writes the binding's snapshot, overwriting any previous one.
func (r *SnapshotRepository) Replace(snapshot *models.Snapshot) error {
	if snapshot.BindingID == 0 {
		return fmt.Errorf("%w: snapshot has no binding", shared.ErrInvalidInput)
	}
	if snapshot.TakenAt.IsZero() {
		snapshot.TakenAt = time.Now().UTC()
	}

	payload, err := json.Marshal(snapshotPayload{
		Version:         snapshotSchemaVersion,
		TakenAt:         snapshot.TakenAt,
		LibraryMembers:  snapshot.LibraryMembers,
		PlatformMembers: snapshot.PlatformMember,
		LinkPairs:       snapshot.LinkPairs,
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshots (binding_id, schema_version, taken_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (binding_id) DO UPDATE SET schema_version = excluded.schema_version, taken_at = excluded.taken_at, payload = excluded.payload
	`

	if _, err := r.db.Exec(query, snapshot.BindingID, snapshotSchemaVersion, snapshot.TakenAt, payload); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Get reads the binding's snapshot. Returns shared.ErrNotFound before
// the first successful sync.
func (r *SnapshotRepository) Get(bindingID int64) (*models.Snapshot, error) {
	var version int
	var takenAt time.Time
	var raw []byte

	err := r.db.QueryRow(
		"SELECT schema_version, taken_at, payload FROM snapshots WHERE binding_id = ?",
		bindingID,
	).Scan(&version, &takenAt, &raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: snapshot for binding %d", shared.ErrNotFound, bindingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if version > snapshotSchemaVersion {
		return nil, fmt.Errorf("%w: snapshot schema version %d is newer than %d", shared.ErrInvalidInput, version, snapshotSchemaVersion)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	snapshot := &models.Snapshot{
		BindingID:      bindingID,
		TakenAt:        payload.TakenAt,
		LibraryMembers: payload.LibraryMembers,
		PlatformMember: payload.PlatformMembers,
		LinkPairs:      payload.LinkPairs,
	}
	if snapshot.LinkPairs == nil {
		snapshot.LinkPairs = make(map[string]int64)
	}
	return snapshot, nil
}

// Delete removes the binding's snapshot, forcing the next sync to run
// as a first sync.
func (r *SnapshotRepository) Delete(bindingID int64) error {
	if _, err := r.db.Exec("DELETE FROM snapshots WHERE binding_id = ?", bindingID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
