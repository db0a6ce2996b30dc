// Package repositories provides the persistence layer for the sync core.
//
// Each repository wraps one entity's table over database/sql. The Store
// bundles them with transaction scopes and per-playlist writer locks:
// one writer at a time per playlist, unrestricted readers, and
// uniqueness violations surfaced as shared.ErrConflict.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/syncta/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx, so repositories can run
// standalone or inside a transactional scope.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store bundles all repositories over one database handle.
type Store struct {
	db    *sql.DB
	locks *playlistLocks

	Tracks    *TrackRepository
	Playlists *PlaylistRepository
	Links     *LinkRepository
	Bindings  *BindingRepository
	Snapshots *SnapshotRepository
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB) *Store {
	locks := newPlaylistLocks()
	return &Store{
		db:        db,
		locks:     locks,
		Tracks:    &TrackRepository{db: db},
		Playlists: &PlaylistRepository{db: db},
		Links:     &LinkRepository{db: db},
		Bindings:  &BindingRepository{db: db},
		Snapshots: &SnapshotRepository{db: db},
	}
}

// InTx runs fn with a Store whose repositories share one transaction.
// The transaction commits when fn returns nil and rolls back otherwise;
// partial success is never persisted.
func (s *Store) InTx(fn func(tx *Store) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	scoped := &Store{
		db:        s.db,
		locks:     s.locks,
		Tracks:    &TrackRepository{db: tx},
		Playlists: &PlaylistRepository{db: tx},
		Links:     &LinkRepository{db: tx},
		Bindings:  &BindingRepository{db: tx},
		Snapshots: &SnapshotRepository{db: tx},
	}

	if err := fn(scoped); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LockPlaylist takes the writer lock for one playlist and returns the
// release func. Writes to different playlists proceed in parallel.
func (s *Store) LockPlaylist(playlistID int64) func() {
	return s.locks.lock(playlistID)
}

// playlistLocks keys a mutex per playlist id.
type playlistLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newPlaylistLocks() *playlistLocks {
	return &playlistLocks{locks: make(map[int64]*sync.Mutex)}
}

func (p *playlistLocks) lock(id int64) func() {
	p.mu.Lock()
	m, ok := p.locks[id]
	if !ok {
		m = &sync.Mutex{}
		p.locks[id] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// wrapConflict maps sqlite uniqueness violations onto shared.ErrConflict
// so callers can classify without knowing the driver.
func wrapConflict(err error, context string) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s: %v", shared.ErrConflict, context, err)
	}
	return fmt.Errorf("%s: %w", context, err)
}
