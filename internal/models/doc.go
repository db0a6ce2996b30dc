// Package models defines the domain entities persisted by the sync core.
//
// Entities map one-to-one onto database tables:
//   - [Track] : a song as known to the local library
//   - [Playlist] : an ordered collection of tracks, or a folder of playlists
//   - [PlaylistMember] : ordered membership edge between a playlist and a track
//   - [PlatformLink] : cross-platform identity record for one track on one platform
//   - [Binding] : link between a local playlist and an external playlist
//   - [Snapshot] : frozen membership of a binding at the last successful sync
//
// All entities are mutated only through internal/repositories. Validate
// enforces the field-level invariants before any write.
package models
