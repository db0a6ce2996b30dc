package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/syncta/internal/formatter"
	"github.com/desertthunder/syncta/internal/models"
	"github.com/desertthunder/syncta/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlaylistList prints the playlist tree: folders with their children
// indented beneath them.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	return r.printTree(0, 0)
}

func (r *Runner) printTree(parentID int64, depth int) error {
	children, err := r.store.Playlists.Children(parentID)
	if err != nil {
		return err
	}

	indent := strings.Repeat("  ", depth)
	for _, playlist := range children {
		label := playlist.Name
		if playlist.IsFolder() {
			label += "/"
		}
		if playlist.IsSystem {
			label += " (system)"
		}
		r.writePlain("%s%4d  %s\n", indent, playlist.ID, label)

		if playlist.IsFolder() {
			if err := r.printTree(playlist.ID, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// PlaylistCreate creates a playlist or folder, optionally under a parent.
func (r *Runner) PlaylistCreate(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	kind := models.KindPlaylist
	if cmd.Bool("folder") {
		kind = models.KindFolder
	}

	playlist := &models.Playlist{
		Name:     name,
		Kind:     kind,
		ParentID: int64(cmd.Int("parent")),
	}
	if err := r.store.Playlists.Create(playlist); err != nil {
		return err
	}

	r.writePlain("created %s %q (id %d)\n", kind, playlist.Name, playlist.ID)
	return nil
}

// PlaylistShow prints a playlist's tracks in order.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	id := int64(cmd.IntArg("id"))
	playlist, err := r.store.Playlists.Get(id)
	if err != nil {
		return err
	}
	tracks, err := r.store.Playlists.Tracks(id)
	if err != nil {
		return err
	}

	return r.writePlain("%s", formatter.ExportToText(playlist, tracks))
}

// PlaylistExport writes a playlist to a file in the requested format.
func (r *Runner) PlaylistExport(ctx context.Context, cmd *cli.Command) error {
	closer, err := r.open(cmd.String("config"))
	if err != nil {
		return err
	}
	defer closer()

	id := int64(cmd.IntArg("id"))
	playlist, err := r.store.Playlists.Get(id)
	if err != nil {
		return err
	}
	tracks, err := r.store.Playlists.Tracks(id)
	if err != nil {
		return err
	}

	output := cmd.String("output")
	var written string

	switch format := cmd.String("format"); format {
	case "csv":
		written, err = formatter.WriteCSVExport(playlist, tracks, output)
	case "markdown", "md":
		written, err = formatter.WriteMarkdownExport(playlist, tracks, output)
	case "text", "txt":
		written, err = formatter.WriteTextExport(playlist, tracks, output)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
	}
	if err != nil {
		return err
	}

	r.writePlain("exported %q to %s\n", playlist.Name, written)
	return nil
}
