// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistCommand, bindCommand, syncCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configFlag is shared by every command that reads configuration.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand handles database and configuration setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// authCommand handles platform authentication.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage platform authentication",
		Commands: []*cli.Command{
			{
				Name:  "spotify",
				Usage: "Authenticate with Spotify using OAuth2",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "code",
						Usage: "Authorization code from the redirect URL",
					},
				},
				Action: r.AuthSpotify,
			},
			{
				Name:   "status",
				Usage:  "Check authentication state for every adapter",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// playlistCommand handles local playlist operations.
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Local playlist operations",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List playlists and folders as a tree",
				Flags:  []cli.Flag{configFlag()},
				Action: r.PlaylistList,
			},
			{
				Name:  "create",
				Usage: "Create a playlist or folder",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "folder",
						Usage: "Create a folder instead of a playlist",
					},
					&cli.IntFlag{
						Name:  "parent",
						Usage: "Parent folder id (0 for top level)",
					},
				},
				Action: r.PlaylistCreate,
			},
			{
				Name:  "show",
				Usage: "Show a playlist's tracks",
				Arguments: []cli.Argument{
					&cli.IntArg{Name: "id"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.PlaylistShow,
			},
			{
				Name:  "export",
				Usage: "Export a playlist to CSV, Markdown, or plain text",
				Arguments: []cli.Argument{
					&cli.IntArg{Name: "id"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: csv, markdown, or text",
						Value: "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
					},
				},
				Action: r.PlaylistExport,
			},
		},
	}
}

// bindCommand manages playlist bindings.
func bindCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "bind",
		Usage: "Manage playlist-platform bindings",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Bind a local playlist to a platform playlist",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:     "playlist-id",
						Usage:    "Local playlist id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "platform",
						Usage:    "Platform name (e.g. spotify)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "external-id",
						Usage: "Remote playlist id (omit to create on first sync)",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Sync mode",
					},
					&cli.BoolFlag{
						Name:  "shared",
						Usage: "Mark the remote playlist as not personally owned",
					},
				},
				Action: r.BindAdd,
			},
			{
				Name:   "list",
				Usage:  "List all bindings",
				Flags:  []cli.Flag{configFlag()},
				Action: r.BindList,
			},
			{
				Name:  "remove",
				Usage: "Remove a binding and its snapshot",
				Arguments: []cli.Argument{
					&cli.IntArg{Name: "id"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.BindRemove,
			},
		},
	}
}

// syncCommand handles preview, sync, import, and export.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize bound playlists",
		Commands: []*cli.Command{
			{
				Name:  "preview",
				Usage: "Show the changes a sync would apply, without applying",
				Arguments: []cli.Argument{
					&cli.IntArg{Name: "binding-id"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.SyncPreview,
			},
			{
				Name:  "run",
				Usage: "Sync one binding with default selections",
				Arguments: []cli.Argument{
					&cli.IntArg{Name: "binding-id"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.SyncRun,
			},
			{
				Name:   "all",
				Usage:  "Sync every binding through the job queue",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SyncAll,
			},
			{
				Name:  "import",
				Usage: "Import a platform playlist into the library",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "platform",
						Usage:    "Platform name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Remote playlist id",
						Required: true,
					},
				},
				Action: r.SyncImport,
			},
			{
				Name:  "export",
				Usage: "Export a local playlist to a platform",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:     "playlist-id",
						Usage:    "Local playlist id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "platform",
						Usage:    "Platform name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Sync mode for the new binding",
						Value: "mirror_to_platform",
					},
				},
				Action: r.SyncExport,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for interactive sync.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for reviewing and applying syncs",
		Flags:   []cli.Flag{configFlag()},
		Action:  r.TUI,
	}
}
