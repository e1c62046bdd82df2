// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config.toml from the built-in template",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the sqlite token store and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Database path (default: storage.path)",
					},
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// syncCommand ingests wearable payloads from files.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync wearable payloads from JSON files and print the mood",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "sample",
				Aliases:  []string{"s"},
				Usage:    "provider=path to a raw payload file (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "User id recorded in the sync history",
			},
			&cli.BoolFlag{
				Name:  "enrich",
				Usage: "Ask the language model for a mood hint",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Sync,
	}
}

// fetchCommand pulls the latest data from the metric provider.
func fetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch the latest Whoop cycle, recovery, and sleep and sync them",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "user",
				Usage: "User ids to sync (default: every stored user, then sync.user_id)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent fetches",
				Value: 3,
			},
			&cli.BoolFlag{
				Name:  "enrich",
				Usage: "Ask the language model for a mood hint",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Fetch,
	}
}

// playlistCommand resolves, exports, and optionally saves a playlist.
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"mix"},
		Usage:   "Resolve a playlist for the current mood",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "sample",
				Aliases: []string{"s"},
				Usage:   "provider=path payload to sync first (repeatable); fetches from Whoop when omitted",
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "User id for stored tokens (default: sync.user_id)",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Catalog access token (default: the stored Spotify token)",
			},
			&cli.BoolFlag{
				Name:  "enrich",
				Usage: "Use the language model hint for the search query",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (json, csv, markdown, txt)",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the export to a file (or directory for markdown)",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Create the playlist in the catalog account",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Playlist name when saving",
			},
		},
		Action: r.Playlist,
	}
}

// authCommand handles OAuth flows for each provider.
func authCommand(r *Runner) *cli.Command {
	userFlag := &cli.StringFlag{
		Name:  "user",
		Usage: "User id to store the token under (default: sync.user_id)",
	}
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize pulsemix with a provider",
		Commands: []*cli.Command{
			{
				Name:   "whoop",
				Usage:  "Authorize Whoop using OAuth2",
				Flags:  []cli.Flag{userFlag},
				Action: r.AuthWhoop,
			},
			{
				Name:    "spotify",
				Aliases: []string{"spot"},
				Usage:   "Authorize Spotify using OAuth2",
				Flags:   []cli.Flag{userFlag},
				Action:  r.AuthSpotify,
			},
			{
				Name:   "status",
				Usage:  "Show stored token state",
				Flags:  []cli.Flag{userFlag},
				Action: r.AuthStatus,
			},
		},
	}
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (default: server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (default: server.port)",
			},
			&cli.StringFlag{
				Name:  "schedule",
				Usage: "Cron schedule for provider re-syncs (default: sync.schedule)",
			},
		},
		Action: r.Serve,
	}
}

// historyCommand lists recorded syncs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent syncs (sqlite storage only)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

// tuiCommand returns the top-level TUI command for the mood dashboard.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive mood dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "User id (default: sync.user_id)",
			},
			&cli.StringSliceFlag{
				Name:    "sample",
				Aliases: []string{"s"},
				Usage:   "provider=path payload to sync before starting (repeatable)",
			},
		},
		Action: r.TUI,
	}
}
