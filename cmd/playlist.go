package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/pulsemix/internal/formatter"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/desertthunder/pulsemix/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Playlist derives the current mood, resolves tracks for it, and exports them.
//
// Each invocation starts from empty state, so the mood comes from --sample files or a
// fresh provider fetch.
func (r *Runner) Playlist(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	userID := r.userID(cmd)
	if err := r.primeMood(ctx, st, cmd.StringSlice("sample"), userID, cmd.Bool("enrich")); err != nil {
		return err
	}

	token := cmd.String("token")
	if token == "" && st.spotify != nil {
		if token, err = st.catalogToken(ctx, userID); err != nil {
			r.logger.Warn("no catalog token, using offline picks", "error", err)
			token = ""
		}
	}

	result, err := st.engine.ResolvePlaylist(ctx, nil, token, cmd.Bool("enrich"))
	if err != nil {
		return err
	}
	r.logger.Info("resolved playlist", "mood", result.Label(), "source", result.Source, "tracks", len(result.Tracks))

	output := cmd.String("output")
	if output != "" {
		files, err := formatter.WriteExport(result, format, output, r.httpClient)
		if err != nil {
			return err
		}
		for _, file := range files {
			r.writePlain("✓ Wrote %s\n", file)
		}
	} else if err := formatter.Export(r.output, result, format); err != nil {
		return err
	}

	if !cmd.Bool("save") {
		return nil
	}
	if token == "" {
		return fmt.Errorf("%w: saving needs a catalog token (--token or 'pulsemix auth spotify')", shared.ErrMissingArgument)
	}

	name := cmd.String("name")
	if name == "" {
		name = tasks.PlaylistName(result.Label(), time.Now())
	}
	id, err := st.engine.SavePlaylist(ctx, token, result, name)
	if err != nil {
		return err
	}
	r.logger.Info("saved playlist", "id", id, "name", name)
	if output != "" {
		r.writePlain("✓ Saved %q as %s\n", name, id)
	}
	return nil
}

// primeMood syncs sample files when given, or fetches from the provider otherwise.
func (r *Runner) primeMood(ctx context.Context, st *stack, samples []string, userID string, enrich bool) error {
	opts := tasks.SyncOptions{UserID: userID, Enrich: enrich}
	if len(samples) > 0 {
		_, err := r.syncSamples(ctx, st.engine, samples, opts)
		return err
	}
	if st.whoop == nil {
		return fmt.Errorf("%w: pass --sample provider=path or configure whoop credentials", shared.ErrNoMetrics)
	}
	_, err := st.engine.FetchProviderData(ctx, userID, opts)
	return err
}
