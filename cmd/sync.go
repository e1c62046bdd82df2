package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/desertthunder/pulsemix/internal/tasks"
	"github.com/urfave/cli/v3"
)

// sample is one provider=path argument.
type sample struct {
	provider models.ProviderID
	path     string
}

func parseSamples(args []string) ([]sample, error) {
	samples := make([]sample, 0, len(args))
	for _, arg := range args {
		provider, path, ok := strings.Cut(arg, "=")
		provider, path = strings.TrimSpace(provider), strings.TrimSpace(path)
		if !ok || provider == "" || path == "" {
			return nil, fmt.Errorf("%w: sample %q must be provider=path", shared.ErrInvalidArgument, arg)
		}
		samples = append(samples, sample{provider: models.ProviderID(strings.ToLower(provider)), path: path})
	}
	return samples, nil
}

func readPayload(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s is not a JSON object: %v", shared.ErrInvalidInput, path, err)
	}
	return payload, nil
}

// syncSamples feeds every sample file through the engine and returns the last result.
func (r *Runner) syncSamples(ctx context.Context, engine *tasks.Engine, args []string, opts tasks.SyncOptions) (*tasks.SyncResult, error) {
	samples, err := parseSamples(args)
	if err != nil {
		return nil, err
	}

	var last *tasks.SyncResult
	for _, s := range samples {
		payload, err := readPayload(s.path)
		if err != nil {
			return nil, err
		}
		result, err := engine.SyncWearable(ctx, s.provider, payload, opts)
		if err != nil {
			return nil, fmt.Errorf("sync %s from %s: %w", s.provider, s.path, err)
		}
		r.logger.Debug("synced sample file", "provider", s.provider, "path", s.path)
		last = result
	}
	return last, nil
}

// Sync ingests payload files and prints the resulting mood.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := r.syncSamples(ctx, st.engine, cmd.StringSlice("sample"), tasks.SyncOptions{
		UserID: r.userID(cmd),
		Enrich: cmd.Bool("enrich"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	return r.writeSync(result)
}

// Fetch pulls the latest Whoop data for each user on a worker pool.
func (r *Runner) Fetch(ctx context.Context, cmd *cli.Command) error {
	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	if st.whoop == nil {
		return fmt.Errorf("%w: whoop credentials are not configured", shared.ErrMissingCredentials)
	}

	users := cmd.StringSlice("user")
	if len(users) == 0 {
		if users, err = st.syncUsers(ctx, r.config.Sync.UserID); err != nil {
			return err
		}
	}

	prog := make(chan tasks.ProgressUpdate, len(users)*2+1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range prog {
			r.logger.Info(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	batch, err := st.engine.FetchAll(ctx, prog, users, tasks.BatchOpts{
		NumWorkers: cmd.Int("workers"),
		Sync:       tasks.SyncOptions{Enrich: cmd.Bool("enrich")},
	})
	close(prog)
	<-done
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(batch, true)
	}

	r.writePlainHeader(fmt.Sprintf("Fetched %d/%d users", batch.Succeeded, batch.Total))
	var latest *tasks.SyncResult
	for _, res := range batch.Results {
		if res.Error != nil {
			r.writePlain("✗ %s: %v\n", res.UserID, res.Error)
			continue
		}
		r.writePlain("✓ %s: %s\n", res.UserID, res.Result.Mood.Label)
		latest = res.Result
	}
	if latest != nil {
		return r.writeSync(latest)
	}
	if batch.Failed > 0 {
		return fmt.Errorf("%w: every user failed to sync", shared.ErrServiceUnavailable)
	}
	return nil
}

// History lists recorded syncs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.engine.History(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}
	if len(records) == 0 {
		return r.writePlain("No syncs recorded\n")
	}

	r.writePlainHeader("Sync history")
	for _, rec := range records {
		r.writePlain("%s  %-8s %-9s %.2f  %s\n", rec.SyncedAt.Local().Format("2006-01-02 15:04"), rec.Provider, rec.Label, rec.Score, rec.UserID)
	}
	return nil
}

func (r *Runner) writeSync(result *tasks.SyncResult) error {
	if result == nil || result.Mood == nil {
		return r.writePlain("No mood yet\n")
	}
	mood := result.Mood

	r.writePlainHeader(fmt.Sprintf("Mood: %s (%.2f)", mood.Label, mood.Score))
	if mood.Summary != "" {
		r.writePlain("%s\n", mood.Summary)
	}
	if result.Aggregated != nil {
		r.writePlain("Providers: %d  Samples: %d\n", len(result.Aggregated.Providers), result.Aggregated.SampleCount)
	}
	r.writePlain("Source: %s\n", mood.Source)
	if result.EnrichmentError != "" {
		r.writePlain("Enrichment failed: %s\n", result.EnrichmentError)
	}
	for _, rec := range mood.Recommendations {
		r.writePlain("  • %s\n", rec)
	}
	return nil
}

func (r *Runner) userID(cmd *cli.Command) string {
	if user := cmd.String("user"); user != "" {
		return user
	}
	return r.config.Sync.UserID
}
