package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/playlist"
	"github.com/desertthunder/pulsemix/internal/shared"
	th "github.com/desertthunder/pulsemix/internal/testing"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func flowPayload() map[string]any {
	return map[string]any{"readiness": 85, "sleepQuality": 90, "hrv": 100, "strain": 5, "restingHeartRate": 50}
}

func recoveryPayload() map[string]any {
	return map[string]any{
		"recovery": map[string]any{"score": map[string]any{"recovery_score": 30.0, "hrv_rmssd_milli": 40.0, "resting_heart_rate": 62.0}},
		"sleep":    map[string]any{"score": map[string]any{"sleep_performance_percentage": 40.0}},
	}
}

type historyStub struct {
	mu      sync.Mutex
	records []models.SyncRecord
	err     error
}

func (h *historyStub) Append(ctx context.Context, record *models.SyncRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, *record)
	return nil
}

func (h *historyStub) Recent(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.SyncRecord(nil), h.records...), nil
}

type resetStub struct {
	calls int
	err   error
}

func (r *resetStub) Reset(ctx context.Context) error {
	r.calls++
	return r.err
}

type recorderStub struct {
	mu              sync.Mutex
	syncs           map[string]int
	syncErrors      map[string]int
	classifications map[string]int
	enrichments     map[string]int
	resets          int
}

func newRecorderStub() *recorderStub {
	return &recorderStub{
		syncs:           map[string]int{},
		syncErrors:      map[string]int{},
		classifications: map[string]int{},
		enrichments:     map[string]int{},
	}
}

func (r *recorderStub) ObserveSync(provider string, providers int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs[provider]++
}

func (r *recorderStub) ObserveSyncError(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncErrors[provider]++
}

func (r *recorderStub) ObserveClassification(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifications[label]++
}

func (r *recorderStub) ObserveEnrichment(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrichments[outcome]++
}

func (r *recorderStub) ResetAggregate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
}

func TestSyncWearable(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes aggregates and classifies", func(t *testing.T) {
		rec := newRecorderStub()
		history := &historyStub{}
		engine := NewEngine(Deps{Now: clock, Metrics: rec, History: history})

		result, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{UserID: "u1"})
		if err != nil {
			t.Fatalf("SyncWearable() error = %v", err)
		}
		if result.Normalized.Provider != "manual" || *result.Normalized.Metrics.Readiness != 85 {
			t.Errorf("unexpected sample %+v", result.Normalized)
		}
		if result.Aggregated.SampleCount != 1 {
			t.Errorf("sample count = %d", result.Aggregated.SampleCount)
		}
		if result.Mood.Label != models.MoodFlow || result.Mood.Source != models.SourceHeuristic {
			t.Errorf("mood = %s/%s, want flow/heuristic", result.Mood.Label, result.Mood.Source)
		}
		if !result.Mood.UpdatedAt.Equal(fixedNow) {
			t.Errorf("updatedAt = %v", result.Mood.UpdatedAt)
		}

		if rec.syncs["manual"] != 1 || rec.classifications["flow"] != 1 {
			t.Errorf("unexpected metrics %+v", rec)
		}
		if len(history.records) != 1 || history.records[0].UserID != "u1" || history.records[0].Label != models.MoodFlow {
			t.Errorf("unexpected history %+v", history.records)
		}
		if !history.records[0].SyncedAt.Equal(fixedNow) {
			t.Errorf("history syncedAt = %v, want the engine clock %v", history.records[0].SyncedAt, fixedNow)
		}
		if !history.records[0].SyncedAt.Equal(result.Mood.UpdatedAt) {
			t.Errorf("history syncedAt %v differs from mood updatedAt %v", history.records[0].SyncedAt, result.Mood.UpdatedAt)
		}

		current, err := engine.CurrentMood()
		if err != nil || current.Label != models.MoodFlow {
			t.Fatalf("CurrentMood() = %v, %v", current, err)
		}
	})

	t.Run("a second provider joins the aggregate", func(t *testing.T) {
		engine := NewEngine(Deps{Now: clock})
		if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{}); err != nil {
			t.Fatal(err)
		}
		result, err := engine.SyncWearable(ctx, "whoop", recoveryPayload(), SyncOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if result.Aggregated.SampleCount != 2 {
			t.Errorf("sample count = %d, want 2", result.Aggregated.SampleCount)
		}
		// (85 + 30) / 2
		if got := *result.Aggregated.Metrics.Readiness; got != 57.5 {
			t.Errorf("readiness = %v, want 57.5", got)
		}
		// strain is only reported by manual
		if got := *result.Aggregated.Metrics.Strain; got != 5 {
			t.Errorf("strain = %v, want 5", got)
		}
	})

	t.Run("unsupported provider", func(t *testing.T) {
		rec := newRecorderStub()
		engine := NewEngine(Deps{Metrics: rec})
		_, err := engine.SyncWearable(ctx, "fitbit", flowPayload(), SyncOptions{})
		if !errors.Is(err, shared.ErrUnsupportedProvider) {
			t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
		}
		if rec.syncErrors["fitbit"] != 1 {
			t.Errorf("expected sync error metric")
		}
		if _, err := engine.CurrentMood(); !errors.Is(err, shared.ErrNoMetrics) {
			t.Errorf("expected no mood after failed sync, got %v", err)
		}
	})

	t.Run("enrichment overlays the snapshot", func(t *testing.T) {
		rec := newRecorderStub()
		enricher := &th.MockEnricher{Hint: models.EnrichmentHint{SearchQuery: "rainy day focus", Genres: []string{"ambient"}, Reasoning: "calm"}}
		engine := NewEngine(Deps{Now: clock, Enricher: enricher, Metrics: rec})

		result, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{Enrich: true, Context: models.EnrichmentContext{Weather: "rain"}})
		if err != nil {
			t.Fatalf("SyncWearable() error = %v", err)
		}
		if !result.Mood.Enriched() || result.Mood.PlaylistHints.SearchQuery != "rainy day focus" {
			t.Errorf("expected enriched mood, got %+v", result.Mood)
		}
		if result.Mood.Label != models.MoodFlow {
			t.Errorf("label should stay heuristic, got %s", result.Mood.Label)
		}
		if rec.enrichments[EnrichmentApplied] != 1 {
			t.Error("expected applied enrichment metric")
		}
	})

	t.Run("enrichment failure keeps the heuristic mood", func(t *testing.T) {
		rec := newRecorderStub()
		enricher := &th.MockEnricher{Err: fmt.Errorf("%w: malformed output", shared.ErrEnrichmentFailed)}
		engine := NewEngine(Deps{Now: clock, Enricher: enricher, Metrics: rec})

		result, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{Enrich: true})
		if err != nil {
			t.Fatalf("SyncWearable() error = %v", err)
		}
		if result.Mood.Enriched() || result.Mood.PlaylistHints.SearchQuery != "" {
			t.Errorf("expected heuristic mood, got %+v", result.Mood)
		}
		if !strings.Contains(result.EnrichmentError, "malformed output") {
			t.Errorf("enrichment error = %q", result.EnrichmentError)
		}
		if rec.enrichments[EnrichmentFailed] != 1 {
			t.Error("expected failed enrichment metric")
		}
	})

	t.Run("history failures are not fatal", func(t *testing.T) {
		engine := NewEngine(Deps{History: &historyStub{err: errors.New("disk full")}})
		if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{}); err != nil {
			t.Fatalf("SyncWearable() error = %v", err)
		}
	})

	t.Run("concurrent syncs for different providers", func(t *testing.T) {
		engine := NewEngine(Deps{})
		var wg sync.WaitGroup
		for _, provider := range []models.ProviderID{"manual", "whoop", "oura", "garmin"} {
			wg.Add(1)
			go func(p models.ProviderID) {
				defer wg.Done()
				if _, err := engine.SyncWearable(ctx, p, flowPayload(), SyncOptions{}); err != nil {
					t.Errorf("SyncWearable(%s) error = %v", p, err)
				}
			}(provider)
		}
		wg.Wait()

		if agg := engine.Aggregate(); agg == nil || agg.SampleCount != 4 {
			t.Errorf("expected 4 samples, got %+v", agg)
		}
	})
}

func TestFetchProviderData(t *testing.T) {
	ctx := context.Background()

	t.Run("syncs the provider payload", func(t *testing.T) {
		history := &historyStub{}
		engine := NewEngine(Deps{
			Provider: &Provider{ID: "whoop", Source: &th.MockSource{Payload: recoveryPayload()}},
			History:  history,
		})

		result, err := engine.FetchProviderData(ctx, "u1", SyncOptions{})
		if err != nil {
			t.Fatalf("FetchProviderData() error = %v", err)
		}
		if result.Normalized.Provider != "whoop" || result.Mood.Label != models.MoodRecovery {
			t.Errorf("unexpected result %+v", result.Mood)
		}
		if history.records[0].UserID != "u1" {
			t.Errorf("history user = %q", history.records[0].UserID)
		}
	})

	t.Run("reauth carries an authorization url", func(t *testing.T) {
		source := &th.MockSource{Err: &shared.ReauthRequiredError{UserID: "u1", Err: shared.ErrNoRefreshToken}}
		engine := NewEngine(Deps{
			Provider: &Provider{ID: "whoop", Source: source, Auth: &th.MockAuthorizer{URL: "https://auth.example/authorize"}},
		})

		_, err := engine.FetchProviderData(ctx, "u1", SyncOptions{})
		var reauth *shared.ReauthRequiredError
		if !errors.As(err, &reauth) {
			t.Fatalf("expected ReauthRequiredError, got %v", err)
		}
		if reauth.AuthURL != "https://auth.example/authorize?user=u1" {
			t.Errorf("auth url = %q", reauth.AuthURL)
		}
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("cause lost: %v", err)
		}
		if shared.HTTPStatus(err) != 401 {
			t.Errorf("status = %d, want 401", shared.HTTPStatus(err))
		}
	})

	t.Run("other fetch errors propagate", func(t *testing.T) {
		source := &th.MockSource{Err: &shared.HTTPStatusError{StatusCode: 500}}
		engine := NewEngine(Deps{Provider: &Provider{ID: "whoop", Source: source, Auth: &th.MockAuthorizer{}}})

		_, err := engine.FetchProviderData(ctx, "u1", SyncOptions{})
		var statusErr *shared.HTTPStatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected HTTPStatusError, got %v", err)
		}
	})

	t.Run("requires a provider and user", func(t *testing.T) {
		if _, err := NewEngine(Deps{}).FetchProviderData(ctx, "u1", SyncOptions{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
		engine := NewEngine(Deps{Provider: &Provider{ID: "whoop", Source: &th.MockSource{}}})
		if _, err := engine.FetchProviderData(ctx, " ", SyncOptions{}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestEnrich(t *testing.T) {
	ctx := context.Background()

	t.Run("requires metrics", func(t *testing.T) {
		engine := NewEngine(Deps{Enricher: &th.MockEnricher{}})
		if _, err := engine.Enrich(ctx, models.EnrichmentContext{}); !errors.Is(err, shared.ErrNoMetrics) {
			t.Errorf("expected ErrNoMetrics, got %v", err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		engine := NewEngine(Deps{})
		if _, err := engine.Enrich(ctx, models.EnrichmentContext{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("failures propagate", func(t *testing.T) {
		enricher := &th.MockEnricher{Err: shared.ErrEnrichmentFailed}
		engine := NewEngine(Deps{Enricher: enricher})
		if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{}); err != nil {
			t.Fatal(err)
		}
		if _, err := engine.Enrich(ctx, models.EnrichmentContext{}); !errors.Is(err, shared.ErrEnrichmentFailed) {
			t.Errorf("expected ErrEnrichmentFailed, got %v", err)
		}
		current, _ := engine.CurrentMood()
		if current.Enriched() {
			t.Error("current mood should stay heuristic")
		}
	})

	t.Run("overlays the current mood", func(t *testing.T) {
		enricher := &th.MockEnricher{Hint: models.EnrichmentHint{Genres: []string{"jazz"}}}
		engine := NewEngine(Deps{Enricher: enricher})
		if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{}); err != nil {
			t.Fatal(err)
		}

		result, err := engine.Enrich(ctx, models.EnrichmentContext{})
		if err != nil {
			t.Fatalf("Enrich() error = %v", err)
		}
		if !result.Mood.Enriched() || result.Mood.PlaylistHints.SeedGenres[0] != "jazz" {
			t.Errorf("unexpected mood %+v", result.Mood)
		}
		current, _ := engine.CurrentMood()
		if !current.Enriched() {
			t.Error("current mood should be enriched")
		}
	})
}

func TestResolvePlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a mood", func(t *testing.T) {
		if _, err := NewEngine(Deps{}).ResolvePlaylist(ctx, nil, "token", false); !errors.Is(err, shared.ErrNoMetrics) {
			t.Errorf("expected ErrNoMetrics, got %v", err)
		}
	})

	t.Run("no token serves the static fallback", func(t *testing.T) {
		searcher := &th.MockSearcher{}
		engine := NewEngine(Deps{Resolver: playlist.NewResolver(searcher, playlist.Options{})})
		if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{}); err != nil {
			t.Fatal(err)
		}

		result, err := engine.ResolvePlaylist(ctx, nil, "", false)
		if err != nil {
			t.Fatalf("ResolvePlaylist() error = %v", err)
		}
		if result.Source != playlist.SourceFallback || len(result.Tracks) == 0 {
			t.Errorf("unexpected result %+v", result)
		}
		if len(searcher.Calls()) != 0 {
			t.Errorf("expected no searches, got %v", searcher.Calls())
		}
	})

	t.Run("enriched query wins", func(t *testing.T) {
		searcher := &th.MockSearcher{Results: map[string][]models.RawTrack{"rainy day focus": th.RawTracks("r", 3)}}
		enricher := &th.MockEnricher{Hint: models.EnrichmentHint{SearchQuery: "rainy day focus"}}
		engine := NewEngine(Deps{Enricher: enricher, Resolver: playlist.NewResolver(searcher, playlist.Options{})})
		if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{Enrich: true}); err != nil {
			t.Fatal(err)
		}

		result, err := engine.ResolvePlaylist(ctx, nil, "token", true)
		if err != nil {
			t.Fatalf("ResolvePlaylist() error = %v", err)
		}
		if result.Source != playlist.SourceEnrichedSearch || result.Query != "rainy day focus" || len(result.Tracks) != 3 {
			t.Errorf("unexpected result %+v", result)
		}
		if result.Mood == nil || result.Mood.Label != models.MoodFlow {
			t.Errorf("result should carry the mood")
		}
	})

	t.Run("expired token falls back", func(t *testing.T) {
		searcher := &th.MockSearcher{Errs: map[string]error{"deep focus instrumental": &shared.HTTPStatusError{StatusCode: 401}}}
		engine := NewEngine(Deps{Resolver: playlist.NewResolver(searcher, playlist.Options{})})
		if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{}); err != nil {
			t.Fatal(err)
		}

		result, err := engine.ResolvePlaylist(ctx, nil, "token", false)
		if err != nil {
			t.Fatalf("ResolvePlaylist() error = %v", err)
		}
		if result.Source != playlist.SourceFallback || !strings.Contains(result.Reason, "expired") {
			t.Errorf("unexpected result %+v", result)
		}
		if len(searcher.Calls()) != 1 {
			t.Errorf("expected one search, got %v", searcher.Calls())
		}
	})

	t.Run("explicit snapshot", func(t *testing.T) {
		engine := NewEngine(Deps{})
		snapshot := &models.MoodSnapshot{Label: models.MoodAmped}
		result, err := engine.ResolvePlaylist(ctx, snapshot, "", false)
		if err != nil {
			t.Fatalf("ResolvePlaylist() error = %v", err)
		}
		if result.Tracks[0].ID != "fallback-amped-1" {
			t.Errorf("unexpected first track %+v", result.Tracks[0])
		}
	})
}

func TestSavePlaylist(t *testing.T) {
	ctx := context.Background()
	live := &PlaylistResult{
		Mood: &models.MoodSnapshot{Label: models.MoodFlow, Summary: "focused"},
		Tracks: []models.TrackResult{
			{ID: "1", CanonicalURI: "spotify:track:1"},
			{ID: "2"},
			{ID: "3", CanonicalURI: "spotify:track:3"},
		},
	}

	t.Run("creates and fills the playlist", func(t *testing.T) {
		saver := &th.MockSaver{ID: "pl-9"}
		engine := NewEngine(Deps{Saver: saver, Now: clock})

		id, err := engine.SavePlaylist(ctx, "token", live, "")
		if err != nil {
			t.Fatalf("SavePlaylist() error = %v", err)
		}
		if id != "pl-9" {
			t.Errorf("id = %q", id)
		}
		if saver.Specs[0].Name != "pulsemix: flow 2026-03-14" || saver.Specs[0].Description != "focused" {
			t.Errorf("unexpected spec %+v", saver.Specs[0])
		}
		if len(saver.URIs) != 2 || saver.URIs[1] != "spotify:track:3" {
			t.Errorf("unexpected uris %v", saver.URIs)
		}
	})

	t.Run("fallback tracks cannot be saved", func(t *testing.T) {
		engine := NewEngine(Deps{Saver: &th.MockSaver{ID: "x"}})
		fallback := &PlaylistResult{Tracks: playlist.Fallback(models.MoodReset)}
		if _, err := engine.SavePlaylist(ctx, "token", fallback, "mine"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("unauthorized maps to token expired", func(t *testing.T) {
		saver := &th.MockSaver{CreateErr: &shared.HTTPStatusError{StatusCode: 401}}
		engine := NewEngine(Deps{Saver: saver})
		if _, err := engine.SavePlaylist(ctx, "token", live, "mine"); !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("unauthorized while adding tracks maps to token expired", func(t *testing.T) {
		added := fmt.Errorf("add tracks 0-2: %w", &shared.HTTPStatusError{StatusCode: 401})
		saver := &th.MockSaver{ID: "pl-4", AddErr: added}
		engine := NewEngine(Deps{Saver: saver})

		id, err := engine.SavePlaylist(ctx, "token", live, "mine")
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
		if id != "pl-4" {
			t.Errorf("id = %q, want the created playlist id", id)
		}
	})

	t.Run("other add failures pass through", func(t *testing.T) {
		saver := &th.MockSaver{ID: "pl-5", AddErr: &shared.HTTPStatusError{StatusCode: 500}}
		engine := NewEngine(Deps{Saver: saver})

		_, err := engine.SavePlaylist(ctx, "token", live, "mine")
		if err == nil || errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected a plain error, got %v", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		if _, err := NewEngine(Deps{}).SavePlaylist(ctx, "token", live, ""); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	rec := newRecorderStub()
	tokens := &resetStub{}
	failing := &resetStub{err: errors.New("locked")}
	engine := NewEngine(Deps{Metrics: rec, Resetters: []Resetter{tokens, failing}})

	if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{}); err != nil {
		t.Fatal(err)
	}

	err := engine.Reset(ctx)
	if err == nil || !strings.Contains(err.Error(), "locked") {
		t.Errorf("expected joined resetter error, got %v", err)
	}
	if tokens.calls != 1 || failing.calls != 1 {
		t.Errorf("every resetter should run: %d, %d", tokens.calls, failing.calls)
	}
	if engine.Aggregate() != nil {
		t.Error("aggregate should be cleared")
	}
	if _, err := engine.CurrentMood(); !errors.Is(err, shared.ErrNoMetrics) {
		t.Errorf("expected ErrNoMetrics after reset, got %v", err)
	}
	if rec.resets != 1 {
		t.Errorf("expected gauge reset")
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	if _, err := NewEngine(Deps{}).History(ctx, 10); !errors.Is(err, shared.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}

	history := &historyStub{}
	engine := NewEngine(Deps{History: history})
	for range 3 {
		if _, err := engine.SyncWearable(ctx, "manual", flowPayload(), SyncOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	records, err := engine.History(ctx, 10)
	if err != nil || len(records) != 3 {
		t.Errorf("History() = %d records, %v", len(records), err)
	}
}
