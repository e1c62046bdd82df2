package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/mood"
	"github.com/desertthunder/pulsemix/internal/playlist"
	"github.com/desertthunder/pulsemix/internal/services"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/desertthunder/pulsemix/internal/wearable"
)

// Enrichment outcomes reported to the [Recorder].
const (
	EnrichmentApplied = "applied"
	EnrichmentFailed  = "failed"
)

// Enricher is the optional language model collaborator.
type Enricher interface {
	Enrich(ctx context.Context, agg *models.AggregatedMetrics, ec models.EnrichmentContext) (models.EnrichmentHint, error)
}

// ProviderSource fetches the latest raw payload for a user from a metric provider.
type ProviderSource interface {
	FetchLatestRaw(ctx context.Context, userID string) (map[string]any, error)
}

// Authorizer starts a new authorization flow for a user.
type Authorizer interface {
	BeginAuthorization(userID string) (string, error)
}

// PlaylistSaver persists resolved tracks as a catalog playlist.
type PlaylistSaver interface {
	CreatePlaylist(ctx context.Context, accessToken string, spec services.PlaylistSpec) (string, error)
	AddTracks(ctx context.Context, accessToken, playlistID string, uris []string) error
}

// HistoryRecorder keeps a log of finished syncs.
type HistoryRecorder interface {
	Append(ctx context.Context, record *models.SyncRecord) error
	Recent(ctx context.Context, limit int) ([]models.SyncRecord, error)
}

// Resetter is any component holding state cleared by [Engine.Reset].
type Resetter interface {
	Reset(ctx context.Context) error
}

// Recorder is notified of syncs, classifications, and enrichment attempts.
type Recorder interface {
	ObserveSync(provider string, providers int, elapsed time.Duration)
	ObserveSyncError(provider string)
	ObserveClassification(label string)
	ObserveEnrichment(outcome string)
	ResetAggregate()
}

// Provider couples a remote metric source with the authorizer that gates it.
type Provider struct {
	ID     models.ProviderID
	Source ProviderSource
	Auth   Authorizer
}

// Deps are the collaborators of an [Engine]. Normalizer, Store, Classifier, and Resolver
// default to fresh instances; every other field is optional.
type Deps struct {
	Normalizer *wearable.Normalizer
	Store      *wearable.Store
	Classifier *mood.Classifier
	Resolver   *playlist.Resolver
	Enricher   Enricher
	Provider   *Provider
	Saver      PlaylistSaver
	History    HistoryRecorder
	Resetters  []Resetter
	Metrics    Recorder
	Logger     *log.Logger
	Now        func() time.Time
}

// SyncOptions tunes one sync call.
type SyncOptions struct {
	// UserID is recorded in the sync history.
	UserID string
	// Enrich asks the enrichment collaborator for a hint after classification.
	Enrich  bool
	Context models.EnrichmentContext
}

// SyncResult is the output of a sync: the new sample, the recomputed aggregate, and the mood.
type SyncResult struct {
	Normalized models.CanonicalSample    `json:"normalizedMetrics"`
	Aggregated *models.AggregatedMetrics `json:"aggregatedMetrics"`
	Mood       *models.MoodSnapshot      `json:"mood"`
	// EnrichmentError is set when enrichment was requested and failed.
	EnrichmentError string `json:"enrichmentError,omitempty"`
}

// EnrichResult is the output of an enrichment-only call.
type EnrichResult struct {
	Hint models.EnrichmentHint `json:"hint"`
	Mood *models.MoodSnapshot  `json:"mood"`
}

// PlaylistResult is a resolved track list together with the mood it was resolved for.
type PlaylistResult struct {
	Mood   *models.MoodSnapshot `json:"mood"`
	Tracks []models.TrackResult `json:"tracks"`
	Source string               `json:"source"`
	Query  string               `json:"query,omitempty"`
	Reason string               `json:"reason,omitempty"`
}

// Engine wires normalization, aggregation, classification, enrichment, and track resolution
// into the operations exposed by the CLI and HTTP layers.
type Engine struct {
	normalizer *wearable.Normalizer
	store      *wearable.Store
	classifier *mood.Classifier
	resolver   *playlist.Resolver
	enricher   Enricher
	provider   *Provider
	saver      PlaylistSaver
	history    HistoryRecorder
	resetters  []Resetter
	metrics    Recorder
	logger     *log.Logger
	now        func() time.Time

	mu      sync.RWMutex
	current *models.MoodSnapshot
}

// NewEngine creates an [Engine] from deps.
func NewEngine(deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = shared.DiscardLogger()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = wearable.NewNormalizer(nil, deps.Now)
	}
	if deps.Store == nil {
		deps.Store = wearable.NewStore()
	}
	if deps.Classifier == nil {
		deps.Classifier = mood.NewClassifier(deps.Now)
	}
	if deps.Resolver == nil {
		deps.Resolver = playlist.NewResolver(nil, playlist.Options{Logger: deps.Logger})
	}

	return &Engine{
		normalizer: deps.Normalizer,
		store:      deps.Store,
		classifier: deps.Classifier,
		resolver:   deps.Resolver,
		enricher:   deps.Enricher,
		provider:   deps.Provider,
		saver:      deps.Saver,
		history:    deps.History,
		resetters:  deps.Resetters,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
	}
}

// SyncWearable normalizes payload, records it as the provider's latest sample, and
// reclassifies the aggregate. A failed enrichment is logged and the heuristic mood is kept.
func (e *Engine) SyncWearable(ctx context.Context, provider models.ProviderID, payload map[string]any, opts SyncOptions) (*SyncResult, error) {
	started := e.now()

	sample, err := e.normalizer.Normalize(provider, payload)
	if err != nil {
		e.observeSyncError(provider)
		return nil, err
	}
	e.store.Record(provider, sample)

	agg := e.store.Aggregate()
	snapshot, err := e.classifier.Classify(agg)
	if err != nil {
		e.observeSyncError(provider)
		return nil, err
	}

	result := &SyncResult{Normalized: sample, Aggregated: agg}
	if opts.Enrich {
		if err := e.enrich(ctx, snapshot, agg, opts.Context); err != nil {
			e.logger.Warn("enrichment failed, keeping heuristic mood", "provider", provider, "error", err)
			result.EnrichmentError = err.Error()
		}
	}

	e.setCurrent(snapshot)
	result.Mood = snapshot.Clone()

	if e.metrics != nil {
		e.metrics.ObserveSync(string(provider), len(agg.Providers), e.now().Sub(started))
		e.metrics.ObserveClassification(string(snapshot.Label))
	}
	e.recordHistory(ctx, opts.UserID, provider, snapshot, agg)

	e.logger.Info("synced sample", "provider", provider, "mood", snapshot.Label, "score", snapshot.Score, "samples", agg.SampleCount)
	return result, nil
}

// FetchProviderData pulls the latest payload for userID from the configured provider and syncs it.
//
// When the stored credentials cannot be used the error is a [*shared.ReauthRequiredError]
// whose AuthURL starts a new authorization flow.
func (e *Engine) FetchProviderData(ctx context.Context, userID string, opts SyncOptions) (*SyncResult, error) {
	if e.provider == nil || e.provider.Source == nil {
		return nil, fmt.Errorf("%w: no metric provider configured", shared.ErrServiceUnavailable)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	payload, err := e.provider.Source.FetchLatestRaw(ctx, userID)
	if err != nil {
		e.observeSyncError(e.provider.ID)
		return nil, e.withAuthURL(userID, err)
	}

	if opts.UserID == "" {
		opts.UserID = userID
	}
	return e.SyncWearable(ctx, e.provider.ID, payload, opts)
}

// Enrich asks the enrichment collaborator for a hint against the current aggregate and
// overlays it on the current mood. Unlike during a sync, failures are returned.
func (e *Engine) Enrich(ctx context.Context, ec models.EnrichmentContext) (*EnrichResult, error) {
	if e.enricher == nil {
		return nil, fmt.Errorf("%w: enrichment is disabled", shared.ErrServiceUnavailable)
	}

	agg := e.store.Aggregate()
	if agg == nil {
		return nil, shared.ErrNoMetrics
	}
	snapshot, err := e.CurrentMood()
	if err != nil {
		if snapshot, err = e.classifier.Classify(agg); err != nil {
			return nil, err
		}
	}

	hint, err := e.enricher.Enrich(ctx, agg, ec)
	if err != nil {
		e.observeEnrichment(EnrichmentFailed)
		return nil, err
	}
	e.observeEnrichment(EnrichmentApplied)

	snapshot.ApplyHint(hint)
	e.setCurrent(snapshot)
	return &EnrichResult{Hint: hint, Mood: snapshot.Clone()}, nil
}

// ResolvePlaylist resolves snapshot (or the current mood when nil) into tracks. It always
// answers with some list; it only fails when no mood exists yet.
func (e *Engine) ResolvePlaylist(ctx context.Context, snapshot *models.MoodSnapshot, accessToken string, useEnrichment bool) (*PlaylistResult, error) {
	if snapshot == nil {
		current, err := e.CurrentMood()
		if err != nil {
			return nil, err
		}
		snapshot = current
	}

	res, err := e.resolver.ResolveOrFallback(ctx, snapshot, accessToken, useEnrichment)
	if err != nil {
		return nil, err
	}

	return &PlaylistResult{
		Mood:   snapshot,
		Tracks: res.Tracks,
		Source: res.Source,
		Query:  res.Query,
		Reason: res.Reason,
	}, nil
}

// Label is the mood the tracks were resolved for. A result without a snapshot reports reset.
func (r *PlaylistResult) Label() models.MoodLabel {
	if r == nil || r.Mood == nil {
		return models.MoodReset
	}
	return r.Mood.Label
}

// PlaylistName is the default title for a playlist resolved for label at t.
func PlaylistName(label models.MoodLabel, t time.Time) string {
	return fmt.Sprintf("pulsemix: %s %s", label, t.Format("2006-01-02"))
}

// SavePlaylist creates a catalog playlist from result and returns its id. Tracks without a
// canonical URI (the static fallback) cannot be saved.
func (e *Engine) SavePlaylist(ctx context.Context, accessToken string, result *PlaylistResult, name string) (string, error) {
	if e.saver == nil {
		return "", fmt.Errorf("%w: playlist saving is not configured", shared.ErrServiceUnavailable)
	}
	if result == nil {
		return "", fmt.Errorf("%w: playlist result", shared.ErrMissingArgument)
	}

	uris := make([]string, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		if t.CanonicalURI != "" {
			uris = append(uris, t.CanonicalURI)
		}
	}
	if len(uris) == 0 {
		return "", fmt.Errorf("%w: no catalog tracks to save", shared.ErrInvalidInput)
	}

	summary := ""
	if result.Mood != nil {
		summary = result.Mood.Summary
	}
	if strings.TrimSpace(name) == "" {
		name = PlaylistName(result.Label(), e.now())
	}

	id, err := e.saver.CreatePlaylist(ctx, accessToken, services.PlaylistSpec{Name: name, Description: summary})
	if err != nil {
		if shared.IsUnauthorized(err) {
			return "", fmt.Errorf("%w: %w", shared.ErrTokenExpired, err)
		}
		return "", err
	}
	if err := e.saver.AddTracks(ctx, accessToken, id, uris); err != nil {
		if shared.IsUnauthorized(err) {
			return id, fmt.Errorf("%w: playlist %s created without tracks: %w", shared.ErrTokenExpired, id, err)
		}
		return id, err
	}

	e.logger.Info("saved playlist", "id", id, "name", name, "tracks", len(uris))
	return id, nil
}

// CurrentMood returns a copy of the latest snapshot, or [shared.ErrNoMetrics] before the first sync.
func (e *Engine) CurrentMood() (*models.MoodSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil, shared.ErrNoMetrics
	}
	return e.current.Clone(), nil
}

// Aggregate returns the current aggregate, or nil before the first sync.
func (e *Engine) Aggregate() *models.AggregatedMetrics {
	return e.store.Aggregate()
}

// History returns the most recent syncs, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	if e.history == nil {
		return nil, fmt.Errorf("%w: sync history requires the sqlite storage driver", shared.ErrServiceUnavailable)
	}
	return e.history.Recent(ctx, limit)
}

// Providers lists the provider ids accepted by [Engine.SyncWearable].
func (e *Engine) Providers() []models.ProviderID {
	return e.normalizer.Providers()
}

// Reset clears samples, the current mood, and every registered resetter.
func (e *Engine) Reset(ctx context.Context) error {
	e.store.Reset()
	e.setCurrent(nil)
	if e.metrics != nil {
		e.metrics.ResetAggregate()
	}

	var errs []error
	for _, r := range e.resetters {
		if err := r.Reset(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) enrich(ctx context.Context, snapshot *models.MoodSnapshot, agg *models.AggregatedMetrics, ec models.EnrichmentContext) error {
	if e.enricher == nil {
		return fmt.Errorf("%w: enrichment is disabled", shared.ErrServiceUnavailable)
	}
	hint, err := e.enricher.Enrich(ctx, agg, ec)
	if err != nil {
		e.observeEnrichment(EnrichmentFailed)
		return err
	}
	e.observeEnrichment(EnrichmentApplied)
	snapshot.ApplyHint(hint)
	return nil
}

// withAuthURL fills in a re-authorization URL on reauth errors.
func (e *Engine) withAuthURL(userID string, err error) error {
	var reauth *shared.ReauthRequiredError
	if !errors.As(err, &reauth) || reauth.AuthURL != "" || e.provider.Auth == nil {
		return err
	}

	url, authErr := e.provider.Auth.BeginAuthorization(userID)
	if authErr != nil {
		e.logger.Warn("could not build authorization url", "user", userID, "error", authErr)
		return err
	}
	return &shared.ReauthRequiredError{UserID: reauth.UserID, AuthURL: url, Err: reauth.Err}
}

func (e *Engine) recordHistory(ctx context.Context, userID string, provider models.ProviderID, snapshot *models.MoodSnapshot, agg *models.AggregatedMetrics) {
	if e.history == nil {
		return
	}
	record := &models.SyncRecord{
		UserID:      userID,
		Provider:    provider,
		Label:       snapshot.Label,
		Score:       snapshot.Score,
		Source:      snapshot.Source,
		SampleCount: agg.SampleCount,
		SyncedAt:    e.now(),
	}
	if err := e.history.Append(ctx, record); err != nil {
		e.logger.Warn("failed to record sync history", "provider", provider, "error", err)
	}
}

func (e *Engine) setCurrent(snapshot *models.MoodSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = snapshot.Clone()
}

func (e *Engine) observeSyncError(provider models.ProviderID) {
	if e.metrics != nil {
		e.metrics.ObserveSyncError(string(provider))
	}
}

func (e *Engine) observeEnrichment(outcome string) {
	if e.metrics != nil {
		e.metrics.ObserveEnrichment(outcome)
	}
}
