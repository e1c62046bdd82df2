// Package playlist resolves a mood snapshot into a ranked track list by walking an ordered
// list of catalog queries, falling back to a static table when live search is unavailable.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/mood"
	"github.com/desertthunder/pulsemix/internal/shared"
)

// Resolution sources.
const (
	SourceEnrichedSearch = "enriched-search"
	SourceSearch         = "search"
	SourceFallback       = "fallback"
)

const (
	DefaultSearchLimit = 30
	DefaultMaxTracks   = 20
	DefaultCallTimeout = 10 * time.Second
)

// Searcher is the catalog search collaborator. An unauthorized failure must satisfy
// [shared.IsUnauthorized].
type Searcher interface {
	Search(ctx context.Context, accessToken, query string, limit int) ([]models.RawTrack, error)
}

// Recorder is notified of search attempts and finished resolutions.
type Recorder interface {
	ObserveSearch(outcome string)
	ObserveResolution(source string)
}

// Candidate is one query in the fallback chain.
type Candidate struct {
	Query    string
	Enriched bool
}

// Resolution is the outcome of one resolve call.
type Resolution struct {
	Label  models.MoodLabel     `json:"label"`
	Tracks []models.TrackResult `json:"tracks"`
	Source string               `json:"source"`
	Query  string               `json:"query,omitempty"`
	// Reason explains why the static fallback was used.
	Reason string `json:"reason,omitempty"`
}

// Options configures a [Resolver]. Zero values pick the package defaults.
type Options struct {
	SearchLimit int
	MaxTracks   int
	CallTimeout time.Duration
	// Shuffle reorders search hits before truncation. Defaults to a uniform shuffle.
	Shuffle func([]models.RawTrack)
	Logger  *log.Logger
	Metrics Recorder
}

// Resolver runs the candidate chain against a [Searcher].
type Resolver struct {
	searcher Searcher
	limit    int
	max      int
	timeout  time.Duration
	shuffle  func([]models.RawTrack)
	logger   *log.Logger
	metrics  Recorder
}

// NewResolver creates a [Resolver]. A nil searcher only ever serves the static fallback.
func NewResolver(searcher Searcher, opts Options) *Resolver {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.MaxTracks <= 0 {
		opts.MaxTracks = DefaultMaxTracks
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Shuffle == nil {
		opts.Shuffle = func(tracks []models.RawTrack) {
			rand.Shuffle(len(tracks), func(i, j int) { tracks[i], tracks[j] = tracks[j], tracks[i] })
		}
	}
	if opts.Logger == nil {
		opts.Logger = shared.DiscardLogger()
	}
	return &Resolver{
		searcher: searcher,
		limit:    opts.SearchLimit,
		max:      opts.MaxTracks,
		timeout:  opts.CallTimeout,
		shuffle:  opts.Shuffle,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Candidates builds the ordered query list for snapshot: the enrichment query, the
// enrichment genres joined with the label, the label's presets, then the label itself.
// Enrichment candidates are only included when useEnrichment is set.
func Candidates(snapshot *models.MoodSnapshot, useEnrichment bool) []Candidate {
	var out []Candidate
	add := func(query string, enriched bool) {
		if query = strings.TrimSpace(query); query != "" {
			out = append(out, Candidate{Query: query, Enriched: enriched})
		}
	}

	hints := snapshot.PlaylistHints
	if useEnrichment {
		add(hints.SearchQuery, true)
		if len(hints.SeedGenres) > 0 {
			add(strings.Join(hints.SeedGenres, " ")+" "+string(snapshot.Label), true)
		}
	}
	for _, preset := range mood.Presets(snapshot.Label) {
		add(preset, false)
	}
	add(string(snapshot.Label), false)
	return out
}

// Resolve walks the candidate chain for snapshot.
//
// Without an access token no search is attempted and the static fallback is returned.
// With one, candidates are searched in order and the first non-empty result wins. An
// unauthorized search stops the chain with [shared.ErrTokenExpired]; any other failure is
// logged and the next candidate is tried. Exhausting the chain returns [shared.ErrNoResults].
func (r *Resolver) Resolve(ctx context.Context, snapshot *models.MoodSnapshot, accessToken string, useEnrichment bool) (*Resolution, error) {
	if snapshot == nil {
		return nil, shared.ErrNoMetrics
	}

	if accessToken == "" || r.searcher == nil {
		res := r.fallback(snapshot.Label, "no catalog access token")
		r.observeResolution(res.Source)
		return res, nil
	}

	for i, candidate := range Candidates(snapshot, useEnrichment) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrTimeout, err)
		}

		raw, err := r.search(ctx, accessToken, candidate.Query)
		switch {
		case shared.IsUnauthorized(err):
			r.observeSearch("unauthorized")
			r.logger.Warn("catalog rejected token, abandoning search", "query", candidate.Query)
			return nil, fmt.Errorf("%w: %w", shared.ErrTokenExpired, err)
		case err != nil:
			r.observeSearch("error")
			r.logger.Warn("candidate search failed", "attempt", i+1, "query", candidate.Query, "error", err)
			continue
		case len(raw) == 0:
			r.observeSearch("empty")
			r.logger.Debug("candidate returned no tracks", "attempt", i+1, "query", candidate.Query)
			continue
		}
		r.observeSearch("hit")

		r.shuffle(raw)
		if len(raw) > r.max {
			raw = raw[:r.max]
		}

		source := SourceSearch
		if candidate.Enriched {
			source = SourceEnrichedSearch
		}
		r.observeResolution(source)
		return &Resolution{
			Label:  snapshot.Label,
			Tracks: toResults(raw),
			Source: source,
			Query:  candidate.Query,
		}, nil
	}

	return nil, fmt.Errorf("%w for mood %s", shared.ErrNoResults, snapshot.Label)
}

// ResolveOrFallback is [Resolver.Resolve] that answers with the static fallback when the
// live search fails. It only errors when snapshot is nil.
func (r *Resolver) ResolveOrFallback(ctx context.Context, snapshot *models.MoodSnapshot, accessToken string, useEnrichment bool) (*Resolution, error) {
	res, err := r.Resolve(ctx, snapshot, accessToken, useEnrichment)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, shared.ErrNoMetrics) {
		return nil, err
	}

	r.logger.Warn("using static fallback", "mood", snapshot.Label, "error", err)
	res = r.fallback(snapshot.Label, err.Error())
	r.observeResolution(res.Source)
	return res, nil
}

func (r *Resolver) search(ctx context.Context, accessToken, query string) ([]models.RawTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.searcher.Search(ctx, accessToken, query, r.limit)
}

func (r *Resolver) fallback(label models.MoodLabel, reason string) *Resolution {
	return &Resolution{Label: label, Tracks: Fallback(label), Source: SourceFallback, Reason: reason}
}

func (r *Resolver) observeSearch(outcome string) {
	if r.metrics != nil {
		r.metrics.ObserveSearch(outcome)
	}
}

func (r *Resolver) observeResolution(source string) {
	if r.metrics != nil {
		r.metrics.ObserveResolution(source)
	}
}

func toResults(raw []models.RawTrack) []models.TrackResult {
	out := make([]models.TrackResult, 0, len(raw))
	for _, t := range raw {
		result := models.TrackResult{
			ID:           t.ID,
			Name:         t.Name,
			ArtistNames:  append([]string(nil), t.Artists...),
			PreviewURL:   t.PreviewURL,
			CanonicalURI: t.URI,
			ExternalURL:  t.ExternalURL,
		}
		if len(t.AlbumImages) > 0 {
			result.AlbumArtURL = t.AlbumImages[0]
		}
		out = append(out, result)
	}
	return out
}
