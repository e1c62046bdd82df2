package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/pulsemix/internal/auth"
	"github.com/desertthunder/pulsemix/internal/playlist"
	"github.com/desertthunder/pulsemix/internal/repositories"
	"github.com/desertthunder/pulsemix/internal/services"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/desertthunder/pulsemix/internal/tasks"
	"github.com/desertthunder/pulsemix/internal/telemetry"
	"github.com/desertthunder/pulsemix/internal/wearable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// stack is the fully wired application for one command invocation.
type stack struct {
	db       *sql.DB
	whoop    *auth.Manager
	spotify  *auth.Manager
	catalog  *services.SpotifyCatalog
	history  *repositories.HistoryRepository
	users    func(ctx context.Context) ([]string, error)
	engine   *tasks.Engine
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
}

// build wires storage, token managers, the catalog client, enrichment, and the engine from the
// runner's config. Missing provider credentials leave that provider nil instead of failing.
func (r *Runner) build() (*stack, error) {
	cfg := r.config
	logger := r.logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(registry)

	st := &stack{registry: registry, metrics: metrics}

	var whoopStore, spotifyStore auth.TokenStore
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); driver {
	case "", "memory":
		whoopStore, spotifyStore = auth.NewMemoryStore(), auth.NewMemoryStore()
		st.users = func(context.Context) ([]string, error) { return nil, nil }
	case "sqlite":
		db, err := shared.OpenDatabase(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st.db = db
		tokens := repositories.NewTokenRepository(db, string(wearable.ProviderWhoop))
		whoopStore, spotifyStore = tokens, repositories.NewTokenRepository(db, "spotify")
		st.history = repositories.NewHistoryRepository(db)
		st.users = tokens.Users
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q (memory, sqlite)", shared.ErrInvalidConfig, driver)
	}

	authOpts := func(scopes []string, store auth.TokenStore, provider string) auth.Options {
		return auth.Options{
			Scopes:       scopes,
			Store:        store,
			HTTPClient:   r.httpClient,
			ExpiryBuffer: cfg.Auth.ExpiryBuffer.Duration,
			StateTTL:     cfg.Auth.StateTTL.Duration,
			CallTimeout:  cfg.Auth.CallTimeout.Duration,
			Logger:       shared.WithLogger(logger, "provider", provider),
			Metrics:      metrics,
		}
	}

	if cfg.Credentials.Whoop.Configured() {
		manager, err := auth.NewManager(cfg.Credentials.Whoop, authOpts(auth.WhoopScopes, whoopStore, "whoop"))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("whoop credentials: %w", err)
		}
		st.whoop = manager
	} else {
		logger.Debug("whoop credentials not configured, provider sync disabled")
	}

	if cfg.Credentials.Spotify.Configured() {
		manager, err := auth.NewManager(cfg.Credentials.Spotify, authOpts(services.SpotifyScopes, spotifyStore, "spotify"))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("spotify credentials: %w", err)
		}
		st.spotify = manager
	}

	st.catalog = services.NewSpotifyCatalog(services.SpotifyOptions{
		BaseURL:     cfg.Credentials.Spotify.APIBaseURL,
		HTTPClient:  r.httpClient,
		RateLimit:   cfg.Resolver.RateLimit,
		MaxRetries:  cfg.Resolver.MaxRetries,
		CallTimeout: cfg.Resolver.CallTimeout.Duration,
		Logger:      shared.WithLogger(logger, "service", "spotify"),
	})

	deps := tasks.Deps{
		Resolver: playlist.NewResolver(st.catalog, playlist.Options{
			SearchLimit: cfg.Resolver.SearchLimit,
			MaxTracks:   cfg.Resolver.MaxTracks,
			CallTimeout: cfg.Resolver.CallTimeout.Duration,
			Logger:      shared.WithLogger(logger, "component", "resolver"),
			Metrics:     metrics,
		}),
		Saver:   st.catalog,
		Metrics: metrics,
		Logger:  shared.WithLogger(logger, "component", "engine"),
	}

	if cfg.Enrichment.Enabled {
		deps.Enricher = services.NewOllamaEnricher(services.OllamaOptions{
			Host:    cfg.Enrichment.Host,
			Model:   cfg.Enrichment.Model,
			Timeout: cfg.Enrichment.Timeout.Duration,
			Logger:  shared.WithLogger(logger, "service", "ollama"),
		})
	}
	if st.whoop != nil {
		deps.Provider = &tasks.Provider{
			ID:     wearable.ProviderWhoop,
			Source: services.NewWhoopSource(cfg.Credentials.Whoop.APIBaseURL, st.whoop, shared.WithLogger(logger, "service", "whoop")),
			Auth:   st.whoop,
		}
		deps.Resetters = append(deps.Resetters, st.whoop)
	}
	if st.history != nil {
		deps.History = st.history
	}

	st.engine = tasks.NewEngine(deps)
	return st, nil
}

// catalogToken returns a valid catalog token for userID, refreshing it when needed.
func (s *stack) catalogToken(ctx context.Context, userID string) (string, error) {
	if s.spotify == nil {
		return "", fmt.Errorf("%w: spotify credentials are not configured", shared.ErrMissingCredentials)
	}
	return s.spotify.ValidAccessToken(ctx, userID)
}

// syncUsers lists the metric provider users to re-sync: every user with a stored token,
// or fallback when the store cannot list them.
func (s *stack) syncUsers(ctx context.Context, fallback string) ([]string, error) {
	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 && fallback != "" {
		users = []string{fallback}
	}
	return users, nil
}

// Close releases the database handle, if any.
func (s *stack) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
