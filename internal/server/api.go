package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/desertthunder/pulsemix/internal/tasks"
)

const maxBodyBytes = 1 << 20

// Authorizer starts an authorization code flow for a user.
type Authorizer interface {
	BeginAuthorization(userID string) (string, error)
}

// TokenProvider hands out a valid access token for a user, refreshing when needed.
type TokenProvider interface {
	ValidAccessToken(ctx context.Context, userID string) (string, error)
}

// APIOptions configures an [API].
type APIOptions struct {
	Engine *tasks.Engine
	// Whoop starts metric provider authorization.
	Whoop Authorizer
	// Spotify starts catalog authorization.
	Spotify Authorizer
	// Catalog supplies catalog tokens when a request does not carry one.
	Catalog TokenProvider
	// DefaultUser is used when a request names no user.
	DefaultUser string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Logger  *log.Logger
}

// API serves the pulsemix JSON endpoints.
type API struct {
	engine      *tasks.Engine
	whoop       Authorizer
	spotify     Authorizer
	catalog     TokenProvider
	defaultUser string
	metrics     http.Handler
	logger      *log.Logger
}

// NewAPI creates an [API].
func NewAPI(opts APIOptions) *API {
	if opts.Logger == nil {
		opts.Logger = shared.DiscardLogger()
	}
	if opts.DefaultUser == "" {
		opts.DefaultUser = "default"
	}
	return &API{
		engine:      opts.Engine,
		whoop:       opts.Whoop,
		spotify:     opts.Spotify,
		catalog:     opts.Catalog,
		defaultUser: opts.DefaultUser,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

type apiRoute struct {
	method  string
	path    string
	handler http.Handler
}

func (a *API) routes() []apiRoute {
	routes := []apiRoute{
		{http.MethodGet, "/healthz", http.HandlerFunc(a.health)},
		{http.MethodPost, "/sync/{provider}", http.HandlerFunc(a.syncWearable)},
		{http.MethodPost, "/providers/whoop/sync", http.HandlerFunc(a.fetchProvider)},
		{http.MethodGet, "/auth/whoop", a.authorize(a.whoop)},
		{http.MethodGet, "/auth/spotify", a.authorize(a.spotify)},
		{http.MethodGet, "/mood", http.HandlerFunc(a.currentMood)},
		{http.MethodPost, "/enrich", http.HandlerFunc(a.enrich)},
		{http.MethodPost, "/playlist", http.HandlerFunc(a.resolvePlaylist)},
		{http.MethodPost, "/playlist/save", http.HandlerFunc(a.savePlaylist)},
		{http.MethodGet, "/history", http.HandlerFunc(a.history)},
		{http.MethodPost, "/reset", http.HandlerFunc(a.reset)},
	}
	if a.metrics != nil {
		routes = append(routes, apiRoute{http.MethodGet, "/metrics", a.metrics})
	}
	return routes
}

// Routes lists the paths [API.Register] mounts.
func (a *API) Routes() []string {
	routes := a.routes()
	paths := make([]string, 0, len(routes))
	for _, rt := range routes {
		paths = append(paths, rt.path)
	}
	return paths
}

// Register mounts every endpoint on router.
func (a *API) Register(router *BasicRouter) {
	for _, rt := range a.routes() {
		router.Handle(rt.method, rt.path, rt.handler)
	}
}

type syncRequest struct {
	Payload map[string]any           `json:"payload"`
	UserID  string                   `json:"userId"`
	Enrich  bool                     `json:"enrich"`
	Context models.EnrichmentContext `json:"context"`
}

type playlistRequest struct {
	AccessToken   string `json:"accessToken"`
	UserID        string `json:"userId"`
	UseEnrichment bool   `json:"useEnrichment"`
	Name          string `json:"name"`
}

type moodResponse struct {
	Mood       *models.MoodSnapshot      `json:"mood"`
	Aggregated *models.AggregatedMetrics `json:"aggregatedMetrics"`
}

type saveResponse struct {
	PlaylistID string                `json:"playlistId"`
	Playlist   *tasks.PlaylistResult `json:"playlist"`
}

type errorResponse struct {
	Error   string `json:"error"`
	AuthURL string `json:"authUrl,omitempty"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": a.engine.Providers(),
	})
}

// POST /sync/{provider} with {"payload": {...}, "enrich": bool, "context": {...}}
func (a *API) syncWearable(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	if req.Payload == nil {
		a.writeError(w, fmt.Errorf("%w: payload object is required", shared.ErrInvalidInput))
		return
	}

	provider := models.ProviderID(strings.ToLower(r.PathValue("provider")))
	result, err := a.engine.SyncWearable(r.Context(), provider, req.Payload, tasks.SyncOptions{
		UserID:  req.UserID,
		Enrich:  req.Enrich,
		Context: req.Context,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /providers/whoop/sync with {"userId": "...", "enrich": bool}
func (a *API) fetchProvider(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	result, err := a.engine.FetchProviderData(r.Context(), a.user(req.UserID), tasks.SyncOptions{
		Enrich:  req.Enrich,
		Context: req.Context,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /auth/{provider}?user=ID redirects to the provider's consent page.
// With ?format=json the URL is returned instead.
func (a *API) authorize(authorizer Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if authorizer == nil {
			a.writeError(w, fmt.Errorf("%w: provider credentials are not configured", shared.ErrServiceUnavailable))
			return
		}

		url, err := authorizer.BeginAuthorization(a.user(r.URL.Query().Get("user")))
		if err != nil {
			a.writeError(w, err)
			return
		}
		if r.URL.Query().Get("format") == "json" {
			writeJSON(w, http.StatusOK, map[string]string{"url": url})
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

func (a *API) currentMood(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.engine.CurrentMood()
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moodResponse{Mood: snapshot, Aggregated: a.engine.Aggregate()})
}

// POST /enrich with an optional {"calendar", "weather", "preference"} context.
func (a *API) enrich(w http.ResponseWriter, r *http.Request) {
	var ec models.EnrichmentContext
	if err := decodeBody(r, &ec); err != nil {
		a.writeError(w, err)
		return
	}

	result, err := a.engine.Enrich(r.Context(), ec)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) resolvePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	result, err := a.engine.ResolvePlaylist(r.Context(), nil, a.catalogToken(r.Context(), req), req.UseEnrichment)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) savePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	token := a.catalogToken(r.Context(), req)
	if token == "" {
		a.writeError(w, fmt.Errorf("%w: saving needs a catalog access token", shared.ErrMissingArgument))
		return
	}

	result, err := a.engine.ResolvePlaylist(r.Context(), nil, token, req.UseEnrichment)
	if err != nil {
		a.writeError(w, err)
		return
	}
	id, err := a.engine.SavePlaylist(r.Context(), token, result, req.Name)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{PlaylistID: id, Playlist: result})
}

// GET /history?limit=N
func (a *API) history(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			a.writeError(w, fmt.Errorf("%w: limit must be a positive integer", shared.ErrInvalidArgument))
			return
		}
		limit = parsed
	}

	records, err := a.engine.History(r.Context(), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

func (a *API) reset(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Reset(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// catalogToken prefers the token in the request, then the stored catalog credentials.
// A failed lookup is logged and resolution continues without a token.
func (a *API) catalogToken(ctx context.Context, req playlistRequest) string {
	if req.AccessToken != "" || a.catalog == nil {
		return req.AccessToken
	}
	token, err := a.catalog.ValidAccessToken(ctx, a.user(req.UserID))
	if err != nil {
		a.logger.Warn("no catalog token, resolving without live search", "error", err)
		return ""
	}
	return token
}

func (a *API) user(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return a.defaultUser
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := shared.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}

	body := errorResponse{Error: err.Error()}
	var reauth *shared.ReauthRequiredError
	if errors.As(err, &reauth) {
		body.AuthURL = reauth.AuthURL
	}
	writeJSON(w, status, body)
}

// decodeBody decodes a JSON request body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: malformed JSON body: %v", shared.ErrInvalidInput, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
