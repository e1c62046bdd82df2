// Spotify Web API implementation of the catalog collaborator
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL     = "https://api.spotify.com/v1"
	spotifyMaxSearch   = 50
	spotifyAddBatchMax = 100
	spotifyCallTimeout = 15 * time.Second
)

// SpotifyScopes are requested when authorizing the catalog account.
var SpotifyScopes = []string{
	"user-read-private",
	"playlist-modify-private",
	"playlist-modify-public",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	PreviewURL   string          `json:"preview_url"`
	ExternalURLs externalURLs    `json:"external_urls"`
	URI          string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []*SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ExternalURLs externalURLs `json:"external_urls"`
}

// SpotifyOptions configures a [SpotifyCatalog].
type SpotifyOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	// RateLimit is the request budget per second. Zero or less disables limiting.
	RateLimit  float64
	MaxRetries int
	Backoff    time.Duration
	Logger     *log.Logger

	// CallTimeout bounds each Web API call, retries included. Defaults to 15s.
	CallTimeout time.Duration
}

// SpotifyCatalog searches the Spotify catalog and writes playlists.
type SpotifyCatalog struct {
	baseURL string
	timeout time.Duration
	http    *retrier
}

// NewSpotifyCatalog creates a [SpotifyCatalog].
func NewSpotifyCatalog(opts SpotifyOptions) *SpotifyCatalog {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = spotifyCallTimeout
	}

	return &SpotifyCatalog{
		baseURL: baseURL,
		timeout: timeout,
		http:    newRetrier("spotify", opts.HTTPClient, limiter, opts.MaxRetries, opts.Backoff, opts.Logger),
	}
}

// Search returns up to limit tracks matching query.
func (c *SpotifyCatalog) Search(ctx context.Context, accessToken, query string, limit int) ([]models.RawTrack, error) {
	if limit <= 0 || limit > spotifyMaxSearch {
		limit = spotifyMaxSearch
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))

	var response spotifySearchResponse
	if err := c.request(ctx, http.MethodGet, "/search?"+params.Encode(), accessToken, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.RawTrack, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		// Search results can contain null entries for unavailable tracks.
		if item == nil || item.ID == "" {
			continue
		}
		tracks = append(tracks, item.toRaw())
	}
	return tracks, nil
}

// CurrentUser retrieves the profile behind accessToken.
func (c *SpotifyCatalog) CurrentUser(ctx context.Context, accessToken string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.request(ctx, http.MethodGet, "/me", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreatePlaylist creates a playlist owned by the token's user and returns its id.
func (c *SpotifyCatalog) CreatePlaylist(ctx context.Context, accessToken string, spec PlaylistSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	user, err := c.CurrentUser(ctx, accessToken)
	if err != nil {
		return "", err
	}

	var created spotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))
	if err := c.request(ctx, http.MethodPost, endpoint, accessToken, spec, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: spotify returned no playlist id", shared.ErrAPIRequest)
	}
	return created.ID, nil
}

// AddTracks appends uris to a playlist in batches of 100.
func (c *SpotifyCatalog) AddTracks(ctx context.Context, accessToken, playlistID string, uris []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	for start := 0; start < len(uris); start += spotifyAddBatchMax {
		end := min(start+spotifyAddBatchMax, len(uris))
		body := map[string][]string{"uris": uris[start:end]}
		if err := c.request(ctx, http.MethodPost, endpoint, accessToken, body, nil); err != nil {
			return fmt.Errorf("add tracks %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// request performs an authenticated call against the Web API.
func (c *SpotifyCatalog) request(ctx context.Context, method, endpoint, accessToken string, body, result any) error {
	if accessToken == "" {
		return fmt.Errorf("%w: missing catalog access token", shared.ErrUnauthorized)
	}

	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		req *http.Request
		err error
	)
	if payload != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, payload)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, shared.ErrTimeout) {
			return fmt.Errorf("%w: %s %s after %s: %w", shared.ErrTimeout, method, endpoint, c.timeout, err)
		}
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, result)
}

func (t *SpotifyTrack) toRaw() models.RawTrack {
	raw := models.RawTrack{
		ID:          t.ID,
		Name:        t.Name,
		PreviewURL:  t.PreviewURL,
		URI:         t.URI,
		ExternalURL: t.ExternalURLs.Spotify,
	}
	for _, a := range t.Artists {
		raw.Artists = append(raw.Artists, a.Name)
	}
	for _, img := range t.Album.Images {
		raw.AlbumImages = append(raw.AlbumImages, img.URL)
	}
	return raw
}
