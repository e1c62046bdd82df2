// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/services"
)

// MockSearcher is a test double for the catalog search collaborator.
//
// Results are keyed by query; Errs take precedence over Results.
type MockSearcher struct {
	mu      sync.Mutex
	Results map[string][]models.RawTrack
	Errs    map[string]error
	Queries []string
}

func (m *MockSearcher) Search(ctx context.Context, accessToken, query string, limit int) ([]models.RawTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if err, ok := m.Errs[query]; ok {
		return nil, err
	}
	return m.Results[query], nil
}

// Calls returns the queries seen so far.
func (m *MockSearcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Queries...)
}

// MockEnricher returns a fixed hint or error.
type MockEnricher struct {
	Hint  models.EnrichmentHint
	Err   error
	mu    sync.Mutex
	Calls int
}

func (m *MockEnricher) Enrich(ctx context.Context, agg *models.AggregatedMetrics, ec models.EnrichmentContext) (models.EnrichmentHint, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Err != nil {
		return models.EnrichmentHint{}, m.Err
	}
	return m.Hint, nil
}

// MockSource is a test double for a metric provider data source.
type MockSource struct {
	Payload map[string]any
	Err     error
	// ErrFor fails only the listed users.
	ErrFor map[string]error
}

func (m *MockSource) FetchLatestRaw(ctx context.Context, userID string) (map[string]any, error) {
	if err, ok := m.ErrFor[userID]; ok {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Payload, nil
}

// MockAuthorizer returns URL for every user.
type MockAuthorizer struct {
	URL string
	Err error
}

func (m *MockAuthorizer) BeginAuthorization(userID string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.URL + "?user=" + userID, nil
}

// MockSaver records created playlists and added tracks.
type MockSaver struct {
	mu        sync.Mutex
	ID        string
	CreateErr error
	AddErr    error
	Specs     []services.PlaylistSpec
	URIs      []string
}

func (m *MockSaver) CreatePlaylist(ctx context.Context, accessToken string, spec services.PlaylistSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.Specs = append(m.Specs, spec)
	return m.ID, nil
}

func (m *MockSaver) AddTracks(ctx context.Context, accessToken, playlistID string, uris []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		return m.AddErr
	}
	m.URIs = append(m.URIs, uris...)
	return nil
}

// RawTracks builds n catalog hits with ids prefixed by prefix.
func RawTracks(prefix string, n int) []models.RawTrack {
	tracks := make([]models.RawTrack, n)
	for i := range tracks {
		id := prefix + "-" + string(rune('a'+i%26))
		tracks[i] = models.RawTrack{
			ID:      id,
			Name:    "Track " + id,
			Artists: []string{"Artist"},
			URI:     "spotify:track:" + id,
		}
	}
	return tracks
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
