package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/shared"
)

const whoopBaseURL = "https://api.prod.whoop.com/developer"

// AuthorizedDoer sends a request on behalf of a user and returns the response body.
// Non-2xx responses must surface as [shared.HTTPStatusError].
type AuthorizedDoer interface {
	Do(ctx context.Context, userID string, req *http.Request) ([]byte, error)
}

type whoopCollection struct {
	Records []map[string]any `json:"records"`
}

// WhoopSource reads the latest records from the Whoop developer API.
type WhoopSource struct {
	baseURL string
	doer    AuthorizedDoer
	logger  *log.Logger
}

// NewWhoopSource creates a [WhoopSource]. An empty baseURL uses the production API.
func NewWhoopSource(baseURL string, doer AuthorizedDoer, logger *log.Logger) *WhoopSource {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = whoopBaseURL
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &WhoopSource{baseURL: baseURL, doer: doer, logger: logger}
}

// FetchLatestRaw assembles {recovery, strain, sleep} from the newest recovery, cycle, and
// sleep records. Recovery is required; a 404 on cycles or sleep drops that key.
func (s *WhoopSource) FetchLatestRaw(ctx context.Context, userID string) (map[string]any, error) {
	recovery, err := s.latest(ctx, userID, "/v1/recovery")
	if err != nil {
		return nil, fmt.Errorf("whoop recovery: %w", err)
	}

	payload := map[string]any{}
	if recovery != nil {
		payload["recovery"] = recovery
	}

	optional := []struct {
		key  string
		path string
	}{
		{key: "strain", path: "/v1/cycle"},
		{key: "sleep", path: "/v1/activity/sleep"},
	}
	for _, part := range optional {
		record, err := s.latest(ctx, userID, part.path)
		switch {
		case shared.IsNotFound(err):
			s.logger.Debug("optional whoop collection missing", "path", part.path)
			continue
		case err != nil:
			return nil, fmt.Errorf("whoop %s: %w", part.key, err)
		}
		if record != nil {
			payload[part.key] = record
		}
	}

	return payload, nil
}

// latest returns the first record of a collection, or nil when it is empty.
func (s *WhoopSource) latest(ctx context.Context, userID, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?limit=1", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := s.doer.Do(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	var collection whoopCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", shared.ErrAPIRequest, path, err)
	}
	if len(collection.Records) == 0 {
		return nil, nil
	}
	return collection.Records[0], nil
}
