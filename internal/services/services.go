package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/pulsemix/internal/shared"
)

const maxErrorBody = 512

// PlaylistSpec describes a playlist to create.
type PlaylistSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
}

// statusError drains resp into a [shared.HTTPStatusError].
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &shared.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

// decodeJSON decodes a 2xx response body into v, or returns a status error.
func decodeJSON(resp *http.Response, v any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode response: %w", shared.ErrAPIRequest, err)
	}
	return nil
}
