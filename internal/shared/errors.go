package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Input errors
	ErrUnsupportedProvider = fmt.Errorf("unsupported provider")
	ErrNoMetrics           = fmt.Errorf("no metrics available")
	ErrInvalidInput        = fmt.Errorf("invalid input")
	ErrMissingArgument     = fmt.Errorf("missing required argument")
	ErrInvalidArgument     = fmt.Errorf("invalid argument")

	// Authentication errors
	ErrReauthRequired = fmt.Errorf("re-authorization required")
	ErrInvalidState   = fmt.Errorf("invalid or expired state parameter")
	ErrUnauthorized   = fmt.Errorf("unauthorized")
	ErrTokenExpired   = fmt.Errorf("access token expired")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNoResults          = fmt.Errorf("no results for any candidate query")
	ErrEnrichmentFailed   = fmt.Errorf("enrichment failed")
)

// UnsupportedProviderError reports a provider id with no registered mapping.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q", e.Provider)
}

func (e *UnsupportedProviderError) Is(target error) bool {
	return target == ErrUnsupportedProvider
}

// ReauthRequiredError signals that the stored credentials for a user can no longer be used.
//
// AuthURL is filled in by callers that can start a new authorization flow.
type ReauthRequiredError struct {
	UserID  string
	AuthURL string
	Err     error
}

func (e *ReauthRequiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("re-authorization required for user %q: %v", e.UserID, e.Err)
	}
	return fmt.Sprintf("re-authorization required for user %q", e.UserID)
}

func (e *ReauthRequiredError) Is(target error) bool {
	return target == ErrReauthRequired
}

func (e *ReauthRequiredError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is returned for non-2xx responses from an external API.
//
// A 401 matches [ErrUnauthorized] so refresh-and-retry wrappers can detect it with [errors.Is].
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// IsUnauthorized reports whether err represents an unauthorized response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound reports whether err is an [HTTPStatusError] with a 404 status.
func IsNotFound(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// HTTPStatus maps an error to the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnsupportedProvider),
		errors.Is(err, ErrNoMetrics),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrMissingArgument),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, ErrReauthRequired), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNoResults), errors.Is(err, ErrAPIRequest), errors.Is(err, ErrEnrichmentFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
