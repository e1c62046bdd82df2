package shared

import (
	"errors"
	"net/http"
	"testing"

	"github.com/charmbracelet/log"
)

func TestRound2(t *testing.T) {
	tc := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "rounds down", in: 0.8571, want: 0.86},
		{name: "rounds half up", in: 0.125, want: 0.13},
		{name: "keeps integers", in: 42, want: 42},
		{name: "negative values", in: -0.3333, want: -0.33},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Round2(tt.in); got != tt.want {
				t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	if got := ParseLogLevel("DEBUG"); got != log.DebugLevel {
		t.Errorf("expected debug level, got %v", got)
	}
	if got := ParseLogLevel("nonsense"); got != log.InfoLevel {
		t.Errorf("expected info fallback, got %v", got)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if len(a) != 36 {
		t.Errorf("expected 36 character id, got %d", len(a))
	}
	if a == b {
		t.Error("expected unique ids")
	}
}

func TestOpenBrowserRejectsNonHTTP(t *testing.T) {
	for _, raw := range []string{"", "file:///etc/passwd", "spotify:track:123", "http://"} {
		if err := OpenBrowser(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("OpenBrowser(%q) error = %v, want ErrInvalidArgument", raw, err)
		}
	}
}

func TestErrors(t *testing.T) {
	t.Run("UnsupportedProviderError", func(t *testing.T) {
		err := &UnsupportedProviderError{Provider: "fitbit"}
		if !errors.Is(err, ErrUnsupportedProvider) {
			t.Error("expected errors.Is to match ErrUnsupportedProvider")
		}
	})

	t.Run("ReauthRequiredError unwraps", func(t *testing.T) {
		err := &ReauthRequiredError{UserID: "u1", Err: ErrNoRefreshToken}
		if !errors.Is(err, ErrReauthRequired) {
			t.Error("expected errors.Is to match ErrReauthRequired")
		}
		if !errors.Is(err, ErrNoRefreshToken) {
			t.Error("expected cause to be reachable")
		}
	})

	t.Run("HTTPStatusError", func(t *testing.T) {
		unauthorized := &HTTPStatusError{StatusCode: http.StatusUnauthorized}
		if !IsUnauthorized(unauthorized) {
			t.Error("401 should be unauthorized")
		}
		notFound := &HTTPStatusError{StatusCode: http.StatusNotFound}
		if IsUnauthorized(notFound) {
			t.Error("404 should not be unauthorized")
		}
		if !IsNotFound(notFound) {
			t.Error("404 should be not found")
		}
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		tt := []struct {
			err  error
			want int
		}{
			{nil, http.StatusOK},
			{&UnsupportedProviderError{Provider: "x"}, http.StatusBadRequest},
			{ErrNoMetrics, http.StatusBadRequest},
			{&ReauthRequiredError{UserID: "u"}, http.StatusUnauthorized},
			{ErrTokenExpired, http.StatusUnauthorized},
			{ErrNoResults, http.StatusBadGateway},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tc := range tt {
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		}
	})
}
