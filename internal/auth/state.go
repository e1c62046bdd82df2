package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// states issues single-use anti-forgery values of the form "<nonce>.<base64url(userID)>".
type states struct {
	mu      sync.Mutex
	pending *cache.Cache
}

func newStates(ttl time.Duration) *states {
	return &states{pending: cache.New(ttl, 2*ttl)}
}

func (s *states) issue(userID string) string {
	state := uuid.NewString() + "." + base64.RawURLEncoding.EncodeToString([]byte(userID))
	s.pending.Set(state, userID, cache.DefaultExpiration)
	return state
}

// consume validates and removes state, returning the user id it was issued for.
func (s *states) consume(state string) (string, error) {
	userID, err := decodeState(state)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.pending.Get(state)
	if !ok {
		return "", fmt.Errorf("%w: unknown or expired", shared.ErrInvalidState)
	}
	s.pending.Delete(state)

	if issued.(string) != userID {
		return "", fmt.Errorf("%w: user mismatch", shared.ErrInvalidState)
	}
	return userID, nil
}

func (s *states) flush() {
	s.pending.Flush()
}

func decodeState(state string) (string, error) {
	nonce, encoded, ok := strings.Cut(state, ".")
	if !ok || nonce == "" || encoded == "" {
		return "", fmt.Errorf("%w: malformed", shared.ErrInvalidState)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: malformed user segment", shared.ErrInvalidState)
	}
	return string(raw), nil
}
