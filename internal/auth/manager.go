// Package auth manages OAuth credentials for the metric provider: authorization, expiry
// detection, single-flight refresh, and refresh-and-retry around authenticated calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultExpiryBuffer = 5 * time.Minute
	DefaultStateTTL     = 10 * time.Minute
	DefaultCallTimeout  = 15 * time.Second

	maxResponseBytes = 4 << 20
)

// WhoopScopes are requested on every authorization. "offline" is what makes the provider
// issue a refresh token.
var WhoopScopes = []string{"offline", "read:recovery", "read:cycles", "read:sleep", "read:profile"}

// RefreshRecorder is notified of refresh outcomes.
type RefreshRecorder interface {
	ObserveRefresh(outcome string)
}

// Options configures a [Manager]. Zero values pick the package defaults.
type Options struct {
	Scopes       []string
	Store        TokenStore
	HTTPClient   *http.Client
	ExpiryBuffer time.Duration
	StateTTL     time.Duration
	CallTimeout  time.Duration
	Now          func() time.Time
	Logger       *log.Logger
	Metrics      RefreshRecorder
	// Recoverable decides whether a call error is fixed by refreshing. Defaults to
	// [shared.IsUnauthorized].
	Recoverable func(error) bool
}

// Manager owns the token lifecycle for one OAuth provider.
type Manager struct {
	config      *oauth2.Config
	store       TokenStore
	states      *states
	client      *http.Client
	flights     singleflight.Group
	buffer      time.Duration
	timeout     time.Duration
	now         func() time.Time
	logger      *log.Logger
	metrics     RefreshRecorder
	recoverable func(error) bool
}

// NewManager creates a [Manager] for the provider described by creds.
func NewManager(creds shared.OAuthConfig, opts Options) (*Manager, error) {
	if !creds.Configured() {
		return nil, fmt.Errorf("%w: client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if creds.TokenURL == "" || creds.AuthURL == "" {
		return nil, fmt.Errorf("%w: auth_url and token_url are required", shared.ErrInvalidConfig)
	}

	if opts.Scopes == nil {
		opts.Scopes = WhoopScopes
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.ExpiryBuffer <= 0 {
		opts.ExpiryBuffer = DefaultExpiryBuffer
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = DefaultStateTTL
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.DiscardLogger()
	}
	if opts.Recoverable == nil {
		opts.Recoverable = shared.IsUnauthorized
	}

	return &Manager{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  creds.AuthURL,
				TokenURL: creds.TokenURL,
				// A fixed style keeps a rejected refresh to a single request.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:       opts.Store,
		states:      newStates(opts.StateTTL),
		client:      opts.HTTPClient,
		buffer:      opts.ExpiryBuffer,
		timeout:     opts.CallTimeout,
		now:         opts.Now,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		recoverable: opts.Recoverable,
	}, nil
}

// BeginAuthorization issues a pending state bound to userID and returns the provider's
// authorization URL.
func (m *Manager) BeginAuthorization(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	return m.config.AuthCodeURL(m.states.issue(userID)), nil
}

// CompleteAuthorization exchanges code for a token and stores it for the user encoded in
// state. Each state is accepted once.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, state string) (string, models.TokenRecord, error) {
	if code == "" {
		return "", models.TokenRecord{}, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}
	userID, err := m.states.consume(state)
	if err != nil {
		return "", models.TokenRecord{}, err
	}

	ctx, cancel := m.callContext(ctx)
	defer cancel()

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return "", models.TokenRecord{}, fmt.Errorf("%w: token exchange: %w", shared.ErrAPIRequest, err)
	}

	record := toRecord(token, "")
	if err := m.store.Put(ctx, userID, record); err != nil {
		return "", models.TokenRecord{}, err
	}
	m.logger.Info("authorization complete", "user", userID, "expires_at", record.ExpiresAt)
	return userID, record, nil
}

// ValidAccessToken returns an access token for userID, refreshing once when the stored
// token is inside the expiry buffer.
func (m *Manager) ValidAccessToken(ctx context.Context, userID string) (string, error) {
	record, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &shared.ReauthRequiredError{UserID: userID}
	}
	if !record.ExpiresWithin(m.now(), m.buffer) {
		return record.AccessToken, nil
	}
	return m.refresh(ctx, userID, record.AccessToken, false)
}

// WithToken runs call with a valid token for userID. When call fails with an error the
// manager considers recoverable, the token is refreshed and call runs once more. A second
// recoverable failure becomes a [shared.ReauthRequiredError]; other errors pass through.
func (m *Manager) WithToken(ctx context.Context, userID string, call func(ctx context.Context, token string) error) error {
	token, err := m.ValidAccessToken(ctx, userID)
	if err != nil {
		return err
	}

	err = m.invoke(ctx, token, call)
	if err == nil || !m.recoverable(err) {
		return err
	}

	m.logger.Debug("authenticated call rejected, refreshing", "user", userID)
	token, err = m.refresh(ctx, userID, token, true)
	if err != nil {
		return err
	}

	err = m.invoke(ctx, token, call)
	if err != nil && m.recoverable(err) {
		return &shared.ReauthRequiredError{UserID: userID, Err: err}
	}
	return err
}

// Do sends req with the user's bearer token via [Manager.WithToken] and returns the body.
//
// Non-2xx responses return a [shared.HTTPStatusError]. The request is cloned per attempt,
// so a body must be replayable through GetBody.
func (m *Manager) Do(ctx context.Context, userID string, req *http.Request) ([]byte, error) {
	var body []byte
	err := m.WithToken(ctx, userID, func(ctx context.Context, token string) error {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			b, err := req.GetBody()
			if err != nil {
				return err
			}
			attempt.Body = b
		}
		attempt.Header.Set("Authorization", "Bearer "+token)

		resp, err := m.client.Do(attempt)
		if err != nil {
			return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("%w: read body: %w", shared.ErrAPIRequest, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &shared.HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		}
		body = data
		return nil
	})
	return body, err
}

// Record returns the stored record for userID.
func (m *Manager) Record(ctx context.Context, userID string) (models.TokenRecord, bool, error) {
	return m.store.Get(ctx, userID)
}

// Reset drops every stored token and pending state.
func (m *Manager) Reset(ctx context.Context) error {
	m.states.flush()
	return m.store.Reset(ctx)
}

// refresh rotates the user's token at most once per concurrent burst. Inside the flight the
// record is re-read; if it is already fresh (and, when forced, no longer the token that was
// rejected) the stored token is returned without another exchange.
func (m *Manager) refresh(ctx context.Context, userID, stale string, force bool) (string, error) {
	ch := m.flights.DoChan(userID, func() (any, error) {
		// Detached from any single waiter; only the call timeout bounds it.
		fctx, cancel := m.callContext(context.WithoutCancel(ctx))
		defer cancel()

		current, ok, err := m.store.Get(fctx, userID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", &shared.ReauthRequiredError{UserID: userID}
		}

		fresh := !current.ExpiresWithin(m.now(), m.buffer)
		if fresh && (!force || current.AccessToken != stale) {
			return current.AccessToken, nil
		}
		if current.RefreshToken == "" {
			m.observe("missing")
			return "", &shared.ReauthRequiredError{UserID: userID, Err: shared.ErrNoRefreshToken}
		}

		token, err := m.config.TokenSource(fctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
		if err != nil {
			m.observe("failed")
			m.logger.Warn("token refresh failed", "user", userID, "error", err)
			return "", &shared.ReauthRequiredError{UserID: userID, Err: fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)}
		}

		next := toRecord(token, current.RefreshToken)
		if err := m.store.Put(fctx, userID, next); err != nil {
			return "", err
		}
		m.observe("success")
		m.logger.Info("token refreshed", "user", userID, "expires_at", next.ExpiresAt)
		return next.AccessToken, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: waiting for token refresh: %w", shared.ErrTimeout, ctx.Err())
	}
}

func (m *Manager) invoke(ctx context.Context, token string, call func(context.Context, string) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := call(ctx, token)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", shared.ErrTimeout, err)
	}
	return err
}

// callContext bounds ctx by the call timeout and routes oauth2 through the manager's client.
func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Manager) observe(outcome string) {
	if m.metrics != nil {
		m.metrics.ObserveRefresh(outcome)
	}
}

// toRecord keeps previousRefresh when the provider did not rotate the refresh token.
func toRecord(token *oauth2.Token, previousRefresh string) models.TokenRecord {
	refresh := token.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return models.TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    token.Expiry,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
