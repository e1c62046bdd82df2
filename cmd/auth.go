package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/pulsemix/internal/auth"
	"github.com/desertthunder/pulsemix/internal/server"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/urfave/cli/v3"
)

const authTimeout = 2 * time.Minute

// callbackRoute splits a redirect URI into the address to listen on and the callback path.
func callbackRoute(redirectURI, defaultPath string) (addr, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("%w: redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}
	path = u.Path
	if path == "" {
		path = defaultPath
	}
	return u.Host, path, nil
}

// AuthWhoop runs the Whoop authorization code flow.
func (r *Runner) AuthWhoop(ctx context.Context, cmd *cli.Command) error {
	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	if st.whoop == nil {
		return fmt.Errorf("%w: set credentials.whoop.client_id and client_secret", shared.ErrMissingCredentials)
	}
	return r.authorize(ctx, st.whoop, "Whoop", r.config.Credentials.Whoop.RedirectURI, "/callback", r.userID(cmd))
}

// AuthSpotify runs the Spotify authorization code flow.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	if st.spotify == nil {
		return fmt.Errorf("%w: set credentials.spotify.client_id and client_secret", shared.ErrMissingCredentials)
	}
	return r.authorize(ctx, st.spotify, "Spotify", r.config.Credentials.Spotify.RedirectURI, "/spotify/callback", r.userID(cmd))
}

// authorize opens the consent page and waits for the single callback on the redirect URI.
func (r *Runner) authorize(ctx context.Context, manager *auth.Manager, provider, redirectURI, defaultPath, userID string) error {
	if r.config.Storage.Driver == "" || r.config.Storage.Driver == "memory" {
		r.logger.Warn("storage.driver is memory, the token is lost when this command exits")
	}

	addr, path, err := callbackRoute(redirectURI, defaultPath)
	if err != nil {
		return err
	}

	handler := server.NewOAuthHandler(provider, path, manager, true, r.logger)
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger))
	router.Handler(handler)

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	ready := make(chan string, 1)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, addr, router, r.logger, ready)
	}()

	select {
	case <-ready:
	case err := <-serveErr:
		return err
	}

	authURL, err := manager.BeginAuthorization(userID)
	if err != nil {
		return err
	}

	r.writePlain("Opening %s authorization in your browser.\n", provider)
	r.writePlain("If it does not open, visit:\n%s\n", authURL)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser", "error", err)
	}

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case <-ctx.Done():
		return fmt.Errorf("%w: no %s callback within %s", shared.ErrTimeout, provider, authTimeout)
	}

	cancel()
	if err := <-serveErr; err != nil {
		r.logger.Warn("callback server shutdown", "error", err)
	}

	if err := result.Error(); err != nil {
		return err
	}

	r.logger.Info("authorization stored", "provider", provider, "user", result.UserID, "expires", result.Token.ExpiresAt)
	return r.writePlain("✓ %s authorized for %s\n", provider, result.UserID)
}

// AuthStatus prints the stored token state for each configured provider.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	userID := r.userID(cmd)
	r.writePlainHeader("Auth status for " + userID)

	for _, p := range []struct {
		name    string
		manager *auth.Manager
	}{{"Whoop", st.whoop}, {"Spotify", st.spotify}} {
		if p.manager == nil {
			r.writePlain("%-8s not configured\n", p.name)
			continue
		}
		record, ok, err := p.manager.Record(ctx, userID)
		switch {
		case err != nil:
			return err
		case !ok:
			r.writePlain("%-8s ✗ no token\n", p.name)
		case record.ExpiresAt.IsZero():
			r.writePlain("%-8s ✓ token stored\n", p.name)
		case record.ExpiresAt.Before(time.Now()):
			r.writePlain("%-8s ✓ token expired %s (refresh: %t)\n", p.name, record.ExpiresAt.Local().Format(time.RFC3339), record.RefreshToken != "")
		default:
			r.writePlain("%-8s ✓ valid until %s\n", p.name, record.ExpiresAt.Local().Format(time.RFC3339))
		}
	}
	return nil
}
