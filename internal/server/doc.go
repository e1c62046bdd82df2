// Package server provides HTTP routing, middleware, OAuth callbacks, and the JSON API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] and [Recoverer] are the stock middleware.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with per-path method dispatch.
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes the authorization code flow through a [Completer] (the token lifecycle
// manager), which validates and consumes the state parameter and stores the exchanged token.
//
// A single-use handler backs the CLI `auth` commands: a temporary server on the configured
// host and port handles one callback and reports it on a channel. `serve` mounts persistent handlers.
//
// # JSON API
//
// [API] exposes the engine: POST /sync/{provider}, POST /providers/whoop/sync, GET /auth/whoop,
// GET /auth/spotify, GET /mood, POST /enrich, POST /playlist, POST /playlist/save,
// GET /history, POST /reset, GET /metrics, and GET /healthz.
//
// Errors are JSON objects with an "error" message; re-authorization failures also carry an "authUrl".
package server
