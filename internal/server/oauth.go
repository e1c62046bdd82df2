package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
)

const exchangeTimeout = 30 * time.Second

// Completer finishes an authorization code flow. auth.Manager implements it.
type Completer interface {
	CompleteAuthorization(ctx context.Context, code, state string) (string, models.TokenRecord, error)
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	UserID string
	Token  models.TokenRecord
	err    error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles OAuth2 callback requests for the authorization code flow.
// Implements the Handler interface for registration with a Router.
//
// A single-use handler serves the CLI: it accepts one callback and reports it on [OAuthHandler.Result].
// Otherwise every callback is completed and nothing is sent.
type OAuthHandler struct {
	provider   string
	route      string
	completer  Completer
	singleUse  bool
	logger     *log.Logger
	resultChan chan OAuthResult
	once       sync.Once

	mu          sync.Mutex
	callbackHit bool
}

// NewOAuthHandler creates a callback handler for provider served at route.
func NewOAuthHandler(provider, route string, completer Completer, singleUse bool, logger *log.Logger) *OAuthHandler {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &OAuthHandler{
		provider:   provider,
		route:      route,
		completer:  completer,
		singleUse:  singleUse,
		logger:     logger,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.route}
}

// ServeHTTP handles the OAuth callback request.
//
// The state parameter is validated and consumed by the completer, which also exchanges the code.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.singleUse {
		h.mu.Lock()
		if h.callbackHit {
			h.mu.Unlock()
			http.Error(w, "Callback already processed", http.StatusBadRequest)
			return
		}
		h.callbackHit = true
		h.mu.Unlock()
	}

	query := r.URL.Query()
	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization failed: %s - %s", query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	userID, record, err := h.completer.CompleteAuthorization(ctx, code, query.Get("state"))
	if err != nil {
		h.logger.Warn("authorization callback failed", "provider", h.provider, "error", err)
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed: "+err.Error(), shared.HTTPStatus(err))
		return
	}

	h.logger.Info("authorization complete", "provider", h.provider, "user", userID)
	h.Send(OAuthResult{UserID: userID, Token: record})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = successPage.Execute(w, struct{ Provider, UserID string }{h.provider, userID})
}

// Send sends the OAuth result through the channel (only once, and only for single-use handlers).
func (h *OAuthHandler) Send(result OAuthResult) {
	if !h.singleUse {
		return
	}
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ {{.Provider}} connected</h1>
        <p>Signed in as {{.UserID}}. You can close this window and return to pulsemix.</p>
    </div>
</body>
</html>
`))
