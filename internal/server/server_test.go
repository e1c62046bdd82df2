package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/playlist"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/desertthunder/pulsemix/internal/tasks"
	th "github.com/desertthunder/pulsemix/internal/testing"
)

func TestBasicRouter(t *testing.T) {
	t.Run("dispatches by method", func(t *testing.T) {
		router := NewBasicRouter()
		router.HandleFunc(http.MethodGet, "/thing", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("get")) })
		router.HandleFunc(http.MethodPost, "/thing", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("post")) })

		for _, method := range []string{http.MethodGet, http.MethodPost} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(method, "/thing", nil))
			if rec.Body.String() != strings.ToLower(method) {
				t.Errorf("%s /thing = %q", method, rec.Body.String())
			}
		}

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/thing", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("DELETE status = %d, want 405", rec.Code)
		}
		if got := rec.Header().Get("Allow"); got != "GET, POST" {
			t.Errorf("Allow = %q", got)
		}
	})

	t.Run("path wildcards", func(t *testing.T) {
		router := NewBasicRouter()
		router.HandleFunc(http.MethodPost, "/sync/{provider}", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(r.PathValue("provider")))
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync/oura", nil))
		if rec.Body.String() != "oura" {
			t.Errorf("provider = %q", rec.Body.String())
		}
	})

	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mw("first"), mw("second"))
		router.HandleFunc(http.MethodGet, "/", func(w http.ResponseWriter, r *http.Request) { order = append(order, "handler") })
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("order = %v", order)
		}
	})
}

func TestCheckRoutes(t *testing.T) {
	api := NewAPI(APIOptions{Metrics: http.NotFoundHandler()})
	callback := func(route string) Handler {
		return NewOAuthHandler("Test", route, nil, false, nil)
	}

	tt := []struct {
		name     string
		handlers []Handler
		wantErr  bool
	}{
		{name: "distinct callbacks", handlers: []Handler{callback("/callback"), callback("/spotify/callback")}},
		{name: "shared callback path", handlers: []Handler{callback("/callback"), callback("/callback")}, wantErr: true},
		{name: "callback on an api path", handlers: []Handler{callback("/mood")}, wantErr: true},
		{name: "callback under a wildcard", handlers: []Handler{callback("/sync/whoop")}, wantErr: true},
		{name: "trailing slash still collides", handlers: []Handler{callback("/metrics/")}, wantErr: true},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckRoutes(api.Routes(), tc.handlers...)
			if tc.wantErr && !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("CheckRoutes() error = %v, want ErrInvalidConfig", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("CheckRoutes() error = %v", err)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("request logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := shared.NewLogger(&buf)
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))
		out := buf.String()
		if !strings.Contains(out, "/brew") || !strings.Contains(out, "418") {
			t.Errorf("unexpected log line %q", out)
		}
	})

	t.Run("recoverer", func(t *testing.T) {
		handler := Recoverer(shared.DiscardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

type fakeCompleter struct {
	userID string
	err    error
	codes  []string
}

func (f *fakeCompleter) CompleteAuthorization(ctx context.Context, code, state string) (string, models.TokenRecord, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return "", models.TokenRecord{}, f.err
	}
	return f.userID, models.TokenRecord{AccessToken: "access-" + code}, nil
}

func TestOAuthHandler(t *testing.T) {
	t.Run("single use reports the result", func(t *testing.T) {
		completer := &fakeCompleter{userID: "u1"}
		handler := NewOAuthHandler("Whoop", "/callback", completer, true, nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=s", nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Whoop connected") {
			t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
		}

		select {
		case result := <-handler.Result():
			if result.Error() != nil || result.UserID != "u1" || result.Token.AccessToken != "access-abc" {
				t.Errorf("unexpected result %+v", result)
			}
		case <-time.After(time.Second):
			t.Fatal("no result sent")
		}

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=again&state=s", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("second callback status = %d, want 400", rec.Code)
		}
		if len(completer.codes) != 1 {
			t.Errorf("completer called %d times", len(completer.codes))
		}
	})

	t.Run("provider error", func(t *testing.T) {
		handler := NewOAuthHandler("Whoop", "/callback", &fakeCompleter{}, true, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&error_description=nope", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
		result := <-handler.Result()
		if result.Error() == nil || !strings.Contains(result.Error().Error(), "access_denied") {
			t.Errorf("unexpected error %v", result.Error())
		}
	})

	t.Run("invalid state", func(t *testing.T) {
		completer := &fakeCompleter{err: shared.ErrInvalidState}
		handler := NewOAuthHandler("Whoop", "/callback", completer, false, nil)

		for range 2 {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=forged", nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		}
		if len(completer.codes) != 2 {
			t.Errorf("persistent handler should accept every callback")
		}
	})
}

type apiFixture struct {
	server   *httptest.Server
	engine   *tasks.Engine
	searcher *th.MockSearcher
	saver    *th.MockSaver
}

type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) ValidAccessToken(ctx context.Context, userID string) (string, error) {
	return s.token, s.err
}

func newAPIFixture(t *testing.T, catalog TokenProvider, source tasks.ProviderSource) *apiFixture {
	t.Helper()
	searcher := &th.MockSearcher{Results: map[string][]models.RawTrack{"deep focus instrumental": th.RawTracks("f", 4)}}
	saver := &th.MockSaver{ID: "pl-1"}
	engine := tasks.NewEngine(tasks.Deps{
		Resolver: playlist.NewResolver(searcher, playlist.Options{}),
		Saver:    saver,
		Provider: &tasks.Provider{ID: "whoop", Source: source, Auth: &th.MockAuthorizer{URL: "https://whoop.example/auth"}},
	})

	router := NewBasicRouter()
	api := NewAPI(APIOptions{
		Engine:  engine,
		Whoop:   &th.MockAuthorizer{URL: "https://whoop.example/auth"},
		Catalog: catalog,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
	})
	api.Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &apiFixture{server: server, engine: engine, searcher: searcher, saver: saver}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp, decoded
}

func flowSync() map[string]any {
	return map[string]any{"payload": map[string]any{"readiness": 85, "sleepQuality": 90, "hrv": 100, "strain": 5, "restingHeartRate": 50}}
}

func TestAPI(t *testing.T) {
	t.Run("sync then read mood", func(t *testing.T) {
		f := newAPIFixture(t, nil, &th.MockSource{})

		resp, body := f.do(t, http.MethodPost, "/sync/manual", flowSync())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("sync status = %d body=%v", resp.StatusCode, body)
		}
		mood := body["mood"].(map[string]any)
		if mood["label"] != "flow" {
			t.Errorf("label = %v", mood["label"])
		}
		for _, key := range []string{"normalizedMetrics", "aggregatedMetrics"} {
			if _, ok := body[key]; !ok {
				t.Errorf("response missing %s", key)
			}
		}

		resp, body = f.do(t, http.MethodGet, "/mood", nil)
		if resp.StatusCode != http.StatusOK || body["mood"].(map[string]any)["label"] != "flow" {
			t.Errorf("GET /mood = %d %v", resp.StatusCode, body)
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		f := newAPIFixture(t, nil, &th.MockSource{})

		tt := []struct {
			name   string
			method string
			path   string
			body   any
			want   int
		}{
			{name: "unsupported provider", method: http.MethodPost, path: "/sync/fitbit", body: flowSync(), want: http.StatusBadRequest},
			{name: "missing payload", method: http.MethodPost, path: "/sync/manual", body: map[string]any{}, want: http.StatusBadRequest},
			{name: "no metrics yet", method: http.MethodGet, path: "/mood", want: http.StatusBadRequest},
			{name: "playlist before sync", method: http.MethodPost, path: "/playlist", body: map[string]any{}, want: http.StatusBadRequest},
			{name: "history without sqlite", method: http.MethodGet, path: "/history", want: http.StatusServiceUnavailable},
			{name: "bad history limit", method: http.MethodGet, path: "/history?limit=zero", want: http.StatusBadRequest},
			{name: "enrichment disabled", method: http.MethodPost, path: "/enrich", want: http.StatusServiceUnavailable},
			{name: "spotify not configured", method: http.MethodGet, path: "/auth/spotify", want: http.StatusServiceUnavailable},
			{name: "wrong method", method: http.MethodGet, path: "/reset", want: http.StatusMethodNotAllowed},
		}
		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				resp, body := f.do(t, tc.method, tc.path, tc.body)
				if resp.StatusCode != tc.want {
					t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tc.want, body)
				}
			})
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newAPIFixture(t, nil, &th.MockSource{})
		resp, err := http.Post(f.server.URL+"/sync/manual", "application/json", strings.NewReader("{nope"))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("provider sync needing reauth returns the url", func(t *testing.T) {
		source := &th.MockSource{Err: &shared.ReauthRequiredError{UserID: "u1", Err: shared.ErrNoRefreshToken}}
		f := newAPIFixture(t, nil, source)

		resp, body := f.do(t, http.MethodPost, "/providers/whoop/sync", map[string]any{"userId": "u1"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if body["authUrl"] != "https://whoop.example/auth?user=u1" {
			t.Errorf("authUrl = %v", body["authUrl"])
		}
	})

	t.Run("authorization redirect", func(t *testing.T) {
		f := newAPIFixture(t, nil, &th.MockSource{})

		resp, _ := f.do(t, http.MethodGet, "/auth/whoop?user=u7", nil)
		if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "https://whoop.example/auth?user=u7" {
			t.Errorf("redirect = %d %q", resp.StatusCode, resp.Header.Get("Location"))
		}

		_, body := f.do(t, http.MethodGet, "/auth/whoop?format=json", nil)
		if body["url"] != "https://whoop.example/auth?user=default" {
			t.Errorf("url = %v", body["url"])
		}
	})

	t.Run("playlist without a token uses the fallback", func(t *testing.T) {
		f := newAPIFixture(t, &staticTokens{err: &shared.ReauthRequiredError{UserID: "default"}}, &th.MockSource{})
		f.do(t, http.MethodPost, "/sync/manual", flowSync())

		resp, body := f.do(t, http.MethodPost, "/playlist", map[string]any{})
		if resp.StatusCode != http.StatusOK || body["source"] != playlist.SourceFallback {
			t.Errorf("unexpected %d %v", resp.StatusCode, body)
		}
		if len(f.searcher.Calls()) != 0 {
			t.Errorf("expected no searches")
		}
	})

	t.Run("playlist with stored catalog token searches", func(t *testing.T) {
		f := newAPIFixture(t, &staticTokens{token: "stored"}, &th.MockSource{})
		f.do(t, http.MethodPost, "/sync/manual", flowSync())

		resp, body := f.do(t, http.MethodPost, "/playlist", map[string]any{})
		if resp.StatusCode != http.StatusOK || body["source"] != playlist.SourceSearch {
			t.Errorf("unexpected %d %v", resp.StatusCode, body)
		}
		if tracks := body["tracks"].([]any); len(tracks) != 4 {
			t.Errorf("tracks = %d", len(tracks))
		}
	})

	t.Run("save playlist", func(t *testing.T) {
		f := newAPIFixture(t, nil, &th.MockSource{})
		f.do(t, http.MethodPost, "/sync/manual", flowSync())

		resp, _ := f.do(t, http.MethodPost, "/playlist/save", map[string]any{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("save without token = %d, want 400", resp.StatusCode)
		}

		resp, body := f.do(t, http.MethodPost, "/playlist/save", map[string]any{"accessToken": "t", "name": "Morning"})
		if resp.StatusCode != http.StatusCreated || body["playlistId"] != "pl-1" {
			t.Fatalf("unexpected %d %v", resp.StatusCode, body)
		}
		if len(f.saver.Specs) != 1 || f.saver.Specs[0].Name != "Morning" || len(f.saver.URIs) != 4 {
			t.Errorf("saver saw %+v %v", f.saver.Specs, f.saver.URIs)
		}
	})

	t.Run("reset clears the mood", func(t *testing.T) {
		f := newAPIFixture(t, nil, &th.MockSource{})
		f.do(t, http.MethodPost, "/sync/manual", flowSync())

		resp, _ := f.do(t, http.MethodPost, "/reset", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("reset status = %d", resp.StatusCode)
		}
		if _, err := f.engine.CurrentMood(); !errors.Is(err, shared.ErrNoMetrics) {
			t.Errorf("mood should be cleared, got %v", err)
		}
	})

	t.Run("health and metrics", func(t *testing.T) {
		f := newAPIFixture(t, nil, &th.MockSource{})
		resp, body := f.do(t, http.MethodGet, "/healthz", nil)
		if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
			t.Errorf("healthz = %d %v", resp.StatusCode, body)
		}

		resp, _ = f.do(t, http.MethodGet, "/metrics", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("metrics status = %d", resp.StatusCode)
		}
	})
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)

	router := NewBasicRouter()
	router.HandleFunc(http.MethodGet, "/ping", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "pong") })

	go func() { done <- Serve(ctx, "127.0.0.1:0", router, nil, ready) }()

	addr := <-ready
	resp, err := http.Get("http://" + addr + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
