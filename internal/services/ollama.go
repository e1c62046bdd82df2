package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.1:8b"
	noData             = "no data available"
)

const enrichmentPrompt = `You are the pulsemix mood engine. Given a person's aggregated wearable metrics and optional context, suggest music that fits their state.

Rules:
Mood: one of "flow", "amped", "recovery", "reset".
Energy and Valence are 0.0 to 1.0. Tempo is beats per minute.
Genres: up to three catalog genre names.
SearchQuery: a short catalog search string, no quotes.
Reasoning: one sentence.
Output: Return ONLY a valid JSON object with keys mood, energy, valence, tempo, genres, searchQuery, reasoning. No conversational text.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// OllamaOptions configures an [OllamaEnricher].
type OllamaOptions struct {
	Host       string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// OllamaEnricher produces [models.EnrichmentHint] values from a local Ollama model.
type OllamaEnricher struct {
	host    string
	model   string
	timeout time.Duration
	http    *retrier
}

// NewOllamaEnricher creates an [OllamaEnricher].
func NewOllamaEnricher(opts OllamaOptions) *OllamaEnricher {
	host := strings.TrimRight(opts.Host, "/")
	if host == "" {
		host = defaultOllamaHost
	}
	model := opts.Model
	if model == "" {
		model = defaultOllamaModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaEnricher{
		host:    host,
		model:   model,
		timeout: timeout,
		http:    newRetrier("ollama", opts.HTTPClient, nil, 1, 0, opts.Logger),
	}
}

// Enrich asks the model for a hint. Transport failures, model errors, and output that does
// not decode into a usable hint all wrap [shared.ErrEnrichmentFailed].
func (e *OllamaEnricher) Enrich(ctx context.Context, agg *models.AggregatedMetrics, ec models.EnrichmentContext) (models.EnrichmentHint, error) {
	if agg == nil {
		return models.EnrichmentHint{}, shared.ErrNoMetrics
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload := chatRequest{
		Model:  e.model,
		Stream: false,
		Format: "json",
		Messages: []chatMessage{
			{Role: "system", Content: enrichmentPrompt},
			{Role: "user", Content: BuildEnrichmentPrompt(agg, ec)},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return models.EnrichmentHint{}, fmt.Errorf("%w: marshal request: %w", shared.ErrEnrichmentFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return models.EnrichmentHint{}, fmt.Errorf("%w: build request: %w", shared.ErrEnrichmentFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.do(req)
	if err != nil {
		return models.EnrichmentHint{}, fmt.Errorf("%w: %w", shared.ErrEnrichmentFailed, err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := decodeJSON(resp, &parsed); err != nil {
		return models.EnrichmentHint{}, fmt.Errorf("%w: %w", shared.ErrEnrichmentFailed, err)
	}
	if parsed.Error != "" {
		return models.EnrichmentHint{}, fmt.Errorf("%w: ollama: %s", shared.ErrEnrichmentFailed, parsed.Error)
	}
	if strings.TrimSpace(parsed.Message.Content) == "" {
		return models.EnrichmentHint{}, fmt.Errorf("%w: empty response", shared.ErrEnrichmentFailed)
	}

	var hint models.EnrichmentHint
	if err := json.Unmarshal([]byte(parsed.Message.Content), &hint); err != nil {
		return models.EnrichmentHint{}, fmt.Errorf("%w: decode hint: %w", shared.ErrEnrichmentFailed, err)
	}
	return normalizeHint(hint)
}

// BuildEnrichmentPrompt renders the user message for agg and ec. Unknown values read as
// "no data available".
func BuildEnrichmentPrompt(agg *models.AggregatedMetrics, ec models.EnrichmentContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Samples: %d from %s\n", agg.SampleCount, joinProviders(agg.Providers))
	b.WriteString("Metrics:\n")
	for _, key := range models.MetricKeys {
		fmt.Fprintf(&b, "- %s: %s\n", key, metricText(agg.Metrics.Get(key)))
	}
	fmt.Fprintf(&b, "Calendar: %s\n", orNoData(ec.Calendar))
	fmt.Fprintf(&b, "Weather: %s\n", orNoData(ec.Weather))
	fmt.Fprintf(&b, "Preference: %s\n", orNoData(ec.Preference))
	return b.String()
}

func normalizeHint(h models.EnrichmentHint) (models.EnrichmentHint, error) {
	h.SearchQuery = strings.TrimSpace(h.SearchQuery)
	genres := h.Genres[:0]
	for _, g := range h.Genres {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, g)
		}
	}
	h.Genres = genres
	if h.SearchQuery == "" && len(h.Genres) == 0 {
		return models.EnrichmentHint{}, fmt.Errorf("%w: hint has neither a search query nor genres", shared.ErrEnrichmentFailed)
	}

	h.Energy = clamp01(h.Energy)
	h.Valence = clamp01(h.Valence)
	if h.Tempo < 0 {
		h.Tempo = 0
	}
	return h, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func metricText(v *float64) string {
	if v == nil {
		return noData
	}
	return fmt.Sprintf("%.2f", *v)
}

func orNoData(s string) string {
	if strings.TrimSpace(s) == "" {
		return noData
	}
	return s
}

func joinProviders(ids []models.ProviderID) string {
	if len(ids) == 0 {
		return noData
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}
