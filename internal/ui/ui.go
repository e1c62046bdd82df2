package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/desertthunder/pulsemix/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	DashboardView
	ConfirmView
	SavedView
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	headerHeight  = 10
)

var timeNow = time.Now

// Engine is the slice of [tasks.Engine] the dashboard drives.
type Engine interface {
	Aggregate() *models.AggregatedMetrics
	FetchProviderData(ctx context.Context, userID string, opts tasks.SyncOptions) (*tasks.SyncResult, error)
	ResolvePlaylist(ctx context.Context, snapshot *models.MoodSnapshot, accessToken string, useEnrichment bool) (*tasks.PlaylistResult, error)
	SavePlaylist(ctx context.Context, accessToken string, result *tasks.PlaylistResult, name string) (string, error)
}

// Options configures a [Model].
type Options struct {
	// UserID is the metric provider user pulled with the sync key.
	UserID string
	// Sync pulls provider data on start instead of using the current mood.
	Sync bool
	// Enrich starts with enrichment turned on.
	Enrich bool
	// Token supplies a catalog access token. Without one only the offline picks are shown.
	Token func(ctx context.Context) (string, error)
	// Open launches a track in the browser.
	Open func(url string) error
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	engine  Engine
	opts    Options
	view    ViewState
	enrich  bool
	width   int
	height  int
	loading string
	status  string
	tracks  list.Model
	result  *tasks.PlaylistResult
	savedID string
	err     error
	help    help.Model
	keys    keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, engine Engine, opts Options) *Model {
	if opts.Token == nil {
		opts.Token = func(context.Context) (string, error) { return "", nil }
	}
	if opts.Open == nil {
		opts.Open = shared.OpenBrowser
	}
	return &Model{
		ctx:    ctx,
		engine: engine,
		opts:   opts,
		view:   LoadingView,
		enrich: opts.Enrich,
		width:  defaultWidth,
		height: defaultHeight,
		tracks: list.New(nil, list.NewDefaultDelegate(), defaultWidth-4, defaultHeight-headerHeight),
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init syncs the provider or resolves tracks for the current mood.
func (m *Model) Init() tea.Cmd {
	if m.opts.Sync {
		return m.syncProvider()
	}
	return m.resolve()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tracks.SetSize(max(msg.Width-4, 20), max(msg.Height-headerHeight, 5))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LoadingView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case DashboardView:
			return m.handleDashboardKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SavedView:
			return m.handleSavedKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	if m.view == DashboardView {
		m.tracks, cmd = m.tracks.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSynced:
		data := msg.data.(syncedData)
		if data.err != nil {
			m.err = data.err
			m.view = DashboardView
			return m, nil
		}
		m.status = fmt.Sprintf("synced %d provider(s)", len(data.result.Aggregated.Providers))
		if data.result.EnrichmentError != "" {
			m.status += " • enrichment failed, heuristic mood kept"
		}
		return m, m.resolve()

	case MsgResolved:
		data := msg.data.(resolvedData)
		m.view = DashboardView
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.result = data.result
		m.tracks.SetItems(trackItems(data.result.Tracks))
		m.tracks.Title = fmt.Sprintf("%d tracks • %s", len(data.result.Tracks), data.result.Source)
		m.tracks.Select(0)
		return m, nil

	case MsgSaved:
		data := msg.data.(savedData)
		m.savedID = data.id
		m.err = data.err
		m.view = SavedView
		return m, nil

	case MsgOpened:
		if err, _ := msg.data.(error); err != nil {
			m.status = "could not open browser: " + err.Error()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.tracks.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.tracks, cmd = m.tracks.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.resolve()
	case key.Matches(msg, m.keys.sync):
		return m, m.syncProvider()
	case key.Matches(msg, m.keys.enrich):
		m.enrich = !m.enrich
		return m, m.resolve()
	case key.Matches(msg, m.keys.save):
		if !m.saveable() {
			m.status = "only catalog search results can be saved"
			return m, nil
		}
		m.view = ConfirmView
		return m, nil
	case key.Matches(msg, m.keys.open):
		if item, ok := m.tracks.SelectedItem().(trackItem); ok {
			return m, m.openTrack(item.track)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.tracks, cmd = m.tracks.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.save()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = DashboardView
	}
	return m, nil
}

func (m *Model) handleSavedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.open):
		m.view = DashboardView
		m.err = nil
	}
	return m, nil
}

func (m *Model) saveable() bool {
	if m.result == nil {
		return false
	}
	for _, track := range m.result.Tracks {
		if track.CanonicalURI != "" {
			return true
		}
	}
	return false
}

func (m *Model) syncProvider() tea.Cmd {
	m.view = LoadingView
	m.loading = "Pulling the latest metrics..."
	userID, enrich := m.opts.UserID, m.enrich
	return func() tea.Msg {
		result, err := m.engine.FetchProviderData(m.ctx, userID, tasks.SyncOptions{Enrich: enrich})
		return syncedMsg(result, err)
	}
}

func (m *Model) resolve() tea.Cmd {
	m.view = LoadingView
	m.loading = "Finding tracks..."
	enrich := m.enrich
	return func() tea.Msg {
		token, err := m.opts.Token(m.ctx)
		if err != nil {
			token = ""
		}
		result, err := m.engine.ResolvePlaylist(m.ctx, nil, token, enrich)
		return resolvedMsg(result, err)
	}
}

func (m *Model) save() tea.Cmd {
	m.view = LoadingView
	m.loading = "Saving playlist..."
	result := m.result
	return func() tea.Msg {
		token, err := m.opts.Token(m.ctx)
		if err != nil {
			return savedMsg("", err)
		}
		if token == "" {
			return savedMsg("", fmt.Errorf("%w: connect a catalog account with `pulsemix auth spotify`", shared.ErrMissingArgument))
		}
		id, err := m.engine.SavePlaylist(m.ctx, token, result, "")
		return savedMsg(id, err)
	}
}

func (m *Model) openTrack(track models.TrackResult) tea.Cmd {
	target := track.ExternalURL
	if target == "" {
		target = "https://open.spotify.com/search/" + strings.ReplaceAll(track.Name, " ", "%20")
	}
	return func() tea.Msg {
		return openedMsg(m.opts.Open(target))
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LoadingView:
		return fmt.Sprintf("%s\n\n%s", styles.title.Render("pulsemix"), m.loading)
	case DashboardView:
		return m.renderDashboard()
	case ConfirmView:
		return m.renderConfirm()
	case SavedView:
		return m.renderSaved()
	default:
		return ""
	}
}

func (m *Model) renderDashboard() string {
	if m.result == nil {
		msg := "No playlist yet."
		if m.err != nil {
			msg = fmt.Sprintf("Error: %v", m.err)
		}
		if errors.Is(m.err, shared.ErrNoMetrics) {
			msg = "No metrics synced yet. Press s to pull from your provider."
		}
		helpView := m.help.ShortHelpView([]key.Binding{m.keys.sync, m.keys.refresh, m.keys.quit})
		return fmt.Sprintf("%s\n\n%s\n\n%s", styles.title.Render("pulsemix"), styles.err.Render(msg), helpView)
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.tracks.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(styles.err.Render("Error: "+m.err.Error()) + "\n")
	}
	if m.status != "" {
		b.WriteString(styles.warn.Render(m.status) + "\n")
	}
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.open, m.keys.refresh, m.keys.sync, m.keys.enrich, m.keys.save, m.keys.quit}))
	return b.String()
}

func (m *Model) renderHeader() string {
	snapshot := m.result.Mood
	if snapshot == nil {
		return styles.title.Render("pulsemix")
	}

	color, ok := moodColors[snapshot.Label]
	if !ok {
		color = lipgloss.Color("#7D56F4")
	}

	enrichment := "off"
	if m.enrich {
		enrichment = "on"
	}
	lines := []string{
		fmt.Sprintf("%s  score %.2f  • %s", styles.On(strings.ToUpper(string(snapshot.Label)), color), snapshot.Score, snapshot.Source),
		snapshot.Summary,
	}
	if agg := m.engine.Aggregate(); agg != nil {
		lines = append(lines, styles.help.Render(metricsLine(agg)))
	}
	source := m.result.Source
	if m.result.Query != "" {
		source = fmt.Sprintf("%s %q", source, m.result.Query)
	} else if m.result.Reason != "" {
		source = fmt.Sprintf("%s (%s)", source, m.result.Reason)
	}
	lines = append(lines, styles.help.Render(fmt.Sprintf("tracks: %s • enrichment %s", source, enrichment)))
	return strings.Join(lines, "\n") + "\n"
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Save %d tracks as a playlist?", len(m.result.Tracks)))
	info := fmt.Sprintf("\nName: %s\n", tasks.PlaylistName(m.result.Label(), timeNow()))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSaved() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Save failed: %v", m.err)), helpView)
	}
	return fmt.Sprintf("%s\n\nPlaylist id: %s\n\n%s", styles.ok.Render("✓ Playlist saved!"), m.savedID, helpView)
}

func metricsLine(agg *models.AggregatedMetrics) string {
	labels := map[models.MetricKey]string{
		models.MetricReadiness:        "readiness",
		models.MetricHRV:              "hrv",
		models.MetricSleepQuality:     "sleep",
		models.MetricStrain:           "strain",
		models.MetricRestingHeartRate: "rhr",
	}
	var parts []string
	for _, k := range models.MetricKeys {
		if v := agg.Metrics.Get(k); v != nil {
			parts = append(parts, fmt.Sprintf("%s %.1f", labels[k], *v))
		}
	}
	parts = append(parts, fmt.Sprintf("providers %d", len(agg.Providers)))
	return strings.Join(parts, " • ")
}
