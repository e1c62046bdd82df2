package playlist

import (
	"fmt"
	"net/url"

	"github.com/desertthunder/pulsemix/internal/models"
)

type staticTrack struct {
	name   string
	artist string
}

var fallbackTable = map[models.MoodLabel][]staticTrack{
	models.MoodFlow: {
		{"Weightless", "Marconi Union"},
		{"Intro", "The xx"},
		{"Avril 14th", "Aphex Twin"},
		{"Experience", "Ludovico Einaudi"},
		{"Svefn-g-englar", "Sigur Rós"},
	},
	models.MoodAmped: {
		{"Lose Yourself", "Eminem"},
		{"Titanium", "David Guetta"},
		{"Can't Hold Us", "Macklemore & Ryan Lewis"},
		{"Don't Stop Me Now", "Queen"},
		{"Stronger", "Kanye West"},
	},
	models.MoodRecovery: {
		{"Holocene", "Bon Iver"},
		{"River Flows in You", "Yiruma"},
		{"Bloom", "The Paper Kites"},
		{"Gymnopédie No. 1", "Erik Satie"},
		{"To Build a Home", "The Cinematic Orchestra"},
	},
	models.MoodReset: {
		{"Sunday Morning", "Maroon 5"},
		{"Banana Pancakes", "Jack Johnson"},
		{"Riptide", "Vance Joy"},
		{"Budapest", "George Ezra"},
		{"Put Your Records On", "Corinne Bailey Rae"},
	},
}

// Fallback returns the static track list for label. Unknown labels get the reset list.
//
// Fallback tracks have no catalog URI; their external URL points at a catalog search.
func Fallback(label models.MoodLabel) []models.TrackResult {
	entries, ok := fallbackTable[label]
	if !ok {
		label = models.MoodReset
		entries = fallbackTable[models.MoodReset]
	}

	tracks := make([]models.TrackResult, 0, len(entries))
	for i, e := range entries {
		tracks = append(tracks, models.TrackResult{
			ID:          fmt.Sprintf("fallback-%s-%d", label, i+1),
			Name:        e.name,
			ArtistNames: []string{e.artist},
			ExternalURL: "https://open.spotify.com/search/" + url.PathEscape(e.name+" "+e.artist),
		})
	}
	return tracks
}
