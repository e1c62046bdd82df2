package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/pulsemix/internal/models"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.TrackResult] to implement [list.Item].
type trackItem struct {
	track models.TrackResult
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string       { return i.track.Name }
func (i trackItem) Description() string {
	desc := strings.Join(i.track.ArtistNames, ", ")
	if desc == "" {
		desc = "Unknown Artist"
	}
	if i.track.CanonicalURI == "" {
		desc += " • offline pick"
	}
	return desc
}

func trackItems(tracks []models.TrackResult) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, track := range tracks {
		items[i] = trackItem{track: track}
	}
	return items
}
