package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/pulsemix/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// moodColors tints the dashboard header per label.
var moodColors = map[models.MoodLabel]lipgloss.Color{
	models.MoodFlow:     lipgloss.Color("#7D56F4"),
	models.MoodAmped:    lipgloss.Color("#FF5F87"),
	models.MoodRecovery: lipgloss.Color("#04B575"),
	models.MoodReset:    lipgloss.Color("#5FAFFF"),
}

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	badge lipgloss.Style
}

var _ Painter = (*Palette)(nil)

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		badge: lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#FFFFFF")),
	}
}

// On renders s as a badge on background bg.
func (p *Palette) On(s string, bg lipgloss.Color) string {
	return p.badge.Background(bg).Render(s)
}

// As renders s in bold foreground fg.
func (p *Palette) As(s string, fg lipgloss.Color) string {
	return lipgloss.NewStyle().Bold(true).Foreground(fg).Render(s)
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
