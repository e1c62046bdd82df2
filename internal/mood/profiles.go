package mood

import "github.com/desertthunder/pulsemix/internal/models"

// Profile is the static copy and playlist targeting attached to a label.
type Profile struct {
	Label           models.MoodLabel
	Summary         string
	Recommendations []string
	Energy          float64
	Valence         float64
	Tempo           float64
	// Presets are the catalog queries tried, in order, after any enrichment candidates.
	Presets []string
}

var profiles = map[models.MoodLabel]Profile{
	models.MoodFlow: {
		Label:   models.MoodFlow,
		Summary: "You are well rested and recovered. A good window for deep, focused work.",
		Recommendations: []string{
			"Block out a long stretch for your hardest task",
			"Keep notifications off while the focus lasts",
			"Take a short walk between deep work sessions",
		},
		Energy:  0.6,
		Valence: 0.65,
		Tempo:   110,
		Presets: []string{"deep focus instrumental", "lofi beats study", "ambient electronic focus"},
	},
	models.MoodAmped: {
		Label:   models.MoodAmped,
		Summary: "High strain with solid readiness. Your body is primed for intensity.",
		Recommendations: []string{
			"Channel the energy into a hard training session",
			"Hydrate and refuel after exertion",
			"Plan a wind down before bed so sleep does not suffer",
		},
		Energy:  0.85,
		Valence: 0.7,
		Tempo:   135,
		Presets: []string{"high energy workout", "upbeat dance pop", "power running mix"},
	},
	models.MoodRecovery: {
		Label:   models.MoodRecovery,
		Summary: "Readiness or sleep is low. Today favors rest and light movement.",
		Recommendations: []string{
			"Swap intense training for mobility or a light walk",
			"Aim for an early night",
			"Keep caffeine to the morning",
		},
		Energy:  0.3,
		Valence: 0.45,
		Tempo:   80,
		Presets: []string{"calm acoustic chill", "ambient relaxation", "soft piano sleep"},
	},
	models.MoodReset: {
		Label:   models.MoodReset,
		Summary: "A balanced day with no strong signal either way. Keep things steady.",
		Recommendations: []string{
			"Mix focused blocks with regular breaks",
			"Get outside for some daylight",
			"Check in again after your next sync",
		},
		Energy:  0.5,
		Valence: 0.55,
		Tempo:   100,
		Presets: []string{"indie chill vibes", "feel good mellow", "easy listening afternoon"},
	},
}

// ProfileFor returns the profile for label. Unknown labels return the reset profile.
func ProfileFor(label models.MoodLabel) Profile {
	if p, ok := profiles[label]; ok {
		return p
	}
	return profiles[models.MoodReset]
}

// Presets returns a copy of the preset search queries for label.
func Presets(label models.MoodLabel) []string {
	return append([]string(nil), ProfileFor(label).Presets...)
}
