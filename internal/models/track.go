package models

import "time"

// RawTrack is a catalog search hit before mapping.
type RawTrack struct {
	ID          string
	Name        string
	Artists     []string
	PreviewURL  string
	URI         string
	ExternalURL string
	AlbumImages []string
}

// TrackResult is a resolved track. Optional fields are omitted when empty.
type TrackResult struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ArtistNames  []string `json:"artistNames"`
	PreviewURL   string   `json:"previewUrl,omitempty"`
	CanonicalURI string   `json:"canonicalUri,omitempty"`
	ExternalURL  string   `json:"externalUrl,omitempty"`
	AlbumArtURL  string   `json:"albumArtUrl,omitempty"`
}

// TokenRecord holds OAuth credentials for one user of the metric provider.
type TokenRecord struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ExpiresWithin reports whether the token expires before now+buffer.
// A zero ExpiresAt means the provider did not report an expiry.
func (t TokenRecord) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !t.ExpiresAt.After(now.Add(buffer))
}
