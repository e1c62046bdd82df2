package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Storage     StorageConfig     `toml:"storage"`
	Server      ServerConfig      `toml:"server"`
	Auth        AuthConfig        `toml:"auth"`
	Resolver    ResolverConfig    `toml:"resolver"`
	Enrichment  EnrichmentConfig  `toml:"enrichment"`
	Sync        SyncConfig        `toml:"sync"`
	Logging     LoggingConfig     `toml:"logging"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Whoop   OAuthConfig `toml:"whoop"`
	Spotify OAuthConfig `toml:"spotify"`
}

// OAuthConfig contains OAuth client credentials and endpoints for one provider.
type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	APIBaseURL   string `toml:"api_base_url"`
}

// placeholderPrefix marks the stand-in credentials shipped in config.example.toml.
const placeholderPrefix = "your_"

// Configured reports whether both client credentials are present.
// The example placeholders do not count.
func (c OAuthConfig) Configured() bool {
	return credential(c.ClientID) && credential(c.ClientSecret)
}

func credential(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.HasPrefix(v, placeholderPrefix)
}

// StorageConfig selects the token store backend.
//
// Driver is "memory" (default) or "sqlite".
type StorageConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// AuthConfig tunes the token lifecycle manager.
type AuthConfig struct {
	ExpiryBuffer Duration `toml:"expiry_buffer"`
	StateTTL     Duration `toml:"state_ttl"`
	CallTimeout  Duration `toml:"call_timeout"`
}

// ResolverConfig tunes the track resolution pipeline and catalog client.
type ResolverConfig struct {
	CallTimeout Duration `toml:"call_timeout"`
	SearchLimit int      `toml:"search_limit"`
	MaxTracks   int      `toml:"max_tracks"`
	RateLimit   float64  `toml:"rate_limit"`
	MaxRetries  int      `toml:"max_retries"`
}

// EnrichmentConfig configures the optional language model enrichment step.
type EnrichmentConfig struct {
	Enabled bool     `toml:"enabled"`
	Host    string   `toml:"host"`
	Model   string   `toml:"model"`
	Timeout Duration `toml:"timeout"`
}

// SyncConfig configures scheduled provider re-syncs for `serve`.
type SyncConfig struct {
	UserID   string `toml:"user_id"`
	Schedule string `toml:"schedule"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Duration wraps [time.Duration] so TOML strings like "5m" decode directly.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// envOverrides maps environment variables to the config fields they replace.
func envOverrides(c *Config) map[string]*string {
	return map[string]*string{
		"PULSEMIX_WHOOP_CLIENT_ID":       &c.Credentials.Whoop.ClientID,
		"PULSEMIX_WHOOP_CLIENT_SECRET":   &c.Credentials.Whoop.ClientSecret,
		"PULSEMIX_WHOOP_REDIRECT_URI":    &c.Credentials.Whoop.RedirectURI,
		"PULSEMIX_SPOTIFY_CLIENT_ID":     &c.Credentials.Spotify.ClientID,
		"PULSEMIX_SPOTIFY_CLIENT_SECRET": &c.Credentials.Spotify.ClientSecret,
		"PULSEMIX_SPOTIFY_REDIRECT_URI":  &c.Credentials.Spotify.RedirectURI,
		"PULSEMIX_STORAGE_DRIVER":        &c.Storage.Driver,
		"PULSEMIX_STORAGE_PATH":          &c.Storage.Path,
		"PULSEMIX_OLLAMA_HOST":           &c.Enrichment.Host,
		"PULSEMIX_OLLAMA_MODEL":          &c.Enrichment.Model,
		"PULSEMIX_LOG_LEVEL":             &c.Logging.Level,
	}
}

// ApplyEnv loads the given dotenv files (missing files are ignored) and then overrides config
// fields from PULSEMIX_* environment variables.
func ApplyEnv(config *Config, files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, file, err)
		}
	}

	for key, field := range envOverrides(config) {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			*field = value
		}
	}

	return nil
}
