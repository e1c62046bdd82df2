package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Storage.Driver != "memory" {
			t.Errorf("expected storage driver memory, got %s", config.Storage.Driver)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}
		if config.Auth.ExpiryBuffer.Duration != 5*time.Minute {
			t.Errorf("expected expiry buffer 5m, got %v", config.Auth.ExpiryBuffer)
		}
		if config.Resolver.SearchLimit != 30 {
			t.Errorf("expected search limit 30, got %d", config.Resolver.SearchLimit)
		}
		if config.Resolver.MaxTracks != 20 {
			t.Errorf("expected max tracks 20, got %d", config.Resolver.MaxTracks)
		}
		if config.Credentials.Whoop.ClientID != "your_whoop_client_id" {
			t.Errorf("expected whoop client_id your_whoop_client_id, got %s", config.Credentials.Whoop.ClientID)
		}
		if config.Credentials.Whoop.Configured() || config.Credentials.Spotify.Configured() {
			t.Error("example placeholder credentials should not count as configured")
		}
	})

	t.Run("Configured", func(t *testing.T) {
		tests := []struct {
			name  string
			creds OAuthConfig
			want  bool
		}{
			{name: "both set", creds: OAuthConfig{ClientID: "abc123", ClientSecret: "s3cret"}, want: true},
			{name: "missing secret", creds: OAuthConfig{ClientID: "abc123"}, want: false},
			{name: "blank id", creds: OAuthConfig{ClientID: "  ", ClientSecret: "s3cret"}, want: false},
			{name: "placeholder id", creds: OAuthConfig{ClientID: "your_whoop_client_id", ClientSecret: "s3cret"}, want: false},
			{name: "placeholder secret", creds: OAuthConfig{ClientID: "abc123", ClientSecret: "your_spotify_client_secret"}, want: false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.creds.Configured(); got != tt.want {
					t.Errorf("Configured() = %v, want %v", got, tt.want)
				}
			})
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Storage.Path != DefaultConfig().Storage.Path {
			t.Errorf("created config storage path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig keeps defaults for missing keys", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[storage]
driver = "sqlite"
path = "/custom/path.db"

[auth]
expiry_buffer = "2m"

[credentials.whoop]
client_id = "test_client_id"
client_secret = "test_secret"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Storage.Driver != "sqlite" {
			t.Errorf("expected driver sqlite, got %s", config.Storage.Driver)
		}
		if config.Auth.ExpiryBuffer.Duration != 2*time.Minute {
			t.Errorf("expected expiry buffer 2m, got %v", config.Auth.ExpiryBuffer)
		}
		if config.Auth.StateTTL.Duration != 10*time.Minute {
			t.Errorf("expected default state ttl 10m, got %v", config.Auth.StateTTL)
		}
		if !config.Credentials.Whoop.Configured() {
			t.Error("expected whoop credentials to be configured")
		}
		if config.Credentials.Whoop.TokenURL == "" {
			t.Error("expected default whoop token url to be kept")
		}
	})

	t.Run("LoadConfig rejects bad durations", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")
		if err := os.WriteFile(configPath, []byte("[auth]\nexpiry_buffer = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected error for invalid duration")
		}
	})

	t.Run("SaveConfig round trips", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "saved.toml")

		config := DefaultConfig()
		config.Sync.UserID = "athlete-1"

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}
		if loaded.Sync.UserID != "athlete-1" {
			t.Errorf("expected user id athlete-1, got %s", loaded.Sync.UserID)
		}
		if loaded.Resolver.CallTimeout.Duration != config.Resolver.CallTimeout.Duration {
			t.Errorf("expected call timeout %v, got %v", config.Resolver.CallTimeout, loaded.Resolver.CallTimeout)
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		tmpDir := t.TempDir()
		envPath := filepath.Join(tmpDir, ".env")
		if err := os.WriteFile(envPath, []byte("PULSEMIX_OLLAMA_MODEL=test-model\n"), 0644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv("PULSEMIX_WHOOP_CLIENT_ID", "from-env")
		t.Setenv("PULSEMIX_OLLAMA_MODEL", "")
		os.Unsetenv("PULSEMIX_OLLAMA_MODEL")

		config := DefaultConfig()
		if err := ApplyEnv(config, envPath, filepath.Join(tmpDir, "missing.env")); err != nil {
			t.Fatalf("ApplyEnv() error = %v", err)
		}

		if config.Credentials.Whoop.ClientID != "from-env" {
			t.Errorf("expected client id from env, got %s", config.Credentials.Whoop.ClientID)
		}
		if config.Enrichment.Model != "test-model" {
			t.Errorf("expected model from dotenv file, got %s", config.Enrichment.Model)
		}
	})
}
