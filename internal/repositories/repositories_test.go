package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/desertthunder/pulsemix/internal/auth"
	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
)

var _ auth.TokenStore = (*TokenRepository)(nil)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(shared.StorageConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()
	expires := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

	t.Run("Get missing", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t), "whoop")

		_, ok, err := repo.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if ok {
			t.Error("expected no record")
		}
	})

	t.Run("Put and Get", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t), "whoop")
		record := models.TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: expires}

		if err := repo.Put(ctx, "u", record); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		got, ok, err := repo.Get(ctx, "u")
		if err != nil || !ok {
			t.Fatalf("Get() = %v, %v", ok, err)
		}
		if got.AccessToken != "a" || got.RefreshToken != "r" {
			t.Errorf("unexpected record %+v", got)
		}
		if !got.ExpiresAt.Equal(expires) {
			t.Errorf("expires_at = %v, want %v", got.ExpiresAt, expires)
		}
	})

	t.Run("Put replaces in place", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTokenRepository(db, "whoop")

		if err := repo.Put(ctx, "u", models.TokenRecord{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expires}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := repo.Put(ctx, "u", models.TokenRecord{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: expires.Add(time.Hour)}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM provider_tokens").Scan(&count); err != nil {
			t.Fatalf("count query failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 row, got %d", count)
		}

		got, _, _ := repo.Get(ctx, "u")
		if got.AccessToken != "a2" || got.RefreshToken != "r2" {
			t.Errorf("expected replaced record, got %+v", got)
		}
	})

	t.Run("zero expiry stays zero", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t), "whoop")
		if err := repo.Put(ctx, "u", models.TokenRecord{AccessToken: "a"}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, _, _ := repo.Get(ctx, "u")
		if !got.ExpiresAt.IsZero() {
			t.Errorf("expected zero expiry, got %v", got.ExpiresAt)
		}
	})

	t.Run("Users and Reset", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t), "whoop")
		for _, id := range []string{"b", "a"} {
			if err := repo.Put(ctx, id, models.TokenRecord{AccessToken: id, ExpiresAt: expires}); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		}

		users, err := repo.Users(ctx)
		if err != nil {
			t.Fatalf("Users() error = %v", err)
		}
		if len(users) != 2 || users[0] != "a" || users[1] != "b" {
			t.Errorf("users = %v, want [a b]", users)
		}

		if err := repo.Reset(ctx); err != nil {
			t.Fatalf("Reset() error = %v", err)
		}
		if users, _ := repo.Users(ctx); len(users) != 0 {
			t.Errorf("expected no users after reset, got %v", users)
		}
	})

	t.Run("providers are isolated", func(t *testing.T) {
		db := setupTestDB(t)
		whoop := NewTokenRepository(db, "whoop")
		spotify := NewTokenRepository(db, "spotify")

		if err := whoop.Put(ctx, "u", models.TokenRecord{AccessToken: "w", ExpiresAt: expires}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := spotify.Put(ctx, "u", models.TokenRecord{AccessToken: "s", ExpiresAt: expires}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		got, _, _ := whoop.Get(ctx, "u")
		if got.AccessToken != "w" {
			t.Errorf("whoop token = %q", got.AccessToken)
		}

		if err := spotify.Reset(ctx); err != nil {
			t.Fatalf("Reset() error = %v", err)
		}
		if _, ok, _ := spotify.Get(ctx, "u"); ok {
			t.Error("spotify token should be gone")
		}
		if users, _ := whoop.Users(ctx); len(users) != 1 {
			t.Errorf("whoop users = %v, want [u]", users)
		}
	})

	t.Run("backs the auth manager", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t), "whoop")
		manager, err := auth.NewManager(shared.OAuthConfig{
			ClientID: "id", ClientSecret: "secret",
			AuthURL: "https://provider.test/auth", TokenURL: "https://provider.test/token",
		}, auth.Options{Store: repo})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}

		if err := repo.Put(ctx, "u", models.TokenRecord{AccessToken: "stored", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		token, err := manager.ValidAccessToken(ctx, "u")
		if err != nil || token != "stored" {
			t.Fatalf("ValidAccessToken() = %q, %v", token, err)
		}
	})

	t.Run("closed database", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTokenRepository(db, "whoop")
		db.Close()

		if _, _, err := repo.Get(ctx, "u"); err == nil {
			t.Error("expected error from closed database")
		}
		if err := repo.Put(ctx, "u", models.TokenRecord{}); err == nil {
			t.Error("expected error from closed database")
		}
	})
}

func TestHistoryRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)

	t.Run("Append assigns ids", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		record := &models.SyncRecord{Provider: "whoop", Label: models.MoodFlow, Score: 0.61, Source: models.SourceHeuristic, SyncedAt: base}

		if err := repo.Append(ctx, record); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if record.ID == "" {
			t.Error("expected generated id")
		}
	})

	t.Run("Recent is newest first and limited", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		labels := []models.MoodLabel{models.MoodReset, models.MoodRecovery, models.MoodAmped}
		for i, label := range labels {
			rec := &models.SyncRecord{Provider: "manual", Label: label, Score: float64(i) / 10, Source: models.SourceHeuristic, SampleCount: i + 1, SyncedAt: base.Add(time.Duration(i) * time.Hour)}
			if err := repo.Append(ctx, rec); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
		}

		records, err := repo.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].Label != models.MoodAmped || records[1].Label != models.MoodRecovery {
			t.Errorf("unexpected order: %s, %s", records[0].Label, records[1].Label)
		}
		if !records[0].SyncedAt.Equal(base.Add(2*time.Hour)) || records[0].SampleCount != 3 {
			t.Errorf("unexpected record %+v", records[0])
		}

		all, _ := repo.Recent(ctx, 0)
		if len(all) != 3 {
			t.Errorf("expected 3 records, got %d", len(all))
		}
	})

	t.Run("Reset", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		_ = repo.Append(ctx, &models.SyncRecord{Provider: "manual", Label: models.MoodReset, Source: models.SourceHeuristic})

		if err := repo.Reset(ctx); err != nil {
			t.Fatalf("Reset() error = %v", err)
		}
		if records, _ := repo.Recent(ctx, 0); len(records) != 0 {
			t.Errorf("expected empty history, got %d", len(records))
		}
	})
}
