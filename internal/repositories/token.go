package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/pulsemix/internal/models"
)

// TokenRepository stores [models.TokenRecord] rows in the provider_tokens table.
//
// Each repository sees only the rows of its provider, so the metric provider and the
// catalog can share one database.
type TokenRepository struct {
	db       *sql.DB
	provider string
	now      func() time.Time
}

// NewTokenRepository creates a new [TokenRepository] for provider with the given database connection
func NewTokenRepository(db *sql.DB, provider string) *TokenRepository {
	return &TokenRepository{db: db, provider: provider, now: time.Now}
}

// Get returns the record for userID; ok is false when the user has none.
func (r *TokenRepository) Get(ctx context.Context, userID string) (models.TokenRecord, bool, error) {
	query := `
		SELECT access_token, refresh_token, expires_at
		FROM provider_tokens
		WHERE provider = ? AND user_id = ?
	`

	var (
		record    models.TokenRecord
		expiresAt time.Time
	)
	err := r.db.QueryRowContext(ctx, query, r.provider, userID).Scan(&record.AccessToken, &record.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TokenRecord{}, false, nil
	}
	if err != nil {
		return models.TokenRecord{}, false, fmt.Errorf("failed to query token: %w", err)
	}

	if !expiresAt.IsZero() {
		record.ExpiresAt = expiresAt.UTC()
	}
	return record, true, nil
}

// Put inserts or replaces the record for userID.
func (r *TokenRepository) Put(ctx context.Context, userID string, record models.TokenRecord) error {
	query := `
		INSERT INTO provider_tokens (provider, user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, r.provider, userID, record.AccessToken, record.RefreshToken, record.ExpiresAt.UTC(), r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

// Users lists user ids with a stored token, ordered by id.
func (r *TokenRepository) Users(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM provider_tokens WHERE provider = ? ORDER BY user_id ASC", r.provider)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

// Reset deletes every token stored for the provider.
func (r *TokenRepository) Reset(ctx context.Context) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM provider_tokens WHERE provider = ?", r.provider); err != nil {
			return fmt.Errorf("failed to clear provider_tokens: %w", err)
		}
		return nil
	})
}
