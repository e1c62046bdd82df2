package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/shared"
)

// HistoryRepository appends [models.SyncRecord] rows to the sync_history table.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new [HistoryRepository] with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append stores record, generating an id when it has none.
func (r *HistoryRepository) Append(ctx context.Context, record *models.SyncRecord) error {
	if record.ID == "" {
		record.ID = shared.GenerateID()
	}
	if record.SyncedAt.IsZero() {
		record.SyncedAt = time.Now()
	}

	query := `
		INSERT INTO sync_history (id, user_id, provider, label, score, source, sample_count, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.UserID, string(record.Provider), string(record.Label),
		record.Score, record.Source, record.SampleCount, record.SyncedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. A non-positive limit returns all.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	query := `
		SELECT id, user_id, provider, label, score, source, sample_count, synced_at
		FROM sync_history
		ORDER BY synced_at DESC, id ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync history: %w", err)
	}
	defer rows.Close()

	var records []models.SyncRecord
	for rows.Next() {
		var (
			rec      models.SyncRecord
			provider string
			label    string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &provider, &label, &rec.Score, &rec.Source, &rec.SampleCount, &rec.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		rec.Provider = models.ProviderID(provider)
		rec.Label = models.MoodLabel(label)
		rec.SyncedAt = rec.SyncedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Reset deletes the whole history.
func (r *HistoryRepository) Reset(ctx context.Context) error {
	return clearTable(ctx, r.db, "sync_history")
}
