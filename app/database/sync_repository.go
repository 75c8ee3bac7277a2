package database

import (
	"context"
	"fmt"
	"time"
)

// SQLite's default host parameter limit is 999; stay well under it.
const remoteIDChunk = 500

// SyncRepo loads and commits the per-subscription working state used by a
// synchronization cycle
type SyncRepo struct {
	db *DB
}

var _ SyncRepository = (*SyncRepo)(nil)

// NewSyncRepository creates a new sync repository
func NewSyncRepository(db *DB) *SyncRepo {
	return &SyncRepo{db: db}
}

// GetDueSubscriptions returns subscriptions never synced or last synced
// before cutoff, least recently synced first
func (r *SyncRepo) GetDueSubscriptions(ctx context.Context, cutoff time.Time) ([]Subscription, error) {
	return querySubscriptions(ctx, r.db, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE last_synced_at IS NULL OR last_synced_at < ?
		ORDER BY COALESCE(last_synced_at, ''), name
	`, formatTime(cutoff))
}

// LoadSyncState snapshots a subscription and all of its videos
func (r *SyncRepo) LoadSyncState(ctx context.Context, subscriptionID int64) (*SyncState, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, subscriptionID)
	sub, err := loadSubscription(ctx, r.db, row)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("subscription %d not found", subscriptionID)
	}

	videos, err := queryVideos(ctx, r.db, subscriptionID)
	if err != nil {
		return nil, err
	}
	return NewSyncState(*sub, videos), nil
}

// ExistingRemoteIDs maps each already stored remote id to the
// subscription that owns it
func (r *SyncRepo) ExistingRemoteIDs(ctx context.Context, remoteIDs []string) (map[string]int64, error) {
	owners := make(map[string]int64)
	for start := 0; start < len(remoteIDs); start += remoteIDChunk {
		end := min(start+remoteIDChunk, len(remoteIDs))
		chunk := remoteIDs[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := r.db.QueryContext(ctx,
			`SELECT remote_id, subscription_id FROM videos WHERE remote_id IN (`+makePlaceholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query remote ids: %w", err)
		}
		for rows.Next() {
			var remoteID string
			var subscriptionID int64
			if err := rows.Scan(&remoteID, &subscriptionID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan remote id: %w", err)
			}
			owners[remoteID] = subscriptionID
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating remote ids: %w", err)
		}
	}
	return owners, nil
}

// CommitSyncState writes every new and changed video plus the
// subscription's sync time in a single transaction
func (r *SyncRepo) CommitSyncState(ctx context.Context, state *SyncState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	inserted := make(map[*Video]int64)

	for _, v := range state.NewVideos() {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO videos (remote_id, subscription_id, title, author, description, link, published_at,
				duration_seconds, thumbnail_url, status, metadata_error, metadata_error_message, retry_count, file_path,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(remote_id) DO NOTHING
		`, v.RemoteID, state.Subscription.ID, v.Title, v.Author, v.Description, v.Link, nullableTime(v.PublishedAt),
			nullableInt(v.DurationSeconds), nullableStringPtr(v.ThumbnailURL), string(v.Status),
			nullableErrorKind(v.MetadataError), v.MetadataErrorMessage, v.RetryCount, v.FilePath,
			formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to insert video %s: %w", v.RemoteID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read video id: %w", err)
		}
		inserted[v] = id
	}

	for _, v := range state.ChangedVideos() {
		_, err := tx.ExecContext(ctx, `
			UPDATE videos
			SET title = ?, author = ?, description = ?, link = ?, published_at = ?, duration_seconds = ?,
				thumbnail_url = ?, status = ?, metadata_error = ?, metadata_error_message = ?, retry_count = ?,
				file_path = ?, updated_at = ?
			WHERE id = ? AND subscription_id = ?
		`, v.Title, v.Author, v.Description, v.Link, nullableTime(v.PublishedAt), nullableInt(v.DurationSeconds),
			nullableStringPtr(v.ThumbnailURL), string(v.Status), nullableErrorKind(v.MetadataError),
			v.MetadataErrorMessage, v.RetryCount, v.FilePath, formatTime(now), v.ID, state.Subscription.ID)
		if err != nil {
			return fmt.Errorf("failed to update video %s: %w", v.RemoteID, err)
		}
	}

	if state.SubscriptionChanged() {
		_, err := tx.ExecContext(ctx, `UPDATE subscriptions SET last_synced_at = ?, updated_at = ? WHERE id = ?`,
			nullableTime(state.Subscription.LastSyncedAt), formatTime(now), state.Subscription.ID)
		if err != nil {
			return fmt.Errorf("failed to update subscription sync time: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync state: %w", err)
	}

	for v, id := range inserted {
		v.ID = id
	}
	return nil
}
