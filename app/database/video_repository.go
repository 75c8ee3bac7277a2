package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bthode/engawa/app/metadata"
)

// VideoRepo handles read-only video queries. Video writes only happen
// through SyncRepo.CommitSyncState.
type VideoRepo struct {
	db *DB
}

var _ VideoRepository = (*VideoRepo)(nil)

// NewVideoRepository creates a new video repository
func NewVideoRepository(db *DB) *VideoRepo {
	return &VideoRepo{db: db}
}

const videoColumns = `id, remote_id, subscription_id, title, author, description, link, published_at,
	duration_seconds, thumbnail_url, status, metadata_error, metadata_error_message, retry_count, file_path,
	created_at, updated_at`

// GetVideos returns a subscription's videos, optionally restricted to the
// given statuses, newest first
func (r *VideoRepo) GetVideos(ctx context.Context, subscriptionID int64, statuses ...VideoStatus) ([]Video, error) {
	return queryVideos(ctx, r.db, subscriptionID, statuses...)
}

// GetStatusCounts returns the number of videos in each status
func (r *VideoRepo) GetStatusCounts(ctx context.Context) (StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM videos GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count videos: %w", err)
	}
	defer rows.Close()

	counts := StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[VideoStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}

// GetStatusCountsBySubscription returns per-subscription status counts
func (r *VideoRepo) GetStatusCountsBySubscription(ctx context.Context) (map[int64]StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT subscription_id, status, COUNT(*) FROM videos GROUP BY subscription_id, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count videos: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]StatusCounts)
	for rows.Next() {
		var id int64
		var status string
		var n int
		if err := rows.Scan(&id, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		if counts[id] == nil {
			counts[id] = StatusCounts{}
		}
		counts[id][VideoStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}

func queryVideos(ctx context.Context, q queryer, subscriptionID int64, statuses ...VideoStatus) ([]Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE subscription_id = ?`
	args := []any{subscriptionID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY published_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video row: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating video rows: %w", err)
	}
	return videos, nil
}

func scanVideo(row rowScanner) (*Video, error) {
	var (
		v                    Video
		publishedAt          sql.NullString
		duration             sql.NullInt64
		thumbnail            sql.NullString
		status               string
		metadataError        sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&v.ID, &v.RemoteID, &v.SubscriptionID, &v.Title, &v.Author, &v.Description, &v.Link, &publishedAt,
		&duration, &thumbnail, &status, &metadataError, &v.MetadataErrorMessage, &v.RetryCount, &v.FilePath,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if v.PublishedAt, err = parseNullableTime(publishedAt); err != nil {
		return nil, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		v.DurationSeconds = &d
	}
	if thumbnail.Valid {
		t := thumbnail.String
		v.ThumbnailURL = &t
	}
	v.Status = VideoStatus(status)
	if metadataError.Valid {
		kind := metadata.ErrorKind(metadataError.String)
		v.MetadataError = &kind
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func nullableErrorKind(kind *metadata.ErrorKind) any {
	if kind == nil {
		return nil
	}
	return string(*kind)
}
