package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SubscriptionRepo handles database operations for subscriptions and the
// filters and retention policy they own
type SubscriptionRepo struct {
	db *DB
}

var _ SubscriptionRepository = (*SubscriptionRepo)(nil)

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

const subscriptionColumns = `id, name, url, feed_url, title, description, destination_path, library_section,
	last_synced_at, created_at, updated_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetSubscription retrieves a subscription with its filters and retention policy
func (r *SubscriptionRepo) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	return loadSubscription(ctx, r.db, row)
}

// GetSubscriptionByName retrieves a subscription by its config name
func (r *SubscriptionRepo) GetSubscriptionByName(ctx context.Context, name string) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE name = ?`, name)
	return loadSubscription(ctx, r.db, row)
}

// ListSubscriptions returns all subscriptions ordered by name
func (r *SubscriptionRepo) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	return querySubscriptions(ctx, r.db, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY name`)
}

func (r *SubscriptionRepo) GetSubscriptionCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count, nil
}

// UpsertSubscription inserts or updates a subscription by name, replacing
// its filters and retention policy. Reports whether the row was created.
func (r *SubscriptionRepo) UpsertSubscription(ctx context.Context, sub *Subscription) (bool, error) {
	if sub.Name == "" {
		return false, fmt.Errorf("subscription name is required")
	}
	if err := sub.Retention.Validate(); err != nil {
		return false, fmt.Errorf("subscription %s: %w", sub.Name, err)
	}
	for _, f := range sub.Filters {
		if err := f.Validate(); err != nil {
			return false, fmt.Errorf("subscription %s: %w", sub.Name, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var id int64
	created := false

	err = tx.QueryRowContext(ctx, `SELECT id FROM subscriptions WHERE name = ?`, sub.Name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO subscriptions (name, url, feed_url, title, description, destination_path, library_section, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sub.Name, sub.URL, sub.FeedURL, sub.Title, sub.Description, sub.Destination.Path, sub.Destination.LibrarySection,
			formatTime(now), formatTime(now))
		if err != nil {
			return false, fmt.Errorf("failed to insert subscription: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return false, fmt.Errorf("failed to read subscription id: %w", err)
		}
		created = true
		sub.CreatedAt = now
	case err != nil:
		return false, fmt.Errorf("failed to check existing subscription: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET url = ?, feed_url = ?, title = ?, description = ?, destination_path = ?, library_section = ?, updated_at = ?
			WHERE id = ?
		`, sub.URL, sub.FeedURL, sub.Title, sub.Description, sub.Destination.Path, sub.Destination.LibrarySection,
			formatTime(now), id)
		if err != nil {
			return false, fmt.Errorf("failed to update subscription: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM filters WHERE subscription_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to clear filters: %w", err)
	}
	for i := range sub.Filters {
		f := &sub.Filters[i]
		f.Position = i
		res, err := tx.ExecContext(ctx, `
			INSERT INTO filters (subscription_id, position, filter_type, operator, threshold_seconds, threshold_date, keyword)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, f.Position, string(f.Type), string(f.Operator), f.ThresholdSeconds, nullableTime(f.ThresholdDate), f.Keyword)
		if err != nil {
			return false, fmt.Errorf("failed to insert filter: %w", err)
		}
		f.ID, _ = res.LastInsertId()
		f.SubscriptionID = id
	}

	p := &sub.Retention
	res, err := tx.ExecContext(ctx, `
		INSERT INTO retention_policies (subscription_id, policy_type, video_count, cutoff_date, delta_days, delta_weeks, delta_months, delta_years)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subscription_id) DO UPDATE SET
			policy_type = excluded.policy_type,
			video_count = excluded.video_count,
			cutoff_date = excluded.cutoff_date,
			delta_days = excluded.delta_days,
			delta_weeks = excluded.delta_weeks,
			delta_months = excluded.delta_months,
			delta_years = excluded.delta_years
	`, id, string(p.Type), p.VideoCount, nullableTime(p.CutoffDate), p.Delta.Days, p.Delta.Weeks, p.Delta.Months, p.Delta.Years)
	if err != nil {
		return false, fmt.Errorf("failed to upsert retention policy: %w", err)
	}
	if created {
		p.ID, _ = res.LastInsertId()
	}
	p.SubscriptionID = id

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit subscription: %w", err)
	}

	sub.ID = id
	sub.UpdatedAt = now
	return created, nil
}

// DeleteSubscription removes a subscription together with everything it
// owns in one transaction
func (r *SubscriptionRepo) DeleteSubscription(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM videos WHERE subscription_id = ?`,
		`DELETE FROM filters WHERE subscription_id = ?`,
		`DELETE FROM retention_policies WHERE subscription_id = ?`,
		`DELETE FROM subscriptions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete subscription %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subscription delete: %w", err)
	}
	return nil
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub                  Subscription
		lastSynced           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&sub.ID, &sub.Name, &sub.URL, &sub.FeedURL, &sub.Title, &sub.Description,
		&sub.Destination.Path, &sub.Destination.LibrarySection,
		&lastSynced, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if sub.LastSyncedAt, err = parseNullableTime(lastSynced); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

func loadSubscription(ctx context.Context, q queryer, row *sql.Row) (*Subscription, error) {
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if err := loadOwned(ctx, q, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func querySubscriptions(ctx context.Context, q queryer, query string, args ...any) ([]Subscription, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	rows.Close()

	for i := range subs {
		if err := loadOwned(ctx, q, &subs[i]); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// loadOwned fills in the filters and retention policy of sub.
func loadOwned(ctx context.Context, q queryer, sub *Subscription) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, subscription_id, position, filter_type, operator, threshold_seconds, threshold_date, keyword
		FROM filters WHERE subscription_id = ? ORDER BY position
	`, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to query filters: %w", err)
	}
	defer rows.Close()

	sub.Filters = nil
	for rows.Next() {
		var (
			f             Filter
			filterType    string
			operator      string
			thresholdDate sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.SubscriptionID, &f.Position, &filterType, &operator, &f.ThresholdSeconds, &thresholdDate, &f.Keyword); err != nil {
			return fmt.Errorf("failed to scan filter row: %w", err)
		}
		f.Type = FilterType(filterType)
		f.Operator = Operator(operator)
		if f.ThresholdDate, err = parseNullableTime(thresholdDate); err != nil {
			return err
		}
		sub.Filters = append(sub.Filters, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating filter rows: %w", err)
	}

	var (
		p          RetentionPolicy
		policyType string
		cutoff     sql.NullString
	)
	err = q.QueryRowContext(ctx, `
		SELECT id, subscription_id, policy_type, video_count, cutoff_date, delta_days, delta_weeks, delta_months, delta_years
		FROM retention_policies WHERE subscription_id = ?
	`, sub.ID).Scan(&p.ID, &p.SubscriptionID, &policyType, &p.VideoCount, &cutoff,
		&p.Delta.Days, &p.Delta.Weeks, &p.Delta.Months, &p.Delta.Years)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("subscription %s has no retention policy", sub.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to get retention policy: %w", err)
	}
	p.Type = RetentionType(policyType)
	if p.CutoffDate, err = parseNullableTime(cutoff); err != nil {
		return err
	}
	sub.Retention = p
	return nil
}
