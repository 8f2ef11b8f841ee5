package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
	"imageclassifier/internal/repository"
)

// RateLimitRepository keeps fixed windows with expiry in Unix milliseconds.
type RateLimitRepository struct {
	db *DB
}

func NewRateLimitRepository(db *DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

func (r *RateLimitRepository) Get(ctx context.Context, key string) (*model.RateLimitWindow, error) {
	var count, expiry sql.NullInt64
	err := r.db.conn.QueryRowContext(ctx, `SELECT count, expiry FROM rate_limit WHERE key = $1`, key).Scan(&count, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrRateLimitStore, fmt.Errorf("can't read rate limit: %w", err))
	}
	if !count.Valid || !expiry.Valid {
		return nil, fmt.Errorf("%w: key %q", repository.ErrCorruptWindow, key)
	}
	return &model.RateLimitWindow{Key: key, Count: count.Int64, Expiry: time.UnixMilli(expiry.Int64)}, nil
}

// Increment resets a missing, expired or NULL window and bumps a live one, in a single statement.
func (r *RateLimitRepository) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*model.RateLimitWindow, error) {
	q := `
	INSERT INTO rate_limit (key, count, expiry) VALUES ($1, 1, $2)
	ON CONFLICT (key) DO UPDATE SET
		count = CASE
			WHEN rate_limit.count IS NULL OR rate_limit.expiry IS NULL OR rate_limit.expiry < $3 THEN 1
			ELSE rate_limit.count + 1 END,
		expiry = CASE
			WHEN rate_limit.count IS NULL OR rate_limit.expiry IS NULL OR rate_limit.expiry < $3 THEN $2
			ELSE rate_limit.expiry END
	RETURNING count, expiry`

	var count, expiry int64
	err := r.db.conn.QueryRowContext(ctx, q, key, now.Add(window).UnixMilli(), now.UnixMilli()).Scan(&count, &expiry)
	if err != nil {
		return nil, errs.Wrap(errs.ErrRateLimitStore, fmt.Errorf("can't increment rate limit: %w", err))
	}
	return &model.RateLimitWindow{Key: key, Count: count, Expiry: time.UnixMilli(expiry)}, nil
}
