package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
	"imageclassifier/internal/repository"
)

// RateLimitRepository implements repository.RateLimitRepository for SQLite.
// Expiry is stored as Unix milliseconds.
type RateLimitRepository struct {
	db *DB
}

// NewRateLimitRepository creates a new SQLite rate limit repository.
func NewRateLimitRepository(db *DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the window for key, or nil if none is stored.
func (r *RateLimitRepository) Get(ctx context.Context, key string) (*model.RateLimitWindow, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return readWindow(ctx, r.db.Conn(), key)
}

// Increment bumps the counter for key inside one transaction.
func (r *RateLimitRepository) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*model.RateLimitWindow, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrRateLimitStore, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	current, err := readWindow(ctx, tx, key)
	if err != nil && !errors.Is(err, repository.ErrCorruptWindow) {
		return nil, err
	}

	next := model.RateLimitWindow{Key: key, Count: 1, Expiry: now.Add(window)}
	if err == nil && current != nil && !now.After(current.Expiry) {
		next.Count = current.Count + 1
		next.Expiry = current.Expiry
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rate_limit (key, count, expiry) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET count = excluded.count, expiry = excluded.expiry
	`, key, next.Count, next.Expiry.UnixMilli()); err != nil {
		return nil, errs.Wrap(errs.ErrRateLimitStore, fmt.Errorf("failed to upsert rate limit: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.ErrRateLimitStore, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return &next, nil
}

func readWindow(ctx context.Context, q queryRower, key string) (*model.RateLimitWindow, error) {
	var count, expiry sql.NullString
	err := q.QueryRowContext(ctx, `SELECT count, expiry FROM rate_limit WHERE key = ?`, key).Scan(&count, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrRateLimitStore, fmt.Errorf("failed to read rate limit: %w", err))
	}

	c, cerr := strconv.ParseInt(count.String, 10, 64)
	e, eerr := strconv.ParseInt(expiry.String, 10, 64)
	if !count.Valid || !expiry.Valid || cerr != nil || eerr != nil {
		return nil, fmt.Errorf("%w: key %q", repository.ErrCorruptWindow, key)
	}
	return &model.RateLimitWindow{Key: key, Count: c, Expiry: time.UnixMilli(e)}, nil
}
