package repository

import (
	"context"
	"time"

	"imageclassifier/internal/model"
)

// ClassRepository stores recognized classes and their reference embeddings.
type ClassRepository interface {
	// Append inserts a new class and returns it with its assigned id.
	Append(ctx context.Context, label string, embedding []float64) (*model.ClassRecord, error)

	// ListAll returns every class in insertion order.
	ListAll(ctx context.Context) ([]model.ClassRecord, error)

	// FindOne returns the single class matching filter.
	// Fails with errs.ErrClassNotFound or errs.ErrAmbiguousClass.
	FindOne(ctx context.Context, filter model.ClassFilter) (*model.ClassRecord, error)
}

// AnalysisLogRepository is the append-only audit log of classification attempts.
type AnalysisLogRepository interface {
	Insert(ctx context.Context, entry *model.AnalysisLogEntry) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]model.AnalysisLogEntry, error)
}

// RateLimitRepository persists fixed-window request counters.
type RateLimitRepository interface {
	// Get returns the stored window, nil if the key has none.
	// Unparsable stored values fail with ErrCorruptWindow.
	Get(ctx context.Context, key string) (*model.RateLimitWindow, error)

	// Increment atomically bumps the counter for key. A missing, expired or corrupt
	// window is reset to count=1 with expiry now+window.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*model.RateLimitWindow, error)
}
