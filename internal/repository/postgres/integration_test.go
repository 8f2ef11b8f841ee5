//go:build integration
// +build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
	"imageclassifier/internal/service/dedup"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := New(ctx, dsn)
	require.NoError(t, err)
	_, err = db.Conn().ExecContext(ctx, `TRUNCATE class_label_embeddings, ai_analysis_log, rate_limit RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIntegration_ClassRepository(t *testing.T) {
	repo := NewClassRepository(setupTestDB(t))
	ctx := context.Background()

	precise := []float64{0.1, 1.0 / 3.0, -2.5e-17}
	cat, err := repo.Append(ctx, "cat", precise)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cat.ID)

	_, err = repo.Append(ctx, "dog", []float64{0, 1, 0})
	require.NoError(t, err)

	classes, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, precise, classes[0].Embedding)

	found, err := repo.FindOne(ctx, model.ByID(cat.ID))
	require.NoError(t, err)
	assert.Equal(t, "cat", found.Label)

	_, err = repo.FindOne(ctx, model.ByID(999))
	assert.ErrorIs(t, err, errs.ErrClassNotFound)

	_, err = repo.AppendBatch(ctx, []model.ClassRecord{{Label: "cat", Embedding: []float64{1, 0, 0}}})
	require.NoError(t, err)
	_, err = repo.FindOne(ctx, model.ByLabel("cat"))
	assert.ErrorIs(t, err, errs.ErrAmbiguousClass)
}

func TestIntegration_AnalysisLogRepository(t *testing.T) {
	repo := NewAnalysisLogRepository(setupTestDB(t))
	ctx := context.Background()

	path := "https://example.com/cat.jpg"
	_, err := repo.Insert(ctx, &model.AnalysisLogEntry{ImagePath: &path, Success: false, Message: "failed"})
	require.NoError(t, err)

	entries, err := repo.ListRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Class)
	assert.Equal(t, path, *entries[0].ImagePath)
}

func TestIntegration_RateLimitRepository(t *testing.T) {
	repo := NewRateLimitRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	w, err := repo.Increment(ctx, "k", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Count)

	w, err = repo.Increment(ctx, "k", now.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), w.Count)

	w, err = repo.Increment(ctx, "k", now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Count)

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, w.Expiry.UnixMilli(), got.Expiry.UnixMilli())
}

func TestIntegration_ResolveLockAcrossHandles(t *testing.T) {
	db := setupTestDB(t)
	other, err := New(context.Background(), os.Getenv("TEST_DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })

	// Separate pools stand in for separate replicas.
	repos := []*ClassRepository{NewClassRepository(db), NewClassRepository(other)}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo := repos[i%2]
			r := dedup.NewResolver(repo, dedup.DefaultThreshold, dedup.WithLocker(repo))
			_, err := r.ResolveClass(context.Background(), "cat", []float64{1, float64(i) * 0.001, 0})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	classes, err := repos[0].ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, classes, 1)
}
