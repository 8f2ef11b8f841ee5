package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
	"imageclassifier/internal/repository/sqlite"
)

func setupRecorder(t *testing.T) (*Recorder, *sqlite.AnalysisLogRepository) {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := sqlite.NewAnalysisLogRepository(db)
	return NewRecorder(repo), repo
}

type failingStore struct{}

func (failingStore) Insert(ctx context.Context, entry *model.AnalysisLogEntry) (int64, error) {
	return 0, errors.New("disk full")
}

// ========================================
// Timestamp Tests
// ========================================

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	ts := time.Date(2024, 5, 1, 21, 0, 0, 123456789, loc)

	s, err := FormatTimestamp(ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T12:00:00.123Z", s)
}

func TestFormatTimestamp_OutOfRange(t *testing.T) {
	_, err := FormatTimestamp(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)

	_, err = FormatTimestamp(time.Date(-1, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestTimestamps_Kinds(t *testing.T) {
	good := time.Now()
	bad := time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := Timestamps(bad, good)
	assert.Equal(t, "E14", errs.CodeOf(err))

	_, _, err = Timestamps(good, bad)
	assert.Equal(t, "E15", errs.CodeOf(err))

	req, resp, err := Timestamps(good, good.Add(time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, req, resp)
}

// ========================================
// Recorder Tests
// ========================================

func TestRecordSuccess(t *testing.T) {
	rec, repo := setupRecorder(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := rec.RecordSuccess(ctx, SuccessEntry{
		ImagePath:   "https://example.com/cat.jpg",
		Class:       1,
		Confidence:  0.92,
		RequestedAt: start,
		RespondedAt: start.Add(1500 * time.Millisecond),
	})
	require.NoError(t, err)

	entries, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.True(t, e.Success)
	assert.Equal(t, SuccessMessage, e.Message)
	assert.Equal(t, int64(1), *e.Class)
	assert.Equal(t, 0.92, *e.Confidence)
	assert.Equal(t, "2024-01-02T03:04:05.000Z", *e.RequestTimestamp)
	assert.Equal(t, "2024-01-02T03:04:06.500Z", *e.ResponseTimestamp)
}

func TestRecordSuccess_InvalidTimestampStoresNothing(t *testing.T) {
	rec, repo := setupRecorder(t)
	ctx := context.Background()

	_, err := rec.RecordSuccess(ctx, SuccessEntry{
		ImagePath:   "https://example.com/cat.jpg",
		RequestedAt: time.Now(),
		RespondedAt: time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, errs.ErrResponseTimestamp)

	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordFailure(t *testing.T) {
	rec, repo := setupRecorder(t)
	ctx := context.Background()

	_, err := rec.RecordFailure(ctx, "https://example.com/x.jpg", errs.Wrap(errs.ErrVisionAPI, errors.New("503")))
	require.NoError(t, err)

	entries, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.False(t, e.Success)
	assert.Equal(t, "Google Vision API request failed", e.Message)
	assert.Nil(t, e.Class)
	assert.Nil(t, e.Confidence)
	assert.Nil(t, e.RequestTimestamp)
	assert.Nil(t, e.ResponseTimestamp)
}

func TestRecordFailure_UnknownCause(t *testing.T) {
	rec, repo := setupRecorder(t)
	ctx := context.Background()

	_, err := rec.RecordFailure(ctx, "", errors.New("boom"))
	require.NoError(t, err)

	entries, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "An unexpected error occurred", entries[0].Message)
	assert.Nil(t, entries[0].ImagePath)
}

func TestRecorder_StoreFailure(t *testing.T) {
	rec := NewRecorder(failingStore{})

	_, err := rec.RecordFailure(context.Background(), "x", errs.ErrVisionAPI)
	assert.Equal(t, "E20", errs.CodeOf(err))

	_, err = rec.RecordSuccess(context.Background(), SuccessEntry{RequestedAt: time.Now(), RespondedAt: time.Now()})
	assert.ErrorIs(t, err, errs.ErrAnalysisLogStore)
}
