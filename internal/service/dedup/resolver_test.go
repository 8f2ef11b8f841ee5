package dedup

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
	"imageclassifier/internal/repository/sqlite"
)

func setupStore(t *testing.T) *sqlite.ClassRepository {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "dedup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewClassRepository(db)
}

type fakeStore struct {
	mu        sync.Mutex
	classes   []model.ClassRecord
	listErr   error
	appendErr error
	appends   int
}

func (f *fakeStore) ListAll(ctx context.Context) ([]model.ClassRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.ClassRecord(nil), f.classes...), nil
}

func (f *fakeStore) Append(ctx context.Context, label string, embedding []float64) (*model.ClassRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	rec := model.ClassRecord{ID: int64(len(f.classes) + 1), Label: label, Embedding: embedding}
	f.classes = append(f.classes, rec)
	return &rec, nil
}

// ========================================
// Resolver Tests
// ========================================

func TestResolveClass_FirstInsertThenHit(t *testing.T) {
	r := NewResolver(setupStore(t), DefaultThreshold)
	ctx := context.Background()

	first, err := r.ResolveClass(ctx, "Persian cat", []float64{1, 0, 0})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, int64(1), first.Class.ID)
	assert.True(t, math.IsNaN(first.Similarity))

	second, err := r.ResolveClass(ctx, "Cat", []float64{0.99, 0.01, 0})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, int64(1), second.Class.ID)
	assert.Equal(t, "Persian cat", second.Class.Label)
	assert.Greater(t, second.Similarity, 0.99)
}

func TestResolveClass_Idempotent(t *testing.T) {
	store := setupStore(t)
	r := NewResolver(store, DefaultThreshold)
	ctx := context.Background()
	emb := []float64{0.3, 0.4, 0.5}

	first, err := r.ResolveClass(ctx, "dog", emb)
	require.NoError(t, err)
	second, err := r.ResolveClass(ctx, "dog", emb)
	require.NoError(t, err)

	assert.Equal(t, first.Class.ID, second.Class.ID)
	assert.False(t, second.Created)

	classes, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 1)
}

func TestResolveClass_DistinctBelowThreshold(t *testing.T) {
	store := setupStore(t)
	r := NewResolver(store, DefaultThreshold)
	ctx := context.Background()

	cat, err := r.ResolveClass(ctx, "cat", []float64{1, 0, 0})
	require.NoError(t, err)
	car, err := r.ResolveClass(ctx, "car", []float64{0, 1, 0})
	require.NoError(t, err)

	assert.True(t, car.Created)
	assert.NotEqual(t, cat.Class.ID, car.Class.ID)
	assert.InDelta(t, 0, car.Similarity, 1e-12)

	classes, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 2)
}

func TestResolveClass_ThresholdIsInclusive(t *testing.T) {
	// cos((1,0), (4,3)) = 0.8 exactly.
	store := &fakeStore{classes: []model.ClassRecord{{ID: 1, Label: "a", Embedding: []float64{1, 0}}}}
	r := NewResolver(store, 0.8)

	res, err := r.ResolveClass(context.Background(), "b", []float64{4, 3})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, int64(1), res.Class.ID)
}

func TestResolveClass_PicksHighestSimilarity(t *testing.T) {
	store := &fakeStore{classes: []model.ClassRecord{
		{ID: 1, Label: "feline", Embedding: []float64{0.85, 0.5268, 0}},
		{ID: 2, Label: "cat", Embedding: []float64{0.99, 0.1, 0}},
		{ID: 3, Label: "truck", Embedding: []float64{0, 0, 1}},
	}}
	r := NewResolver(store, DefaultThreshold)

	res, err := r.ResolveClass(context.Background(), "kitten", []float64{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Class.ID)
	assert.Equal(t, 0, store.appends)
}

func TestResolveClass_TieGoesToLowestID(t *testing.T) {
	store := &fakeStore{classes: []model.ClassRecord{
		{ID: 4, Label: "cat", Embedding: []float64{1, 0}},
		{ID: 7, Label: "cat", Embedding: []float64{2, 0}},
	}}
	r := NewResolver(store, DefaultThreshold)

	res, err := r.ResolveClass(context.Background(), "cat", []float64{3, 0})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Class.ID)
}

func TestResolveClass_ZeroVectorNeverMatches(t *testing.T) {
	store := &fakeStore{classes: []model.ClassRecord{{ID: 1, Label: "a", Embedding: []float64{0, 0}}}}
	r := NewResolver(store, DefaultThreshold)

	res, err := r.ResolveClass(context.Background(), "b", []float64{1, 0})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, int64(2), res.Class.ID)
}

func TestResolveClass_DimensionMismatch(t *testing.T) {
	store := &fakeStore{classes: []model.ClassRecord{{ID: 1, Label: "a", Embedding: []float64{1, 0, 0}}}}
	r := NewResolver(store, DefaultThreshold)

	_, err := r.ResolveClass(context.Background(), "b", []float64{1, 0})
	require.Error(t, err)
	assert.Equal(t, "E18", errs.CodeOf(err))
	assert.Equal(t, 0, store.appends)
}

func TestResolveClass_StoreFailures(t *testing.T) {
	ctx := context.Background()

	r := NewResolver(&fakeStore{listErr: errors.New("disk gone")}, DefaultThreshold)
	_, err := r.ResolveClass(ctx, "a", []float64{1})
	assert.ErrorIs(t, err, errs.ErrClassStore)

	r = NewResolver(&fakeStore{appendErr: errs.Wrap(errs.ErrClassStore, errors.New("locked"))}, DefaultThreshold)
	_, err = r.ResolveClass(ctx, "a", []float64{1})
	assert.ErrorIs(t, err, errs.ErrClassStore)
	assert.Equal(t, "ClassAndLabelAndEmbeddings table operation failed: locked", err.Error())
}

func TestResolveClass_EmptyStoreCreates(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store, DefaultThreshold)

	res, err := r.ResolveClass(context.Background(), "first", []float64{0.1, 0.2})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, store.appends)
	assert.Equal(t, DefaultThreshold, r.Threshold())
}

// ========================================
// Locker Tests
// ========================================

type mutexLocker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *mutexLocker) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return fn(ctx)
}

func TestResolveClass_LockerSerializesResolvers(t *testing.T) {
	store := &fakeStore{}
	locker := &mutexLocker{}
	// Two resolvers stand in for two processes sharing one database.
	resolvers := []*Resolver{
		NewResolver(store, DefaultThreshold, WithLocker(locker)),
		NewResolver(store, DefaultThreshold, WithLocker(locker)),
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := resolvers[i%2].ResolveClass(context.Background(), "cat", []float64{1, float64(i) * 0.001})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.appends)
	assert.Equal(t, 20, locker.calls)
}

func TestResolveClass_LockerFailure(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store, DefaultThreshold, WithLocker(&mutexLocker{err: errors.New("connection reset")}))

	_, err := r.ResolveClass(context.Background(), "cat", []float64{1, 0})
	assert.ErrorIs(t, err, errs.ErrClassStore)
	assert.Equal(t, 0, store.appends)
}

func TestResolveClass_LockerKeepsErrorKind(t *testing.T) {
	store := &fakeStore{classes: []model.ClassRecord{{ID: 1, Label: "old", Embedding: []float64{1, 0, 0}}}}
	r := NewResolver(store, DefaultThreshold, WithLocker(&mutexLocker{}))

	_, err := r.ResolveClass(context.Background(), "cat", []float64{1, 0})
	assert.ErrorIs(t, err, errs.ErrEmbeddingDimension)
}
