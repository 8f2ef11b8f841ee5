// Package dedup maps a freshly labelled image onto an existing class when a stored
// label embedding is similar enough, and mints a new class otherwise.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
	"imageclassifier/internal/similarity"
)

// DefaultThreshold is the minimum cosine similarity at which two labels are the same class.
const DefaultThreshold = 0.8

// ClassStore is the subset of repository.ClassRepository the resolver needs.
type ClassStore interface {
	ListAll(ctx context.Context) ([]model.ClassRecord, error)
	Append(ctx context.Context, label string, embedding []float64) (*model.ClassRecord, error)
}

// Resolution is the outcome of one ResolveClass call.
type Resolution struct {
	Class      *model.ClassRecord
	Created    bool
	Similarity float64 // best similarity among stored classes; NaN when none compared
}

// Locker serializes resolution across processes that share one store.
type Locker interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// Resolver runs the read-compare-append decision against a ClassStore.
type Resolver struct {
	store     ClassStore
	threshold float64
	locker    Locker
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLocker makes every resolution run under l.
func WithLocker(l Locker) ResolverOption {
	return func(r *Resolver) { r.locker = l }
}

// NewResolver returns a Resolver using threshold.
func NewResolver(store ClassStore, threshold float64, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, threshold: threshold}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold returns the similarity threshold in use.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// ResolveClass returns the stored class most similar to embedding when its similarity
// reaches the threshold, or appends a new class for label. Ties go to the lowest id.
func (r *Resolver) ResolveClass(ctx context.Context, label string, embedding []float64) (*Resolution, error) {
	if r.locker == nil {
		return r.resolve(ctx, label, embedding)
	}

	var res *Resolution
	err := r.locker.WithLock(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.resolve(ctx, label, embedding)
		return err
	})
	if err != nil {
		return nil, errs.Ensure(errs.ErrClassStore, err)
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, label string, embedding []float64) (*Resolution, error) {
	classes, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, errs.Ensure(errs.ErrClassStore, err)
	}

	var (
		match     *model.ClassRecord
		bestScore = math.NaN()
	)
	for i := range classes {
		score, err := similarity.Cosine(classes[i].Embedding, embedding)
		if err != nil {
			if errors.Is(err, similarity.ErrDimensionMismatch) {
				return nil, errs.Wrap(errs.ErrEmbeddingDimension, fmt.Errorf("class %d: %w", classes[i].ID, err))
			}
			return nil, err
		}
		if math.IsNaN(score) {
			continue
		}
		// ListAll is id-ordered, so strict > keeps the lowest id on ties.
		if math.IsNaN(bestScore) || score > bestScore {
			bestScore = score
			if similarity.IsSimilar(score, r.threshold) {
				match = &classes[i]
			}
		}
	}

	if match != nil {
		return &Resolution{Class: match, Similarity: bestScore}, nil
	}

	created, err := r.store.Append(ctx, label, embedding)
	if err != nil {
		return nil, errs.Ensure(errs.ErrClassStore, err)
	}
	return &Resolution{Class: created, Created: true, Similarity: bestScore}, nil
}
